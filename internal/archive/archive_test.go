package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestArchive(t *testing.T, path string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)

	for name, content := range map[string]string{
		"manifest.json": `{"name":"demo"}`,
		"bin/demo":      "#!/bin/sh\n",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)

		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.zip")
	writeTestArchive(t, path)

	pkg, err := Open(path)
	require.NoError(t, err)

	defer pkg.Close()

	assert.Equal(t, "demo.zip", pkg.Name())
	assert.Equal(t, path, pkg.Path())
	assert.Positive(t, pkg.Size())
	assert.ElementsMatch(t, []string{"manifest.json", "bin/demo"}, pkg.Entries())
}

func TestOpenRejectsNonArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-zip.bin")
	require.NoError(t, os.WriteFile(path, []byte("plain bytes"), 0o644))

	pkg, err := Open(path)
	require.Error(t, err)
	assert.Nil(t, pkg)
}

func TestPromote(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "packport-123.part")
	writeTestArchive(t, src)

	pkg, err := Open(src)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "demo-1.0.0.zip")
	require.NoError(t, pkg.Promote(dest))

	defer pkg.Close()

	assert.Equal(t, dest, pkg.Path())
	assert.NoFileExists(t, src)
	assert.FileExists(t, dest)
	assert.ElementsMatch(t, []string{"manifest.json", "bin/demo"}, pkg.Entries())
}

func TestDiscard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.zip")
	writeTestArchive(t, path)

	pkg, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, pkg.Discard())
	assert.NoFileExists(t, path)
}
