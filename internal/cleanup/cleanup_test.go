package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/packport/packport/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createArchiveFile(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("archive bytes"), 0o644))

	return path
}

func TestDeleteExpiredArchives(t *testing.T) {
	dir := t.TempDir()

	expired := createArchiveFile(t, dir, "old-1.0.0.zip")
	fresh := createArchiveFile(t, dir, "new-2.0.0.zip")

	records := []storage.DownloadRecord{
		{
			Locator:     "https://example.com/old.zip",
			ArchivePath: expired,
			StartedAt:   time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
			Status:      storage.StatusCompleted,
		},
		{
			Locator:     "https://example.com/new.zip",
			ArchivePath: fresh,
			StartedAt:   time.Now().Add(-time.Hour).Format(time.RFC3339),
			Status:      storage.StatusCompleted,
		},
	}

	err := DeleteExpiredArchives(context.Background(), records, 24*time.Hour)
	require.NoError(t, err)

	assert.NoFileExists(t, expired)
	assert.FileExists(t, fresh)
}

func TestDeleteExpiredArchivesSkipsNonCompleted(t *testing.T) {
	dir := t.TempDir()

	path := createArchiveFile(t, dir, "partial-1.0.0.zip")

	records := []storage.DownloadRecord{
		{
			Locator:     "https://example.com/partial.zip",
			ArchivePath: path,
			StartedAt:   time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
			Status:      storage.StatusFailed,
		},
		{
			Locator:   "https://example.com/cancelled.zip",
			StartedAt: time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
			Status:    storage.StatusCancelled,
		},
	}

	err := DeleteExpiredArchives(context.Background(), records, 24*time.Hour)
	require.NoError(t, err)

	assert.FileExists(t, path)
}

func TestDeleteExpiredArchivesIgnoresMissingFiles(t *testing.T) {
	records := []storage.DownloadRecord{
		{
			Locator:     "https://example.com/gone.zip",
			ArchivePath: filepath.Join(t.TempDir(), "gone-1.0.0.zip"),
			StartedAt:   time.Now().Add(-48 * time.Hour).Format(time.RFC3339),
			Status:      storage.StatusCompleted,
		},
	}

	err := DeleteExpiredArchives(context.Background(), records, 24*time.Hour)
	assert.NoError(t, err)
}

func TestDeleteExpiredArchivesFallsBackToModTime(t *testing.T) {
	dir := t.TempDir()

	path := createArchiveFile(t, dir, "stamped-1.0.0.zip")

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	records := []storage.DownloadRecord{
		{
			Locator:     "https://example.com/stamped.zip",
			ArchivePath: path,
			StartedAt:   "not-a-timestamp",
			Status:      storage.StatusCompleted,
		},
	}

	err := DeleteExpiredArchives(context.Background(), records, 24*time.Hour)
	require.NoError(t, err)

	assert.NoFileExists(t, path)
}
