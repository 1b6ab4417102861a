package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type progressReport struct {
	percent     int
	description string
}

type progressRecorder struct {
	reports []progressReport
	onEach  func(n int)
}

func (r *progressRecorder) record(percent int, description string) {
	r.reports = append(r.reports, progressReport{percent: percent, description: description})

	if r.onEach != nil {
		r.onEach(len(r.reports))
	}
}

// zipBody builds a stored (uncompressed) zip archive holding payload.
func zipBody(t *testing.T, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "payload.bin", Method: zip.Store})
	require.NoError(t, err)

	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

// zipBodyOfSize builds a valid zip archive of exactly total bytes. With the
// Store method the archive grows byte for byte with its payload, so the size
// can be hit by padding.
func zipBodyOfSize(t *testing.T, total int) []byte {
	t.Helper()

	overhead := len(zipBody(t, nil))
	require.Greater(t, total, overhead)

	body := zipBody(t, bytes.Repeat([]byte{0xA5}, total-overhead))
	require.Len(t, body, total)

	return body
}

func serveBody(t *testing.T, body []byte) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestFetchReportsChunkProgress(t *testing.T) {
	body := zipBodyOfSize(t, 10240)
	srv := serveBody(t, body)

	tempDir := t.TempDir()
	f := NewFetcher(srv.Client(), "packport/test", tempDir)

	var rec progressRecorder

	pkg, err := f.Fetch(context.Background(), srv.URL, rec.record, NewSignal())
	require.NoError(t, err)
	require.NotNil(t, pkg)

	defer pkg.Discard()

	expected := []progressReport{
		{40, "Downloaded 4KB of 10KB..."},
		{80, "Downloaded 8KB of 10KB..."},
		{100, "Downloaded 10KB of 10KB..."},
	}
	assert.Equal(t, expected, rec.reports)

	assert.Equal(t, int64(10240), pkg.Size())
	assert.Contains(t, pkg.Entries(), "payload.bin")
}

func TestFetchProgressMonotonic(t *testing.T) {
	body := zipBodyOfSize(t, 33000)
	srv := serveBody(t, body)

	f := NewFetcher(srv.Client(), "packport/test", t.TempDir())

	var rec progressRecorder

	pkg, err := f.Fetch(context.Background(), srv.URL, rec.record, NewSignal())
	require.NoError(t, err)

	defer pkg.Discard()

	require.NotEmpty(t, rec.reports)

	last := -1
	for _, r := range rec.reports {
		assert.GreaterOrEqual(t, r.percent, last)
		last = r.percent
	}

	assert.Equal(t, 100, last)
}

func TestFetchSendsUserAgent(t *testing.T) {
	var gotUserAgent string

	body := zipBodyOfSize(t, 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")

		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), "packport/9.9-test", t.TempDir())

	pkg, err := f.Fetch(context.Background(), srv.URL, func(int, string) {}, NewSignal())
	require.NoError(t, err)

	defer pkg.Discard()

	assert.Equal(t, "packport/9.9-test", gotUserAgent)
}

func TestFetchCancelledMidTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10240")
		_, _ = w.Write(make([]byte, 4096))
		w.(http.Flusher).Flush()

		// Hold the rest of the body until the client goes away.
		<-r.Context().Done()
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	f := NewFetcher(srv.Client(), "packport/test", tempDir)

	signal := NewSignal()

	rec := progressRecorder{onEach: func(n int) {
		if n == 1 {
			signal.Fire()
		}
	}}

	pkg, err := f.Fetch(context.Background(), srv.URL, rec.record, signal)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, pkg)

	// No report after the signal fired, and no temp file left behind.
	assert.Len(t, rec.reports, 1)
	assertDirEmpty(t, tempDir)
}

func TestFetchCancelledBeforeFirstChunk(t *testing.T) {
	body := zipBodyOfSize(t, 10240)
	srv := serveBody(t, body)

	tempDir := t.TempDir()
	f := NewFetcher(srv.Client(), "packport/test", tempDir)

	signal := NewSignal()
	signal.Fire()

	var rec progressRecorder

	pkg, err := f.Fetch(context.Background(), srv.URL, rec.record, signal)
	require.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, pkg)
	assert.Empty(t, rec.reports)
	assertDirEmpty(t, tempDir)
}

func TestFetchUnknownLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flushing before the handler returns forces chunked encoding, so
		// the response carries no Content-Length.
		_, _ = w.Write([]byte("some bytes"))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("more bytes"))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	f := NewFetcher(srv.Client(), "packport/test", tempDir)

	var rec progressRecorder

	pkg, err := f.Fetch(context.Background(), srv.URL, rec.record, NewSignal())
	require.ErrorIs(t, err, ErrUnknownSize)
	assert.Nil(t, pkg)
	assert.Empty(t, rec.reports)
	assertDirEmpty(t, tempDir)
}

func TestFetchShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10240")
		_, _ = w.Write(make([]byte, 6000))
	}))
	defer srv.Close()

	tempDir := t.TempDir()
	f := NewFetcher(srv.Client(), "packport/test", tempDir)

	var rec progressRecorder

	pkg, err := f.Fetch(context.Background(), srv.URL, rec.record, NewSignal())
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Nil(t, pkg)
	assert.NotEmpty(t, rec.reports)
	assertDirEmpty(t, tempDir)
}

func TestFetchUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), "packport/test", t.TempDir())

	var rec progressRecorder

	pkg, err := f.Fetch(context.Background(), srv.URL, rec.record, NewSignal())
	require.Error(t, err)
	assert.Nil(t, pkg)
	assert.Empty(t, rec.reports)

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
}

func TestFetchConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	f := NewFetcher(nil, "packport/test", t.TempDir())

	pkg, err := f.Fetch(context.Background(), srv.URL, func(int, string) {}, NewSignal())
	require.Error(t, err)
	assert.Nil(t, pkg)

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Error(t, errors.Unwrap(terr))
}

func TestKilobytesRoundsUp(t *testing.T) {
	tests := []struct {
		bytes int64
		want  int64
	}{
		{0, 0},
		{1, 1},
		{1023, 1},
		{1024, 1},
		{1025, 2},
		{10240, 10},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, kilobytes(tt.bytes), "kilobytes(%d)", tt.bytes)
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "expected no leftover files in %s", dir)
}
