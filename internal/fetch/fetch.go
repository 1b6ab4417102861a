package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/packport/packport/internal/archive"
	"github.com/packport/packport/internal/logctx"
)

// chunkSize is the amount read from the body per loop iteration. Progress is
// reported once per chunk, so this also bounds cancellation latency.
const chunkSize = 4096

// ProgressFunc receives one report per chunk: an integer percent in 0-100 and
// a human-readable description.
type ProgressFunc func(percent int, description string)

// Fetcher streams remote package archives to local disk in bounded chunks,
// reporting progress after every chunk and honoring a cooperative
// cancellation signal at chunk granularity.
type Fetcher struct {
	client    *http.Client
	userAgent string
	tempDir   string
}

func NewFetcher(client *http.Client, userAgent, tempDir string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	return &Fetcher{
		client:    client,
		userAgent: userAgent,
		tempDir:   tempDir,
	}
}

// Fetch downloads locator to a fresh temporary file and opens the result as a
// package archive. On success ownership of the returned package (and its
// backing file) transfers to the caller. On cancellation it returns
// ErrCancelled; on any failure a TransferError (or one of the sentinel
// errors) is returned and the temporary file is removed.
func (f *Fetcher) Fetch(ctx context.Context, locator string, onProgress ProgressFunc, cancel *Signal) (*archive.Package, error) {
	logger := logctx.Logger(ctx).With("locator", locator)

	// The request context is cancelled when the signal fires so that the
	// in-flight read aborts instead of blocking until the next chunk.
	reqCtx, abort := context.WithCancel(ctx)
	defer abort()

	if cancel != nil {
		go func() {
			select {
			case <-cancel.Done():
				abort()
			case <-reqCtx.Done():
			}
		}()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, &TransferError{Op: "connect", Locator: locator, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if cancel.fired() {
			return nil, ErrCancelled
		}

		return nil, &TransferError{Op: "connect", Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &TransferError{Op: "connect", Locator: locator, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	total := resp.ContentLength
	if total <= 0 {
		return nil, ErrUnknownSize
	}

	logger.Debug("starting transfer", "total", humanize.Bytes(uint64(total)))

	out, err := os.CreateTemp(f.tempDir, "packport-*.part")
	if err != nil {
		return nil, &TransferError{Op: "create", Locator: locator, Err: err}
	}

	tempPath := out.Name()

	keep := false
	defer func() {
		out.Close()

		if !keep {
			if rmErr := os.Remove(tempPath); rmErr != nil {
				logger.Warn("failed to remove temporary file", "path", tempPath, "err", rmErr)
			}
		}
	}()

	buf := make([]byte, chunkSize)

	var read int64

	for read < total {
		limit := int64(chunkSize)
		if remaining := total - read; remaining < limit {
			limit = remaining
		}

		n, rerr := io.ReadFull(resp.Body, buf[:limit])

		// The signal is checked right after the read returns; once it has
		// fired no further bytes are written and no progress is reported.
		if cancel.fired() {
			return nil, ErrCancelled
		}

		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return nil, &TransferError{Op: "write", Locator: locator, Err: werr}
			}

			read += int64(n)

			onProgress(int(read*100/total), describeProgress(read, total))
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, read, total)
			}

			return nil, &TransferError{Op: "read", Locator: locator, Err: rerr}
		}
	}

	if err := out.Sync(); err != nil {
		return nil, &TransferError{Op: "write", Locator: locator, Err: err}
	}

	pkg, err := archive.Open(tempPath)
	if err != nil {
		return nil, &TransferError{Op: "open", Locator: locator, Err: err}
	}

	keep = true

	logger.Info("transfer complete", "bytes", humanize.Bytes(uint64(read)), "path", tempPath)

	return pkg, nil
}

// fired is a nil-tolerant Signal.Fired.
func (s *Signal) fired() bool {
	return s != nil && s.Fired()
}

// describeProgress formats the per-chunk progress line. Byte counts are
// rounded up to whole kilobytes.
func describeProgress(read, total int64) string {
	return fmt.Sprintf("Downloaded %dKB of %dKB...", kilobytes(read), kilobytes(total))
}

func kilobytes(n int64) int64 {
	return (n + 1023) / 1024
}
