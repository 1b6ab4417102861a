package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks a user-initiated abort. It is not a failure and is
	// never shown through the error sink.
	ErrCancelled = errors.New("download cancelled")

	// ErrUnknownSize is returned when the server does not announce a
	// Content-Length. Without a total the progress protocol cannot run.
	ErrUnknownSize = errors.New("remote did not announce a content length")

	// ErrIncomplete is returned when the body ends before the announced
	// number of bytes has been received.
	ErrIncomplete = errors.New("transfer ended before all bytes were received")
)

// TransferError represents an I/O failure during connect, header read, body
// read or disk write. It carries the underlying cause for unwrapping.
type TransferError struct {
	Op      string // the step that failed (e.g. "connect", "read", "write")
	Locator string // the URL being fetched
	Err     error  // underlying cause
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s failed for %s: %s", e.Op, e.Locator, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
