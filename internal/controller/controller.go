// Package controller owns the lifecycle of a single download operation: it
// presents the progress surface, polls for a user cancel request, drives the
// streaming transfer and guarantees cleanup on every exit path.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/packport/packport/internal/archive"
	"github.com/packport/packport/internal/fetch"
	"github.com/packport/packport/internal/logctx"
	"github.com/packport/packport/internal/storage"
	"github.com/packport/packport/internal/telemetry"
)

const defaultPollInterval = 200 * time.Millisecond

// ErrBusy is returned when a download is requested while another transfer
// session is still active on the same controller.
var ErrBusy = errors.New("a download is already in progress")

// Surface is the capability interface over the modal progress UI. Any
// concrete dialog or headless implementation satisfies it. Implementations
// must be safe for concurrent use: the poll goroutine and the transfer
// goroutine touch it at the same time.
type Surface interface {
	Show(text string)
	ReportProgress(percent int, text string)
	CancelRequested() bool
	Close()
}

// Alerter is the external error sink. Cancellations are never shown here.
type Alerter interface {
	ShowError(message string)
}

// Activator restores focus to the main surface after the progress surface is
// dismissed.
type Activator interface {
	Activate()
}

// Request describes one download. Identifier and Version are used only to
// format the displayed message and the promoted artifact name; when
// Identifier is empty the raw locator is displayed instead.
type Request struct {
	Locator    string `json:"url"`
	Identifier string `json:"id,omitempty"`
	Version    string `json:"version,omitempty"`
}

// DisplayMessage formats the text shown on the progress surface.
func (r Request) DisplayMessage() string {
	if r.Identifier != "" {
		if r.Version != "" {
			return fmt.Sprintf("Downloading %s %s...", r.Identifier, r.Version)
		}

		return fmt.Sprintf("Downloading %s...", r.Identifier)
	}

	return fmt.Sprintf("Downloading %s...", r.Locator)
}

// ArtifactName picks the file name the archive is promoted under.
func (r Request) ArtifactName() string {
	if r.Identifier != "" {
		if r.Version != "" {
			return r.Identifier + "-" + r.Version + ".zip"
		}

		return r.Identifier + ".zip"
	}

	if u, err := url.Parse(r.Locator); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}

	return "package.zip"
}

// Controller coordinates one download at a time.
type Controller struct {
	fetcher      *fetch.Fetcher
	surface      Surface
	alerter      Alerter
	main         Activator
	history      storage.DownloadRepository
	telemetry    *telemetry.Telemetry
	archiveDir   string
	pollInterval time.Duration

	active atomic.Bool
}

// Option configures optional collaborators.
type Option func(*Controller)

// WithActivator sets the main surface to reactivate after each download.
func WithActivator(a Activator) Option {
	return func(c *Controller) { c.main = a }
}

// WithHistory records every attempt's terminal status in repo.
func WithHistory(repo storage.DownloadRepository) Option {
	return func(c *Controller) { c.history = repo }
}

// WithArchiveDir promotes completed downloads into dir instead of leaving
// them at their temporary location.
func WithArchiveDir(dir string) Option {
	return func(c *Controller) { c.archiveDir = dir }
}

// WithTelemetry records session metrics for every download.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(c *Controller) { c.telemetry = tel }
}

// WithPollInterval overrides the cancel poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) { c.pollInterval = d }
}

func New(fetcher *fetch.Fetcher, surface Surface, alerter Alerter, opts ...Option) *Controller {
	c := &Controller{
		fetcher:      fetcher,
		surface:      surface,
		alerter:      alerter,
		pollInterval: defaultPollInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Active reports whether a transfer session is currently running.
func (c *Controller) Active() bool {
	return c.active.Load()
}

// Download fetches the requested archive and returns the package handle on
// success. Cancellation and transfer failures both return a nil handle with a
// nil error: failures are reported through the error sink with their
// innermost cause, cancellations silently. Only ErrBusy surfaces as an error.
func (c *Controller) Download(ctx context.Context, req Request) (*archive.Package, error) {
	if !c.active.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.active.Store(false)

	logger := logctx.Logger(ctx).With("locator", req.Locator)

	c.surface.Show(req.DisplayMessage())

	signal := fetch.NewSignal()

	pollCtx, stopPoll := context.WithCancel(ctx)

	var wg sync.WaitGroup

	wg.Add(1)

	go c.pollCancel(pollCtx, signal, &wg)

	// Cleanup runs unconditionally: stop the poll, dismiss the surface,
	// hand activation back to the main surface.
	defer func() {
		stopPoll()
		wg.Wait()
		c.surface.Close()

		if c.main != nil {
			c.main.Activate()
		}
	}()

	start := time.Now()

	if c.telemetry != nil {
		c.telemetry.IncrementActiveDownloads()
		defer c.telemetry.DecrementActiveDownloads()
	}

	recordID := c.trackDownload(ctx, req)

	pkg, err := c.fetcher.Fetch(ctx, req.Locator, c.surface.ReportProgress, signal)

	switch {
	case err == nil:
		if c.archiveDir != "" {
			dest := filepath.Join(c.archiveDir, req.ArtifactName())
			if perr := pkg.Promote(dest); perr != nil {
				logger.Error("failed to promote archive", "dest", dest, "err", perr)
				c.alerter.ShowError(rootCause(perr).Error())
				c.updateStatus(ctx, recordID, storage.StatusFailed, "")
				c.recordOutcome(storage.StatusFailed, start, 0)

				if derr := pkg.Discard(); derr != nil {
					logger.Warn("failed to discard archive", "err", derr)
				}

				return nil, nil
			}
		}

		logger.Info("download finished", "archive", pkg.Path())
		c.updateStatus(ctx, recordID, storage.StatusCompleted, pkg.Path())
		c.recordOutcome(storage.StatusCompleted, start, pkg.Size())

		return pkg, nil

	case errors.Is(err, fetch.ErrCancelled):
		logger.Info("download cancelled by user")
		c.updateStatus(ctx, recordID, storage.StatusCancelled, "")
		c.recordOutcome(storage.StatusCancelled, start, 0)

		return nil, nil

	default:
		logger.Error("download failed", "err", err)
		c.alerter.ShowError(rootCause(err).Error())
		c.updateStatus(ctx, recordID, storage.StatusFailed, "")
		c.recordOutcome(storage.StatusFailed, start, 0)

		return nil, nil
	}
}

func (c *Controller) recordOutcome(status string, start time.Time, bytes int64) {
	if c.telemetry == nil {
		return
	}

	c.telemetry.RecordDownload(status, time.Since(start))

	if bytes > 0 {
		c.telemetry.RecordDownloadedBytes(bytes)
	}
}

// pollCancel watches the surface's cancel-requested state at a fixed interval
// and fires the signal once it is observed.
func (c *Controller) pollCancel(ctx context.Context, signal *fetch.Signal, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.surface.CancelRequested() {
				signal.Fire()

				return
			}
		}
	}
}

func (c *Controller) trackDownload(ctx context.Context, req Request) int64 {
	if c.history == nil {
		return 0
	}

	id, err := c.history.TrackDownload(req.Locator, req.Identifier, req.Version)
	if err != nil {
		logctx.Logger(ctx).Error("failed to track download", "locator", req.Locator, "err", err)

		return 0
	}

	return id
}

func (c *Controller) updateStatus(ctx context.Context, recordID int64, status, archivePath string) {
	if c.history == nil || recordID == 0 {
		return
	}

	if err := c.history.UpdateDownloadStatus(recordID, status, archivePath); err != nil {
		logctx.Logger(ctx).Error("failed to update download status", "record_id", recordID, "err", err)
	}
}

// rootCause walks the Unwrap chain and returns the innermost error.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}

		err = next
	}
}
