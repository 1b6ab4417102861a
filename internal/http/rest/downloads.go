// Package rest exposes the local control API a front end drives: start a
// download, observe its progress, request cancellation and browse history.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/packport/packport/internal/archive"
	"github.com/packport/packport/internal/controller"
	"github.com/packport/packport/internal/logctx"
	"github.com/packport/packport/internal/storage"
	"github.com/packport/packport/internal/surface"
	"github.com/packport/packport/internal/telemetry"
)

// Starter is the controller capability the handler needs.
type Starter interface {
	Download(ctx context.Context, req controller.Request) (*archive.Package, error)
	Active() bool
}

// HistoryReader lists past download attempts.
type HistoryReader interface {
	GetDownloads() ([]storage.DownloadRecord, error)
}

// DownloadHandler serves the control API.
type DownloadHandler struct {
	starter  Starter
	status   *surface.Status
	history  HistoryReader
	username string
	password string
	runCtx   context.Context
}

// NewDownloadHandler creates the control API handler. runCtx bounds the
// lifetime of downloads started through the API; it should be the process
// context, not a request context, since downloads outlive the POST that
// starts them.
func NewDownloadHandler(runCtx context.Context, starter Starter, status *surface.Status, history HistoryReader, username, password string) *DownloadHandler {
	return &DownloadHandler{
		starter:  starter,
		status:   status,
		history:  history,
		username: username,
		password: password,
		runCtx:   runCtx,
	}
}

func (h *DownloadHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Post("/downloads", h.startDownload)
	r.Get("/downloads", h.listDownloads)
	r.Get("/downloads/current", h.currentProgress)
	r.Post("/downloads/current/cancel", h.cancelDownload)

	return r
}

func (h *DownloadHandler) startDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.Logger(r.Context())

	var req controller.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("failed to decode request", "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if req.Locator == "" {
		http.Error(w, "url is required", http.StatusBadRequest)

		return
	}

	if h.starter.Active() {
		http.Error(w, controller.ErrBusy.Error(), http.StatusConflict)

		return
	}

	go h.runDownload(req)

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, logger, map[string]string{"status": "accepted", "message": req.DisplayMessage()})
}

// runDownload drives one download to its terminal outcome. The controller
// reports failures through the error sink, so the handler only has to hold
// the resulting package handle.
func (h *DownloadHandler) runDownload(req controller.Request) {
	ctx := h.runCtx
	logger := logctx.Logger(ctx).With("locator", req.Locator)

	pkg, err := h.starter.Download(ctx, req)
	if err != nil {
		// Only ErrBusy reaches here; a concurrent start won the race.
		logger.Warn("download not started", "err", err)

		return
	}

	if pkg == nil {
		return
	}
	defer pkg.Close()

	logger.Info("package ready", "archive", pkg.Path(), "entries", len(pkg.Entries()))
}

func (h *DownloadHandler) currentProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logctx.Logger(r.Context()), h.status.Snapshot())
}

func (h *DownloadHandler) cancelDownload(w http.ResponseWriter, r *http.Request) {
	if !h.starter.Active() {
		http.Error(w, "no download in progress", http.StatusNotFound)

		return
	}

	h.status.RequestCancel()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, logctx.Logger(r.Context()), map[string]string{"status": "cancel requested"})
}

func (h *DownloadHandler) listDownloads(w http.ResponseWriter, r *http.Request) {
	logger := logctx.Logger(r.Context())

	records, err := h.history.GetDownloads()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, logger, []downloadItem{})

			return
		}

		logger.Error("failed to list downloads", "err", err)
		http.Error(w, "failed to list downloads", http.StatusInternalServerError)

		return
	}

	items := make([]downloadItem, 0, len(records))
	for _, rec := range records {
		items = append(items, downloadItem{
			ID:          rec.ID,
			Locator:     rec.Locator,
			Identifier:  rec.Identifier,
			Version:     rec.Version,
			ArchivePath: rec.ArchivePath,
			StartedAt:   rec.StartedAt,
			Status:      rec.Status,
		})
	}

	writeJSON(w, logger, items)
}

type downloadItem struct {
	ID          int64  `json:"id"`
	Locator     string `json:"url"`
	Identifier  string `json:"identifier,omitempty"`
	Version     string `json:"version,omitempty"`
	ArchivePath string `json:"archivePath,omitempty"`
	StartedAt   string `json:"startedAt"`
	Status      string `json:"status"`
}

func (h *DownloadHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "err", err)
	}
}
