package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/packport/packport/internal/cleanup"
	"github.com/packport/packport/internal/config"
	"github.com/packport/packport/internal/controller"
	"github.com/packport/packport/internal/fetch"
	"github.com/packport/packport/internal/http/rest"
	"github.com/packport/packport/internal/logctx"
	"github.com/packport/packport/internal/storage"
	"github.com/packport/packport/internal/storage/sqlite"
	"github.com/packport/packport/internal/surface"
	"github.com/packport/packport/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("packport starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.Logger(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "packport",
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	history := sqlite.NewInstrumentedDownloadRepository(database, tel)

	// =========================================================================
	// Start Download Controller
	if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	fetcher := fetch.NewFetcher(httpClient, cfg.UserAgent, cfg.TempDir)

	status := surface.NewStatus()

	var alerter controller.Alerter = &surface.LogAlerter{Logger: logger}
	if cfg.AlertWebhookURL != "" {
		alerter = &surface.WebhookAlerter{WebhookURL: cfg.AlertWebhookURL, Logger: logger}
	}

	ctrl := controller.New(fetcher, status, alerter,
		controller.WithHistory(history),
		controller.WithArchiveDir(cfg.ArchiveDir),
		controller.WithPollInterval(cfg.CancelPollInterval),
		controller.WithTelemetry(tel),
	)

	// =========================================================================
	// Start API Service
	handler := rest.NewDownloadHandler(ctx, ctrl, status, history, cfg.Web.Username, cfg.Web.Password)

	r := chi.NewRouter()
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Mount("/", handler.Routes())
	r.Handle("/metrics", tel.Handler())

	server := &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	logger.Info("waiting for download requests...",
		"bind_address", cfg.Web.BindAddress,
		"archive_dir", cfg.ArchiveDir,
		"cancel_poll_interval", cfg.CancelPollInterval.String(),
		"retention", cfg.KeepArchivesFor.String(),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	})

	g.Go(func() error {
		runCleanup(ctx, history, cfg)

		return nil
	})

	return g.Wait()
}

// runCleanup periodically deletes archives past their retention.
func runCleanup(ctx context.Context, history storage.DownloadRepository, cfg *config.Config) {
	logger := logctx.Logger(ctx)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down")

			return
		case <-ticker.C:
			records, err := history.GetDownloads()
			if err != nil {
				logger.Error("failed to get tracked downloads for cleanup", "err", err)

				continue
			}

			if err := cleanup.DeleteExpiredArchives(ctx, records, cfg.KeepArchivesFor); err != nil {
				logger.Error("failed to delete expired archives", "err", err)
			}
		}
	}
}
