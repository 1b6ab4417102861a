// Package logctx carries a slog.Logger through a context.Context and
// enriches records with OpenTelemetry trace identifiers.
package logctx

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// Logger returns the logger carried by ctx, or slog.Default when none is set.
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}
