package cuke

import (
	"context"
	"log/slog"

	"github.com/a2y-d5l/cuke/internal/ctxlog"
)

// WithLogger attaches logger to ctx. Writers in this module log through the
// logger found in the context passed to HandleEvent and stay silent without
// one.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return ctxlog.WithLogger(ctx, logger)
}

// LoggerFrom returns the logger attached to ctx, or a logger that discards
// everything.
func LoggerFrom(ctx context.Context) *slog.Logger {
	return ctxlog.FromContext(ctx)
}
