// Package ctxlog carries the run's slog.Logger through the generation
// stages, so kind loaders, transforms, decoders and the optimizer log to the
// handler the command line configured.
package ctxlog

import (
	"context"
	"io"
	"log/slog"
)

type loggerKey struct{}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or slog.Default() when
// the caller set none, as library users calling a loader directly do.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// With returns a context whose logger adds args to every record. Kind
// loading uses it to tag everything logged on behalf of one kind.
func With(ctx context.Context, args ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(args...))
}

// Discard returns a context carrying a logger that drops everything.
func Discard(ctx context.Context) context.Context {
	return WithLogger(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))
}
