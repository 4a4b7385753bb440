package logctx

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	runIDKey  contextKey = "run_id"
)

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithRunID stores a fresh run id in the context and returns it.
// Every log record emitted through a TraceHandler with this context carries it.
func WithRunID(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()

	return context.WithValue(ctx, runIDKey, id), id
}

// RunIDFromContext returns the run id, or an empty string if none was set.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}

	return ""
}
