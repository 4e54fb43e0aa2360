// Package logging provides structured logging helpers built on log/slog.
// Handlers and background loops share loggers through the context so that
// request-scoped attributes follow the work they belong to.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

var loggerKey = contextKey{}

// NewStructuredLogger creates a JSON slog logger writing to w.
// Verbose enables debug-level output.
func NewStructuredLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewDefaultLogger creates the standard production logger on stdout.
func NewDefaultLogger(verbose bool) *slog.Logger {
	return NewStructuredLogger(os.Stdout, verbose)
}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger stored in the context, falling back
// to slog.Default when none is present.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// LogError logs an error with a consistent "error" attribute.
func LogError(logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.Any("error", err))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.Error(msg, args...)
}

// LogOperation logs a lifecycle event of a background operation.
func LogOperation(logger *slog.Logger, operation string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("operation", operation))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.Info("operation", args...)
}

// LogHTTPRequest logs a completed HTTP request with its status and timing.
func LogHTTPRequest(logger *slog.Logger, method, path string, status int, durationMs float64, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	args := make([]any, 0, len(attrs)+4)
	args = append(args,
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", durationMs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.Info("http request", args...)
}

// SafeCloseWithLogging closes c and logs a warning on failure instead of
// dropping the error.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil && logger != nil {
		logger.Warn("failed to close resource", slog.String("resource", name), slog.Any("error", err))
	}
}
