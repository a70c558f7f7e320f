// Package logger configures slog and carries request-scoped log attributes
// through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type (
	requestIDKey struct{}
	attrsKey     struct{}
)

// Setup installs the process-wide default logger. Every record carries the
// service name.
func Setup(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format).With("service", "note-constellation"))
}

// New builds a logger writing to w. format is "json" or anything else for
// text.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a level name to slog.Level; unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)
	return requestID
}

// WithAttrs adds key/value pairs to every record logged through
// FromContext(ctx) and its descendants.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]any)
	merged := make([]any, 0, len(prev)+len(args))
	merged = append(merged, prev...)
	merged = append(merged, args...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// FromContext returns the default logger with the request ID and any
// WithAttrs pairs from ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		l = l.With("request_id", requestID)
	}
	if attrs, _ := ctx.Value(attrsKey{}).([]any); len(attrs) > 0 {
		l = l.With(attrs...)
	}
	return l
}
