// Package logger wires log/slog for the chartengine binaries: one JSON
// handler on stdout, tagged with the owning service. Connection-scoped trace
// IDs ride on context.Context so a WebSocket session's log lines can be
// grepped out of the combined stream.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init builds the service logger and installs it as the slog default, so
// package-level slog.Info etc. emit JSON too.
func Init(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	l := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(l)
	return l
}

// WithTraceID attaches a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID returns the context's trace ID, or "" when none is attached.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// NewTraceID mints a trace ID, "scope-unixnano". Scope names the thing being
// traced (a ws connection, an upstream fetch); the timestamp keeps IDs unique
// without coordination.
func NewTraceID(scope string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", scope, ts.UnixNano())
}

// TraceAttrs returns the trace ID as slog attributes, or nil when the
// context carries none. Spread into a log call: slog.Info("msg",
// logger.TraceAttrs(ctx)...).
func TraceAttrs(ctx context.Context) []any {
	tid := TraceID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trace_id", tid)}
}
