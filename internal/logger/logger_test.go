package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	l := Init("chartserver", slog.LevelInfo)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("bare context trace id = %q", tid)
	}

	ctx = WithTraceID(ctx, "conn-42")
	if tid := TraceID(ctx); tid != "conn-42" {
		t.Errorf("trace id = %q", tid)
	}
}

func TestNewTraceID(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := NewTraceID("conn", ts)

	if !strings.HasPrefix(tid, "conn-") {
		t.Errorf("trace id = %q, want conn- prefix", tid)
	}
	if !strings.Contains(tid, "123456789") {
		t.Errorf("trace id %q missing nanosecond suffix", tid)
	}
}

func TestTraceAttrs(t *testing.T) {
	if attrs := TraceAttrs(context.Background()); attrs != nil {
		t.Errorf("bare context attrs = %v", attrs)
	}

	ctx := WithTraceID(context.Background(), "fetch-7")
	if attrs := TraceAttrs(ctx); len(attrs) != 1 {
		t.Fatalf("attrs = %v", attrs)
	}
}
