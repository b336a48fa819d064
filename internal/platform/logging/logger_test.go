package logging

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestNewWriter_WritesStructuredFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWriter(&buf, LevelInfo).Named("scheduler").With("league", "minor")

	logger.Debug("dropped")
	logger.Warn("sample failed", "game_id", "g1", "error", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug line should be filtered at info level: %s", out)
	}
	for _, want := range []string{`"logger":"scheduler"`, `"league":"minor"`, `"game_id":"g1"`, `"error":"boom"`, `"level":"WARN"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", raw, got, want)
		}
	}
}

func TestSetMirror_ReceivesRecordsAboveLevel(t *testing.T) {
	var got []string
	SetMirror(func(_ context.Context, level Level, msg string, args ...any) {
		got = append(got, level.String()+":"+msg)
	})
	t.Cleanup(func() { SetMirror(nil) })

	logger := NewWriter(io.Discard, LevelInfo)
	logger.Debug("filtered")
	logger.InfoContext(context.Background(), "sampler tick", "league", "major")

	if len(got) != 1 || got[0] != "info:sampler tick" {
		t.Fatalf("unexpected mirrored records: %v", got)
	}

	SetMirror(nil)
	logger.Error("after removal")
	if len(got) != 1 {
		t.Fatalf("mirror still active after removal: %v", got)
	}
}

func TestContextVariants_AddTraceFields(t *testing.T) {
	t.Parallel()

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	var buf bytes.Buffer
	logger := NewWriter(&buf, LevelDebug)
	logger.DebugContext(ctx, "finalize game", zap.Int("points", 12), "game_id", "g7", "dangling")

	out := buf.String()
	for _, want := range []string{
		`"trace_id":"` + spanCtx.TraceID().String() + `"`,
		`"span_id":"` + spanCtx.SpanID().String() + `"`,
		`"points":12`,
		`"game_id":"g7"`,
		`"dangling":null`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestNilLogger_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	var logger *Logger
	logger.Info("no panic")
	if logger.Zap() == nil {
		t.Fatalf("expected a zap logger from the default")
	}
	if err := logger.Sync(); err != nil {
		t.Fatalf("sync nil logger: %v", err)
	}
}
