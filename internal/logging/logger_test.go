package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"chorus/internal/services"
)

func TestConsoleHandlerSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger = NewComponentLogger(logger, "pipeline")
	logger.Info("stage completed",
		String(FieldJobID, "abc-123"),
		String(FieldStage, "transcode"),
		Int("variants", 3),
	)

	out := buf.String()
	if !strings.Contains(out, "[pipeline · abc-123 (transcode)]") {
		t.Fatalf("missing subject header in %q", out)
	}
	if !strings.Contains(out, "stage completed") {
		t.Fatalf("missing message in %q", out)
	}
	if !strings.Contains(out, "- variants: 3") {
		t.Fatalf("missing field line in %q", out)
	}
}

func TestConsoleHandlerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Info("hidden")
	logger.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be suppressed: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithJobID(context.Background(), "job-9")
	ctx = services.WithStage(ctx, "fetch")
	ctx = services.WithRequestID(ctx, "req-1")

	WithContext(ctx, logger).Info("working")

	out := buf.String()
	for _, want := range []string{"job-9", "fetch", "req-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("debug") != slog.LevelDebug {
		t.Fatal("debug")
	}
	if parseLevel("") != slog.LevelInfo {
		t.Fatal("default")
	}
	if parseLevel("nonsense") != slog.LevelInfo {
		t.Fatal("fallback")
	}
}
