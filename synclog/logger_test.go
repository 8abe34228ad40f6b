package synclog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: slog.LevelDebug, Format: "json", Output: &buf})
	logger.Info("hello", slog.Int("x", 1))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected valid JSON, got error: %v (output: %s)", err, buf.String())
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want hello", entry["msg"])
	}
}

func TestNewLoggerTextDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Output: &buf})
	logger.Info("hi")
	if !strings.Contains(buf.String(), "hi") {
		t.Errorf("expected output to contain message, got %q", buf.String())
	}
}

func TestSetDefaultAndDefault(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(Config{Output: &buf, Format: "json"})
	orig := Default()
	defer SetDefault(orig)

	SetDefault(custom)
	Info("via-default")
	if !strings.Contains(buf.String(), "via-default") {
		t.Errorf("expected default logger to receive message, got %q", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Output: &buf, Format: "json"})
	ctx := ContextWithLogger(context.Background(), logger)

	got := FromContext(ctx)
	got.Info("ctx-msg")
	if !strings.Contains(buf.String(), "ctx-msg") {
		t.Errorf("expected logger from context to be used, got %q", buf.String())
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	got := FromContext(context.Background())
	if got != Default() {
		t.Errorf("expected FromContext with no logger set to return Default()")
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Output: &buf, Format: "json"})

	logger := WithSyscall(base, 1)
	logger = WithThread(logger, 42)
	logger = WithOperation(logger, "Session.add")
	logger.Info("enriched")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if entry["syscall"] != float64(1) {
		t.Errorf("syscall = %v, want 1", entry["syscall"])
	}
	if entry["tid"] != float64(42) {
		t.Errorf("tid = %v, want 42", entry["tid"])
	}
	if entry["operation"] != "Session.add" {
		t.Errorf("operation = %v, want Session.add", entry["operation"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
