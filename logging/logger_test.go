package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)

	logger.WithFields(map[string]any{"hub": "chatHub"}).Debug("dispatched", "event", "messageReceived")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, output %q", err, buf.String())
	}
	if record["hub"] != "chatHub" {
		t.Errorf("hub = %v, want chatHub", record["hub"])
	}
	if record["event"] != "messageReceived" {
		t.Errorf("event = %v, want messageReceived", record["event"])
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn", Format: "text"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard()
	ctx := WithLogger(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Error("FromContext() did not return the stored logger")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Error("FromContext() on empty context returned nil")
	}
}
