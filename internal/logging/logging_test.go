package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter_JSONDefault(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info", "")

	log.Debug("hidden")
	log.Info("retrieval done", slog.Int("results", 3), Err(errors.New("boom")))

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "hidden") {
		t.Errorf("debug record written at info level: %s", line)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", line, err)
	}
	if rec["msg"] != "retrieval done" || rec["results"] != float64(3) || rec["error"] != "boom" {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWithWriter(&buf, "debug", "text").Debug("stage", slog.String("name", "extract"))

	got := buf.String()
	if !strings.Contains(got, "name=extract") {
		t.Errorf("expected text handler output, got %q", got)
	}
	if !strings.Contains(got, "source=") {
		t.Errorf("debug records should carry a source location, got %q", got)
	}
}

func TestFromContext(t *testing.T) {
	t.Parallel()
	if FromContext(context.Background()) != slog.Default() {
		t.Error("empty context should yield slog.Default")
	}
	l := Discard()
	if FromContext(WithLogger(context.Background(), l)) != l {
		t.Error("expected the stored logger")
	}
}
