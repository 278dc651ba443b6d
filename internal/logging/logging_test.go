package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	return line
}

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info("Role synced.", "guild", "42", "added", 3, "elapsed", 2*time.Second)

	line := decode(t, &buf)
	if line["message"] != "Role synced." {
		t.Errorf("message = %v, want %q", line["message"], "Role synced.")
	}
	if line["level"] != "info" {
		t.Errorf("level = %v, want info", line["level"])
	}
	if line["guild"] != "42" {
		t.Errorf("guild = %v, want 42", line["guild"])
	}
	if line["added"] != float64(3) {
		t.Errorf("added = %v, want 3", line["added"])
	}
	if _, ok := line["time"]; !ok {
		t.Errorf("expected a time field")
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		logAt   slog.Level
		written bool
	}{
		{level: "info", logAt: slog.LevelDebug, written: false},
		{level: "debug", logAt: slog.LevelDebug, written: true},
		{level: "warn", logAt: slog.LevelInfo, written: false},
		{level: "warn", logAt: slog.LevelError, written: true},
		{level: "bogus", logAt: slog.LevelInfo, written: true},
	}

	for _, tc := range tests {
		t.Run(tc.level+"/"+tc.logAt.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: tc.level, Output: &buf})
			logger.Log(context.Background(), tc.logAt, "x")
			if got := buf.Len() > 0; got != tc.written {
				t.Fatalf("written = %v, want %v", got, tc.written)
			}
		})
	}
}

func TestCorrelationIDFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	ctx := ContextWithCorrelationID(context.Background(), "abcd1234")
	logger.InfoContext(ctx, "Starting sync pass.")

	line := decode(t, &buf)
	if line[CorrelationIDKey] != "abcd1234" {
		t.Fatalf("%s = %v, want abcd1234", CorrelationIDKey, line[CorrelationIDKey])
	}
	if CorrelationIDFromContext(context.Background()) != "" {
		t.Fatalf("empty context should carry no correlation id")
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Fatalf("len = %d, want 8", len(a))
	}
	if a == b {
		t.Fatalf("two correlation ids collided: %q", a)
	}
}

func TestSlogHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := NewSlogHandler(zerolog.New(&buf))
	logger := slog.New(handler).With("component", "rolesync").WithGroup("pass")

	logger.Error("Failed.", "error", errors.New("boom"), slog.Group("delta", "add", 1))

	line := decode(t, &buf)
	if line["pass.component"] != nil {
		t.Errorf("attrs added before WithGroup must not be grouped")
	}
	if line["component"] != "rolesync" {
		t.Errorf("component = %v, want rolesync", line["component"])
	}
	if line["pass.error"] != "boom" {
		t.Errorf("pass.error = %v, want boom", line["pass.error"])
	}
	if line["pass.delta.add"] != float64(1) {
		t.Errorf("pass.delta.add = %v, want 1", line["pass.delta.add"])
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "console", Output: &buf}).Info("Hello.")
	if !strings.Contains(buf.String(), "Hello.") {
		t.Fatalf("console output = %q, want message", buf.String())
	}
}
