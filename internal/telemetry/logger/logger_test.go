package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		want   string
	}{
		{"json", "json", `"component":"scanner"`},
		{"default is json", "", `"component":"scanner"`},
		{"text", "text", "component=scanner"},
		{"console", "console", "component=scanner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: "info", Format: tt.format, Output: &buf})

			l.Info("test message", "component", "scanner")

			if !strings.Contains(buf.String(), "test message") || !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", Output: &buf})

	tests := []struct {
		level   string
		logFunc func(string, ...any)
	}{
		{"DEBUG", l.Debug},
		{"INFO", l.Info},
		{"WARN", l.Warn},
		{"ERROR", l.Error},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			tt.logFunc("test message", "component", "test-value")

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("Failed to parse JSON log: %v", err)
			}
			if entry["level"] != tt.level || entry["msg"] != "test message" {
				t.Errorf("entry = %v", entry)
			}
		})
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Format: "json", Output: &buf})

	l.Debug("debug message")
	l.Info("info message")
	if buf.Len() > 0 {
		t.Error("Debug/Info messages should be filtered when level is warn")
	}

	l.Warn("warn message")
	if buf.Len() == 0 {
		t.Error("Warn message should be logged")
	}
}

func TestNew_SanitizesAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Format: "text", Output: &buf})

	l.Info("type name", "name", "UI\x00Root\x1b[31m")

	if strings.ContainsAny(buf.String(), "\x00\x1b") {
		t.Errorf("control bytes reached the output: %q", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "error", Format: "json", Output: &buf})
	derived := l.With("session_id", "s1")

	l.Info("info message")
	if buf.Len() > 0 {
		t.Error("Info should be filtered at error level")
	}

	SetLevel("debug")

	derived.Info("info message after level change")
	if buf.Len() == 0 {
		t.Error("derived loggers should follow the new level")
	}
	if got := Level(); got != "debug" {
		t.Errorf("Level() = %q, want %q", got, "debug")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		name  string
	}{
		{"debug", slog.LevelDebug, "debug"},
		{"DEBUG", slog.LevelDebug, "debug"},
		{"info", slog.LevelInfo, "info"},
		{"warn", slog.LevelWarn, "warn"},
		{"warning", slog.LevelWarn, "warn"},
		{"ERROR", slog.LevelError, "error"},
		{"invalid", slog.LevelInfo, "info"},
		{"", slog.LevelInfo, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
			SetLevel(tt.input)
			if got := Level(); got != tt.name {
				t.Errorf("SetLevel(%q); Level() = %q, want %q", tt.input, got, tt.name)
			}
		})
	}
}
