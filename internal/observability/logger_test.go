package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
	}{
		{
			name:   "json format",
			config: LoggingConfig{Level: "info", Format: "json"},
		},
		{
			name:   "text format to stderr",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
		},
		{
			name:   "discard",
			config: LoggingConfig{Level: "warn", Output: "discard"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"Info", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "info", Format: "json"})

	logger.Info("stream finished", "rows", 3, "consumer", "http")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "stream finished" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["consumer"] != "http" {
		t.Errorf("consumer = %v", entry["consumer"])
	}
	if entry["rows"] != float64(3) {
		t.Errorf("rows = %v", entry["rows"])
	}
}

func TestNewLoggerTo_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "text"})

	logger = logger.With("app", "kafeventcsv")
	logger.Debug("pulled record", "key", "value")

	output := buf.String()
	for _, want := range []string{"pulled record", "key=value", "app=kafeventcsv", "level=DEBUG"} {
		if !strings.Contains(output, want) {
			t.Errorf("output should contain %q, got: %s", want, output)
		}
	}
}

func TestNewLoggerTo_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "text"})

	logger.Info("hidden")
	logger.Warn("shown")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("info message should be filtered, got: %s", output)
	}
	if !strings.Contains(output, "shown") {
		t.Errorf("warn message missing, got: %s", output)
	}
}
