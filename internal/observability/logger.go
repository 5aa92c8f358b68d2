// Package observability provides the logger factory and Prometheus metrics
// shared by the service.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// NewLogger creates a new structured logger based on configuration.
// Output is "stdout" (default), "stderr" or "discard".
func NewLogger(config LoggingConfig) *slog.Logger {
	var output io.Writer
	switch strings.ToLower(config.Output) {
	case "stderr":
		output = os.Stderr
	case "discard":
		output = io.Discard
	default:
		output = os.Stdout
	}
	return NewLoggerTo(output, config)
}

// NewLoggerTo creates a logger writing to w. config.Output is ignored.
func NewLoggerTo(w io.Writer, config LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: ParseLevel(config.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(config.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
