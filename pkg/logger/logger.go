// Package logger provides the slog-based structured logging helpers shared by
// all scribe binaries.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Scope tags a log record with the subsystem it came from.
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error wraps an error as a slog attribute under the "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger builds the process-wide logger. LOG_LEVEL selects the minimum
// level (debug, info, warn/warning, error; case-insensitive; anything else
// falls back to info) and GO_ENV=production switches from text to JSON output.
func NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
