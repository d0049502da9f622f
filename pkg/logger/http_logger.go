package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// HTTPLogger writes one JSON line per completed request to a dedicated access
// log file, keeping request noise out of the application log. When
// HTTP_LOG_FILE is unset the logger is a no-op.
type HTTPLogger struct {
	log  *slog.Logger
	file *os.File
}

// NewHTTPLogger opens the access log file named by HTTP_LOG_FILE, creating
// parent directories as needed.
func NewHTTPLogger() (*HTTPLogger, error) {
	path := os.Getenv("HTTP_LOG_FILE")
	if path == "" {
		return &HTTPLogger{}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &HTTPLogger{
		log:  slog.New(slog.NewJSONHandler(f, nil)),
		file: f,
	}, nil
}

// LogRequest records a completed request. Safe to call on a disabled logger.
func (h *HTTPLogger) LogRequest(ip, method, uri string, status int, latency time.Duration, userAgent, requestID string) {
	if h == nil || h.log == nil {
		return
	}
	h.log.Info("request",
		slog.String("ip", ip),
		slog.String("method", method),
		slog.String("uri", uri),
		slog.Int("status", status),
		slog.Duration("latency", latency),
		slog.String("user_agent", userAgent),
		slog.String("request_id", requestID),
	)
}

// Close releases the underlying log file.
func (h *HTTPLogger) Close() error {
	if h == nil || h.file == nil {
		return nil
	}
	return h.file.Close()
}
