package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLogger_WritesAccessLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "http.log")
	t.Setenv("HTTP_LOG_FILE", path)

	h, err := NewHTTPLogger()
	require.NoError(t, err)

	h.LogRequest("10.0.0.1", "POST", "/transcribe", 202, 15*time.Millisecond, "bench/1.0", "req-123")
	require.NoError(t, h.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(data, &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/transcribe", line["uri"])
	assert.Equal(t, float64(202), line["status"])
	assert.Equal(t, "req-123", line["request_id"])
}

func TestHTTPLogger_DisabledWithoutFile(t *testing.T) {
	t.Setenv("HTTP_LOG_FILE", "")

	h, err := NewHTTPLogger()
	require.NoError(t, err)

	// Must not panic and must not create anything.
	h.LogRequest("10.0.0.1", "GET", "/transcript/abc", 200, time.Millisecond, "", "")
	assert.NoError(t, h.Close())
}

func TestHTTPLogger_NilReceiver(t *testing.T) {
	var h *HTTPLogger
	h.LogRequest("10.0.0.1", "GET", "/health", 200, 0, "", "")
	assert.NoError(t, h.Close())
}
