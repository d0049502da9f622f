package asr

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, slog.Default())
}

func TestClientTranscribe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get-asr-output", r.URL.Path)
		assert.Equal(t, "meeting part 1", r.URL.Query().Get("path"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"path":"meeting part 1","transcript":"Transcript for meeting part 1"}`))
	})

	text, err := c.Transcribe(context.Background(), "meeting part 1")
	require.NoError(t, err)
	assert.Equal(t, "Transcript for meeting part 1", text)
}

func TestClientStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		permanent bool
	}{
		{"bad request is permanent", http.StatusBadRequest, true},
		{"not found is permanent", http.StatusNotFound, true},
		{"unprocessable entity is permanent", http.StatusUnprocessableEntity, true},
		{"request timeout is transient", http.StatusRequestTimeout, false},
		{"throttling is transient", http.StatusTooManyRequests, false},
		{"server error is transient", http.StatusInternalServerError, false},
		{"bad gateway is transient", http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})

			_, err := c.Transcribe(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
			assert.Equal(t, !tt.permanent, IsTransient(err))
		})
	}
}

func TestClientNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connections now refused

	c := NewClient(srv.URL, time.Second, slog.Default())
	_, err := c.Transcribe(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestClientMalformedBodyIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	_, err := c.Transcribe(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
