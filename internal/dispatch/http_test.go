package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehq/scribe/internal/config"
)

func tasksConfig(endpoint string) config.TasksConfig {
	return config.TasksConfig{
		ProjectID:  "demo-project",
		LocationID: "europe-west1",
		QueueID:    "transcription",
		HandlerURL: "https://scribe.example.com/tasks/process-transcription",
		Endpoint:   endpoint,
	}
}

func TestHTTPDispatcherCreatesTask(t *testing.T) {
	var captured createTaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/projects/demo-project/locations/europe-west1/queues/transcription/tasks", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(tasksConfig(srv.URL), slog.Default())
	require.NoError(t, d.Enqueue(context.Background(), "job-123"))

	assert.Equal(t,
		"projects/demo-project/locations/europe-west1/queues/transcription/tasks/job-job-123",
		captured.Task.Name)
	assert.Equal(t, http.MethodPost, captured.Task.HTTPRequest.HTTPMethod)
	assert.Equal(t, "https://scribe.example.com/tasks/process-transcription", captured.Task.HTTPRequest.URL)

	payload, err := base64.StdEncoding.DecodeString(captured.Task.HTTPRequest.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jobId":"job-123"}`, string(payload))
	assert.Nil(t, captured.Task.HTTPRequest.OIDCToken)
}

func TestHTTPDispatcherSetsOIDCToken(t *testing.T) {
	var captured createTaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := tasksConfig(srv.URL)
	cfg.ServiceAccountEmail = "invoker@demo-project.iam.gserviceaccount.com"

	d := NewHTTPDispatcher(cfg, slog.Default())
	require.NoError(t, d.Enqueue(context.Background(), "job-1"))

	require.NotNil(t, captured.Task.HTTPRequest.OIDCToken)
	assert.Equal(t, "invoker@demo-project.iam.gserviceaccount.com",
		captured.Task.HTTPRequest.OIDCToken.ServiceAccountEmail)
	// Audience falls back to the handler URL when not set explicitly.
	assert.Equal(t, cfg.HandlerURL, captured.Task.HTTPRequest.OIDCToken.Audience)
}

func TestHTTPDispatcherTreatsConflictAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(tasksConfig(srv.URL), slog.Default())
	assert.NoError(t, d.Enqueue(context.Background(), "job-dup"),
		"an existing task for the same job is a successful no-op")
}

func TestHTTPDispatcherReturnsQueueErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"queue on fire"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(tasksConfig(srv.URL), slog.Default())
	err := d.Enqueue(context.Background(), "job-err")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "queue on fire")
}

func TestHTTPDispatcherReturnsNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	d := NewHTTPDispatcher(tasksConfig(srv.URL), slog.Default())
	assert.Error(t, d.Enqueue(context.Background(), "job-net"))
}
