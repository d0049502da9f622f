package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/internal/dispatch"
	"github.com/scribehq/scribe/internal/testutil"
)

func newTestServer(t *testing.T) (*echo.Echo, *dispatch.Queue) {
	t.Helper()
	db := testutil.OpenTestDB(t)
	cfg := &config.Config{Environment: "test"}
	queue := dispatch.NewQueue(db, dispatch.QueueConfig{}, slog.Default())

	e := echo.New()
	RegisterRoutes(e, NewHandler(db, cfg), NewMetricsHandler(db, queue))
	return e, queue
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	e, _ := newTestServer(t)

	rec := get(e, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = get(e, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["database"].Status)

	rec = get(e, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDebugHiddenInProduction(t *testing.T) {
	db := testutil.OpenTestDB(t)
	cfg := &config.Config{Environment: "production"}
	queue := dispatch.NewQueue(db, dispatch.QueueConfig{}, slog.Default())

	e := echo.New()
	RegisterRoutes(e, NewHandler(db, cfg), NewMetricsHandler(db, queue))

	rec := get(e, "/debug")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPipelineMetrics(t *testing.T) {
	e, queue := newTestServer(t)

	require.NoError(t, queue.Enqueue(context.Background(), "job-1"))

	rec := get(e, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics PipelineMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.NotNil(t, metrics.Tasks)
	assert.Equal(t, int64(1), metrics.Tasks.Pending)
	assert.Empty(t, metrics.Jobs)

	ts, err := time.Parse(time.RFC3339, metrics.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, time.Minute)
}
