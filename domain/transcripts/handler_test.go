package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribehq/scribe/pkg/apperror"
)

func newTestServer(t *testing.T) (*echo.Echo, *Repository, *fakeTranscriber, *fakeDispatcher) {
	t.Helper()
	repo := newTestRepo(t)
	transcriber := newFakeTranscriber()
	dispatcher := &fakeDispatcher{}
	svc := NewService(repo, transcriber, dispatcher, 3, time.Millisecond, slog.Default())

	e := echo.New()
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(slog.Default())
	RegisterRoutes(e, NewHandler(svc))
	return e, repo, transcriber, dispatcher
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHandlerTranscribeAccepted(t *testing.T) {
	e, repo, _, dispatcher := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/transcribe",
		`{"userId":"user-1","audioChunkPaths":["a.wav","b.wav"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp TranscribeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)
	assert.Equal(t, []string{resp.JobID}, dispatcher.jobs())

	job, err := repo.GetJobWithChunks(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)
}

func TestHandlerTranscribeValidation(t *testing.T) {
	e, _, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/transcribe", `{"userId":"","audioChunkPaths":["a.wav"]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))

	rec = doJSON(e, http.MethodPost, "/transcribe", `{"userId":"u1","audioChunkPaths":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(e, http.MethodPost, "/transcribe", `not json`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))
}

func TestHandlerTranscribeDispatchOutage(t *testing.T) {
	e, repo, _, dispatcher := newTestServer(t)
	dispatcher.err = errors.New("queue down")

	rec := doJSON(e, http.MethodPost, "/transcribe",
		`{"userId":"user-1","audioChunkPaths":["a.wav"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "dispatch_unavailable", errorCode(t, rec))

	// The job row survives the failed enqueue.
	jobs, err := repo.SearchJobs(context.Background(), SearchParams{UserID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestHandlerProcessTask(t *testing.T) {
	e, repo, _, _ := newTestServer(t)

	job, err := repo.CreateJob(context.Background(), "user-1", []string{"a.wav"})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/tasks/process-transcription",
		`{"jobId":"`+job.ID+`"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	loaded, err := repo.GetJobWithChunks(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, loaded.Status)
}

func TestHandlerProcessTaskMissingJobID(t *testing.T) {
	e, _, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodPost, "/tasks/process-transcription", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerProcessTaskUnknownJobIsNoContent(t *testing.T) {
	e, _, _, _ := newTestServer(t)

	// The queue must not redeliver a task for a job that no longer exists.
	rec := doJSON(e, http.MethodPost, "/tasks/process-transcription", `{"jobId":"gone"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerGetTranscript(t *testing.T) {
	e, repo, transcriber, _ := newTestServer(t)
	ctx := context.Background()

	transcriber.script("b.wav", errors.New("overloaded"))
	job, err := repo.CreateJob(ctx, "user-1", []string{"a.wav", "b.wav"})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodPost, "/tasks/process-transcription", `{"jobId":"`+job.ID+`"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(e, http.MethodGet, "/transcript/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"jobId":"`+job.ID+`"`)
	assert.Contains(t, body, `"jobStatus":"failed"`)
	// chunkStatuses is an object whose keys keep submission order.
	assert.Contains(t, body, `"chunkStatuses":{"a.wav":"completed","b.wav":"permanent_failure"}`)
	assert.Contains(t, body, `"transcriptText":"Transcript for a.wav"`)
	assert.NotContains(t, body, `"completedTime":null`)
}

func TestHandlerGetTranscriptPending(t *testing.T) {
	e, repo, _, _ := newTestServer(t)

	job, err := repo.CreateJob(context.Background(), "user-1", []string{"a.wav"})
	require.NoError(t, err)

	rec := doJSON(e, http.MethodGet, "/transcript/"+job.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"jobStatus":"queued"`)
	assert.Contains(t, body, `"chunkStatuses":{"a.wav":"pending"}`)
	// No completion yet.
	assert.Contains(t, body, `"completedTime":null`)
}

func TestHandlerGetTranscriptNotFound(t *testing.T) {
	e, _, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/transcript/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestHandlerSearch(t *testing.T) {
	e, repo, _, _ := newTestServer(t)
	ctx := context.Background()

	_, err := repo.CreateJob(ctx, "alice", []string{"a.wav"})
	require.NoError(t, err)
	bob, err := repo.CreateJob(ctx, "bob", []string{"b.wav"})
	require.NoError(t, err)
	require.NoError(t, repo.UpdateJobStatus(ctx, bob.ID, JobStatusCompleted))

	rec := doJSON(e, http.MethodGet, "/transcript/search?userId=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var results []*TranscriptResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "alice", results[0].UserID)

	rec = doJSON(e, http.MethodGet, "/transcript/search?jobStatus=completed", "")
	require.Equal(t, http.StatusOK, rec.Code)
	results = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, bob.ID, results[0].JobID)
}

func TestHandlerSearchRejectsUnknownStatus(t *testing.T) {
	e, _, _, _ := newTestServer(t)

	rec := doJSON(e, http.MethodGet, "/transcript/search?jobStatus=exploded", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))

	rec = doJSON(e, http.MethodGet, "/transcript/search?limit=zero", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
