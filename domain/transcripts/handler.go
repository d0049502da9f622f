package transcripts

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/scribehq/scribe/pkg/apperror"
)

// Handler handles HTTP requests for transcription jobs
type Handler struct {
	svc *Service
}

// NewHandler creates a new transcripts handler
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Transcribe handles POST /transcribe
// Accepts a transcription job and returns its id. Processing is
// asynchronous; poll the transcript endpoint for progress.
func (h *Handler) Transcribe(c echo.Context) error {
	req := &TranscribeRequest{}
	if err := c.Bind(req); err != nil {
		return apperror.NewValidation("request body is not valid JSON").WithInternal(err)
	}
	if err := req.Validate(); err != nil {
		return apperror.NewValidation(err.Error())
	}

	job, err := h.svc.Submit(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, TranscribeResponse{JobID: job.ID})
}

// ProcessTask handles POST /tasks/process-transcription
// Task queue push endpoint: runs one delivery for the job synchronously. A
// non-2xx response makes the queue redeliver.
func (h *Handler) ProcessTask(c echo.Context) error {
	req := &ProcessTaskRequest{}
	if err := c.Bind(req); err != nil {
		return apperror.NewValidation("request body is not valid JSON").WithInternal(err)
	}
	if req.JobID == "" {
		return apperror.NewValidation("jobId is required")
	}

	if err := h.svc.ProcessJob(c.Request().Context(), req.JobID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetTranscript handles GET /transcript/:jobId
// Returns the job transcript and per-chunk statuses.
func (h *Handler) GetTranscript(c echo.Context) error {
	jobID := c.Param("jobId")
	if jobID == "" {
		return apperror.ErrBadRequest.WithMessage("jobId is required")
	}

	result, err := h.svc.GetTranscript(c.Request().Context(), jobID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Search handles GET /transcript/search
// Lists jobs newest first, optionally filtered by userId and jobStatus.
func (h *Handler) Search(c echo.Context) error {
	params := SearchParams{
		UserID: c.QueryParam("userId"),
	}

	if raw := c.QueryParam("jobStatus"); raw != "" {
		status := JobStatus(raw)
		if !status.IsValid() {
			return apperror.NewValidation("unknown jobStatus '" + raw + "'")
		}
		params.Status = status
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return apperror.NewValidation("limit must be a positive integer")
		}
		params.Limit = limit
	}

	result, err := h.svc.Search(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
