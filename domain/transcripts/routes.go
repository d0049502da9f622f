package transcripts

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers transcription routes
func RegisterRoutes(e *echo.Echo, h *Handler) {
	// Submit a transcription job
	e.POST("/transcribe", h.Transcribe)

	// Task queue push endpoint
	e.POST("/tasks/process-transcription", h.ProcessTask)

	g := e.Group("/transcript")

	// List jobs with filters
	g.GET("/search", h.Search)

	// Get a job transcript with chunk statuses
	g.GET("/:jobId", h.GetTranscript)
}
