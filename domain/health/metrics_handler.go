package health

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/scribehq/scribe/internal/dispatch"
)

// MetricsHandler exposes pipeline counters for dashboards and the bench tool.
type MetricsHandler struct {
	db    *bun.DB
	queue *dispatch.Queue
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(db *bun.DB, queue *dispatch.Queue) *MetricsHandler {
	return &MetricsHandler{
		db:    db,
		queue: queue,
	}
}

// StatusCounts is a per-status row count for one table.
type StatusCounts map[string]int64

// PipelineMetrics summarizes jobs, chunks, and task deliveries by status.
type PipelineMetrics struct {
	Jobs      StatusCounts    `json:"jobs"`
	Chunks    StatusCounts    `json:"chunks"`
	Tasks     *dispatch.Stats `json:"tasks"`
	Timestamp string          `json:"timestamp"`
}

// PipelineMetrics handles GET /api/metrics
// Returns per-status counts for jobs, chunks, and queue tasks.
func (h *MetricsHandler) PipelineMetrics(c echo.Context) error {
	ctx := c.Request().Context()

	jobs, err := h.countByStatus(ctx, "transcription_jobs")
	if err != nil {
		return err
	}
	chunks, err := h.countByStatus(ctx, "audio_chunks")
	if err != nil {
		return err
	}
	tasks, err := h.queue.GetStats(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, PipelineMetrics{
		Jobs:      jobs,
		Chunks:    chunks,
		Tasks:     tasks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *MetricsHandler) countByStatus(ctx context.Context, table string) (StatusCounts, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int64  `bun:"count"`
	}
	err := h.db.NewSelect().
		Table(table).
		ColumnExpr("status, COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := StatusCounts{}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
