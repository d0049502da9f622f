package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/scribehq/scribe/pkg/logger"
)

// Task statuses.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// Task is one persisted delivery intent for a job. The partial unique index
// on job_id over (pending, processing) rows enforces at most one live
// delivery per job.
type Task struct {
	bun.BaseModel `bun:"table:transcription_tasks,alias:tt"`

	ID           string     `bun:"id,pk" json:"id"`
	JobID        string     `bun:"job_id,notnull" json:"jobId"`
	Status       string     `bun:"status,notnull" json:"status"`
	AttemptCount int        `bun:"attempt_count,notnull" json:"attemptCount"`
	LastError    *string    `bun:"last_error" json:"lastError,omitempty"`
	ScheduledAt  *time.Time `bun:"scheduled_at" json:"scheduledAt,omitempty"`
	StartedAt    *time.Time `bun:"started_at" json:"startedAt,omitempty"`
	CompletedAt  *time.Time `bun:"completed_at" json:"completedAt,omitempty"`
	CreatedAt    time.Time  `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull" json:"updatedAt"`
}

// QueueConfig tunes delivery retries for the store-backed queue.
type QueueConfig struct {
	// MaxAttempts is the delivery retry budget before a task dead-letters.
	MaxAttempts int
	// BaseRetryDelay seeds the quadratic retry backoff.
	BaseRetryDelay time.Duration
	// MaxRetryDelay caps the retry backoff.
	MaxRetryDelay time.Duration
	// BatchSize is the default number of tasks claimed per poll.
	BatchSize int
}

// Queue is the store-backed Dispatcher. Enqueue inserts a task; the Worker
// drains them and redelivers failed ones with backoff.
type Queue struct {
	db  bun.IDB
	cfg QueueConfig
	log *slog.Logger
}

// NewQueue creates a queue over db.
func NewQueue(db bun.IDB, cfg QueueConfig, log *slog.Logger) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 30 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	return &Queue{
		db:  db,
		cfg: cfg,
		log: log.With(logger.Scope("dispatch.queue")),
	}
}

// Enqueue records the intent to process jobID. A job with a pending or
// processing task hits the partial unique index and the insert affects zero
// rows, which makes the duplicate a successful no-op.
func (q *Queue) Enqueue(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.NewString(),
		JobID:       jobID,
		Status:      TaskStatusPending,
		ScheduledAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	res, err := q.db.NewInsert().
		Model(task).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		q.log.Debug("job already enqueued", slog.String("job_id", jobID))
		return nil
	}

	q.log.Debug("job enqueued", slog.String("job_id", jobID), slog.String("task_id", task.ID))
	return nil
}

// Delivery is one claimed task handed to the worker pool.
type Delivery struct {
	ID           string `bun:"id"`
	JobID        string `bun:"job_id"`
	AttemptCount int    `bun:"attempt_count"`
}

// Dequeue atomically claims up to batchSize due tasks. On Postgres the claim
// uses FOR UPDATE SKIP LOCKED so concurrent pollers never double-claim; on
// SQLite the single writer connection serializes the conditional update.
func (q *Queue) Dequeue(ctx context.Context, batchSize int) ([]Delivery, error) {
	if batchSize <= 0 {
		batchSize = q.cfg.BatchSize
	}
	now := time.Now().UTC()

	var query string
	if q.db.Dialect().Name() == dialect.PG {
		query = `
			WITH cte AS (
				SELECT id FROM transcription_tasks
				WHERE status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= ?)
				ORDER BY created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT ?
			)
			UPDATE transcription_tasks AS t
			SET status = 'processing', started_at = ?, updated_at = ?
			FROM cte WHERE t.id = cte.id
			RETURNING t.id, t.job_id, t.attempt_count`
	} else {
		query = `
			UPDATE transcription_tasks
			SET status = 'processing', started_at = ?, updated_at = ?
			WHERE id IN (
				SELECT id FROM transcription_tasks
				WHERE status = 'pending' AND (scheduled_at IS NULL OR scheduled_at <= ?)
				ORDER BY created_at ASC
				LIMIT ?
			)
			RETURNING id, job_id, attempt_count`
	}

	var deliveries []Delivery
	var err error
	if q.db.Dialect().Name() == dialect.PG {
		err = q.db.NewRaw(query, now, batchSize, now, now).Scan(ctx, &deliveries)
	} else {
		err = q.db.NewRaw(query, now, now, now, batchSize).Scan(ctx, &deliveries)
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	return deliveries, nil
}

// MarkCompleted finishes a delivered task.
func (q *Queue) MarkCompleted(ctx context.Context, taskID string) error {
	now := time.Now().UTC()
	_, err := q.db.NewUpdate().
		Model((*Task)(nil)).
		Set("status = ?", TaskStatusCompleted).
		Set("completed_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", taskID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery. Below the attempt budget the task
// returns to pending with a quadratic backoff; at the budget it dead-letters
// as failed, to be picked up again only by the recovery sweep re-enqueueing
// its job.
func (q *Queue) MarkFailed(ctx context.Context, taskID string, attemptCount int, errMsg string) error {
	attempt := attemptCount + 1
	now := time.Now().UTC()

	if attempt >= q.cfg.MaxAttempts {
		_, err := q.db.NewUpdate().
			Model((*Task)(nil)).
			Set("status = ?", TaskStatusFailed).
			Set("attempt_count = ?", attempt).
			Set("last_error = ?", truncateError(errMsg)).
			Set("updated_at = ?", now).
			Where("id = ?", taskID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("mark failed (permanent): %w", err)
		}

		q.log.Warn("delivery dead-lettered after max attempts",
			slog.String("task_id", taskID),
			slog.Int("attempts", attempt),
			slog.String("error", errMsg))
		return nil
	}

	delay := time.Duration(math.Min(
		q.cfg.MaxRetryDelay.Seconds(),
		q.cfg.BaseRetryDelay.Seconds()*float64(attempt)*float64(attempt),
	)) * time.Second
	retryAt := now.Add(delay)

	_, err := q.db.NewUpdate().
		Model((*Task)(nil)).
		Set("status = ?", TaskStatusPending).
		Set("attempt_count = ?", attempt).
		Set("last_error = ?", truncateError(errMsg)).
		Set("scheduled_at = ?", retryAt).
		Set("updated_at = ?", now).
		Where("id = ?", taskID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark failed (retry): %w", err)
	}

	q.log.Debug("delivery scheduled for retry",
		slog.String("task_id", taskID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
	return nil
}

// RecoverStale returns tasks stuck in processing to pending. This happens
// when the process died mid-delivery; the claim timestamp tells us how long
// ago.
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	res, err := q.db.NewUpdate().
		Model((*Task)(nil)).
		Set("status = ?", TaskStatusPending).
		Set("started_at = NULL").
		Set("scheduled_at = ?", now).
		Set("updated_at = ?", now).
		Where("status = ?", TaskStatusProcessing).
		Where("started_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover stale tasks: %w", err)
	}

	count, _ := res.RowsAffected()
	if count > 0 {
		q.log.Warn("recovered stale deliveries",
			slog.Int64("count", count),
			slog.Duration("older_than", olderThan))
	}
	return int(count), nil
}

// Stats summarizes the queue by task status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// GetStats counts tasks per status.
func (q *Queue) GetStats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		Status string `bun:"status"`
		Count  int64  `bun:"count"`
	}
	err := q.db.NewSelect().
		Model((*Task)(nil)).
		ColumnExpr("status, COUNT(*) AS count").
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}

	stats := &Stats{}
	for _, row := range rows {
		switch row.Status {
		case TaskStatusPending:
			stats.Pending = row.Count
		case TaskStatusProcessing:
			stats.Processing = row.Count
		case TaskStatusCompleted:
			stats.Completed = row.Count
		case TaskStatusFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}

// truncateError keeps stored error messages bounded.
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
