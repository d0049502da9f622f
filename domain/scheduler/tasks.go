package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scribehq/scribe/domain/transcripts"
	"github.com/scribehq/scribe/internal/dispatch"
	"github.com/scribehq/scribe/pkg/logger"
)

// StaleChunkSweepTask returns chunks orphaned in in_progress to pending and
// re-enqueues their jobs. This covers chunks whose delivery died without the
// whole process dying, which the startup reset never sees.
type StaleChunkSweepTask struct {
	repo       *transcripts.Repository
	dispatcher dispatch.Dispatcher
	log        *slog.Logger

	staleMinutes int
	mu           sync.RWMutex
}

// NewStaleChunkSweepTask creates a new stale chunk sweep task
func NewStaleChunkSweepTask(repo *transcripts.Repository, dispatcher dispatch.Dispatcher, log *slog.Logger, staleMinutes int) *StaleChunkSweepTask {
	if staleMinutes <= 0 {
		staleMinutes = 15
	}
	return &StaleChunkSweepTask{
		repo:         repo,
		dispatcher:   dispatcher,
		log:          log.With(logger.Scope("scheduler.stale_chunk_sweep")),
		staleMinutes: staleMinutes,
	}
}

// SetStaleMinutes updates the stale threshold at runtime.
func (t *StaleChunkSweepTask) SetStaleMinutes(minutes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staleMinutes = minutes
}

// GetStaleMinutes returns the current stale threshold.
func (t *StaleChunkSweepTask) GetStaleMinutes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.staleMinutes
}

// Run executes the stale chunk sweep
func (t *StaleChunkSweepTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("sweeping stale chunks")

	t.mu.RLock()
	staleMinutes := t.staleMinutes
	t.mu.RUnlock()

	reset, err := t.repo.ResetStaleInProgressChunks(ctx, time.Duration(staleMinutes)*time.Minute)
	if err != nil {
		return err
	}
	if reset == 0 {
		t.log.Debug("no stale chunks", slog.Duration("duration", time.Since(start)))
		return nil
	}

	t.log.Info("reset stale chunks", slog.Int("count", reset))

	// The reset chunks belong to unfinished jobs; give each a fresh delivery.
	// The enqueue dedup makes this safe for jobs that already have one.
	jobIDs, err := t.repo.ListNonTerminalJobIDs(ctx)
	if err != nil {
		return err
	}
	for _, jobID := range jobIDs {
		if err := t.dispatcher.Enqueue(ctx, jobID); err != nil {
			t.log.Warn("failed to re-enqueue job",
				logger.Error(err), slog.String("job_id", jobID))
		}
	}

	t.log.Debug("stale chunk sweep completed",
		slog.Int("jobs_checked", len(jobIDs)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// QueueStatsTask periodically logs queue depth so stuck pipelines show up in
// the logs without anyone watching the metrics endpoint.
type QueueStatsTask struct {
	queue *dispatch.Queue
	log   *slog.Logger
}

// NewQueueStatsTask creates a new queue stats task
func NewQueueStatsTask(queue *dispatch.Queue, log *slog.Logger) *QueueStatsTask {
	return &QueueStatsTask{
		queue: queue,
		log:   log.With(logger.Scope("scheduler.queue_stats")),
	}
}

// Run logs the current queue depth
func (t *QueueStatsTask) Run(ctx context.Context) error {
	stats, err := t.queue.GetStats(ctx)
	if err != nil {
		return err
	}

	if stats.Pending == 0 && stats.Processing == 0 && stats.Failed == 0 {
		t.log.Debug("queue idle", slog.Int64("completed", stats.Completed))
		return nil
	}

	t.log.Info("queue depth",
		slog.Int64("pending", stats.Pending),
		slog.Int64("processing", stats.Processing),
		slog.Int64("completed", stats.Completed),
		slog.Int64("failed", stats.Failed))
	return nil
}
