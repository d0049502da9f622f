package transcripts

import (
	"context"
	"log/slog"

	"github.com/scribehq/scribe/internal/dispatch"
	"github.com/scribehq/scribe/pkg/logger"
)

// Recovery re-arms work orphaned by a crash: chunks stuck in in_progress go
// back to pending, and every job that never reached a terminal state gets a
// fresh delivery. Runs once at startup, before the worker pool begins
// polling.
type Recovery struct {
	repo       *Repository
	dispatcher dispatch.Dispatcher
	log        *slog.Logger
}

// NewRecovery creates the startup recovery.
func NewRecovery(repo *Repository, dispatcher dispatch.Dispatcher, log *slog.Logger) *Recovery {
	return &Recovery{
		repo:       repo,
		dispatcher: dispatcher,
		log:        log.With(logger.Scope("transcripts.recovery")),
	}
}

// Run resets orphaned chunks and re-enqueues unfinished jobs. Enqueue
// failures are logged and skipped; the queued job stays visible to the next
// recovery pass or the stale sweep.
func (r *Recovery) Run(ctx context.Context) error {
	reset, err := r.repo.ResetInProgressChunks(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		r.log.Warn("reset orphaned chunks", slog.Int("count", reset))
	}

	jobIDs, err := r.repo.ListNonTerminalJobIDs(ctx)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, jobID := range jobIDs {
		if err := r.dispatcher.Enqueue(ctx, jobID); err != nil {
			r.log.Warn("failed to re-enqueue job",
				logger.Error(err), slog.String("job_id", jobID))
			continue
		}
		enqueued++
	}

	if len(jobIDs) > 0 {
		r.log.Info("recovery finished",
			slog.Int("unfinished_jobs", len(jobIDs)),
			slog.Int("re_enqueued", enqueued))
	}
	return nil
}
