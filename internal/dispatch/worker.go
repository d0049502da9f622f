package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scribehq/scribe/pkg/logger"
)

// WorkerConfig tunes the in-process worker pool.
type WorkerConfig struct {
	// Count is the number of deliveries processed in parallel.
	Count int
	// PollInterval is how often the queue is polled for due tasks.
	PollInterval time.Duration
	// BatchSize is the number of tasks claimed per poll.
	BatchSize int
	// StaleThreshold is how long a task may sit in processing before the
	// startup recovery reclaims it.
	StaleThreshold time.Duration
	// RecoverStaleOnStart reclaims stuck tasks before the first poll.
	RecoverStaleOnStart bool
}

// Worker drains the task queue and hands each delivery to the processor. It
// polls on a ticker, claims a batch, and fans the batch out over a bounded
// group of goroutines.
type Worker struct {
	queue     *Queue
	processor JobProcessor
	cfg       WorkerConfig
	log       *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a worker pool over queue.
func NewWorker(queue *Queue, processor JobProcessor, cfg WorkerConfig, log *slog.Logger) *Worker {
	if cfg.Count <= 0 {
		cfg.Count = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Count
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = 10 * time.Minute
	}
	return &Worker{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		log:       log.With(logger.Scope("dispatch.worker")),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start reclaims stale tasks and begins polling. The loop runs until Stop.
func (w *Worker) Start(ctx context.Context) error {
	if w.cfg.RecoverStaleOnStart {
		if _, err := w.queue.RecoverStale(ctx, w.cfg.StaleThreshold); err != nil {
			w.log.Warn("stale task recovery failed", logger.Error(err))
		}
	}

	w.log.Info("dispatch worker starting",
		slog.Int("workers", w.cfg.Count),
		slog.Duration("poll_interval", w.cfg.PollInterval),
		slog.Int("batch_size", w.cfg.BatchSize))

	go w.run(ctx)
	return nil
}

// Stop closes the intake and waits for in-flight deliveries, or gives up
// when ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })

	select {
	case <-w.doneCh:
		w.log.Info("dispatch worker stopped")
	case <-ctx.Done():
		w.log.Warn("dispatch worker stop timeout")
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.log.Warn("poll failed", logger.Error(err))
			}
		}
	}
}

// drainOnce claims one batch and processes it with bounded parallelism.
// Processing errors are recorded per task, never returned: the queue's retry
// schedule owns redelivery.
func (w *Worker) drainOnce(ctx context.Context) error {
	deliveries, err := w.queue.Dequeue(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Count)
	for _, d := range deliveries {
		d := d
		g.Go(func() error {
			w.processDelivery(gctx, d)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) processDelivery(ctx context.Context, d Delivery) {
	log := w.log.With(slog.String("job_id", d.JobID), slog.String("task_id", d.ID))
	start := time.Now()

	if err := w.processor.ProcessJob(ctx, d.JobID); err != nil {
		log.Warn("delivery failed", logger.Error(err), slog.Duration("duration", time.Since(start)))
		if mErr := w.queue.MarkFailed(ctx, d.ID, d.AttemptCount, err.Error()); mErr != nil {
			log.Error("failed to record delivery failure", logger.Error(mErr))
		}
		return
	}

	if err := w.queue.MarkCompleted(ctx, d.ID); err != nil {
		log.Error("failed to record delivery completion", logger.Error(err))
		return
	}
	log.Debug("delivery completed", slog.Duration("duration", time.Since(start)))
}
