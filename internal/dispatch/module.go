package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/scribehq/scribe/internal/config"
)

// Module provides the dispatcher and, in queue mode, runs the worker pool.
var Module = fx.Module("dispatch",
	fx.Provide(
		newQueue,
		newDispatcher,
		newWorker,
	),
	fx.Invoke(registerWorker),
)

func newQueue(db bun.IDB, cfg *config.Config, log *slog.Logger) *Queue {
	return NewQueue(db, QueueConfig{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		BaseRetryDelay: time.Duration(cfg.Dispatch.BaseRetryDelaySec) * time.Second,
		MaxRetryDelay:  time.Duration(cfg.Dispatch.MaxRetryDelaySec) * time.Second,
		BatchSize:      cfg.Dispatch.WorkerBatchSize,
	}, log)
}

func newDispatcher(queue *Queue, cfg *config.Config, log *slog.Logger) Dispatcher {
	if cfg.Dispatch.UseHTTP() {
		return NewHTTPDispatcher(cfg.Dispatch.Tasks, log)
	}
	return queue
}

func newWorker(queue *Queue, processor JobProcessor, cfg *config.Config, log *slog.Logger) *Worker {
	return NewWorker(queue, processor, WorkerConfig{
		Count:               cfg.Dispatch.WorkerCount,
		PollInterval:        cfg.Dispatch.WorkerInterval(),
		BatchSize:           cfg.Dispatch.WorkerBatchSize,
		StaleThreshold:      time.Duration(cfg.Dispatch.StaleThresholdMinutes) * time.Minute,
		RecoverStaleOnStart: cfg.Dispatch.RecoverOnStart,
	}, log)
}

// registerWorker runs the worker pool in queue mode. In http mode the
// external task queue delivers through the HTTP handler instead.
func registerWorker(lc fx.Lifecycle, worker *Worker, cfg *config.Config) {
	if cfg.Dispatch.UseHTTP() {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// The fx start context carries a short timeout; the worker
			// loop must outlive it.
			return worker.Start(context.Background())
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})
}
