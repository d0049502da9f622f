package scheduler

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/scribehq/scribe/domain/transcripts"
	"github.com/scribehq/scribe/internal/dispatch"
)

// Module provides scheduled maintenance tasks
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler  *Scheduler
	Repo       *transcripts.Repository
	Dispatcher dispatch.Dispatcher
	Queue      *dispatch.Queue
	Log        *slog.Logger
	Cfg        *Config
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	sweepTask := NewStaleChunkSweepTask(p.Repo, p.Dispatcher, p.Log, p.Cfg.StaleChunkMinutes)
	if p.Cfg.StaleChunkSweepSchedule != "" {
		if err := p.Scheduler.AddCronTask("stale_chunk_sweep",
			p.Cfg.StaleChunkSweepSchedule, sweepTask.Run); err != nil {
			p.Log.Error("failed to register stale chunk sweep task",
				slog.String("error", err.Error()))
		}
	} else {
		if err := p.Scheduler.AddIntervalTask("stale_chunk_sweep",
			p.Cfg.StaleChunkSweepInterval, sweepTask.Run); err != nil {
			p.Log.Error("failed to register stale chunk sweep task",
				slog.String("error", err.Error()))
		}
	}

	statsTask := NewQueueStatsTask(p.Queue, p.Log)
	if err := p.Scheduler.AddIntervalTask("queue_stats",
		p.Cfg.QueueStatsInterval, statsTask.Run); err != nil {
		p.Log.Error("failed to register queue stats task",
			slog.String("error", err.Error()))
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
