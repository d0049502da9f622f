package transcripts

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/scribehq/scribe/internal/config"
	"github.com/scribehq/scribe/internal/dispatch"
	"github.com/scribehq/scribe/pkg/asr"
)

// Module provides the transcripts domain
var Module = fx.Module("transcripts",
	fx.Provide(NewRepository),
	fx.Provide(provideService),
	fx.Provide(NewHandler),
	fx.Provide(NewRecovery),
	// The service is the processor behind queue deliveries.
	fx.Provide(func(s *Service) dispatch.JobProcessor { return s }),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(registerRecovery),
)

func provideService(
	repo *Repository,
	transcriber asr.Transcriber,
	dispatcher dispatch.Dispatcher,
	cfg *config.Config,
	log *slog.Logger,
) *Service {
	return NewService(repo, transcriber, dispatcher,
		cfg.Processor.MaxRetries, cfg.Processor.RetryBackoff(), log)
}

// registerRecovery runs crash recovery during startup. Listed before the
// dispatch worker hook, so orphaned chunks are reset before polling begins.
func registerRecovery(lc fx.Lifecycle, recovery *Recovery) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return recovery.Run(ctx)
		},
	})
}
