package asr

import (
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/scribehq/scribe/internal/config"
)

// Module provides the ASR gateway. The wrapped provider is the in-process
// simulator unless ASR_BASE_URL points at an external service.
var Module = fx.Module("asr",
	fx.Provide(
		NewGatewayFromConfig,
		func(g *Gateway) Transcriber { return g },
	),
)

// NewGatewayFromConfig builds the provider selected by cfg and wraps it with
// the global concurrency cap.
func NewGatewayFromConfig(cfg *config.Config, log *slog.Logger) *Gateway {
	var inner Transcriber
	if cfg.ASR.UseSimulator() {
		inner = NewSimulator(SimulatorConfig{
			MinLatency:        time.Duration(cfg.ASR.SimMinLatencyMs) * time.Millisecond,
			MaxLatency:        time.Duration(cfg.ASR.SimMaxLatencyMs) * time.Millisecond,
			TransientRate:     cfg.ASR.SimTransientRate,
			PermanentFailures: cfg.ASR.SimPermanentFor,
		})
		log.Info("using simulated asr provider",
			slog.Float64("transient_rate", cfg.ASR.SimTransientRate),
			slog.Any("permanent_failures", cfg.ASR.SimPermanentFor),
		)
	} else {
		inner = NewClient(cfg.ASR.BaseURL, cfg.ASR.Timeout(), log)
		log.Info("using external asr provider",
			slog.String("base_url", cfg.ASR.BaseURL),
		)
	}

	return NewGateway(inner, cfg.ASR.MaxConcurrency, log)
}
