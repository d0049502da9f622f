package asr

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/scribehq/scribe/pkg/logger"
)

// Gateway wraps a Transcriber with a global in-flight cap. At most
// maxConcurrency calls run at any instant; additional callers wait until a
// slot frees up or their context is done.
type Gateway struct {
	inner Transcriber
	sem   *semaphore.Weighted
	log   *slog.Logger
}

// NewGateway creates a gateway around inner with the given concurrency cap.
func NewGateway(inner Transcriber, maxConcurrency int64, log *slog.Logger) *Gateway {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Gateway{
		inner: inner,
		sem:   semaphore.NewWeighted(maxConcurrency),
		log:   log.With(logger.Scope("asr.gateway")),
	}
}

// Transcribe acquires a slot, delegates to the wrapped provider and releases
// the slot on every path. Waiting for a slot respects ctx; an interrupted
// wait is transient so the chunk stays retryable.
func (g *Gateway) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", NewTransient("waiting for transcription slot", err)
	}
	defer g.sem.Release(1)

	start := time.Now()
	transcript, err := g.inner.Transcribe(ctx, audioPath)
	duration := time.Since(start)

	if duration > 30*time.Second {
		g.log.Warn("slow transcription",
			slog.String("audio_path", audioPath),
			slog.Duration("duration", duration),
		)
	}

	return transcript, err
}
