package asr

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulatorConfig controls the in-process ASR simulation.
type SimulatorConfig struct {
	// MinLatency and MaxLatency bound the simulated service time per call.
	// Both zero disables the latency sleep.
	MinLatency time.Duration
	MaxLatency time.Duration

	// TransientRate is the probability [0,1] of a transient failure per call.
	TransientRate float64

	// PermanentFailures lists audio paths that always fail permanently.
	PermanentFailures []string
}

// Simulator is an in-process Transcriber with configurable latency and
// failure characteristics. It is the default provider when no external ASR
// service is configured.
type Simulator struct {
	cfg       SimulatorConfig
	permanent map[string]struct{}

	mu  sync.Mutex
	rnd *rand.Rand
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithRand replaces the simulator's random source, making failure rolls and
// latency deterministic in tests.
func WithRand(rnd *rand.Rand) SimulatorOption {
	return func(s *Simulator) {
		s.rnd = rnd
	}
}

// NewSimulator creates a simulator from cfg.
func NewSimulator(cfg SimulatorConfig, opts ...SimulatorOption) *Simulator {
	permanent := make(map[string]struct{}, len(cfg.PermanentFailures))
	for _, path := range cfg.PermanentFailures {
		permanent[path] = struct{}{}
	}

	s := &Simulator{
		cfg:       cfg,
		permanent: permanent,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transcribe simulates one transcription call: sleep inside the latency
// window, then fail permanently for configured paths, fail transiently at the
// configured rate, or return the canned transcript.
func (s *Simulator) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if err := s.sleep(ctx); err != nil {
		return "", NewTransient("simulated call interrupted", err)
	}

	if _, ok := s.permanent[audioPath]; ok {
		return "", NewPermanent(fmt.Sprintf("audio path %s cannot be transcribed", audioPath), nil)
	}

	if s.roll() < s.cfg.TransientRate {
		return "", NewTransient("simulated transient failure", nil)
	}

	return "Transcript for " + audioPath, nil
}

func (s *Simulator) sleep(ctx context.Context) error {
	if s.cfg.MaxLatency <= 0 {
		return ctx.Err()
	}

	latency := s.cfg.MinLatency
	if spread := s.cfg.MaxLatency - s.cfg.MinLatency; spread > 0 {
		s.mu.Lock()
		latency += time.Duration(s.rnd.Int63n(int64(spread)))
		s.mu.Unlock()
	}

	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Simulator) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}
