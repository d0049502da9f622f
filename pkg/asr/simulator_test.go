package asr

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatorSuccess(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{}, WithRand(rand.New(rand.NewSource(1))))

	text, err := sim.Transcribe(context.Background(), "interview_part_1.wav")
	require.NoError(t, err)
	assert.Equal(t, "Transcript for interview_part_1.wav", text)
}

func TestSimulatorPermanentPath(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{
		PermanentFailures: []string{"bad_audio_segment"},
	}, WithRand(rand.New(rand.NewSource(1))))

	_, err := sim.Transcribe(context.Background(), "bad_audio_segment")
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "bad_audio_segment")

	// Other paths are unaffected by the permanent set.
	_, err = sim.Transcribe(context.Background(), "good")
	assert.NoError(t, err)
}

func TestSimulatorTransientRate(t *testing.T) {
	t.Run("always fails at rate 1", func(t *testing.T) {
		sim := NewSimulator(SimulatorConfig{TransientRate: 1.0}, WithRand(rand.New(rand.NewSource(1))))
		for i := 0; i < 10; i++ {
			_, err := sim.Transcribe(context.Background(), "x")
			require.Error(t, err)
			assert.True(t, IsTransient(err))
		}
	})

	t.Run("never fails at rate 0", func(t *testing.T) {
		sim := NewSimulator(SimulatorConfig{TransientRate: 0}, WithRand(rand.New(rand.NewSource(1))))
		for i := 0; i < 10; i++ {
			_, err := sim.Transcribe(context.Background(), "x")
			assert.NoError(t, err)
		}
	})
}

func TestSimulatorLatencyRespectsContext(t *testing.T) {
	sim := NewSimulator(SimulatorConfig{
		MinLatency: 0,
		MaxLatency: 0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Transcribe(ctx, "x")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}
