package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/stream-monitor/internal/aggregator"
	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/pipeline"
)

func TestSimulatorFeedsPipeline(t *testing.T) {
	cfg := config.Default()
	cfg.Producer.Users = 50
	cfg.Producer.Interval = 100 * time.Microsecond
	cfg.Producer.Seed = 42

	agg, err := aggregator.New(cfg.Sketch)
	require.NoError(t, err)

	pipe := pipeline.New(agg, cfg.Pipeline, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pipe.Run(ctx)
	}()

	sim := NewSimulator(pipe, cfg.Producer, zap.NewNop())
	simDone := make(chan error, 1)
	go func() { simDone <- sim.Run(ctx) }()

	// Let it publish for a while, then shut everything down.
	time.Sleep(200 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-simDone, context.Canceled)
	<-done

	snap := agg.Snapshot()
	require.NotZero(t, snap.Events)

	// All keys come from a population of 50 users.
	assert.LessOrEqual(t, snap.UniqueKeys, uint64(60))

	mean, err := snap.Mean()
	require.NoError(t, err)
	assert.InDelta(t, cfg.Producer.ValueMean, mean, 3*cfg.Producer.ValueStdDev)

	// Latencies were drawn from [MinLatencyMS, MaxLatencyMS].
	p99, err := snap.LatencyQuantile(0.99)
	require.NoError(t, err)
	assert.Greater(t, p99, cfg.Producer.MinLatencyMS/1000.0*0.9)
	assert.Less(t, p99, cfg.Producer.MaxLatencyMS/1000.0*1.1)
}

func TestSimulatorSeedZeroStillRuns(t *testing.T) {
	cfg := config.Default()
	cfg.Producer.Seed = 0

	agg, err := aggregator.New(cfg.Sketch)
	require.NoError(t, err)
	pipe := pipeline.New(agg, cfg.Pipeline, zap.NewNop())

	sim := NewSimulator(pipe, cfg.Producer, zap.NewNop())
	ev := sim.next()
	assert.NotEmpty(t, ev.Key)
	assert.False(t, ev.Timestamp.IsZero())
}
