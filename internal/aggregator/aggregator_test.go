package aggregator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/model"
	"github.com/yourusername/stream-monitor/pkg/sketch"
)

func testConfig() config.SketchConfig {
	return config.SketchConfig{
		HLLPrecision:      12,
		CMSketchWidth:     500,
		CMSketchDepth:     4,
		DigestCompression: 100,
		Quantiles:         []float64{0.5, 0.95, 0.99},
	}
}

func event(key string, value, latency float64) model.Event {
	return model.Event{Timestamp: time.Now(), Key: key, Value: value, Latency: latency}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	for name, mutate := range map[string]func(*config.SketchConfig){
		"bad precision":   func(c *config.SketchConfig) { c.HLLPrecision = 0 },
		"zero width":      func(c *config.SketchConfig) { c.CMSketchWidth = 0 },
		"zero depth":      func(c *config.SketchConfig) { c.CMSketchDepth = 0 },
		"bad compression": func(c *config.SketchConfig) { c.DigestCompression = 1 },
		"bad quantile":    func(c *config.SketchConfig) { c.Quantiles = []float64{1.5} },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestEmptySnapshot(t *testing.T) {
	agg, err := New(testConfig())
	require.NoError(t, err)

	snap := agg.Snapshot()
	assert.Zero(t, snap.Events)
	assert.Zero(t, snap.UniqueKeys)
	assert.Nil(t, snap.Percentiles)
	assert.Zero(t, snap.Frequency("nobody"))

	_, err = snap.Mean()
	assert.ErrorIs(t, err, sketch.ErrEmpty)
	_, err = snap.Variance()
	assert.ErrorIs(t, err, sketch.ErrInsufficientData)
	_, err = snap.LatencyQuantile(0.5)
	assert.ErrorIs(t, err, sketch.ErrEmpty)
}

func TestIngestUpdatesAllStructures(t *testing.T) {
	agg, err := New(testConfig())
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		agg.Ingest(event(fmt.Sprintf("user-%d", i%100), float64(i%10), 0.05))
	}

	snap := agg.Snapshot()
	assert.Equal(t, uint64(1000), snap.Events)
	assert.InDelta(t, 100, float64(snap.UniqueKeys), 5)
	assert.GreaterOrEqual(t, snap.Frequency("user-7"), int64(10))
	assert.Equal(t, int64(1000), snap.TotalCount())
	assert.Equal(t, uint64(1000), snap.SampleCount())

	mean, err := snap.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 4.5, mean, 1e-9)

	require.Contains(t, snap.Percentiles, 0.5)
	assert.InDelta(t, 0.05, snap.Percentiles[0.5], 1e-9)
}

func TestIngestValueLeavesLatencyDigestEmpty(t *testing.T) {
	agg, err := New(testConfig())
	require.NoError(t, err)

	// A replayed backfill: keys and values only, no latency signal.
	for i := 0; i < 500; i++ {
		agg.IngestValue(fmt.Sprintf("user-%d", i%50), float64(i%10))
	}

	snap := agg.Snapshot()
	assert.Equal(t, uint64(500), snap.Events)
	assert.InDelta(t, 50, float64(snap.UniqueKeys), 3)
	assert.GreaterOrEqual(t, snap.Frequency("user-7"), int64(10))

	mean, err := snap.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 4.5, mean, 1e-9)

	assert.Nil(t, snap.Percentiles)
	_, err = snap.LatencyQuantile(0.5)
	assert.ErrorIs(t, err, sketch.ErrEmpty)

	// Live traffic after the backfill owns the latency distribution.
	agg.Ingest(event("user-1", 5, 0.08))
	snap = agg.Snapshot()
	p50, err := snap.LatencyQuantile(0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, p50, 1e-9)
}

func TestSnapshotIsFrozen(t *testing.T) {
	agg, err := New(testConfig())
	require.NoError(t, err)

	agg.Ingest(event("a", 1, 0.01))
	snap := agg.Snapshot()

	for i := 0; i < 5000; i++ {
		agg.Ingest(event(fmt.Sprintf("later-%d", i), 100, 9.9))
	}

	assert.Equal(t, uint64(1), snap.Events)
	assert.Equal(t, int64(1), snap.TotalCount())
	mean, err := snap.Mean()
	require.NoError(t, err)
	assert.Equal(t, 1.0, mean)
	p, err := snap.LatencyQuantile(1)
	require.NoError(t, err)
	assert.Equal(t, 0.01, p)
}

// A single writer ingests while several readers snapshot continuously; no
// reader may ever observe a torn summary: event counts and frequency totals
// must be non-decreasing, and per-key estimates must never undercount what
// an earlier snapshot proved.
func TestConcurrentSnapshotsSeeMonotonicState(t *testing.T) {
	agg, err := New(testConfig())
	require.NoError(t, err)

	const (
		events  = 20_000
		readers = 4
	)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastEvents uint64
			var lastTotal int64
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := agg.Snapshot()
				assert.GreaterOrEqual(t, snap.Events, lastEvents)
				assert.GreaterOrEqual(t, snap.TotalCount(), lastTotal)
				assert.LessOrEqual(t, snap.SampleCount(), snap.Events)
				lastEvents = snap.Events
				lastTotal = snap.TotalCount()
			}
		}()
	}

	for i := 0; i < events; i++ {
		agg.Ingest(event(fmt.Sprintf("user-%d", i%500), float64(i), 0.001*float64(i%50)))
	}
	close(done)
	wg.Wait()

	snap := agg.Snapshot()
	assert.Equal(t, uint64(events), snap.Events)
	assert.GreaterOrEqual(t, snap.Frequency("user-42"), int64(events/500))
}

func TestLiveFrequencyNeverUndercounts(t *testing.T) {
	agg, err := New(testConfig())
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		agg.Ingest(event("hot", 1, 0.01))
	}
	assert.GreaterOrEqual(t, agg.Frequency("hot"), int64(300))
	assert.Equal(t, uint64(300), agg.Events())
}
