package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/stream-monitor/internal/config"
)

func monitorConfig(size int) config.AlertConfig {
	return config.AlertConfig{
		HistorySize:       size,
		StdDevMultiplier:  2.0,
		MinBaselineMillis: 50.0,
	}
}

func TestMonitorNotReadyUntilWarm(t *testing.T) {
	m := NewMonitor(monitorConfig(30))

	for i := 0; i < 9; i++ {
		m.Record(55.0)
		_, ready := m.Threshold()
		assert.False(t, ready, "should not be ready with %d samples", i+1)
	}

	m.Record(55.0)
	_, ready := m.Threshold()
	assert.True(t, ready, "should be ready with 10 samples")
}

func TestMonitorThresholdTracksHistory(t *testing.T) {
	m := NewMonitor(monitorConfig(30))

	samples := []float64{100, 110, 90, 105, 95, 102, 98, 107, 93, 101}
	for _, s := range samples {
		m.Record(s)
	}

	threshold, ready := m.Threshold()
	assert.True(t, ready)

	want := stat.Mean(samples, nil) + 2.0*stat.PopStdDev(samples, nil)
	assert.InDelta(t, want, threshold, 1e-9)
}

func TestMonitorEnforcesMinimumBaseline(t *testing.T) {
	m := NewMonitor(monitorConfig(30))

	// Very low, very stable latencies: mean + 2*stddev is far below the
	// 50ms floor.
	for i := 0; i < 30; i++ {
		m.Record(2.0)
	}

	threshold, ready := m.Threshold()
	assert.True(t, ready)
	assert.Equal(t, 50.0, threshold)
}

func TestMonitorEvictsOldestObservations(t *testing.T) {
	m := NewMonitor(monitorConfig(10))

	// Fill the window with high latencies, then overwrite it entirely
	// with low ones. The threshold must follow the new regime.
	for i := 0; i < 10; i++ {
		m.Record(500.0)
	}
	for i := 0; i < 10; i++ {
		m.Record(60.0)
	}

	threshold, ready := m.Threshold()
	assert.True(t, ready)
	assert.Equal(t, 60.0, threshold)
}
