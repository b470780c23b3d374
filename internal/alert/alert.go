// Package alert derives a dynamic latency threshold from recent p99
// observations instead of a hard-coded SLO.
package alert

import (
	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/stream-monitor/internal/config"
)

// Monitor keeps a bounded history of p99 observations (milliseconds) and
// flags values that sit more than a configured number of standard
// deviations above the recent mean. A minimum baseline keeps quiet systems
// from alerting on microscopic jitter.
//
// Monitor is used by a single reporting goroutine and is not safe for
// concurrent use.
type Monitor struct {
	history     []float64
	next        int
	full        bool
	multiplier  float64
	minBaseline float64
}

func NewMonitor(cfg config.AlertConfig) *Monitor {
	size := cfg.HistorySize
	if size <= 0 {
		size = 30
	}
	return &Monitor{
		history:     make([]float64, size),
		multiplier:  cfg.StdDevMultiplier,
		minBaseline: cfg.MinBaselineMillis,
	}
}

// Record appends one p99 observation, evicting the oldest once the history
// is full.
func (m *Monitor) Record(p99 float64) {
	m.history[m.next] = p99
	m.next++
	if m.next == len(m.history) {
		m.next = 0
		m.full = true
	}
}

// Threshold returns the current alert threshold in milliseconds. It reports
// false until enough history exists to make the baseline meaningful: at
// least 10 samples, or a third of the window, whichever is larger.
func (m *Monitor) Threshold() (float64, bool) {
	samples := m.samples()
	need := len(m.history) / 3
	if need < 10 {
		need = 10
	}
	if len(samples) < need {
		return 0, false
	}

	mean := stat.Mean(samples, nil)
	stddev := stat.PopStdDev(samples, nil)

	threshold := mean + m.multiplier*stddev
	if threshold < m.minBaseline {
		threshold = m.minBaseline
	}
	return threshold, true
}

func (m *Monitor) samples() []float64 {
	if m.full {
		return m.history
	}
	return m.history[:m.next]
}
