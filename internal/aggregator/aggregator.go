// Package aggregator owns one instance of each streaming summary and applies
// every incoming event to all of them behind a single mutation entry point.
package aggregator

import (
	"fmt"
	"sync"
	"time"

	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/model"
	"github.com/yourusername/stream-monitor/pkg/sketch"
)

// Aggregator applies events to the four summaries and produces frozen
// snapshots on demand. It is written by exactly one goroutine (the ingestion
// loop); any number of readers may call the read methods concurrently. The
// mutex is held only for bounded summary-state work, so the writer's
// per-event latency never depends on reader activity.
type Aggregator struct {
	mu        sync.RWMutex
	keys      *sketch.HyperLogLog
	freq      *sketch.CountMinSketch
	values    sketch.Moments
	latencies *sketch.TDigest
	quantiles []float64
	events    uint64
}

// New constructs an aggregator from the sketch configuration. Invalid
// parameters fail construction outright; nothing is clamped.
func New(cfg config.SketchConfig) (*Aggregator, error) {
	keys, err := sketch.NewHyperLogLog(cfg.HLLPrecision)
	if err != nil {
		return nil, fmt.Errorf("creating hyperloglog: %w", err)
	}
	freq, err := sketch.NewCountMinSketch(cfg.CMSketchWidth, cfg.CMSketchDepth)
	if err != nil {
		return nil, fmt.Errorf("creating count-min sketch: %w", err)
	}
	latencies, err := sketch.NewTDigest(cfg.DigestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating latency digest: %w", err)
	}
	for _, q := range cfg.Quantiles {
		if q < 0 || q > 1 {
			return nil, fmt.Errorf("reported quantile %g outside [0, 1]", q)
		}
	}

	return &Aggregator{
		keys:      keys,
		freq:      freq,
		latencies: latencies,
		quantiles: append([]float64(nil), cfg.Quantiles...),
	}, nil
}

// Ingest applies one event to all four structures. It is the sole mutation
// entry point and never fails: value/latency validity is enforced upstream
// at the pipeline boundary, and a pure in-memory update has no failure mode
// worth propagating into the ingestion path.
func (a *Aggregator) Ingest(ev model.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.keys.Add(ev.Key)
	a.freq.Add(ev.Key, 1)
	_ = a.values.Add(ev.Value)
	_ = a.latencies.Add(ev.Latency)
	a.events++
}

// IngestValue applies a key/value observation that carries no latency
// signal, such as a backfilled row. The latency digest is left untouched so
// replayed history cannot skew the latency distribution toward zero.
func (a *Aggregator) IngestValue(key string, value float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.keys.Add(key)
	a.freq.Add(key, 1)
	_ = a.values.Add(value)
	a.events++
}

// Events returns the number of events ingested so far.
func (a *Aggregator) Events() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.events
}

// Frequency returns the live estimated count for key, never below the true
// count.
func (a *Aggregator) Frequency(key string) int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.freq.Estimate(key)
}

// Snapshot freezes the current state into an immutable view. Each structure
// is copied whole under the read lock, so no individual summary is ever torn;
// the copies alias nothing mutable and the snapshot may be shared freely.
func (a *Aggregator) Snapshot() *Snapshot {
	a.mu.RLock()
	snap := &Snapshot{
		TakenAt:    time.Now(),
		Events:     a.events,
		UniqueKeys: a.keys.Estimate(),
		values:     a.values,
		freq:       a.freq.Clone(),
		latencies:  a.latencies.Clone(),
	}
	a.mu.RUnlock()

	// Percentile evaluation happens outside the lock; the cloned digest is
	// already compressed, so these queries are pure.
	if !snap.latencies.IsEmpty() {
		snap.Percentiles = make(map[float64]float64, len(a.quantiles))
		for _, q := range a.quantiles {
			if v, err := snap.latencies.Quantile(q); err == nil {
				snap.Percentiles[q] = v
			}
		}
	}
	return snap
}

// Snapshot is a read-only, point-in-time view of the derived statistics.
// It is never mutated after creation.
type Snapshot struct {
	TakenAt    time.Time
	Events     uint64
	UniqueKeys uint64

	// Percentiles holds the configured latency quantiles; nil until the
	// first latency sample has been observed.
	Percentiles map[float64]float64

	values    sketch.Moments
	freq      *sketch.CountMinSketch
	latencies *sketch.TDigest
}

// Frequency returns the estimated count for key at snapshot time.
func (s *Snapshot) Frequency(key string) int64 {
	return s.freq.Estimate(key)
}

// TotalCount returns the total number of key increments at snapshot time.
func (s *Snapshot) TotalCount() int64 {
	return s.freq.TotalCount()
}

// Saturations reports clamped frequency-counter updates, so overflow is
// observable rather than silently wrong.
func (s *Snapshot) Saturations() uint64 {
	return s.freq.Saturations()
}

// SampleCount returns the number of values behind the moment statistics.
func (s *Snapshot) SampleCount() uint64 {
	return s.values.Count()
}

// Mean returns the running mean of the value stream, or sketch.ErrEmpty.
func (s *Snapshot) Mean() (float64, error) {
	return s.values.Mean()
}

// Variance returns the sample variance of the value stream; it reports
// sketch.ErrInsufficientData below two samples rather than a silent zero.
func (s *Snapshot) Variance() (float64, error) {
	return s.values.SampleVariance()
}

// StdDev returns the sample standard deviation of the value stream.
func (s *Snapshot) StdDev() (float64, error) {
	return s.values.StdDev()
}

// LatencyQuantile estimates the latency value at rank q. In addition to the
// configured Percentiles it answers arbitrary ranks.
func (s *Snapshot) LatencyQuantile(q float64) (float64, error) {
	return s.latencies.Quantile(q)
}
