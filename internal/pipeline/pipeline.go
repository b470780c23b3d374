// Package pipeline contains the ingestion loop: the single writer that pulls
// events off a bounded channel and applies them to the aggregator, plus the
// periodic reporter that consumes snapshots downstream of it.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/stream-monitor/internal/aggregator"
	"github.com/yourusername/stream-monitor/internal/config"
	"github.com/yourusername/stream-monitor/internal/guardrail"
	"github.com/yourusername/stream-monitor/internal/metrics"
	"github.com/yourusername/stream-monitor/internal/model"
)

// DropPolicy values accepted by the pipeline configuration.
const (
	PolicyBlock = "block"
	PolicyDrop  = "drop"
)

// Pipeline couples the bounded input queue with the single ingestion
// goroutine. Producers call Publish from any goroutine; exactly one
// goroutine runs Run. Nothing on the ingestion path performs blocking I/O.
type Pipeline struct {
	agg    *aggregator.Aggregator
	guard  *guardrail.EventGuardrail
	events chan model.Event
	policy string
	grace  time.Duration
	logger *zap.Logger

	published uint64
	dropped   uint64
	rejected  uint64
	abandoned uint64
}

func New(agg *aggregator.Aggregator, cfg config.PipelineConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		agg:    agg,
		guard:  guardrail.NewEventGuardrail(cfg),
		events: make(chan model.Event, cfg.QueueSize),
		policy: cfg.DropPolicy,
		grace:  cfg.ShutdownGrace,
		logger: logger,
	}
}

// Publish offers one event to the queue. Under the "block" policy a full
// queue exerts natural backpressure on the producer until space frees up or
// ctx is cancelled. Under the "drop" policy the event is discarded
// immediately with a counted drop; silent loss is not an option.
func (p *Pipeline) Publish(ctx context.Context, ev model.Event) error {
	atomic.AddUint64(&p.published, 1)

	if p.policy == PolicyDrop {
		select {
		case p.events <- ev:
		default:
			atomic.AddUint64(&p.dropped, 1)
			metrics.EventsDroppedTotal.Inc()
		}
		return nil
	}

	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		atomic.AddUint64(&p.dropped, 1)
		metrics.EventsDroppedTotal.Inc()
		return ctx.Err()
	}
}

// Run is the ingestion loop and the aggregator's sole writer. It applies
// events in arrival order until ctx is cancelled, then drains what is
// already buffered for at most the configured grace period and abandons the
// rest with an observable count.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("ingestion loop started",
		zap.Int("queue_size", cap(p.events)),
		zap.String("drop_policy", p.policy))

	for {
		select {
		case ev := <-p.events:
			p.ingest(ev)
		case <-ctx.Done():
			p.drain()
			p.logger.Info("ingestion loop stopped",
				zap.Uint64("ingested", p.agg.Events()),
				zap.Uint64("dropped", p.Dropped()),
				zap.Uint64("rejected", p.Rejected()),
				zap.Uint64("abandoned", p.Abandoned()))
			return ctx.Err()
		}
	}
}

func (p *Pipeline) ingest(ev model.Event) {
	if reason, err := p.guard.Validate(ev); err != nil {
		atomic.AddUint64(&p.rejected, 1)
		metrics.EventsRejectedTotal.WithLabelValues(reason).Inc()
		return
	}
	p.agg.Ingest(ev)
	metrics.EventsIngestedTotal.Inc()
}

// drain consumes whatever is already buffered, bounded by the grace period:
// shutdown latency matters more than completeness once cancellation is
// requested.
func (p *Pipeline) drain() {
	timer := time.NewTimer(p.grace)
	defer timer.Stop()

	for {
		select {
		case ev := <-p.events:
			p.ingest(ev)
		case <-timer.C:
			p.abandon()
			return
		default:
			return
		}
	}
}

func (p *Pipeline) abandon() {
	n := len(p.events)
	if n == 0 {
		return
	}
	atomic.AddUint64(&p.abandoned, uint64(n))
	metrics.EventsAbandonedTotal.Add(float64(n))
	p.logger.Warn("abandoning buffered events after shutdown grace",
		zap.Int("count", n),
		zap.Duration("grace", p.grace))
}

// Published returns how many events producers have offered.
func (p *Pipeline) Published() uint64 {
	return atomic.LoadUint64(&p.published)
}

// Dropped returns how many events were discarded at a full queue.
func (p *Pipeline) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// Rejected returns how many events failed guardrail validation.
func (p *Pipeline) Rejected() uint64 {
	return atomic.LoadUint64(&p.rejected)
}

// Abandoned returns how many buffered events were discarded at shutdown.
func (p *Pipeline) Abandoned() uint64 {
	return atomic.LoadUint64(&p.abandoned)
}
