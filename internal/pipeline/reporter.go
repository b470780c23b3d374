package pipeline

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/stream-monitor/internal/aggregator"
	"github.com/yourusername/stream-monitor/internal/alert"
	"github.com/yourusername/stream-monitor/internal/metrics"
	"github.com/yourusername/stream-monitor/internal/notify"
)

// Reporter periodically snapshots the aggregator, refreshes the exported
// gauges, and evaluates the dynamic p99 alert. It only ever calls read
// methods; it runs concurrently with the ingestion loop and never blocks it.
type Reporter struct {
	agg      *aggregator.Aggregator
	pipe     *Pipeline
	monitor  *alert.Monitor
	notifier *notify.Client
	interval time.Duration
	logger   *zap.Logger
}

// NewReporter wires the reporting consumer. notifier may be nil when no
// webhook is configured.
func NewReporter(
	agg *aggregator.Aggregator,
	pipe *Pipeline,
	monitor *alert.Monitor,
	notifier *notify.Client,
	interval time.Duration,
	logger *zap.Logger,
) *Reporter {
	return &Reporter{
		agg:      agg,
		pipe:     pipe,
		monitor:  monitor,
		notifier: notifier,
		interval: interval,
		logger:   logger,
	}
}

func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.report(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Reporter) report(ctx context.Context) {
	snap := r.agg.Snapshot()

	metrics.UniqueKeysEstimate.Set(float64(snap.UniqueKeys))
	metrics.SketchSaturationsTotal.Set(float64(snap.Saturations()))
	if mean, err := snap.Mean(); err == nil {
		metrics.ValueMean.Set(mean)
	}
	if sd, err := snap.StdDev(); err == nil {
		metrics.ValueStdDev.Set(sd)
	}
	for q, v := range snap.Percentiles {
		metrics.LatencyQuantileMillis.
			WithLabelValues(strconv.FormatFloat(q, 'g', -1, 64)).
			Set(v * 1000)
	}

	fields := []zap.Field{
		zap.Uint64("events", snap.Events),
		zap.Uint64("unique_keys", snap.UniqueKeys),
		zap.Uint64("dropped", r.pipe.Dropped()),
		zap.Uint64("rejected", r.pipe.Rejected()),
	}
	if mean, err := snap.Mean(); err == nil {
		fields = append(fields, zap.Float64("mean", mean))
	}
	for q, v := range snap.Percentiles {
		fields = append(fields, zap.Float64("p"+strconv.FormatFloat(q*100, 'g', -1, 64), v*1000))
	}
	r.logger.Info("pipeline stats", fields...)

	p99, err := snap.LatencyQuantile(0.99)
	if err != nil {
		return
	}
	p99ms := p99 * 1000
	r.monitor.Record(p99ms)

	threshold, ready := r.monitor.Threshold()
	if !ready || p99ms <= threshold {
		return
	}

	metrics.LatencyAlertsTotal.Inc()
	r.logger.Warn("p99 latency above dynamic threshold",
		zap.Float64("p99_ms", p99ms),
		zap.Float64("threshold_ms", threshold))

	if r.notifier != nil {
		a := notify.Alert{
			Kind:            "latency_p99",
			P99Millis:       p99ms,
			ThresholdMillis: threshold,
			UniqueKeys:      snap.UniqueKeys,
			Events:          snap.Events,
			At:              snap.TakenAt,
		}
		if err := r.notifier.Send(ctx, a); err != nil {
			r.logger.Error("sending alert", zap.Error(err))
		}
	}
}
