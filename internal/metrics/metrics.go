package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_ingested_total",
		Help: "The total number of events applied to the aggregator",
	})

	EventsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_dropped_total",
		Help: "The total number of events dropped at the full input queue",
	})

	EventsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_rejected_total",
		Help: "The total number of events rejected by validation",
	}, []string{"reason"})

	EventsAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_abandoned_total",
		Help: "The total number of buffered events abandoned at shutdown",
	})

	UniqueKeysEstimate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unique_keys_estimate",
		Help: "The current HyperLogLog estimate of distinct event keys",
	})

	ValueMean = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "value_mean",
		Help: "The running mean of the event value stream",
	})

	ValueStdDev = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "value_stddev",
		Help: "The running sample standard deviation of the event value stream",
	})

	LatencyQuantileMillis = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "latency_quantile_ms",
		Help: "Estimated latency quantiles in milliseconds",
	}, []string{"quantile"})

	LatencyAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "latency_alerts_total",
		Help: "The total number of p99 latency threshold breaches",
	})

	SketchSaturationsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sketch_saturations_total",
		Help: "Count-Min counter updates clamped at the representable maximum",
	})
)
