// Package model holds the types shared across the pipeline boundary.
package model

import "time"

// Event is one record of the input stream. It is created by a producer,
// consumed exactly once by the aggregator, and not retained afterwards.
type Event struct {
	// Timestamp is the producer-side creation time.
	Timestamp time.Time

	// Key identifies the entity the event belongs to (e.g. a user id);
	// it drives cardinality and frequency estimation.
	Key string

	// Value is the metric subject to mean/variance tracking.
	Value float64

	// Latency is the non-negative time, in seconds, spent producing or
	// handling the event; it feeds the quantile sketch.
	Latency float64
}
