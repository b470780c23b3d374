// Package sketch implements the bounded-memory streaming summaries used by
// the aggregator: a HyperLogLog cardinality estimator, a Count-Min frequency
// sketch, a Welford moments tracker, and a t-digest quantile sketch.
//
// All structures trade exactness for fixed memory and O(1) amortized update
// cost. None of them is safe for concurrent use on its own; callers are
// expected to serialize access (see internal/aggregator).
package sketch

import "errors"

var (
	// ErrEmpty is returned by queries on a structure that has seen no data,
	// so callers cannot mistake "no data" for "value is zero".
	ErrEmpty = errors.New("sketch: no data recorded")

	// ErrInsufficientData is returned when a statistic needs more samples
	// than have been observed (e.g. sample variance with fewer than two).
	ErrInsufficientData = errors.New("sketch: not enough samples")

	// ErrInvalidRank is returned for quantile ranks outside [0, 1].
	ErrInvalidRank = errors.New("sketch: rank must be in [0, 1]")

	// ErrNaN is returned when a NaN value is offered to a value sketch.
	ErrNaN = errors.New("sketch: NaN values are not supported")
)
