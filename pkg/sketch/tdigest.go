package sketch

import (
	"fmt"
	"math"
	"sort"
)

// DefaultCompression is a reasonable compression parameter for latency
// streams: roughly 1% rank error at the median, much tighter in the tails.
const DefaultCompression = 100

const digestBufferMultiplier = 4

// centroid is one value-weight pair of the compressed summary.
type centroid struct {
	mean   float64
	weight float64
}

// TDigest estimates quantiles of a value stream in memory bounded by the
// compression parameter, regardless of stream length. Clusters are sized
// proportionally to q*(1-q), so rank error is smallest at the extremes;
// the structure follows Dunning and Ertl's merging digest.
type TDigest struct {
	compression float64
	capacity    int
	min         float64
	max         float64
	centroids   []centroid
	weight      float64
	buffer      []float64
}

// NewTDigest creates a digest with the given compression parameter.
// Values below 10 are rejected: the summary would be too coarse to honor
// any useful error bound.
func NewTDigest(compression float64) (*TDigest, error) {
	if compression < 10 {
		return nil, fmt.Errorf("t-digest compression must be at least 10, got %g", compression)
	}

	capacity := 2*int(compression) + 10

	return &TDigest{
		compression: compression,
		capacity:    capacity,
		min:         math.Inf(1),
		max:         math.Inf(-1),
		centroids:   make([]centroid, 0, capacity),
		buffer:      make([]float64, 0, capacity*digestBufferMultiplier),
	}, nil
}

// Add inserts one value. Updates are buffered and merged in batches, so the
// amortized cost stays constant.
func (t *TDigest) Add(value float64) error {
	if math.IsNaN(value) {
		return ErrNaN
	}
	if len(t.buffer) == cap(t.buffer) {
		t.compress()
	}
	t.buffer = append(t.buffer, value)
	t.min = math.Min(t.min, value)
	t.max = math.Max(t.max, value)
	return nil
}

// Count returns the total number of values added.
func (t *TDigest) Count() uint64 {
	return uint64(t.weight) + uint64(len(t.buffer))
}

// IsEmpty reports whether the digest has seen no data.
func (t *TDigest) IsEmpty() bool {
	return len(t.centroids) == 0 && len(t.buffer) == 0
}

// Min returns the smallest value observed, or ErrEmpty.
func (t *TDigest) Min() (float64, error) {
	if t.IsEmpty() {
		return 0, ErrEmpty
	}
	return t.min, nil
}

// Max returns the largest value observed, or ErrEmpty.
func (t *TDigest) Max() (float64, error) {
	if t.IsEmpty() {
		return 0, ErrEmpty
	}
	return t.max, nil
}

// Quantile returns an estimate of the value at rank q*n among everything
// added so far. q=0 and q=1 return the exact minimum and maximum. Querying
// an empty digest is an error, never a default number.
func (t *TDigest) Quantile(q float64) (float64, error) {
	if t.IsEmpty() {
		return 0, ErrEmpty
	}
	if q < 0 || q > 1 {
		return 0, ErrInvalidRank
	}

	t.compress()

	if len(t.centroids) == 1 {
		return t.centroids[0].mean, nil
	}

	target := q * t.weight
	if target < 1 {
		return t.min, nil
	}
	if target > t.weight-1 {
		return t.max, nil
	}

	first := t.centroids[0]
	if first.weight > 1 && target < first.weight/2 {
		return t.min + (target-1)/(first.weight/2-1)*(first.mean-t.min), nil
	}

	last := t.centroids[len(t.centroids)-1]
	if last.weight > 1 && t.weight-target <= last.weight/2 {
		return t.max + (t.weight-target-1)/(last.weight/2-1)*(t.max-last.mean), nil
	}

	// Walk the centroids, interpolating between adjacent means.
	weightSoFar := first.weight / 2
	for i := 0; i < len(t.centroids)-1; i++ {
		cur := t.centroids[i]
		next := t.centroids[i+1]
		dw := (cur.weight + next.weight) / 2
		if weightSoFar+dw > target {
			var leftExcluded, rightExcluded float64
			if cur.weight == 1 {
				if target-weightSoFar < 0.5 {
					return cur.mean, nil
				}
				leftExcluded = 0.5
			}
			if next.weight == 1 {
				if weightSoFar+dw-target <= 0.5 {
					return next.mean, nil
				}
				rightExcluded = 0.5
			}
			w1 := target - weightSoFar - leftExcluded
			w2 := weightSoFar + dw - target - rightExcluded
			return (cur.mean*w2 + next.mean*w1) / (w1 + w2), nil
		}
		weightSoFar += dw
	}

	return last.mean, nil
}

// Merge folds another digest into this one, so sketches built by sharded
// ingestion workers can be combined into a single summary.
func (t *TDigest) Merge(other *TDigest) error {
	if other.IsEmpty() {
		return nil
	}

	// Fold the receiver's own buffered values in first; mergeCentroids
	// resets the buffer and would otherwise discard them.
	t.compress()

	incoming := make([]centroid, 0, len(other.centroids)+len(other.buffer))
	incoming = append(incoming, other.centroids...)
	for _, v := range other.buffer {
		incoming = append(incoming, centroid{mean: v, weight: 1})
	}

	t.min = math.Min(t.min, other.min)
	t.max = math.Max(t.max, other.max)
	t.mergeCentroids(incoming, other.weight+float64(len(other.buffer)))
	return nil
}

// Clone returns an independent, fully compressed copy without touching the
// receiver's state, so it is a pure read and may run under a shared lock.
// The copy's query methods perform no further internal reorganization,
// which makes it safe to freeze into a read-only snapshot.
func (t *TDigest) Clone() *TDigest {
	clone := &TDigest{
		compression: t.compression,
		capacity:    t.capacity,
		min:         t.min,
		max:         t.max,
		centroids:   make([]centroid, len(t.centroids), t.capacity),
		weight:      t.weight,
		buffer:      make([]float64, len(t.buffer), t.capacity*digestBufferMultiplier),
	}
	copy(clone.centroids, t.centroids)
	copy(clone.buffer, t.buffer)
	clone.compress()
	return clone
}

// CentroidCount reports the current summary size, bounded by the
// compression parameter no matter how long the stream runs.
func (t *TDigest) CentroidCount() int {
	return len(t.centroids)
}

func (t *TDigest) compress() {
	if len(t.buffer) == 0 {
		return
	}
	incoming := make([]centroid, 0, len(t.buffer))
	for _, v := range t.buffer {
		incoming = append(incoming, centroid{mean: v, weight: 1})
	}
	t.mergeCentroids(incoming, float64(len(t.buffer)))
}

// mergeCentroids rebuilds the summary from the existing centroids plus the
// incoming batch, greedily fusing neighbors while each cluster stays within
// the q*(1-q) size limit.
func (t *TDigest) mergeCentroids(incoming []centroid, addedWeight float64) {
	merged := make([]centroid, 0, len(t.centroids)+len(incoming))
	merged = append(merged, t.centroids...)
	merged = append(merged, incoming...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].mean < merged[j].mean
	})

	t.weight += addedWeight
	t.buffer = t.buffer[:0]
	t.centroids = t.centroids[:0]
	if len(merged) == 0 {
		return
	}

	normalizer := t.compression / (4*math.Log(t.weight/t.compression) + 24)

	t.centroids = append(t.centroids, merged[0])
	weightSoFar := 0.0
	for _, c := range merged[1:] {
		tail := &t.centroids[len(t.centroids)-1]
		proposed := tail.weight + c.weight

		q0 := weightSoFar / t.weight
		q1 := (weightSoFar + proposed) / t.weight
		limit := t.weight * math.Min(q0*(1-q0), q1*(1-q1)) / normalizer

		if proposed <= limit {
			tail.weight = proposed
			tail.mean += (c.mean - tail.mean) * c.weight / tail.weight
		} else {
			weightSoFar += tail.weight
			t.centroids = append(t.centroids, c)
		}
	}

	t.min = math.Min(t.min, t.centroids[0].mean)
	t.max = math.Max(t.max, t.centroids[len(t.centroids)-1].mean)
}
