package sketch

import (
	"fmt"
	"math"

	"github.com/twmb/murmur3"
)

// CountMinSketch estimates per-key frequencies with a depth x width counter
// matrix. Estimates never undercount; overestimation is bounded by
// epsilon * totalCount with probability at least 1-delta, where
// epsilon ~ e/width and delta ~ e^-depth.
type CountMinSketch struct {
	width       uint64
	depth       int
	counters    [][]int64
	totalCount  int64
	saturations uint64
}

// NewCountMinSketch creates a sketch with explicit dimensions.
// Zero or negative dimensions are rejected, never clamped.
func NewCountMinSketch(width, depth int) (*CountMinSketch, error) {
	if width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("count-min dimensions must be positive, got width=%d depth=%d", width, depth)
	}

	counters := make([][]int64, depth)
	for i := range counters {
		counters[i] = make([]int64, width)
	}

	return &CountMinSketch{
		width:    uint64(width),
		depth:    depth,
		counters: counters,
	}, nil
}

// NewCountMinSketchFromError sizes the sketch for a target relative error
// epsilon with failure probability delta: width = ceil(e/epsilon),
// depth = ceil(ln(1/delta)).
func NewCountMinSketchFromError(epsilon, delta float64) (*CountMinSketch, error) {
	if epsilon <= 0 || epsilon >= 1 {
		return nil, fmt.Errorf("count-min epsilon must be in (0, 1), got %g", epsilon)
	}
	if delta <= 0 || delta >= 1 {
		return nil, fmt.Errorf("count-min delta must be in (0, 1), got %g", delta)
	}

	width := int(math.Ceil(math.E / epsilon))
	depth := int(math.Ceil(math.Log(1 / delta)))
	return NewCountMinSketch(width, depth)
}

// Add increments the counters for key in every row. Counters saturate at
// MaxInt64 instead of wrapping; saturation events are counted and visible
// through Saturations. Negative increments are not supported: the sketch is
// append-only.
func (c *CountMinSketch) Add(key string, count int64) {
	if count <= 0 {
		return
	}
	for row := 0; row < c.depth; row++ {
		idx := c.index(key, row)
		cell := c.counters[row][idx]
		if cell > math.MaxInt64-count {
			c.counters[row][idx] = math.MaxInt64
			c.saturations++
		} else {
			c.counters[row][idx] = cell + count
		}
	}
	if c.totalCount > math.MaxInt64-count {
		c.totalCount = math.MaxInt64
	} else {
		c.totalCount += count
	}
}

// Estimate returns the smallest counter across the rows hashed by key.
// The result is always >= the true count for the key.
func (c *CountMinSketch) Estimate(key string) int64 {
	est := int64(math.MaxInt64)
	for row := 0; row < c.depth; row++ {
		if v := c.counters[row][c.index(key, row)]; v < est {
			est = v
		}
	}
	return est
}

// TotalCount returns the sum of all increments added, saturating at MaxInt64.
func (c *CountMinSketch) TotalCount() int64 {
	return c.totalCount
}

// Saturations reports how many counter updates hit the representable
// maximum and were clamped.
func (c *CountMinSketch) Saturations() uint64 {
	return c.saturations
}

// RelativeError returns the additive error factor epsilon ~ e/width.
func (c *CountMinSketch) RelativeError() float64 {
	return math.E / float64(c.width)
}

// Merge adds another sketch cell-wise. Dimensions must match exactly,
// otherwise the row hashes do not line up.
func (c *CountMinSketch) Merge(other *CountMinSketch) error {
	if other.width != c.width || other.depth != c.depth {
		return fmt.Errorf("count-min dimension mismatch: %dx%d != %dx%d",
			c.depth, c.width, other.depth, other.width)
	}
	for row := range c.counters {
		for i, v := range other.counters[row] {
			cell := c.counters[row][i]
			if cell > math.MaxInt64-v {
				c.counters[row][i] = math.MaxInt64
				c.saturations++
			} else {
				c.counters[row][i] = cell + v
			}
		}
	}
	if c.totalCount > math.MaxInt64-other.totalCount {
		c.totalCount = math.MaxInt64
	} else {
		c.totalCount += other.totalCount
	}
	return nil
}

// Clone returns an independent deep copy, used to freeze the sketch into a
// snapshot without aliasing live counters.
func (c *CountMinSketch) Clone() *CountMinSketch {
	counters := make([][]int64, c.depth)
	for i := range counters {
		counters[i] = make([]int64, c.width)
		copy(counters[i], c.counters[i])
	}
	return &CountMinSketch{
		width:       c.width,
		depth:       c.depth,
		counters:    counters,
		totalCount:  c.totalCount,
		saturations: c.saturations,
	}
}

// index hashes key with a per-row murmur3 seed so the rows behave as
// independent hash functions.
func (c *CountMinSketch) index(key string, row int) uint64 {
	h := murmur3.SeedStringSum64(uint64(row)*0x9E3779B97F4A7C15+1, key)
	return h % c.width
}
