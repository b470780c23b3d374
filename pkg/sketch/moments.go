package sketch

import "math"

// Moments tracks the running mean and variance of a value stream with
// Welford's online recurrence, avoiding the catastrophic cancellation that
// a naive sum / sum-of-squares pair suffers at large counts or magnitudes.
//
// The zero value is ready to use. Moments has value semantics: copying the
// struct freezes the statistics at that point.
type Moments struct {
	count          uint64
	mean           float64
	sumSquaredDiff float64
}

// Add folds one value into the running statistics. NaN is rejected so a
// single bad sample cannot poison the mean forever.
func (m *Moments) Add(value float64) error {
	if math.IsNaN(value) {
		return ErrNaN
	}
	m.count++
	delta := value - m.mean
	m.mean += delta / float64(m.count)
	m.sumSquaredDiff += delta * (value - m.mean)
	return nil
}

// Count returns the number of values observed.
func (m *Moments) Count() uint64 {
	return m.count
}

// Mean returns the running mean, or ErrEmpty before any value is observed.
func (m *Moments) Mean() (float64, error) {
	if m.count == 0 {
		return 0, ErrEmpty
	}
	return m.mean, nil
}

// Variance returns the population variance sumSquaredDiff/count.
func (m *Moments) Variance() (float64, error) {
	if m.count == 0 {
		return 0, ErrEmpty
	}
	return m.sumSquaredDiff / float64(m.count), nil
}

// SampleVariance returns sumSquaredDiff/(count-1), defined from the second
// sample onward.
func (m *Moments) SampleVariance() (float64, error) {
	if m.count < 2 {
		return 0, ErrInsufficientData
	}
	return m.sumSquaredDiff / float64(m.count-1), nil
}

// StdDev returns the sample standard deviation.
func (m *Moments) StdDev() (float64, error) {
	v, err := m.SampleVariance()
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// Merge combines another tracker into this one using the parallel Welford
// combine, as if both streams had been fed into a single tracker.
func (m *Moments) Merge(other Moments) {
	if other.count == 0 {
		return
	}
	if m.count == 0 {
		*m = other
		return
	}

	total := m.count + other.count
	delta := other.mean - m.mean
	m.mean += delta * float64(other.count) / float64(total)
	m.sumSquaredDiff += other.sumSquaredDiff +
		delta*delta*float64(m.count)*float64(other.count)/float64(total)
	m.count = total
}
