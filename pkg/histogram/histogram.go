// Package histogram records per-path self-time distributions.
package histogram

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// DefaultMax is the largest self time tracked, in nanoseconds.
	DefaultMax = int64(30 * time.Second)

	// SignificantDigits of relative precision kept across the range.
	SignificantDigits = 3
)

// Histogram wraps an HDR histogram of nanosecond samples. Values above the
// configured maximum are clamped rather than dropped.
type Histogram struct {
	impl *hdrhistogram.Histogram
	max  int64
}

// New creates a histogram tracking values in [1, max]. A non-positive max
// selects DefaultMax.
func New(max int64) *Histogram {
	if max <= 0 {
		max = DefaultMax
	}
	return &Histogram{
		impl: hdrhistogram.New(1, max, SignificantDigits),
		max:  max,
	}
}

// Record adds one sample. Non-positive values are ignored.
func (h *Histogram) Record(ns int64) {
	if ns <= 0 {
		return
	}
	if ns > h.max {
		ns = h.max
	}
	// Cannot fail: the value is within [1, max].
	_ = h.impl.RecordValue(ns)
}

// Percentile returns the value at percentile p, with p in [0, 100].
func (h *Histogram) Percentile(p float64) int64 {
	return h.impl.ValueAtQuantile(p)
}

// Max returns the largest recorded value, at histogram precision.
func (h *Histogram) Max() int64 {
	return h.impl.Max()
}

// Count returns the number of recorded samples.
func (h *Histogram) Count() int64 {
	return h.impl.TotalCount()
}

// Limit returns the clamp ceiling.
func (h *Histogram) Limit() int64 {
	return h.max
}

// Reset zeroes every bucket in place.
func (h *Histogram) Reset() {
	h.impl.Reset()
}
