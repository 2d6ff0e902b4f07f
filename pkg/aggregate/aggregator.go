// Package aggregate accumulates self time per distinct call path.
package aggregate

import (
	"sort"

	"go.uber.org/atomic"

	"github.com/danpilch/pathprof/pkg/histogram"
	"github.com/danpilch/pathprof/pkg/registry"
)

const (
	initialBuckets = 256
	maxLoadFactor  = 4
)

// Settings are shared by every aggregator of one profiler. The toggles are
// read on the hot path; a flip is not guaranteed to be seen by calls already
// in flight.
type Settings struct {
	Histograms  atomic.Bool
	Diagnostics atomic.Bool

	// HistogramMax is the clamp ceiling for new histograms, in nanoseconds.
	HistogramMax int64

	// OnCollision receives true hash collisions while Diagnostics is set.
	OnCollision func(Collision)
}

// Collision describes two distinct paths that share a 64-bit hash.
type Collision struct {
	Hash     uint64
	Existing []registry.ID
	Incoming []registry.ID
}

// Record is the aggregated state of one call path. Path and Hist are owned by
// the aggregator; callers must not modify them.
type Record struct {
	Path  []registry.ID
	Total int64
	Hist  *histogram.Histogram
}

type entry struct {
	hash     uint64
	path     []registry.ID
	total    int64
	hist     *histogram.Histogram
	reported bool
	next     *entry
}

// Aggregator is a chained hash table from call path to accumulated self
// time. It is not safe for concurrent mutation; each thread owns one.
type Aggregator struct {
	settings *Settings
	hasher   Hasher
	buckets  []*entry
	count    int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithHasher replaces the path hash function.
func WithHasher(h Hasher) Option {
	return func(a *Aggregator) {
		a.hasher = h
	}
}

// New creates an empty aggregator. A nil settings value means histograms and
// diagnostics are off.
func New(settings *Settings, opts ...Option) *Aggregator {
	if settings == nil {
		settings = &Settings{}
	}
	a := &Aggregator{
		settings: settings,
		hasher:   HashPath,
		buckets:  make([]*entry, initialBuckets),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add accumulates self nanoseconds for path. The path slice is copied if a new
// record is created, so callers may reuse it.
func (a *Aggregator) Add(path []registry.ID, self int64) {
	if self <= 0 {
		return
	}

	h := a.hasher(path)
	idx := h & uint64(len(a.buckets)-1)

	for e := a.buckets[idx]; e != nil; e = e.next {
		if e.hash != h {
			continue
		}
		if equalPaths(e.path, path) {
			e.total += self
			a.record(e, self)
			return
		}
		if !e.reported && a.settings.Diagnostics.Load() {
			e.reported = true
			if a.settings.OnCollision != nil {
				a.settings.OnCollision(Collision{
					Hash:     h,
					Existing: e.path,
					Incoming: append([]registry.ID(nil), path...),
				})
			}
		}
	}

	e := &entry{
		hash:  h,
		path:  append(make([]registry.ID, 0, len(path)), path...),
		total: self,
		next:  a.buckets[idx],
	}
	a.record(e, self)
	a.buckets[idx] = e
	a.count++

	if a.count > maxLoadFactor*len(a.buckets) {
		a.grow()
	}
}

func (a *Aggregator) record(e *entry, self int64) {
	if !a.settings.Histograms.Load() {
		return
	}
	if e.hist == nil {
		e.hist = histogram.New(a.settings.HistogramMax)
	}
	e.hist.Record(self)
}

// grow doubles the bucket array and relinks entries by their stored hash.
func (a *Aggregator) grow() {
	buckets := make([]*entry, len(a.buckets)*2)
	mask := uint64(len(buckets) - 1)
	for _, head := range a.buckets {
		for e := head; e != nil; {
			next := e.next
			idx := e.hash & mask
			e.next = buckets[idx]
			buckets[idx] = e
			e = next
		}
	}
	a.buckets = buckets
}

// Len returns the number of distinct paths recorded.
func (a *Aggregator) Len() int {
	return a.count
}

// Snapshot returns every record ordered by descending total self time. Ties
// are ordered by path so that unchanged state always yields the same order.
func (a *Aggregator) Snapshot() []Record {
	out := make([]Record, 0, a.count)
	for _, head := range a.buckets {
		for e := head; e != nil; e = e.next {
			out = append(out, Record{Path: e.path, Total: e.total, Hist: e.hist})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return comparePaths(out[i].Path, out[j].Path) < 0
	})
	return out
}

// Reset discards every record. Known paths are not preserved.
func (a *Aggregator) Reset() {
	a.buckets = make([]*entry, initialBuckets)
	a.count = 0
}
