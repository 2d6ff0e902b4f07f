// Package tracker maintains the active call stack of one thread and turns
// completed frames into per-path self time.
package tracker

import (
	"time"

	"go.uber.org/atomic"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/registry"
)

const defaultStackSize = 64

// Clock returns a monotonic timestamp in nanoseconds.
type Clock func() int64

var epoch = time.Now()

// MonotonicClock reads the runtime's monotonic clock.
func MonotonicClock() int64 {
	return int64(time.Since(epoch))
}

// Thread is the per-thread profiling state: a call stack and the aggregator
// fed by it. Enter and Exit must only be called by the owning thread.
type Thread struct {
	name string
	id   int64

	clock    Clock
	settings *aggregate.Settings
	aggOpts  []aggregate.Option

	depth  int
	ids    []registry.ID
	starts []int64
	child  []int64

	agg atomic.Pointer[aggregate.Aggregator]
}

// Option configures a Thread.
type Option func(*Thread)

// WithClock replaces the timestamp source.
func WithClock(c Clock) Option {
	return func(t *Thread) {
		t.clock = c
	}
}

// WithStackSize sets the initial stack capacity.
func WithStackSize(n int) Option {
	return func(t *Thread) {
		if n > 0 {
			t.ids = make([]registry.ID, n)
			t.starts = make([]int64, n)
			t.child = make([]int64, n)
		}
	}
}

// WithAggregatorOptions passes options to every aggregator the thread creates.
func WithAggregatorOptions(opts ...aggregate.Option) Option {
	return func(t *Thread) {
		t.aggOpts = append(t.aggOpts, opts...)
	}
}

// New creates the state for thread id.
func New(id int64, name string, settings *aggregate.Settings, opts ...Option) *Thread {
	t := &Thread{
		name:     name,
		id:       id,
		clock:    MonotonicClock,
		settings: settings,
		ids:      make([]registry.ID, defaultStackSize),
		starts:   make([]int64, defaultStackSize),
		child:    make([]int64, defaultStackSize),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.agg.Store(aggregate.New(settings, t.aggOpts...))
	return t
}

// Name returns the thread name given at registration.
func (t *Thread) Name() string { return t.name }

// ID returns the thread identifier.
func (t *Thread) ID() int64 { return t.id }

// Depth returns the number of open frames.
func (t *Thread) Depth() int { return t.depth }

// Enter opens a frame for routine id.
func (t *Thread) Enter(id registry.ID) {
	d := t.depth
	if d == len(t.ids) {
		t.growStack()
	}
	t.ids[d] = id
	t.child[d] = 0
	t.starts[d] = t.clock()
	t.depth = d + 1
}

// Exit closes the innermost frame and records its self time under the full
// path leading to it. An Exit without an open frame is absorbed.
func (t *Thread) Exit() {
	d := t.depth - 1
	if d < 0 {
		t.depth = 0
		return
	}

	end := t.clock()
	total := end - t.starts[d]
	self := total - t.child[d]

	if d > 0 {
		t.child[d-1] += total
	}
	if self > 0 {
		t.agg.Load().Add(t.ids[:d+1], self)
	}
	t.depth = d
}

func (t *Thread) growStack() {
	n := len(t.ids) << 1
	if n == 0 {
		n = defaultStackSize
	}
	ids := make([]registry.ID, n)
	starts := make([]int64, n)
	child := make([]int64, n)
	copy(ids, t.ids)
	copy(starts, t.starts)
	copy(child, t.child)
	t.ids, t.starts, t.child = ids, starts, child
}

// Snapshot returns the thread's aggregated records, heaviest first.
func (t *Thread) Snapshot() []aggregate.Record {
	return t.agg.Load().Snapshot()
}

// Paths returns the number of distinct paths recorded.
func (t *Thread) Paths() int {
	return t.agg.Load().Len()
}

// Reset discards the aggregated statistics. The open stack is left alone so
// that frames in flight still close normally.
func (t *Thread) Reset() {
	t.agg.Store(aggregate.New(t.settings, t.aggOpts...))
}
