package profiler

import (
	"context"
	"sync"

	"github.com/danpilch/pathprof/pkg/registry"
	"github.com/danpilch/pathprof/pkg/tracker"
)

// Site is an instrumented call site. Its id is resolved once, on first use.
// Sites whose name is rejected by the configured package filter run their
// function untraced.
type Site struct {
	p    *Profiler
	name string

	once   sync.Once
	id     registry.ID
	traced bool
}

// Site declares a call site for routine name.
func (p *Profiler) Site(name string) *Site {
	return &Site{p: p, name: name}
}

func (s *Site) resolve() {
	s.once.Do(func() {
		s.traced = s.p.instrumented(s.name)
		if s.traced {
			s.id = s.p.IDFor(s.name)
		}
	})
}

// Name returns the routine name.
func (s *Site) Name() string { return s.name }

// ID returns the routine id, or 0 when the site is filtered out.
func (s *Site) ID() registry.ID {
	s.resolve()
	return s.id
}

// Traced reports whether the site passes the package filter.
func (s *Site) Traced() bool {
	s.resolve()
	return s.traced
}

// Run calls fn between Enter and Exit on th. The exit also happens when fn
// panics. A nil thread runs fn untraced.
func (s *Site) Run(th *tracker.Thread, fn func()) {
	s.resolve()
	if th == nil || !s.traced {
		fn()
		return
	}
	th.Enter(s.id)
	defer th.Exit()
	fn()
}

// RunErr is Run for functions returning an error.
func (s *Site) RunErr(th *tracker.Thread, fn func() error) error {
	s.resolve()
	if th == nil || !s.traced {
		return fn()
	}
	th.Enter(s.id)
	defer th.Exit()
	return fn()
}

// RunContext traces fn on the thread carried by ctx.
func (s *Site) RunContext(ctx context.Context, fn func(context.Context) error) error {
	return s.RunErr(ThreadFromContext(ctx), func() error {
		return fn(ctx)
	})
}

// Call traces a function returning a value and an error.
func Call[T any](s *Site, th *tracker.Thread, fn func() (T, error)) (T, error) {
	s.resolve()
	if th == nil || !s.traced {
		return fn()
	}
	th.Enter(s.id)
	defer th.Exit()
	return fn()
}

type threadKey struct{}

// WithThread returns a context carrying th.
func WithThread(ctx context.Context, th *tracker.Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, th)
}

// ThreadFromContext returns the thread carried by ctx, or nil.
func ThreadFromContext(ctx context.Context) *tracker.Thread {
	th, _ := ctx.Value(threadKey{}).(*tracker.Thread)
	return th
}
