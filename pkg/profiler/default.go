package profiler

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/danpilch/pathprof/pkg/registry"
)

var (
	defaultMu sync.Mutex
	defaultP  atomic.Pointer[Profiler]
)

// Default returns the process-wide profiler, creating it on first use.
func Default() *Profiler {
	if p := defaultP.Load(); p != nil {
		return p
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if p := defaultP.Load(); p != nil {
		return p
	}
	p := New()
	defaultP.Store(p)
	return p
}

// SetDefault replaces the process-wide profiler and returns the previous one.
func SetDefault(p *Profiler) *Profiler {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultP.Swap(p)
}

// IDFor returns the id of name in the process-wide profiler.
func IDFor(name string) registry.ID {
	return Default().IDFor(name)
}

// Enter opens a frame for id on the calling OS thread. The goroutine must be
// locked to its thread. It does nothing where threads cannot be identified.
func Enter(id registry.ID) {
	if th := Default().Current(); th != nil {
		th.Enter(id)
	}
}

// Exit closes the innermost frame of the calling OS thread.
func Exit() {
	if th := Default().Current(); th != nil {
		th.Exit()
	}
}

// SetDryRun toggles diagnostics on the process-wide profiler.
func SetDryRun(v bool) { Default().SetDryRun(v) }

// SetHistogramEnabled toggles histograms on the process-wide profiler.
func SetHistogramEnabled(v bool) { Default().SetHistogramEnabled(v) }

// DumpCollapsed dumps the process-wide profiler as collapsed stacks.
func DumpCollapsed(dir string) error { return Default().DumpCollapsed(dir) }

// DumpPercentiles dumps the process-wide profiler as percentile CSV.
func DumpPercentiles(dir string) error { return Default().DumpPercentiles(dir) }

// DumpSpeedscope dumps the process-wide profiler as speedscope JSON.
func DumpSpeedscope(dir string) error { return Default().DumpSpeedscope(dir) }

// ResetAll resets the process-wide profiler.
func ResetAll() { Default().ResetAll() }
