// Package profiler ties the engine together: it owns the routine registry,
// the per-thread states and the global toggles, and dumps every thread's
// aggregated call paths on demand.
package profiler

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/atomic"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/config"
	"github.com/danpilch/pathprof/pkg/export"
	"github.com/danpilch/pathprof/pkg/histogram"
	"github.com/danpilch/pathprof/pkg/registry"
	"github.com/danpilch/pathprof/pkg/tracker"
)

// syntheticBase keeps ids handed out by Attach clear of kernel thread ids.
const syntheticBase = int64(1) << 32

// Profiler is one profiling session.
type Profiler struct {
	ids      *registry.Registry
	threads  *xsync.MapOf[int64, *tracker.Thread]
	settings *aggregate.Settings

	trackerOpts []tracker.Option
	filter      func(name string) bool
	formats     []export.Format

	fs      afero.Fs
	logger  *logrus.Logger
	reg     *prometheus.Registry
	metrics *metrics

	nextSynthetic atomic.Int64
	unsupported   sync.Once
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithLogger sets the logger used for diagnostics and dump progress.
func WithLogger(l *logrus.Logger) Option {
	return func(p *Profiler) {
		p.logger = l
	}
}

// WithFs sets the filesystem dumps are written to.
func WithFs(fs afero.Fs) Option {
	return func(p *Profiler) {
		p.fs = fs
	}
}

// WithRegistry sets the prometheus registry the profiler's metrics are
// registered with.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(p *Profiler) {
		p.reg = reg
	}
}

// WithHistogramMax sets the clamp ceiling of new histograms, in nanoseconds.
func WithHistogramMax(ns int64) Option {
	return func(p *Profiler) {
		p.settings.HistogramMax = ns
	}
}

// WithTrackerOptions passes options to every thread state created.
func WithTrackerOptions(opts ...tracker.Option) Option {
	return func(p *Profiler) {
		p.trackerOpts = append(p.trackerOpts, opts...)
	}
}

// WithConfig applies a configuration: toggles, histogram ceiling, formats and
// the package prefix filter used by Sites.
func WithConfig(cfg config.Config) Option {
	return func(p *Profiler) {
		p.settings.Histograms.Store(cfg.Histograms)
		p.settings.Diagnostics.Store(cfg.DryRun)
		if cfg.HistogramMax > 0 {
			p.settings.HistogramMax = int64(cfg.HistogramMax)
		}
		if formats, err := cfg.ExportFormats(); err == nil && len(formats) > 0 {
			p.formats = formats
		}
		p.filter = cfg.Instrumented
	}
}

// New creates a profiler. Without options it traces every site, keeps
// histograms and diagnostics off and writes dumps to the OS filesystem.
func New(opts ...Option) *Profiler {
	p := &Profiler{
		ids:      registry.NewRegistry(),
		threads:  xsync.NewMapOf[int64, *tracker.Thread](),
		settings: &aggregate.Settings{HistogramMax: histogram.DefaultMax},
		formats:  export.Formats(),
	}
	p.nextSynthetic.Store(syntheticBase)
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logrus.New()
		p.logger.SetLevel(logrus.WarnLevel)
	}
	if p.fs == nil {
		p.fs = afero.NewOsFs()
	}
	if p.reg == nil {
		p.reg = prometheus.NewRegistry()
	}
	p.metrics = newMetrics(p.reg, p)
	p.settings.OnCollision = p.reportCollision
	return p
}

// IDFor returns the stable id of a routine name.
func (p *Profiler) IDFor(name string) registry.ID {
	return p.ids.IDFor(name)
}

// NameFor resolves an id; unknown ids yield a placeholder.
func (p *Profiler) NameFor(id registry.ID) string {
	return p.ids.NameFor(id)
}

// Names exposes the routine registry.
func (p *Profiler) Names() *registry.Registry {
	return p.ids
}

// SetDryRun toggles side-channel diagnostics such as collision reports.
func (p *Profiler) SetDryRun(v bool) {
	p.settings.Diagnostics.Store(v)
}

// DryRun reports whether diagnostics are enabled.
func (p *Profiler) DryRun() bool {
	return p.settings.Diagnostics.Load()
}

// SetHistogramEnabled toggles per-path latency histograms.
func (p *Profiler) SetHistogramEnabled(v bool) {
	p.settings.Histograms.Store(v)
}

// HistogramEnabled reports whether histograms are being recorded.
func (p *Profiler) HistogramEnabled() bool {
	return p.settings.Histograms.Load()
}

// Thread returns the state registered for tid, creating it on first use.
// Concurrent first lookups of the same tid observe a single state.
func (p *Profiler) Thread(tid int64, name string) *tracker.Thread {
	if th, ok := p.threads.Load(tid); ok {
		return th
	}
	created := false
	th, _ := p.threads.LoadOrCompute(tid, func() *tracker.Thread {
		created = true
		return tracker.New(tid, name, p.settings, p.trackerOpts...)
	})
	if created {
		p.logger.WithFields(logrus.Fields{
			"thread": name,
			"tid":    tid,
		}).Debug("Registered thread")
	}
	return th
}

// Attach registers a new thread state under a synthetic id. The caller owns
// the returned state and must not share it between goroutines running
// concurrently.
func (p *Profiler) Attach(name string) *tracker.Thread {
	return p.Thread(p.nextSynthetic.Inc(), name)
}

// Current returns the state of the calling OS thread, or nil when the
// platform cannot identify threads. The calling goroutine must be locked to
// its thread with runtime.LockOSThread for the result to be meaningful.
func (p *Profiler) Current() *tracker.Thread {
	tid, ok := currentThreadID()
	if !ok {
		p.unsupported.Do(func() {
			p.logger.Warn("OS thread identity unavailable on this platform; use Attach")
		})
		return nil
	}
	if th, ok := p.threads.Load(tid); ok {
		return th
	}
	return p.Thread(tid, threadName(tid))
}

// Threads returns every registered thread state ordered by id.
func (p *Profiler) Threads() []*tracker.Thread {
	out := make([]*tracker.Thread, 0, p.threads.Size())
	p.threads.Range(func(_ int64, th *tracker.Thread) bool {
		out = append(out, th)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID() < out[j].ID()
	})
	return out
}

// ResetAll discards every thread's aggregated statistics. Threads stay
// registered; paths seen before the reset are forgotten.
func (p *Profiler) ResetAll() {
	n := 0
	p.threads.Range(func(_ int64, th *tracker.Thread) bool {
		th.Reset()
		n++
		return true
	})
	p.metrics.resets.Inc()
	p.logger.WithField("threads", n).Info("Reset profiling statistics")
}

// Registry returns the prometheus registry holding the profiler's metrics.
func (p *Profiler) Registry() *prometheus.Registry {
	return p.reg
}

// Logger returns the profiler's logger.
func (p *Profiler) Logger() *logrus.Logger {
	return p.logger
}

func (p *Profiler) reportCollision(c aggregate.Collision) {
	p.metrics.collisions.Inc()
	p.logger.WithFields(logrus.Fields{
		"hash":     c.Hash,
		"existing": export.Stack(p.ids, c.Existing),
		"incoming": export.Stack(p.ids, c.Incoming),
	}).Warn("Call path hash collision")
}

func (p *Profiler) instrumented(name string) bool {
	if p.filter == nil {
		return true
	}
	return p.filter(name)
}
