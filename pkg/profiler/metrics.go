package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	collisions   prometheus.Counter
	resets       prometheus.Counter
	dumps        *prometheus.CounterVec
	dumpFailures *prometheus.CounterVec
	dumpFiles    *prometheus.CounterVec
	dumpDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer, p *Profiler) *metrics {
	f := promauto.With(reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pathprof_threads",
		Help: "Number of registered thread states.",
	}, func() float64 {
		return float64(p.threads.Size())
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pathprof_routines",
		Help: "Number of distinct routine names registered.",
	}, func() float64 {
		return float64(p.ids.Len())
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pathprof_histograms_enabled",
		Help: "Whether per-path latency histograms are recorded.",
	}, func() float64 {
		if p.settings.Histograms.Load() {
			return 1
		}
		return 0
	})

	return &metrics{
		collisions: f.NewCounter(prometheus.CounterOpts{
			Name: "pathprof_hash_collisions_total",
			Help: "Distinct call paths found sharing a 64-bit hash.",
		}),
		resets: f.NewCounter(prometheus.CounterOpts{
			Name: "pathprof_resets_total",
			Help: "Number of statistics resets.",
		}),
		dumps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathprof_dumps_total",
			Help: "Completed dumps by format.",
		}, []string{"format"}),
		dumpFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathprof_dump_failures_total",
			Help: "Dumps that failed to write at least one file, by format.",
		}, []string{"format"}),
		dumpFiles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pathprof_dump_files_total",
			Help: "Per-thread files written, by format.",
		}, []string{"format"}),
		dumpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pathprof_dump_duration_seconds",
			Help:    "Time spent writing a dump.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"format"}),
	}
}
