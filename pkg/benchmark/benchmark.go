// Package benchmark measures the cost of the profiler's enter/exit pair.
package benchmark

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/histogram"
	"github.com/danpilch/pathprof/pkg/registry"
	"github.com/danpilch/pathprof/pkg/tracker"
)

// Options configures a benchmark run.
type Options struct {
	Iterations int // timed batches per scenario
	BatchSize  int // enter/exit pairs per batch
	Warmup     int // untimed batches per scenario
}

// DefaultOptions returns sensible benchmark defaults.
func DefaultOptions() Options {
	return Options{
		Iterations: 200,
		BatchSize:  1000,
		Warmup:     10,
	}
}

// Scenario describes the call shape driven through a thread state.
type Scenario struct {
	Name       string
	Depth      int  // frames open around the measured pair
	Fanout     int  // distinct leaf routines cycled through
	Histograms bool // record per-path histograms
}

// DefaultScenarios covers shallow and deep stacks, with and without
// histograms.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{Name: "flat", Depth: 0, Fanout: 1},
		{Name: "nested-16", Depth: 16, Fanout: 1},
		{Name: "fanout-512", Depth: 2, Fanout: 512},
		{Name: "nested-16+hist", Depth: 16, Fanout: 1, Histograms: true},
	}
}

// Result holds benchmark results for a single scenario. Latencies are per
// enter/exit pair.
type Result struct {
	Scenario string
	Mean     time.Duration
	P50      time.Duration
	P95      time.Duration
	P99      time.Duration
	StdDevNs float64
	Paths    int
	Calls    int64
	// AllocBytes is the heap allocated during the timed batches.
	AllocBytes uint64
}

var (
	bmTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	bmHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	bmDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Run benchmarks each scenario with the given options.
func Run(scenarios []Scenario, opts Options) []Result {
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}

	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		results = append(results, runScenario(sc, opts))
	}
	return results
}

func runScenario(sc Scenario, opts Options) Result {
	names := registry.NewRegistry()
	settings := &aggregate.Settings{HistogramMax: histogram.DefaultMax}
	settings.Histograms.Store(sc.Histograms)
	th := tracker.New(1, sc.Name, settings)

	outer := make([]registry.ID, sc.Depth)
	for i := range outer {
		outer[i] = names.IDFor(fmt.Sprintf("bench.outer%d", i))
	}
	fanout := max(sc.Fanout, 1)
	leaves := make([]registry.ID, fanout)
	for i := range leaves {
		leaves[i] = names.IDFor(fmt.Sprintf("bench.leaf%d", i))
	}

	for _, id := range outer {
		th.Enter(id)
	}
	batch := func() {
		for i := 0; i < opts.BatchSize; i++ {
			th.Enter(leaves[i%fanout])
			th.Exit()
		}
	}

	for i := 0; i < opts.Warmup; i++ {
		batch()
	}

	perPair := histogram.New(int64(time.Second))
	samples := make([]float64, opts.Iterations)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	for i := 0; i < opts.Iterations; i++ {
		start := time.Now()
		batch()
		ns := time.Since(start).Nanoseconds() / int64(opts.BatchSize)
		samples[i] = float64(ns)
		perPair.Record(max(ns, 1))
	}
	runtime.ReadMemStats(&after)

	paths := th.Paths()
	for range outer {
		th.Exit()
	}

	return Result{
		Scenario:   sc.Name,
		Mean:       time.Duration(mean(samples)),
		P50:        time.Duration(perPair.Percentile(50)),
		P95:        time.Duration(perPair.Percentile(95)),
		P99:        time.Duration(perPair.Percentile(99)),
		StdDevNs:   stddev(samples),
		Paths:      paths,
		Calls:      int64(opts.Iterations) * int64(opts.BatchSize),
		AllocBytes: after.TotalAlloc - before.TotalAlloc,
	}
}

// RenderResults outputs styled benchmark results.
func RenderResults(w io.Writer, results []Result) {
	fmt.Fprintln(w, bmTitle.Render("Enter/Exit Overhead"))
	fmt.Fprintln(w, bmDim.Render(strings.Repeat("═", 80)))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s %s %s %s %s\n",
		bmHeader.Render("SCENARIO          "),
		bmHeader.Render("MEAN      "),
		bmHeader.Render("P50       "),
		bmHeader.Render("P99       "),
		bmHeader.Render("CALLS       "),
		bmHeader.Render("ALLOCATED "))
	fmt.Fprintln(w, "  "+bmDim.Render(strings.Repeat("─", 80)))

	for _, r := range results {
		fmt.Fprintf(w, "  %-19s %-11v %-11v %-11v %-13s %s\n",
			r.Scenario, r.Mean, r.P50, r.P99,
			humanize.Comma(r.Calls), humanize.Bytes(r.AllocBytes))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, bmDim.Render("Latencies are per enter/exit pair, averaged over each batch."))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum, sumSq float64
	for _, v := range values {
		sum += v
		sumSq += v * v
	}
	n := float64(len(values))
	m := sum / n
	variance := (sumSq / n) - (m * m)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}
