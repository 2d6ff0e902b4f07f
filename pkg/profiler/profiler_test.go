package profiler

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/config"
	"github.com/danpilch/pathprof/pkg/export"
	"github.com/danpilch/pathprof/pkg/registry"
	"github.com/danpilch/pathprof/pkg/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestProfiler(t *testing.T, opts ...Option) (*Profiler, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	logger, _ := logtest.NewNullLogger()
	return New(append([]Option{WithFs(fs), WithLogger(logger)}, opts...)...), fs
}

func readCollapsed(t *testing.T, fs afero.Fs, path string) map[string]int64 {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	out := make(map[string]int64)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		stack, weight, ok := strings.Cut(sc.Text(), " ")
		require.True(t, ok, "malformed line %q", sc.Text())
		v, err := strconv.ParseInt(weight, 10, 64)
		require.NoError(t, err)
		out[stack] = v
	}
	return out
}

func TestProfiler_NestedScenario(t *testing.T) {
	p, fs := newTestProfiler(t)
	th := p.Attach("worker")

	th.Enter(p.IDFor("pkg.A.f"))
	time.Sleep(10 * time.Millisecond)
	th.Enter(p.IDFor("pkg.A.g"))
	time.Sleep(5 * time.Millisecond)
	th.Exit()
	th.Exit()

	require.NoError(t, p.DumpCollapsed("/out"))

	name := export.FileName("collapsed", "worker", th.ID(), "txt")
	got := readCollapsed(t, fs, filepath.Join("/out", name))
	require.Len(t, got, 2)

	g := got["pkg.A.f;pkg.A.g"]
	f := got["pkg.A.f"]
	// Sleep never returns early; generous upper bounds absorb scheduler noise.
	assert.GreaterOrEqual(t, g, int64(5*time.Millisecond))
	assert.Less(t, g, int64(200*time.Millisecond))
	assert.GreaterOrEqual(t, f, int64(10*time.Millisecond))
	assert.Less(t, f, int64(200*time.Millisecond))
}

func TestProfiler_DumpsAreDeterministic(t *testing.T) {
	p, fs := newTestProfiler(t)
	p.SetHistogramEnabled(true)

	for i := 0; i < 3; i++ {
		th := p.Attach(fmt.Sprintf("worker-%d", i))
		for j := 0; j < 50; j++ {
			th.Enter(p.IDFor("root"))
			th.Enter(p.IDFor(fmt.Sprintf("child%d", j%4)))
			th.Exit()
			th.Exit()
		}
	}

	for _, f := range []export.Format{export.FormatCollapsed, export.FormatPercentiles, export.FormatSpeedscope, export.FormatPprof} {
		require.NoError(t, p.Dump("/a", f))
		require.NoError(t, p.Dump("/b", f))
	}

	entries, err := afero.ReadDir(fs, "/a")
	require.NoError(t, err)
	require.Len(t, entries, 12)
	for _, e := range entries {
		a, err := afero.ReadFile(fs, filepath.Join("/a", e.Name()))
		require.NoError(t, err)
		b, err := afero.ReadFile(fs, filepath.Join("/b", e.Name()))
		require.NoError(t, err)
		assert.Equal(t, a, b, "dump %s differs", e.Name())
	}
}

func TestProfiler_DumpNamesResolveThroughRegistry(t *testing.T) {
	p, fs := newTestProfiler(t)
	th := p.Attach("main")

	names := []string{"svc.Handler.ServeHTTP", "svc.Store.Get", "svc.Cache.Lookup"}
	for _, n := range names {
		th.Enter(p.IDFor(n))
		time.Sleep(time.Millisecond)
	}
	for range names {
		th.Exit()
	}

	require.NoError(t, p.DumpCollapsed("/out"))
	got := readCollapsed(t, fs, filepath.Join("/out", export.FileName("collapsed", "main", th.ID(), "txt")))

	require.Len(t, got, 3)
	for stack := range got {
		for _, frame := range strings.Split(stack, ";") {
			id, ok := p.Names().Lookup(frame)
			require.True(t, ok, "frame %q not registered", frame)
			assert.Equal(t, frame, p.NameFor(id))
		}
	}
	assert.Contains(t, got, strings.Join(names, ";"))
}

func TestProfiler_ResetAllDiscardsPaths(t *testing.T) {
	p, fs := newTestProfiler(t)
	th := p.Attach("main")
	th.Enter(p.IDFor("a"))
	time.Sleep(time.Millisecond)
	th.Exit()

	p.ResetAll()
	require.NoError(t, p.DumpCollapsed("/out"))

	data, err := afero.ReadFile(fs, filepath.Join("/out", export.FileName("collapsed", "main", th.ID(), "txt")))
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Len(t, p.Threads(), 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.resets))
}

func TestProfiler_ConcurrentThreadsStayIsolated(t *testing.T) {
	p, _ := newTestProfiler(t)
	p.SetHistogramEnabled(true)

	const workers = 8
	const iterations = 500

	threads := make([]*tracker.Thread, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			th := p.Attach(fmt.Sprintf("worker-%d", w))
			threads[w] = th
			outer := p.IDFor(fmt.Sprintf("w%d.outer", w))
			inner := p.IDFor(fmt.Sprintf("w%d.inner", w))
			for i := 0; i < iterations; i++ {
				th.Enter(outer)
				th.Enter(inner)
				spin(2000)
				th.Exit()
				th.Exit()
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, p.Threads(), workers)
	for w, th := range threads {
		prefix := fmt.Sprintf("w%d.", w)
		for _, r := range th.Snapshot() {
			for _, id := range r.Path {
				assert.True(t, strings.HasPrefix(p.NameFor(id), prefix), "thread %d saw %s", w, p.NameFor(id))
			}
			require.NotNil(t, r.Hist)
			assert.LessOrEqual(t, r.Hist.Count(), int64(iterations))
		}
		inner := th.Snapshot()
		var innerCount int64
		for _, r := range inner {
			if len(r.Path) == 2 {
				innerCount = r.Hist.Count()
			}
		}
		assert.Equal(t, int64(iterations), innerCount, "thread %d", w)
	}
}

func spin(n int) int {
	x := 0
	for i := 0; i < n; i++ {
		x += i * i
	}
	return x
}

func TestProfiler_PercentilesDisabled(t *testing.T) {
	p, fs := newTestProfiler(t)
	th := p.Attach("main")
	th.Enter(p.IDFor("a"))
	th.Exit()

	require.NoError(t, p.DumpPercentiles("/out"))

	data, err := afero.ReadFile(fs, filepath.Join("/out", export.FileName("percentiles", "main", th.ID(), "csv")))
	require.NoError(t, err)
	assert.Equal(t, "stack,p50_ns,p90_ns,p99_ns,p999_ns,p100_ns,count\nHistograms disabled.\n", string(data))
}

func TestProfiler_PercentilesMonotonic(t *testing.T) {
	p, fs := newTestProfiler(t)
	p.SetHistogramEnabled(true)
	th := p.Attach("main")
	id := p.IDFor("work")
	for i := 0; i < 200; i++ {
		th.Enter(id)
		spin(i * 50)
		th.Exit()
	}

	require.NoError(t, p.DumpPercentiles("/out"))
	data, err := afero.ReadFile(fs, filepath.Join("/out", export.FileName("percentiles", "main", th.ID(), "csv")))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	fields := strings.Split(lines[1], ",")
	require.Len(t, fields, 7)
	var prev int64
	for _, f := range fields[1:6] {
		v, err := strconv.ParseInt(f, 10, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
	assert.Equal(t, "200", fields[6])
}

func TestProfiler_DumpEmpty(t *testing.T) {
	p, fs := newTestProfiler(t)

	require.NoError(t, p.DumpAll("/out"))

	exists, err := afero.DirExists(fs, "/out")
	require.NoError(t, err)
	assert.True(t, exists)
	entries, err := afero.ReadDir(fs, "/out")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProfiler_DumpPropagatesIOErrors(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	p := New(WithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())), WithLogger(logger))
	p.Attach("main")

	err := p.DumpSpeedscope("/out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot create dump directory")
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.dumpFailures.WithLabelValues("speedscope")))
	assert.Empty(t, hook.AllEntries())
}

func TestProfiler_DumpFileErrorsAreCombined(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	base := afero.NewMemMapFs()
	p := New(WithFs(&failingCreateFs{Fs: base}), WithLogger(logger))
	p.Attach("one")
	p.Attach("two")

	err := p.DumpCollapsed("/out")
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "cannot create"))
}

type failingCreateFs struct {
	afero.Fs
}

func (f *failingCreateFs) Create(name string) (afero.File, error) {
	return nil, fmt.Errorf("disk full")
}

func TestProfiler_CollisionDiagnostics(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	constant := func([]registry.ID) uint64 { return 7 }
	p := New(
		WithFs(afero.NewMemMapFs()),
		WithLogger(logger),
		WithTrackerOptions(tracker.WithAggregatorOptions(aggregate.WithHasher(constant))),
	)
	p.SetDryRun(true)

	th := p.Attach("main")
	for _, name := range []string{"a", "b", "b"} {
		th.Enter(p.IDFor(name))
		spin(1000)
		th.Exit()
	}

	assert.Equal(t, 2, th.Paths())
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.collisions))
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "a", entry.Data["existing"])
	assert.Equal(t, "b", entry.Data["incoming"])
}

func TestProfiler_ThreadLookupIsIdempotent(t *testing.T) {
	p, _ := newTestProfiler(t)

	a := p.Thread(99, "main")
	b := p.Thread(99, "other-name")

	assert.Same(t, a, b)
	assert.Equal(t, "main", b.Name())

	c := p.Attach("x")
	d := p.Attach("y")
	assert.Greater(t, c.ID(), syntheticBase)
	assert.Equal(t, c.ID()+1, d.ID())

	ths := p.Threads()
	require.Len(t, ths, 3)
	assert.Equal(t, int64(99), ths[0].ID())
}

func TestProfiler_WithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Packages = []string{"svc."}
	cfg.Histograms = true
	cfg.DryRun = true
	cfg.Formats = []string{"collapsed"}
	cfg.HistogramMax = time.Second

	p, fs := newTestProfiler(t, WithConfig(cfg))

	assert.True(t, p.HistogramEnabled())
	assert.True(t, p.DryRun())
	assert.Equal(t, int64(time.Second), p.settings.HistogramMax)

	p.Attach("main")
	require.NoError(t, p.DumpAll("/out"))
	entries, err := afero.ReadDir(fs, "/out")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "collapsed-"))
}

func TestDefault_PackageLevelCalls(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("OS thread identity is only available on linux")
	}

	fs := afero.NewMemMapFs()
	logger, _ := logtest.NewNullLogger()
	prev := SetDefault(New(WithFs(fs), WithLogger(logger)))
	t.Cleanup(func() { SetDefault(prev) })

	done := make(chan int64)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		Enter(IDFor("outer"))
		Enter(IDFor("inner"))
		time.Sleep(time.Millisecond)
		Exit()
		Exit()
		Exit()

		th := Default().Current()
		assert.Equal(t, 0, th.Depth())
		done <- th.ID()
	}()
	tid := <-done

	require.NoError(t, DumpCollapsed("/out"))
	ths := Default().Threads()
	require.Len(t, ths, 1)
	got := readCollapsed(t, fs, filepath.Join("/out", export.FileName("collapsed", ths[0].Name(), tid, "txt")))
	assert.Contains(t, got, "outer;inner")

	ResetAll()
	assert.Zero(t, ths[0].Paths())
}
