package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/registry"
)

type fixture struct {
	names *registry.Registry
	recs  []aggregate.Record
}

func newFixture(t *testing.T, histograms bool) fixture {
	t.Helper()

	names := registry.NewRegistry()
	f := names.IDFor("pkg.A.f")
	g := names.IDFor("pkg.A.g")
	h := names.IDFor("pkg.B.h")

	s := &aggregate.Settings{}
	s.Histograms.Store(histograms)
	agg := aggregate.New(s)
	agg.Add([]registry.ID{f}, 5_000_000)
	agg.Add([]registry.ID{f, g}, 3_000_000)
	agg.Add([]registry.ID{f, g}, 4_000_000)
	agg.Add([]registry.ID{f, g, h}, 1_000)

	return fixture{names: names, recs: agg.Snapshot()}
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "main", Sanitize("main"))
	assert.Equal(t, "pool-1-thread_2", Sanitize("pool-1-thread 2"))
	assert.Equal(t, "a.b_c-d", Sanitize("a.b_c-d"))
	assert.Equal(t, "x___y", Sanitize("x/:\\y"))
	assert.Equal(t, "_", Sanitize("é"))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "collapsed-worker_1-42.txt", FileName("collapsed", "worker 1", 42, "txt"))

	s := Snapshot{ThreadName: "http/server", ThreadID: 7}
	assert.Equal(t, "speedscope-http_server-7.json", s.FileName(FormatSpeedscope))
	assert.Equal(t, "percentiles-http_server-7.csv", s.FileName(FormatPercentiles))
	assert.Equal(t, "pprof-http_server-7.pb.gz", s.FileName(FormatPprof))
	assert.Equal(t, "http/server-7", s.ProfileName())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" Speedscope ")
	require.NoError(t, err)
	assert.Equal(t, FormatSpeedscope, f)

	_, err = ParseFormat("svg")
	assert.Error(t, err)
}

func TestWriteCollapsed(t *testing.T) {
	fx := newFixture(t, false)

	var buf bytes.Buffer
	require.NoError(t, WriteCollapsed(&buf, fx.names, fx.recs))

	assert.Equal(t, "pkg.A.f;pkg.A.g 7000000\npkg.A.f 5000000\npkg.A.f;pkg.A.g;pkg.B.h 1000\n", buf.String())
}

func TestWriteCollapsed_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCollapsed(&buf, registry.NewRegistry(), nil))
	assert.Empty(t, buf.String())
}

func TestWritePercentiles(t *testing.T) {
	fx := newFixture(t, true)

	var buf bytes.Buffer
	require.NoError(t, WritePercentiles(&buf, fx.names, fx.recs, true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "stack,p50_ns,p90_ns,p99_ns,p999_ns,p100_ns,count", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "pkg.A.f;pkg.A.g,"))
	assert.True(t, strings.HasSuffix(lines[1], ",2"))
	assert.Equal(t, "pkg.A.f;pkg.A.g;pkg.B.h,1000,1000,1000,1000,1000,1", lines[3])
}

func TestWritePercentiles_Disabled(t *testing.T) {
	fx := newFixture(t, false)

	var buf bytes.Buffer
	require.NoError(t, WritePercentiles(&buf, fx.names, fx.recs, false))

	assert.Equal(t, "stack,p50_ns,p90_ns,p99_ns,p999_ns,p100_ns,count\nHistograms disabled.\n", buf.String())
}

func TestWritePercentiles_MissingHistogram(t *testing.T) {
	fx := newFixture(t, false)

	var buf bytes.Buffer
	require.NoError(t, WritePercentiles(&buf, fx.names, fx.recs[:1], true))

	assert.Contains(t, buf.String(), "pkg.A.f;pkg.A.g,0,0,0,0,0,0\n")
}

func TestWriteSpeedscope(t *testing.T) {
	fx := newFixture(t, false)

	var buf bytes.Buffer
	require.NoError(t, WriteSpeedscope(&buf, fx.names, "main-1", fx.recs))

	var doc speedscopeFile
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, speedscopeSchema, doc.Schema)
	assert.Equal(t, []frame{{Name: "pkg.A.f"}, {Name: "pkg.A.g"}, {Name: "pkg.B.h"}}, doc.Shared.Frames)
	require.Len(t, doc.Profiles, 1)

	p := doc.Profiles[0]
	assert.Equal(t, "sampled", p.Type)
	assert.Equal(t, "main-1", p.Name)
	assert.Equal(t, "nanoseconds", p.Unit)
	assert.Equal(t, []sample{{0, 1}, {0}, {0, 1, 2}}, p.Samples)
	assert.Equal(t, []int64{7_000_000, 5_000_000, 1_000}, p.Weights)
	assert.Equal(t, int64(12_001_000), p.EndValue)
}

func TestWriteSpeedscope_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSpeedscope(&buf, registry.NewRegistry(), "idle-3", nil))

	out := buf.String()
	assert.True(t, json.Valid(buf.Bytes()))
	assert.Contains(t, out, `"frames": []`)
	assert.Contains(t, out, `"samples": []`)
	assert.Contains(t, out, `"weights": []`)
	assert.NotContains(t, out, "null")
}

func TestWritePprof(t *testing.T) {
	fx := newFixture(t, true)

	var buf bytes.Buffer
	require.NoError(t, WritePprof(&buf, fx.names, fx.recs))

	p, err := profile.Parse(&buf)
	require.NoError(t, err)
	require.NoError(t, p.CheckValid())

	assert.Len(t, p.Function, 3)
	require.Len(t, p.Sample, 3)

	top := p.Sample[0]
	assert.Equal(t, []int64{7_000_000, 2}, top.Value)
	require.Len(t, top.Location, 2)
	assert.Equal(t, "pkg.A.g", top.Location[0].Line[0].Function.Name)
	assert.Equal(t, "pkg.A.f", top.Location[1].Line[0].Function.Name)
}

func TestWrite_Dispatch(t *testing.T) {
	fx := newFixture(t, false)
	s := Snapshot{ThreadName: "main", ThreadID: 1, Records: fx.recs}

	for _, f := range Formats() {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, f, fx.names, s), "format %s", f)
		assert.NotEmpty(t, buf.Bytes(), "format %s", f)
	}

	assert.Error(t, Write(&bytes.Buffer{}, Format("svg"), fx.names, s))
}

func TestReadPercentiles(t *testing.T) {
	fx := newFixture(t, true)

	var buf bytes.Buffer
	require.NoError(t, WritePercentiles(&buf, fx.names, fx.recs, true))

	rows, enabled, err := ReadPercentiles(&buf)
	require.NoError(t, err)
	assert.True(t, enabled)
	require.Len(t, rows, 3)
	assert.Equal(t, "pkg.A.f;pkg.A.g;pkg.B.h", rows[2].Stack)
	assert.Equal(t, [5]int64{1000, 1000, 1000, 1000, 1000}, rows[2].Values)
	assert.Equal(t, int64(2), rows[0].Count)
}

func TestReadPercentiles_Disabled(t *testing.T) {
	rows, enabled, err := ReadPercentiles(strings.NewReader("stack,p50_ns,p90_ns,p99_ns,p999_ns,p100_ns,count\nHistograms disabled.\n"))
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.Empty(t, rows)
}

func TestReadPercentiles_Malformed(t *testing.T) {
	_, _, err := ReadPercentiles(strings.NewReader("a,b\n"))
	assert.Error(t, err)

	_, _, err = ReadPercentiles(strings.NewReader("stack,p50_ns,p90_ns,p99_ns,p999_ns,p100_ns,count\nx,1,2\n"))
	assert.Error(t, err)
}
