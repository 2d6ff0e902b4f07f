package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilch/pathprof/pkg/registry"
)

func ids(v ...uint32) []registry.ID {
	out := make([]registry.ID, len(v))
	for i, x := range v {
		out[i] = registry.ID(x)
	}
	return out
}

func TestHashPath_OrderSensitive(t *testing.T) {
	assert.NotEqual(t, HashPath(ids(1, 2)), HashPath(ids(2, 1)))
	assert.NotEqual(t, HashPath(ids(1)), HashPath(ids(1, 1)))
	assert.Equal(t, HashPath(ids(3, 4, 5)), HashPath(ids(3, 4, 5)))
	assert.Equal(t, uint64(fnvOffset), HashPath(nil))
}

func TestAggregator_AccumulatesSamePath(t *testing.T) {
	a := New(nil)

	a.Add(ids(1, 2), 100)
	a.Add(ids(1, 2), 50)
	a.Add(ids(1), 10)

	recs := a.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, ids(1, 2), recs[0].Path)
	assert.Equal(t, int64(150), recs[0].Total)
	assert.Equal(t, ids(1), recs[1].Path)
	assert.Equal(t, int64(10), recs[1].Total)
	assert.Nil(t, recs[0].Hist)
}

func TestAggregator_IgnoresNonPositive(t *testing.T) {
	a := New(nil)

	a.Add(ids(1), 0)
	a.Add(ids(1), -3)

	assert.Equal(t, 0, a.Len())
	assert.Empty(t, a.Snapshot())
}

func TestAggregator_CopiesPath(t *testing.T) {
	a := New(nil)
	path := ids(1, 2, 3)

	a.Add(path, 5)
	path[2] = 9

	recs := a.Snapshot()
	require.Len(t, recs, 1)
	assert.Equal(t, ids(1, 2, 3), recs[0].Path)
}

func TestAggregator_HistogramCountsPositiveExits(t *testing.T) {
	s := &Settings{}
	s.Histograms.Store(true)
	a := New(s)

	for i := 1; i <= 10; i++ {
		a.Add(ids(7, 8), int64(i*1000))
	}
	a.Add(ids(7, 8), 0)

	recs := a.Snapshot()
	require.Len(t, recs, 1)
	require.NotNil(t, recs[0].Hist)
	assert.Equal(t, int64(10), recs[0].Hist.Count())
	assert.Equal(t, int64(55000), recs[0].Total)
}

func TestAggregator_GrowsAndKeepsRecords(t *testing.T) {
	a := New(nil)

	n := maxLoadFactor*initialBuckets*2 + 17
	for i := 1; i <= n; i++ {
		a.Add(ids(1, uint32(i)), int64(i))
	}
	for i := 1; i <= n; i++ {
		a.Add(ids(1, uint32(i)), 1)
	}

	assert.Equal(t, n, a.Len())
	assert.Greater(t, len(a.buckets), initialBuckets)

	recs := a.Snapshot()
	require.Len(t, recs, n)
	assert.Equal(t, ids(1, uint32(n)), recs[0].Path)
	assert.Equal(t, int64(n+1), recs[0].Total)
}

func TestAggregator_TrueCollisionKeepsRecordsSeparate(t *testing.T) {
	var reports []Collision
	s := &Settings{OnCollision: func(c Collision) { reports = append(reports, c) }}
	s.Diagnostics.Store(true)

	constant := func([]registry.ID) uint64 { return 42 }
	a := New(s, WithHasher(constant))

	a.Add(ids(1), 10)
	a.Add(ids(2), 20)
	a.Add(ids(2), 20)
	a.Add(ids(1), 10)

	recs := a.Snapshot()
	require.Len(t, recs, 2)
	assert.Equal(t, ids(2), recs[0].Path)
	assert.Equal(t, int64(40), recs[0].Total)
	assert.Equal(t, ids(1), recs[1].Path)
	assert.Equal(t, int64(20), recs[1].Total)

	// Each chain entry reports at most once.
	require.Len(t, reports, 2)
	assert.Equal(t, uint64(42), reports[0].Hash)
	assert.Equal(t, ids(1), reports[0].Existing)
	assert.Equal(t, ids(2), reports[0].Incoming)
	assert.Equal(t, ids(2), reports[1].Existing)
	assert.Equal(t, ids(1), reports[1].Incoming)
}

func TestAggregator_CollisionSilentWithoutDiagnostics(t *testing.T) {
	called := false
	s := &Settings{OnCollision: func(Collision) { called = true }}
	a := New(s, WithHasher(func([]registry.ID) uint64 { return 1 }))

	a.Add(ids(1), 1)
	a.Add(ids(2), 1)

	assert.False(t, called)
	assert.Equal(t, 2, a.Len())
}

func TestAggregator_SnapshotDeterministic(t *testing.T) {
	a := New(nil)
	a.Add(ids(3), 10)
	a.Add(ids(1, 2), 10)
	a.Add(ids(1), 10)
	a.Add(ids(2), 30)

	first := a.Snapshot()
	second := a.Snapshot()
	assert.Equal(t, first, second)

	require.Len(t, first, 4)
	assert.Equal(t, ids(2), first[0].Path)
	assert.Equal(t, ids(1), first[1].Path)
	assert.Equal(t, ids(1, 2), first[2].Path)
	assert.Equal(t, ids(3), first[3].Path)
}

func TestAggregator_ResetDiscardsPaths(t *testing.T) {
	a := New(nil)
	for i := 1; i <= 5000; i++ {
		a.Add(ids(uint32(i)), 1)
	}

	a.Reset()

	assert.Equal(t, 0, a.Len())
	assert.Empty(t, a.Snapshot())
	assert.Len(t, a.buckets, initialBuckets)

	a.Add(ids(1), 3)
	assert.Equal(t, 1, a.Len())
}
