// Package output builds hotspot reports from collapsed call-path dumps and
// renders them for terminals, scripts and language models.
package output

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/danpilch/pathprof/pkg/export"
	"github.com/danpilch/pathprof/pkg/flamegraph"
)

// Heat classifies a hotspot by its share of total self time.
type Heat string

const (
	HeatHot  Heat = "hot"
	HeatWarm Heat = "warm"
	HeatCool Heat = "cool"
)

// Share thresholds, in percent.
const (
	hotShare  = 20.0
	warmShare = 5.0
)

func classify(share float64) Heat {
	switch {
	case share >= hotShare:
		return HeatHot
	case share >= warmShare:
		return HeatWarm
	default:
		return HeatCool
	}
}

// Hotspot is one call path ranked by self time.
type Hotspot struct {
	Stack   string  `json:"stack"`
	Routine string  `json:"routine"`
	Depth   int     `json:"depth"`
	SelfNs  int64   `json:"self_ns"`
	Share   float64 `json:"share_pct"`
	Heat    Heat    `json:"heat"`

	// Filled from a percentile dump when one is attached.
	Percentiles []int64 `json:"percentiles_ns,omitempty"`
	Count       int64   `json:"count,omitempty"`
}

// RoutineTotal is the self time of a routine summed over every path ending in it.
type RoutineTotal struct {
	Routine string  `json:"routine"`
	SelfNs  int64   `json:"self_ns"`
	Share   float64 `json:"share_pct"`
	Paths   int     `json:"paths"`
}

// Report is the ranked view of one thread dump.
type Report struct {
	Source   string         `json:"source"`
	TotalNs  int64          `json:"total_ns"`
	Paths    int            `json:"paths"`
	Hotspots []Hotspot      `json:"hotspots"`
	Routines []RoutineTotal `json:"routines"`
}

// BuildReport ranks stacks by self time and keeps the top entries. A top of
// zero or less keeps everything.
func BuildReport(source string, stacks []flamegraph.Stack, top int) Report {
	stacks = lo.Filter(stacks, func(s flamegraph.Stack, _ int) bool {
		return s.Value > 0 && len(s.Frames) > 0
	})
	total := flamegraph.Total(stacks)
	share := func(v int64) float64 {
		if total == 0 {
			return 0
		}
		return float64(v) / float64(total) * 100
	}

	hotspots := lo.Map(stacks, func(s flamegraph.Stack, _ int) Hotspot {
		sh := share(s.Value)
		return Hotspot{
			Stack:   s.Key(),
			Routine: s.Frames[len(s.Frames)-1],
			Depth:   len(s.Frames),
			SelfNs:  s.Value,
			Share:   sh,
			Heat:    classify(sh),
		}
	})
	sort.SliceStable(hotspots, func(i, j int) bool {
		if hotspots[i].SelfNs != hotspots[j].SelfNs {
			return hotspots[i].SelfNs > hotspots[j].SelfNs
		}
		return hotspots[i].Stack < hotspots[j].Stack
	})

	byRoutine := lo.GroupBy(hotspots, func(h Hotspot) string { return h.Routine })
	routines := lo.MapToSlice(byRoutine, func(name string, hs []Hotspot) RoutineTotal {
		self := lo.SumBy(hs, func(h Hotspot) int64 { return h.SelfNs })
		return RoutineTotal{Routine: name, SelfNs: self, Share: share(self), Paths: len(hs)}
	})
	sort.Slice(routines, func(i, j int) bool {
		if routines[i].SelfNs != routines[j].SelfNs {
			return routines[i].SelfNs > routines[j].SelfNs
		}
		return routines[i].Routine < routines[j].Routine
	})

	if top > 0 {
		if len(hotspots) > top {
			hotspots = hotspots[:top]
		}
		if len(routines) > top {
			routines = routines[:top]
		}
	}

	return Report{
		Source:   source,
		TotalNs:  total,
		Paths:    len(stacks),
		Hotspots: hotspots,
		Routines: routines,
	}
}

// AttachPercentiles copies latency percentiles onto matching hotspots and
// returns how many matched.
func (r *Report) AttachPercentiles(rows []export.PercentileRow) int {
	byStack := lo.KeyBy(rows, func(row export.PercentileRow) string { return row.Stack })
	matched := 0
	for i := range r.Hotspots {
		row, ok := byStack[r.Hotspots[i].Stack]
		if !ok || row.Count == 0 {
			continue
		}
		r.Hotspots[i].Percentiles = row.Values[:]
		r.Hotspots[i].Count = row.Count
		matched++
	}
	return matched
}

// HasPercentiles reports whether any hotspot carries percentiles.
func (r Report) HasPercentiles() bool {
	return lo.SomeBy(r.Hotspots, func(h Hotspot) bool { return len(h.Percentiles) > 0 })
}

// shortStack trims a long stack to its last frames for narrow displays.
func shortStack(stack string, frames int) string {
	parts := strings.Split(stack, ";")
	if len(parts) <= frames {
		return stack
	}
	return "…;" + strings.Join(parts[len(parts)-frames:], ";")
}
