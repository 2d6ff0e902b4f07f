package export

import (
	"io"

	"github.com/dolthub/swiss"
	"github.com/google/pprof/profile"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/registry"
)

// WritePprof writes the records as a gzipped pprof profile with two sample
// values: total self nanoseconds and the number of histogram samples (zero
// when histograms are off).
func WritePprof(w io.Writer, names Names, recs []aggregate.Record) error {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "self_time", Unit: "nanoseconds"},
			{Type: "count", Unit: "count"},
		},
		PeriodType: &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
		Period:     1,
	}

	locs := swiss.NewMap[registry.ID, *profile.Location](uint32(len(recs)) + 1)
	location := func(id registry.ID) *profile.Location {
		if loc, ok := locs.Get(id); ok {
			return loc
		}
		fn := &profile.Function{
			ID:         uint64(len(p.Function) + 1),
			Name:       names.NameFor(id),
			SystemName: names.NameFor(id),
		}
		p.Function = append(p.Function, fn)
		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn}},
		}
		p.Location = append(p.Location, loc)
		locs.Put(id, loc)
		return loc
	}

	for _, r := range recs {
		s := &profile.Sample{
			Location: make([]*profile.Location, 0, len(r.Path)),
			Value:    []int64{r.Total, 0},
		}
		// pprof stacks are leaf first.
		for i := len(r.Path) - 1; i >= 0; i-- {
			s.Location = append(s.Location, location(r.Path[i]))
		}
		if r.Hist != nil {
			s.Value[1] = r.Hist.Count()
		}
		p.Sample = append(p.Sample, s)
	}

	return p.Write(w)
}
