package export

import (
	"io"

	"github.com/dolthub/swiss"
	jsoniter "github.com/json-iterator/go"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/registry"
)

// Description of Speedscope JSON
// Format definition: https://github.com/jlfwong/speedscope/blob/main/src/lib/file-format-spec.ts

const (
	speedscopeSchema = "https://www.speedscope.app/file-format-schema.json"
	profileSampled   = "sampled"
	unitNanoseconds  = "nanoseconds"
	exporterName     = "pathprof"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type speedscopeFile struct {
	Schema             string           `json:"$schema"`
	Shared             shared           `json:"shared"`
	Profiles           []sampledProfile `json:"profiles"`
	Name               string           `json:"name"`
	ActiveProfileIndex int              `json:"activeProfileIndex"`
	Exporter           string           `json:"exporter"`
}

type shared struct {
	Frames []frame `json:"frames"`
}

type frame struct {
	Name string `json:"name"`
}

type sampledProfile struct {
	Type       string   `json:"type"`
	Name       string   `json:"name"`
	Unit       string   `json:"unit"`
	StartValue int64    `json:"startValue"`
	EndValue   int64    `json:"endValue"`
	Samples    []sample `json:"samples"`
	Weights    []int64  `json:"weights"`
}

// Indexes into Frames
type sample []int

// WriteSpeedscope writes a single sampled profile: one sample per record with
// its total self time as weight, frames shared and deduplicated by id.
func WriteSpeedscope(w io.Writer, names Names, profileName string, recs []aggregate.Record) error {
	index := swiss.NewMap[registry.ID, int](uint32(len(recs)) + 1)
	frames := make([]frame, 0)
	samples := make([]sample, 0, len(recs))
	weights := make([]int64, 0, len(recs))

	var end int64
	for _, r := range recs {
		s := make(sample, len(r.Path))
		for i, id := range r.Path {
			idx, ok := index.Get(id)
			if !ok {
				idx = len(frames)
				index.Put(id, idx)
				frames = append(frames, frame{Name: names.NameFor(id)})
			}
			s[i] = idx
		}
		samples = append(samples, s)
		weights = append(weights, r.Total)
		end += r.Total
	}

	doc := speedscopeFile{
		Schema: speedscopeSchema,
		Shared: shared{Frames: frames},
		Profiles: []sampledProfile{{
			Type:     profileSampled,
			Name:     profileName,
			Unit:     unitNanoseconds,
			EndValue: end,
			Samples:  samples,
			Weights:  weights,
		}},
		Name:     profileName,
		Exporter: exporterName,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
