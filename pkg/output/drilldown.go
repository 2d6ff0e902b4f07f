package output

import "fmt"

// Suggestion represents a diagnostic next-step.
type Suggestion struct {
	Command string
	Reason  string
}

// dominantShare marks a single path as dominating the profile.
const dominantShare = 50.0

// Suggest returns follow-up commands for a report.
func Suggest(r Report) []Suggestion {
	var out []Suggestion
	if len(r.Hotspots) == 0 {
		return []Suggestion{{
			Command: "pathprof demo --out ./pathprof-out",
			Reason:  "No paths recorded; check that instrumented sites ran",
		}}
	}

	top := r.Hotspots[0]
	if top.Share >= dominantShare {
		out = append(out, Suggestion{
			Command: fmt.Sprintf("pathprof flamegraph %s -o hot.svg", r.Source),
			Reason:  fmt.Sprintf("`%s` holds %.0f%% of self time; inspect its callers", top.Routine, top.Share),
		})
	}

	for _, rt := range r.Routines {
		if rt.Paths > 1 && rt.Share >= hotShare {
			out = append(out, Suggestion{
				Command: fmt.Sprintf("pathprof report %s --format tsv | grep '%s'", r.Source, rt.Routine),
				Reason:  fmt.Sprintf("`%s` is hot across %d call paths", rt.Routine, rt.Paths),
			})
		}
	}

	if !r.HasPercentiles() {
		out = append(out, Suggestion{
			Command: "pathprof report <collapsed> --percentiles <csv>",
			Reason:  "Enable histograms and attach a percentile dump to see latency spread",
		})
	}

	out = append(out, Suggestion{
		Command: fmt.Sprintf("pathprof baseline save current %s", r.Source),
		Reason:  "Save a baseline to detect regressions later",
	})
	return out
}
