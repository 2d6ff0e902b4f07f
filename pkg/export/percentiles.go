package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/danpilch/pathprof/pkg/aggregate"
)

// PercentileHeader is the first row of every percentile CSV.
var PercentileHeader = []string{"stack", "p50_ns", "p90_ns", "p99_ns", "p999_ns", "p100_ns", "count"}

// HistogramsDisabled replaces the rows when no histograms were recorded.
const HistogramsDisabled = "Histograms disabled."

// WritePercentiles writes per-path latency percentiles. When histograms are
// disabled only the header and an explanatory line are written.
func WritePercentiles(w io.Writer, names Names, recs []aggregate.Record, histograms bool) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PercentileHeader); err != nil {
		return err
	}

	if !histograms {
		if err := cw.Write([]string{HistogramsDisabled}); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	}

	row := make([]string, len(PercentileHeader))
	for _, r := range recs {
		row[0] = Stack(names, r.Path)
		if h := r.Hist; h != nil {
			row[1] = strconv.FormatInt(h.Percentile(50), 10)
			row[2] = strconv.FormatInt(h.Percentile(90), 10)
			row[3] = strconv.FormatInt(h.Percentile(99), 10)
			row[4] = strconv.FormatInt(h.Percentile(99.9), 10)
			row[5] = strconv.FormatInt(h.Max(), 10)
			row[6] = strconv.FormatInt(h.Count(), 10)
		} else {
			// Path first seen before histograms were switched on.
			for i := 1; i < len(row); i++ {
				row[i] = "0"
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PercentileRow is one parsed row of a percentile CSV.
type PercentileRow struct {
	Stack string
	// Values holds p50, p90, p99, p99.9 and p100 in nanoseconds.
	Values [5]int64
	Count  int64
}

// ReadPercentiles parses a percentile CSV. It reports false when the file
// was written with histograms disabled.
func ReadPercentiles(r io.Reader) ([]PercentileRow, bool, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, false, fmt.Errorf("reading percentile header: %w", err)
	}
	if len(header) != len(PercentileHeader) || header[0] != PercentileHeader[0] {
		return nil, false, fmt.Errorf("unexpected percentile header %q", header)
	}

	var rows []PercentileRow
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(rec) == 1 && rec[0] == HistogramsDisabled {
			return nil, false, nil
		}
		if len(rec) != len(PercentileHeader) {
			return nil, false, fmt.Errorf("line %d: want %d fields, got %d", line, len(PercentileHeader), len(rec))
		}
		row := PercentileRow{Stack: rec[0]}
		for i := range row.Values {
			if row.Values[i], err = strconv.ParseInt(rec[i+1], 10, 64); err != nil {
				return nil, false, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if row.Count, err = strconv.ParseInt(rec[6], 10, 64); err != nil {
			return nil, false, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}
