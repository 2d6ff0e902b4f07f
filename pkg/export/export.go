// Package export renders aggregated call-path records as collapsed stacks,
// percentile CSV, speedscope JSON and pprof profiles.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/danpilch/pathprof/pkg/aggregate"
	"github.com/danpilch/pathprof/pkg/registry"
)

// Names resolves routine ids to display names.
type Names interface {
	NameFor(id registry.ID) string
}

// Format identifies an output format.
type Format string

const (
	FormatCollapsed   Format = "collapsed"
	FormatPercentiles Format = "percentiles"
	FormatSpeedscope  Format = "speedscope"
	FormatPprof       Format = "pprof"
)

// Formats lists every supported format in dump order.
func Formats() []Format {
	return []Format{FormatCollapsed, FormatPercentiles, FormatSpeedscope, FormatPprof}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Ext returns the file extension used for the format.
func (f Format) Ext() string {
	switch f {
	case FormatCollapsed:
		return "txt"
	case FormatPercentiles:
		return "csv"
	case FormatSpeedscope:
		return "json"
	case FormatPprof:
		return "pb.gz"
	default:
		return "out"
	}
}

// Snapshot is one thread's aggregated state at dump time.
type Snapshot struct {
	ThreadName string
	ThreadID   int64
	Records    []aggregate.Record
	Histograms bool
}

// ProfileName is the display name of a thread profile.
func (s Snapshot) ProfileName() string {
	return s.ThreadName + "-" + strconv.FormatInt(s.ThreadID, 10)
}

// FileName returns the dump file name for the snapshot in format f.
func (s Snapshot) FileName(f Format) string {
	return FileName(string(f), s.ThreadName, s.ThreadID, f.Ext())
}

// Write renders the snapshot in format f.
func Write(w io.Writer, f Format, names Names, s Snapshot) error {
	switch f {
	case FormatCollapsed:
		return WriteCollapsed(w, names, s.Records)
	case FormatPercentiles:
		return WritePercentiles(w, names, s.Records, s.Histograms)
	case FormatSpeedscope:
		return WriteSpeedscope(w, names, s.ProfileName(), s.Records)
	case FormatPprof:
		return WritePprof(w, names, s.Records)
	default:
		return fmt.Errorf("unknown format %q", f)
	}
}

// FileName builds "<kind>-<sanitized thread>-<tid>.<ext>".
func FileName(kind, thread string, tid int64, ext string) string {
	return kind + "-" + Sanitize(thread) + "-" + strconv.FormatInt(tid, 10) + "." + ext
}

// Sanitize maps every character outside [A-Za-z0-9._-] to '_'.
func Sanitize(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-':
			sb.WriteRune(c)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Stack joins the names of path with ';', outermost first.
func Stack(names Names, path []registry.ID) string {
	var sb strings.Builder
	for i, id := range path {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(names.NameFor(id))
	}
	return sb.String()
}
