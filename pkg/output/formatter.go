package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Format represents the output format type.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatTSV      Format = "tsv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatTSV, FormatMarkdown:
		return f, nil
	case "md", "ai":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json, tsv or markdown)", s)
	}
}

// Formatter handles output formatting.
type Formatter struct {
	format Format
	writer io.Writer
	frames int
}

// NewFormatter creates a new formatter.
func NewFormatter(format Format, writer io.Writer) *Formatter {
	return &Formatter{
		format: format,
		writer: writer,
		frames: 4,
	}
}

// SetStackFrames limits how many trailing frames the table shows per stack.
// Zero shows whole stacks.
func (f *Formatter) SetStackFrames(n int) {
	f.frames = n
}

// Render outputs the report in the configured format.
func (f *Formatter) Render(r Report) error {
	switch f.format {
	case FormatJSON:
		return f.renderJSON(r)
	case FormatTSV:
		return f.renderTSV(r)
	case FormatMarkdown:
		return f.renderMarkdown(r)
	default:
		return f.renderTable(r)
	}
}

func (f *Formatter) renderJSON(r Report) error {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	heatStyles = map[Heat]lipgloss.Style{
		HeatHot:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),  // Red
		HeatWarm: lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true), // Yellow
		HeatCool: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),            // Green
	}
)

func (f *Formatter) renderTable(r Report) error {
	fmt.Fprintln(f.writer, titleStyle.Render("Call Path Hotspots"))
	fmt.Fprintf(f.writer, "%s\n", dimStyle.Render(fmt.Sprintf("%s: %s self time over %s paths",
		r.Source, time.Duration(r.TotalNs), humanize.Comma(int64(r.Paths)))))
	fmt.Fprintln(f.writer, strings.Repeat("═", 60))
	fmt.Fprintln(f.writer)

	if len(r.Hotspots) == 0 {
		fmt.Fprintln(f.writer, dimStyle.Render("No call paths recorded."))
		return nil
	}

	withLatency := r.HasPercentiles()
	headers := []string{"#", "STACK", "SELF", "SHARE", "HEAT"}
	if withLatency {
		headers = append(headers, "CALLS", "P50", "P99", "SHAPE")
	}

	rows := make([][]string, len(r.Hotspots))
	for i, h := range r.Hotspots {
		stack := h.Stack
		if f.frames > 0 {
			stack = shortStack(stack, f.frames)
		}
		row := []string{
			fmt.Sprintf("%d", i+1),
			stack,
			time.Duration(h.SelfNs).String(),
			fmt.Sprintf("%.1f%%", h.Share),
			heatStyles[h.Heat].Render(strings.ToUpper(string(h.Heat))),
		}
		if withLatency {
			if len(h.Percentiles) > 0 {
				row = append(row,
					humanize.Comma(h.Count),
					time.Duration(h.Percentiles[0]).String(),
					time.Duration(h.Percentiles[2]).String(),
					Sparkline(toFloats(h.Percentiles)),
				)
			} else {
				row = append(row, "-", "-", "-", "")
			}
		}
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	fmt.Fprintln(f.writer, t)
	fmt.Fprintln(f.writer)
	f.renderRoutines(r)
	return nil
}

func (f *Formatter) renderRoutines(r Report) {
	if len(r.Routines) == 0 {
		return
	}
	parts := make([]string, 0, len(r.Routines))
	for _, rt := range r.Routines {
		parts = append(parts, heatStyles[classify(rt.Share)].Render(
			fmt.Sprintf("%s %.1f%%", rt.Routine, rt.Share)))
	}
	fmt.Fprintf(f.writer, "By routine: %s\n", strings.Join(parts, ", "))
}

// renderMarkdown outputs the report in an LLM-friendly format.
func (f *Formatter) renderMarkdown(r Report) error {
	hot := 0
	for _, h := range r.Hotspots {
		if h.Heat == HeatHot {
			hot++
		}
	}

	fmt.Fprintf(f.writer, "# Call Path Profile: %s\n\n", r.Source)
	fmt.Fprintf(f.writer, "**Total self time:** %s across %d paths. **Hot paths:** %d\n\n",
		time.Duration(r.TotalNs), r.Paths, hot)

	if len(r.Hotspots) == 0 {
		fmt.Fprintln(f.writer, "No call paths recorded.")
		return nil
	}

	fmt.Fprintln(f.writer, "## Hotspots")
	fmt.Fprintln(f.writer)
	fmt.Fprintln(f.writer, "| # | Stack | Self | Share | Heat | p50 | p99 |")
	fmt.Fprintln(f.writer, "|---|-------|------|-------|------|-----|-----|")
	for i, h := range r.Hotspots {
		p50, p99 := "-", "-"
		if len(h.Percentiles) > 0 {
			p50 = time.Duration(h.Percentiles[0]).String()
			p99 = time.Duration(h.Percentiles[2]).String()
		}
		heat := string(h.Heat)
		if h.Heat == HeatHot {
			heat = "**hot**"
		}
		fmt.Fprintf(f.writer, "| %d | `%s` | %s | %.1f%% | %s | %s | %s |\n",
			i+1, h.Stack, time.Duration(h.SelfNs), h.Share, heat, p50, p99)
	}
	fmt.Fprintln(f.writer)

	fmt.Fprintln(f.writer, "## Routines")
	fmt.Fprintln(f.writer)
	for _, rt := range r.Routines {
		fmt.Fprintf(f.writer, "- `%s`: %s (%.1f%%) over %d paths\n",
			rt.Routine, time.Duration(rt.SelfNs), rt.Share, rt.Paths)
	}

	if suggestions := Suggest(r); len(suggestions) > 0 {
		fmt.Fprintln(f.writer)
		fmt.Fprintln(f.writer, "## Suggested Next Steps")
		fmt.Fprintln(f.writer)
		for _, s := range suggestions {
			fmt.Fprintf(f.writer, "- `%s` - %s\n", s.Command, s.Reason)
		}
	}
	return nil
}

// renderTSV outputs hotspots as tab-separated values.
func (f *Formatter) renderTSV(r Report) error {
	fmt.Fprintln(f.writer, "STACK\tROUTINE\tDEPTH\tSELF_NS\tSHARE\tHEAT\tCOUNT\tP50_NS\tP99_NS")
	for _, h := range r.Hotspots {
		var p50, p99 int64
		if len(h.Percentiles) > 0 {
			p50, p99 = h.Percentiles[0], h.Percentiles[2]
		}
		fmt.Fprintf(f.writer, "%s\t%s\t%d\t%d\t%.4f\t%s\t%d\t%d\t%d\n",
			h.Stack, h.Routine, h.Depth, h.SelfNs, h.Share, h.Heat, h.Count, p50, p99)
	}
	return nil
}

func toFloats(vs []int64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = float64(v)
	}
	return out
}
