package baseline

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Severity indicates the magnitude of a path's drift.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityRegress  Severity = "regression"
	SeverityNew      Severity = "new"
	SeverityGone     Severity = "gone"
)

// Comparison holds the drift of one call path. Shares are percentages of the
// respective profile's total self time, so profiles of different length
// compare fairly.
type Comparison struct {
	Stack         string   `json:"stack"`
	BaselineNs    int64    `json:"baseline_ns"`
	CurrentNs     int64    `json:"current_ns"`
	BaselineShare float64  `json:"baseline_share_pct"`
	CurrentShare  float64  `json:"current_share_pct"`
	DeltaPct      float64  `json:"delta_pct"`
	Severity      Severity `json:"severity"`
}

// Regression reports whether the comparison should fail a check.
func (c Comparison) Regression() bool {
	return c.Severity == SeverityRegress
}

var (
	blTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	blHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	blDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	blOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	blWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	blErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	blMinor  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

// newPathShare is the share above which a path absent from the baseline
// counts as a regression.
const newPathShare = 5.0

// Compare matches paths by stack and calculates the drift of their share of
// self time. Results are ordered by absolute delta, largest first.
func Compare(base, current *Baseline) []Comparison {
	stacks := make(map[string]struct{}, len(base.Paths)+len(current.Paths))
	for k := range base.Paths {
		stacks[k] = struct{}{}
	}
	for k := range current.Paths {
		stacks[k] = struct{}{}
	}

	out := make([]Comparison, 0, len(stacks))
	for stack := range stacks {
		bNs, inBase := base.Paths[stack]
		cNs, inCur := current.Paths[stack]
		c := Comparison{
			Stack:         stack,
			BaselineNs:    bNs,
			CurrentNs:     cNs,
			BaselineShare: base.Share(stack),
			CurrentShare:  current.Share(stack),
		}

		switch {
		case !inBase:
			c.DeltaPct = 100
			c.Severity = SeverityNew
			if c.CurrentShare >= newPathShare {
				c.Severity = SeverityRegress
			}
		case !inCur:
			c.DeltaPct = -100
			c.Severity = SeverityGone
		case c.BaselineShare != 0:
			c.DeltaPct = (c.CurrentShare - c.BaselineShare) / c.BaselineShare * 100
			c.Severity = classifySeverity(c.DeltaPct)
		case c.CurrentShare != 0:
			c.DeltaPct = 100
			c.Severity = classifySeverity(c.DeltaPct)
		default:
			c.Severity = SeverityNone
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := math.Abs(out[i].DeltaPct), math.Abs(out[j].DeltaPct)
		if di != dj {
			return di > dj
		}
		return out[i].Stack < out[j].Stack
	})
	return out
}

func classifySeverity(deltaPct float64) Severity {
	absDelta := math.Abs(deltaPct)
	if absDelta < 5 {
		return SeverityNone
	}
	if absDelta < 15 {
		return SeverityMinor
	}
	if absDelta < 30 {
		return SeverityModerate
	}
	if deltaPct > 0 {
		return SeverityRegress
	}
	return SeverityMajor
}

// Regressions counts comparisons flagged as regressions.
func Regressions(comparisons []Comparison) int {
	n := 0
	for _, c := range comparisons {
		if c.Regression() {
			n++
		}
	}
	return n
}

// RenderComparison outputs a styled comparison table. Paths whose severity
// is none are summarized rather than listed.
func RenderComparison(w io.Writer, base *Baseline, comparisons []Comparison) {
	fmt.Fprintln(w, blTitle.Render("Baseline Comparison"))
	fmt.Fprintln(w, blDim.Render(strings.Repeat("═", 90)))
	fmt.Fprintf(w, "Comparing against %s (from %s, %s self time)\n\n",
		lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%q", base.Name)),
		blDim.Render(base.Timestamp.Format("2006-01-02 15:04:05")),
		time.Duration(base.TotalNs))

	fmt.Fprintf(w, "  %s %s %s %s %s\n",
		blHeader.Render("STACK                                   "),
		blHeader.Render("BASELINE "),
		blHeader.Render("CURRENT  "),
		blHeader.Render("DELTA    "),
		blHeader.Render("SEVERITY  "))
	fmt.Fprintln(w, "  "+blDim.Render(strings.Repeat("─", 90)))

	unchanged := 0
	for _, c := range comparisons {
		var sevStr string
		switch c.Severity {
		case SeverityRegress:
			sevStr = blErr.Render("REGRESSION")
		case SeverityMajor:
			sevStr = blOK.Render("IMPROVED")
		case SeverityModerate:
			sevStr = blWarn.Render("moderate")
		case SeverityMinor:
			sevStr = blMinor.Render("minor")
		case SeverityNew:
			sevStr = blWarn.Render("new")
		case SeverityGone:
			sevStr = blDim.Render("gone")
		default:
			unchanged++
			continue
		}

		fmt.Fprintf(w, "  %-42s %-10s %-10s %-10s %s\n",
			truncate(c.Stack, 42),
			fmt.Sprintf("%.1f%%", c.BaselineShare),
			fmt.Sprintf("%.1f%%", c.CurrentShare),
			fmt.Sprintf("%+.1f%%", c.DeltaPct),
			sevStr)
	}
	if unchanged > 0 {
		fmt.Fprintf(w, "  %s\n", blDim.Render(fmt.Sprintf("%d paths unchanged", unchanged)))
	}

	fmt.Fprintln(w)
	if n := Regressions(comparisons); n > 0 {
		fmt.Fprintf(w, "  %s\n", blErr.Render(fmt.Sprintf("%d potential regressions detected.", n)))
	} else {
		fmt.Fprintf(w, "  %s\n", blOK.Render("No significant regressions detected."))
	}
}

// truncate keeps the tail of s, where the innermost frames are.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
