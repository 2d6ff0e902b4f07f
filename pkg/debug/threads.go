package debug

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/danpilch/pathprof/pkg/tracker"
)

var (
	debugTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	debugHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	debugDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// RenderThreads prints one line per registered thread state. Depth and path
// counts of threads running concurrently are approximate.
func RenderThreads(w io.Writer, threads []*tracker.Thread) {
	fmt.Fprintln(w, debugTitle.Render("Profiled Threads"))
	fmt.Fprintln(w, debugDim.Render(strings.Repeat("═", 70)))
	fmt.Fprintf(w, "  %s %s %s %s\n",
		debugHeader.Render("THREAD                  "),
		debugHeader.Render("TID           "),
		debugHeader.Render("DEPTH "),
		debugHeader.Render("PATHS     "))
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 70)))

	var paths int64
	for _, th := range threads {
		n := th.Paths()
		paths += int64(n)
		fmt.Fprintf(w, "  %-25s %-15d %-7d %s\n",
			th.Name(), th.ID(), th.Depth(), humanize.Comma(int64(n)))
	}
	fmt.Fprintln(w, "  "+debugDim.Render(strings.Repeat("─", 70)))
	fmt.Fprintf(w, "  %s %d threads, %s paths\n",
		lipgloss.NewStyle().Bold(true).Render("TOTAL"), len(threads), humanize.Comma(paths))
}
