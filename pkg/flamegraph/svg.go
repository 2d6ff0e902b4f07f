package flamegraph

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"html"
	"io"
	"sort"
	"time"
)

// ErrEmpty is returned when there is nothing to draw.
var ErrEmpty = errors.New("no call paths with recorded time")

// SVGOptions configures the flame graph SVG output.
type SVGOptions struct {
	Title       string
	Width       int
	ColorScheme string // "hot", "cold"
	// MinWidth hides frames narrower than this many pixels.
	MinWidth float64
}

// DefaultSVGOptions returns sensible defaults.
func DefaultSVGOptions() SVGOptions {
	return SVGOptions{
		Title:       "Call Path Self Time",
		Width:       1200,
		ColorScheme: "hot",
		MinWidth:    0.5,
	}
}

const (
	frameHeight  = 16
	fontSize     = 12
	headerHeight = 40
	margin       = 10
)

// node is a frame in the call tree. value includes the time of every
// descendant; self is the time recorded for this exact path.
type node struct {
	name     string
	value    int64
	self     int64
	children map[string]*node
}

func newNode(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

// buildTree folds stacks into a call tree under a synthetic "all" root.
func buildTree(stacks []Stack) *node {
	root := newNode("all")
	for _, s := range stacks {
		if s.Value <= 0 {
			continue
		}
		n := root
		n.value += s.Value
		for _, name := range s.Frames {
			child, ok := n.children[name]
			if !ok {
				child = newNode(name)
				n.children[name] = child
			}
			child.value += s.Value
			n = child
		}
		n.self += s.Value
	}
	return root
}

// GenerateSVG renders stacks as an SVG flame graph. Widths are proportional to
// inclusive time; the root frame spans the whole chart.
func GenerateSVG(stacks []Stack, w io.Writer, opts SVGOptions) error {
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	root := buildTree(stacks)
	if root.value == 0 {
		return ErrEmpty
	}

	height := (depth(root)+1)*frameHeight + headerHeight + 2*margin
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, `<?xml version="1.0" standalone="no"?>
<!DOCTYPE svg PUBLIC "-//W3C//DTD SVG 1.1//EN" "http://www.w3.org/Graphics/SVG/1.1/DTD/svg1.1.dtd">
<svg version="1.1" width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">
<style>
  .func:hover { stroke:black; stroke-width:0.5; cursor:pointer; }
  text { font-family: monospace; font-size: %dpx; }
</style>
<rect x="0" y="0" width="%d" height="%d" fill="white"/>
<text x="%d" y="20" text-anchor="middle" style="font-size:16px; font-weight:bold;">%s</text>
<text x="%d" y="35" text-anchor="middle" style="font-size:12px; fill:#666;">(%s self time)</text>
`,
		opts.Width, height, fontSize,
		opts.Width, height,
		opts.Width/2, html.EscapeString(opts.Title),
		opts.Width/2, time.Duration(root.value))

	r := renderer{
		w:     bw,
		total: root.value,
		scale: float64(opts.Width-2*margin) / float64(root.value),
		baseY: height - margin,
		opts:  opts,
	}
	r.frame(root, margin, 0)

	fmt.Fprintln(bw, "</svg>")
	return bw.Flush()
}

type renderer struct {
	w     io.Writer
	total int64
	scale float64
	baseY int
	opts  SVGOptions
}

func (r *renderer) frame(n *node, x float64, level int) {
	width := float64(n.value) * r.scale
	if width < r.opts.MinWidth {
		return
	}
	y := r.baseY - (level+1)*frameHeight
	red, green, blue := frameColor(n.name, r.opts.ColorScheme)

	fmt.Fprintf(r.w, `<g class="func">
<title>%s (%s, %.2f%%, self %s)</title>
<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="rgb(%d,%d,%d)" rx="1"/>
`, html.EscapeString(n.name), time.Duration(n.value),
		float64(n.value)/float64(r.total)*100, time.Duration(n.self),
		x, y, width, frameHeight-1, red, green, blue)

	if width > 40 {
		label := n.name
		maxChars := int(width-4) / 7
		if len(label) > maxChars {
			if maxChars > 3 {
				label = label[:maxChars-2] + ".."
			} else {
				label = ""
			}
		}
		if label != "" {
			fmt.Fprintf(r.w, "<text x=\"%.1f\" y=\"%d\" fill=\"black\">%s</text>\n",
				x+2, y+frameHeight-4, html.EscapeString(label))
		}
	}
	fmt.Fprintln(r.w, "</g>")

	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	childX := x
	for _, name := range names {
		child := n.children[name]
		r.frame(child, childX, level+1)
		childX += float64(child.value) * r.scale
	}
}

// frameColor derives a stable color from the frame name so the same routine
// keeps its color across graphs.
func frameColor(name, scheme string) (int, int, int) {
	h := fnv.New32a()
	h.Write([]byte(name))
	v := int(h.Sum32())
	switch scheme {
	case "cold":
		return 30 + v%40, 80 + (v>>8)%120, 160 + (v>>16)%90
	default:
		return 205 + v%50, 60 + (v>>8)%150, 30 + (v>>16)%40
	}
}

func depth(n *node) int {
	max := 0
	for _, child := range n.children {
		if d := depth(child) + 1; d > max {
			max = d
		}
	}
	return max
}
