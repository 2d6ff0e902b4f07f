// Package flamegraph reads collapsed call-path dumps and renders them as SVG
// flame graphs.
package flamegraph

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Stack is one collapsed line: frames outermost first and the self time
// attributed to the innermost frame, in nanoseconds.
type Stack struct {
	Frames []string
	Value  int64
}

// Key joins the frames back into collapsed form.
func (s Stack) Key() string {
	return strings.Join(s.Frames, ";")
}

// ParseCollapsed reads "a;b;c <value>" lines. Blank lines are skipped and
// repeated stacks are summed. The result is ordered by stack.
func ParseCollapsed(r io.Reader) ([]Stack, error) {
	sums := make(map[string]int64)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// Frame names may contain spaces; the value follows the last one.
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			return nil, fmt.Errorf("line %d: missing value", lineNo)
		}
		v, err := strconv.ParseInt(line[idx+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad value: %w", lineNo, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("line %d: negative value %d", lineNo, v)
		}
		sums[line[:idx]] += v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading collapsed stacks: %w", err)
	}

	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Stack, 0, len(keys))
	for _, k := range keys {
		out = append(out, Stack{Frames: strings.Split(k, ";"), Value: sums[k]})
	}
	return out, nil
}

// WriteCollapsed writes stacks one per line in the given order.
func WriteCollapsed(w io.Writer, stacks []Stack) error {
	bw := bufio.NewWriter(w)
	for _, s := range stacks {
		if _, err := fmt.Fprintf(bw, "%s %d\n", s.Key(), s.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Total sums the values of stacks.
func Total(stacks []Stack) int64 {
	var total int64
	for _, s := range stacks {
		total += s.Value
	}
	return total
}
