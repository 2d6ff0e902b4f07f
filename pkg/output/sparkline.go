package output

import "strings"

// sparkline block characters from lowest to highest
var sparkBlocks = []rune{
	'\u2581', // ▁
	'\u2582', // ▂
	'\u2583', // ▃
	'\u2584', // ▄
	'\u2585', // ▅
	'\u2586', // ▆
	'\u2587', // ▇
	'\u2588', // █
}

// Sparkline renders values as a row of block characters scaled between their
// minimum and maximum. A flat series renders at the lowest block.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}

	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	var b strings.Builder
	rng := hi - lo
	top := len(sparkBlocks) - 1
	for _, v := range values {
		idx := 0
		if rng > 0 {
			idx = int((v - lo) / rng * float64(top))
		}
		idx = min(max(idx, 0), top)
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}
