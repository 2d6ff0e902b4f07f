package aggregate

import "github.com/danpilch/pathprof/pkg/registry"

const (
	fnvOffset = 1469598103934665603
	fnvPrime  = 1099511628211

	// idMix spreads small dense ids over the whole word before folding.
	idMix = 0x9E3779B97F4A7C15
)

// Hasher computes an order-sensitive 64-bit hash of a call path.
type Hasher func(path []registry.ID) uint64

// HashPath is the default Hasher: FNV-1a over the mixed ids, outermost first.
func HashPath(path []registry.ID) uint64 {
	h := uint64(fnvOffset)
	for _, id := range path {
		h ^= uint64(id) * idMix
		h *= fnvPrime
	}
	return h
}

func equalPaths(a, b []registry.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// comparePaths orders paths elementwise, shorter first on a shared prefix.
func comparePaths(a, b []registry.ID) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
