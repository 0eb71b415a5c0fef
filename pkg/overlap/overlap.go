// Package overlap removes duplicate card candidates with greedy
// non-maximum suppression.
package overlap

import (
	"slices"

	"github.com/menta2k/card-finder/pkg/types"
)

// DefaultThreshold is the overlap ratio above which the weaker of two
// candidates is suppressed
const DefaultThreshold = 0.5

// Ratio returns the intersection area of a and b divided by the smaller of
// their two areas. It is 0 for disjoint or empty rectangles.
func Ratio(a, b types.Rectangle) float64 {
	smaller := min(a.Area(), b.Area())
	if smaller <= 0 {
		return 0
	}
	return float64(a.Intersection(b)) / float64(smaller)
}

// Resolve sorts cands by confidence, highest first, and keeps each candidate
// whose overlap Ratio with every already kept candidate is at most threshold.
// Ties keep their input order. The input slice is not modified.
func Resolve(cands []types.CardCandidate, threshold float64) []types.CardCandidate {
	sorted := slices.Clone(cands)
	slices.SortStableFunc(sorted, func(a, b types.CardCandidate) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})

	kept := make([]types.CardCandidate, 0, len(sorted))
	for _, c := range sorted {
		suppressed := false
		for _, k := range kept {
			if Ratio(c.Rectangle, k.Rectangle) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}
