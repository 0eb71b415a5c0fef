package vision

import (
	"fmt"
	"math"

	"github.com/menta2k/card-finder/pkg/types"
)

// Constraints are the geometric bounds a card region must satisfy relative
// to its source image.
type Constraints struct {
	TargetAspect    float64
	AspectTolerance float64
	MinAreaRatio    float64
	MaxAreaRatio    float64
	MinSizePx       int
}

// Validate checks that the constraints can be satisfied at all
func (c Constraints) Validate() error {
	if c.TargetAspect <= 0 {
		return fmt.Errorf("target aspect must be positive")
	}
	if c.AspectTolerance < 0 {
		return fmt.Errorf("aspect tolerance must not be negative")
	}
	if c.MinAreaRatio < 0 || c.MaxAreaRatio > 1 || c.MinAreaRatio > c.MaxAreaRatio {
		return fmt.Errorf("area ratio bounds [%g, %g] are invalid", c.MinAreaRatio, c.MaxAreaRatio)
	}
	if c.MinSizePx < 1 {
		return fmt.Errorf("minimum size must be at least 1px")
	}
	return nil
}

// Accepts reports whether r is inside the image and satisfies the area
// ratio, aspect ratio and minimum size rules.
func (c Constraints) Accepts(r types.Rectangle, imgW, imgH int) bool {
	if !r.Within(imgW, imgH) {
		return false
	}
	if r.Width < c.MinSizePx || r.Height < c.MinSizePx {
		return false
	}

	areaRatio := float64(r.Area()) / float64(imgW*imgH)
	if areaRatio < c.MinAreaRatio || areaRatio > c.MaxAreaRatio {
		return false
	}

	return math.Abs(r.AspectRatio()-c.TargetAspect) <= c.AspectTolerance
}

// Filter returns the candidates accepted by c, preserving order
func (c Constraints) Filter(cands []types.CardCandidate, imgW, imgH int) []types.CardCandidate {
	out := make([]types.CardCandidate, 0, len(cands))
	for _, cand := range cands {
		if c.Accepts(cand.Rectangle, imgW, imgH) {
			out = append(out, cand)
		}
	}
	return out
}
