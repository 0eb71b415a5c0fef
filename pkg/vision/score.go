package vision

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat"

	"github.com/menta2k/card-finder/pkg/types"
)

// CardAspectRatio is the width:height ratio of a standard 2.5"x3.5" card
const CardAspectRatio = 2.5 / 3.5

// Weights blends the scorer signals. They must be non-negative and sum to 1.
type Weights struct {
	Border     float64 `json:"border"`
	Uniformity float64 `json:"uniformity"`
	Aspect     float64 `json:"aspect"`
}

// Validate checks that the weights form a convex combination
func (w Weights) Validate() error {
	if w.Border < 0 || w.Uniformity < 0 || w.Aspect < 0 {
		return fmt.Errorf("weights must be non-negative: %+v", w)
	}
	if sum := w.Border + w.Uniformity + w.Aspect; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.6f", sum)
	}
	return nil
}

// ScorerConfig holds the sampling parameters of the confidence scorer
type ScorerConfig struct {
	// BorderSamples is the number of points sampled along each side
	BorderSamples int `json:"border_samples"`
	// BorderOffset is the distance in pixels of the inside/outside probes
	BorderOffset int `json:"border_offset"`
	// InteriorSamples is the number of random interior points
	InteriorSamples int `json:"interior_samples"`
	// NeighborOffset is the distance of the 8 neighbours compared with each
	// interior point
	NeighborOffset int `json:"neighbor_offset"`
	// VarianceNorm maps mean neighbour variance to [0,1]
	VarianceNorm float64 `json:"variance_norm"`
	TargetAspect float64 `json:"target_aspect"`
	// Seed makes interior sampling reproducible
	Seed uint64 `json:"seed"`
}

// DefaultScorerConfig returns the default sampling parameters
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		BorderSamples:   20,
		BorderOffset:    3,
		InteriorSamples: 50,
		NeighborOffset:  3,
		VarianceNorm:    1000,
		TargetAspect:    CardAspectRatio,
		Seed:            0x5eed,
	}
}

// Validate checks the scorer configuration
func (c ScorerConfig) Validate() error {
	if c.BorderSamples < 1 || c.InteriorSamples < 1 {
		return fmt.Errorf("scorer sample counts must be positive")
	}
	if c.BorderOffset < 1 || c.NeighborOffset < 1 {
		return fmt.Errorf("scorer offsets must be positive")
	}
	if c.VarianceNorm <= 0 {
		return fmt.Errorf("scorer variance_norm must be positive")
	}
	if c.TargetAspect <= 0 {
		return fmt.Errorf("scorer target_aspect must be positive")
	}
	return nil
}

// Scorer rates how plausible a rectangle is as a card outline. It holds no
// mutable state and is safe for concurrent use.
type Scorer struct {
	config ScorerConfig
}

// NewScorer creates a scorer with the given configuration
func NewScorer(config ScorerConfig) *Scorer {
	return &Scorer{config: config}
}

// Config returns the scorer configuration
func (s *Scorer) Config() ScorerConfig {
	return s.config
}

// Score blends border edge density, interior uniformity and aspect fit into
// a value in [0,1].
func (s *Scorer) Score(r types.Rectangle, em *EdgeMap, buf *PixelBuffer, w Weights) float64 {
	if !r.Within(em.Width, em.Height) {
		return 0
	}

	var score float64
	if w.Border > 0 {
		score += w.Border * s.BorderDensity(r, em)
	}
	if w.Uniformity > 0 {
		score += w.Uniformity * s.InteriorUniformity(r, buf)
	}
	if w.Aspect > 0 {
		score += w.Aspect * AspectFit(r.AspectRatio(), s.config.TargetAspect)
	}
	return clamp01(score)
}

// BorderDensity samples evenly spaced points on each side of r. At each point
// the peak edge magnitude across the border line is compared with the
// magnitude at BorderOffset pixels inside and outside. A sharp, isolated
// outline gives values near 1; flat or uniformly textured areas give values
// near 0.
func (s *Scorer) BorderDensity(r types.Rectangle, em *EdgeMap) float64 {
	n := s.config.BorderSamples
	samples := make([]float64, 0, 4*n)

	left, right := r.X, r.X+r.Width-1
	top, bottom := r.Y, r.Y+r.Height-1
	for i := 0; i < n; i++ {
		t := (float64(i) + 0.5) / float64(n)
		y := r.Y + int(t*float64(r.Height))
		x := r.X + int(t*float64(r.Width))

		samples = append(samples,
			s.borderSample(em, left, y, 1, 0),
			s.borderSample(em, right, y, -1, 0),
			s.borderSample(em, x, top, 0, 1),
			s.borderSample(em, x, bottom, 0, -1),
		)
	}
	return stat.Mean(samples, nil)
}

// borderSample probes the border point (x, y); (dx, dy) points inward.
func (s *Scorer) borderSample(em *EdgeMap, x, y, dx, dy int) float64 {
	var peak float64
	for k := -1; k <= 1; k++ {
		px, py := x+k*dx, y+k*dy
		if em.In(px, py) {
			peak = math.Max(peak, float64(em.At(px, py)))
		}
	}

	d := s.config.BorderOffset
	var ref, count float64
	if ix, iy := x+d*dx, y+d*dy; em.In(ix, iy) {
		ref += float64(em.At(ix, iy))
		count++
	}
	if ox, oy := x-d*dx, y-d*dy; em.In(ox, oy) {
		ref += float64(em.At(ox, oy))
		count++
	}
	if count > 0 {
		ref /= count
	}
	return clamp01((peak - ref) / 255)
}

// InteriorUniformity samples random interior points and measures the mean
// squared luma difference against their 8 neighbours at NeighborOffset
// pixels. The mean variance v is mapped to max(0, 1 - v/VarianceNorm).
// Points are drawn at least two offsets away from the border so that no
// neighbour probe crosses the outline.
func (s *Scorer) InteriorUniformity(r types.Rectangle, buf *PixelBuffer) float64 {
	if !r.Within(buf.Width, buf.Height) {
		return 0
	}
	d := s.config.NeighborOffset
	d = min(d, (r.Width-1)/4, (r.Height-1)/4)
	if d < 1 {
		return 0
	}

	spanX := r.Width - 4*d
	spanY := r.Height - 4*d
	if spanX < 1 || spanY < 1 {
		return 0
	}

	rng := rand.New(rand.NewPCG(s.config.Seed, rectSeed(r)))
	variances := make([]float64, s.config.InteriorSamples)
	for i := range variances {
		cx := r.X + 2*d + rng.IntN(spanX)
		cy := r.Y + 2*d + rng.IntN(spanY)
		c := float64(buf.At(cx, cy))

		var sum float64
		for _, off := range neighbors {
			diff := c - float64(buf.At(cx+off[0]*d, cy+off[1]*d))
			sum += diff * diff
		}
		variances[i] = sum / float64(len(neighbors))
	}

	return math.Max(0, 1-stat.Mean(variances, nil)/s.config.VarianceNorm)
}

var neighbors = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}

func rectSeed(r types.Rectangle) uint64 {
	return uint64(r.X)<<48 ^ uint64(r.Y)<<32 ^ uint64(r.Width)<<16 ^ uint64(r.Height)
}

// AspectFit returns 1 - |actual - target| / target, clamped to [0,1]
func AspectFit(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return clamp01(1 - math.Abs(actual-target)/target)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
