package strategy

import (
	"context"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/card-finder/pkg/types"
	"github.com/menta2k/card-finder/pkg/vision"
)

// WindowConfig tunes the sliding window strategy
type WindowConfig struct {
	// Scales are window widths as a fraction of the image width
	Scales []float64 `json:"scales"`
	// Overlap between neighbouring windows; stride is (1-Overlap) x size
	Overlap         float64        `json:"overlap"`
	MinScore        float64        `json:"min_score"`
	TargetAspect    float64        `json:"target_aspect"`
	AspectTolerance float64        `json:"aspect_tolerance"`
	Weights         vision.Weights `json:"weights"`
	Workers         int            `json:"workers"`
}

// DefaultScales are 8% to 40% of the image width in 4% steps
var DefaultScales = []float64{0.08, 0.12, 0.16, 0.20, 0.24, 0.28, 0.32, 0.36, 0.40}

// DefaultWindowConfig returns the default sliding window settings
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Scales:          slices.Clone(DefaultScales),
		Overlap:         0.15,
		MinScore:        0.3,
		TargetAspect:    vision.CardAspectRatio,
		AspectTolerance: 0.10,
		Weights:         vision.Weights{Border: 0.75, Uniformity: 0.25},
		Workers:         4,
	}
}

// SlidingWindow exhaustively scores fixed-aspect windows at several scales
type SlidingWindow struct {
	config WindowConfig
	scorer *vision.Scorer
}

// NewSlidingWindow creates the sliding window strategy
func NewSlidingWindow(config WindowConfig, scorer *vision.Scorer) *SlidingWindow {
	return &SlidingWindow{config: config, scorer: scorer}
}

func (s *SlidingWindow) Name() types.Strategy {
	return types.SlidingWindow
}

// Generate scores every window; scales run on the worker pool and results
// are reassembled in (scale, y, x) order.
func (s *SlidingWindow) Generate(ctx context.Context, in Input) (Result, error) {
	imgW, imgH := in.Buffer.Width, in.Buffer.Height
	perScale := make([][]types.CardCandidate, len(s.config.Scales))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.config.Workers))
	for i, scale := range s.config.Scales {
		g.Go(func() error {
			w, h := s.windowSize(scale, imgW)
			if w < 1 || h < 1 || w > imgW || h > imgH {
				return nil
			}
			strideX := max(1, int(math.Round(float64(w)*(1-s.config.Overlap))))
			strideY := max(1, int(math.Round(float64(h)*(1-s.config.Overlap))))

			var found []types.CardCandidate
			for y := 0; y+h <= imgH; y += strideY {
				if err := gctx.Err(); err != nil {
					return err
				}
				for x := 0; x+w <= imgW; x += strideX {
					r := types.Rectangle{X: x, Y: y, Width: w, Height: h}
					score := s.scorer.Score(r, in.Edges, in.Buffer, s.config.Weights)
					if score < s.config.MinScore {
						continue
					}
					found = append(found, types.CardCandidate{
						Rectangle:  r,
						Confidence: score,
						Source:     types.SlidingWindow,
					})
				}
			}
			perScale[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var res Result
	for _, found := range perScale {
		res.Candidates = append(res.Candidates, found...)
	}
	return res, nil
}

func (s *SlidingWindow) windowSize(scale float64, imgW int) (int, int) {
	w := int(math.Round(scale * float64(imgW)))
	h := int(math.Round(float64(w) / s.config.TargetAspect))
	return w, h
}
