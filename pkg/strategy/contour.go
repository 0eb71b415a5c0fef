package strategy

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/card-finder/pkg/types"
	"github.com/menta2k/card-finder/pkg/vision"
)

// ContourConfig tunes the region growing strategy
type ContourConfig struct {
	// EdgeThreshold is the minimum gradient magnitude of a mask pixel
	EdgeThreshold uint8 `json:"edge_threshold"`
	// MinBoxSize discards components whose bounding box is smaller on
	// either side
	MinBoxSize int `json:"min_box_size"`
	// MaxComponentPixels stops growing a component once it holds this
	// many pixels
	MaxComponentPixels int            `json:"max_component_pixels"`
	AspectTolerance    float64        `json:"aspect_tolerance"`
	Weights            vision.Weights `json:"weights"`
	Workers            int            `json:"workers"`
}

// DefaultContourConfig returns the default region growing settings
func DefaultContourConfig() ContourConfig {
	return ContourConfig{
		EdgeThreshold:      100,
		MinBoxSize:         50,
		MaxComponentPixels: 10000,
		AspectTolerance:    0.15,
		Weights:            vision.Weights{Border: 0.5, Uniformity: 0.3, Aspect: 0.2},
		Workers:            4,
	}
}

// Contour flood-fills connected high-gradient pixels and proposes their
// bounding boxes.
type Contour struct {
	config ContourConfig
	scorer *vision.Scorer
}

// NewContour creates the region growing strategy
func NewContour(config ContourConfig, scorer *vision.Scorer) *Contour {
	return &Contour{config: config, scorer: scorer}
}

func (c *Contour) Name() types.Strategy {
	return types.ContourGrowth
}

// Generate extracts components sequentially, then scores the surviving
// bounding boxes on the worker pool. Output follows discovery order.
func (c *Contour) Generate(ctx context.Context, in Input) (Result, error) {
	boxes, err := c.Components(ctx, in.Edges)
	if err != nil {
		return Result{}, err
	}

	cands := make([]types.CardCandidate, len(boxes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.config.Workers))
	for i, box := range boxes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cands[i] = types.CardCandidate{
				Rectangle:  box,
				Confidence: c.scorer.Score(box, in.Edges, in.Buffer, c.config.Weights),
				Source:     types.ContourGrowth,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return Result{Candidates: cands}, nil
}

// Components returns the bounding boxes of the 4-connected components of the
// thresholded edge map, in row-major seed order, dropping boxes smaller than
// MinBoxSize.
func (c *Contour) Components(ctx context.Context, em *vision.EdgeMap) ([]types.Rectangle, error) {
	w, h := em.Width, em.Height
	visited := make([]bool, w*h)
	var stack []int
	var boxes []types.Rectangle

	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x++ {
			seed := y*w + x
			if visited[seed] || em.Mag[seed] < c.config.EdgeThreshold {
				continue
			}

			// Pixels are marked when pushed so none is queued twice
			visited[seed] = true
			stack = append(stack[:0], seed)
			minX, minY, maxX, maxY := x, y, x, y
			grown := 0

			for len(stack) > 0 && grown < c.config.MaxComponentPixels {
				idx := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				grown++

				px, py := idx%w, idx/w
				minX, maxX = min(minX, px), max(maxX, px)
				minY, maxY = min(minY, py), max(maxY, py)

				if px > 0 {
					stack = c.push(stack, visited, em, idx-1)
				}
				if px < w-1 {
					stack = c.push(stack, visited, em, idx+1)
				}
				if py > 0 {
					stack = c.push(stack, visited, em, idx-w)
				}
				if py < h-1 {
					stack = c.push(stack, visited, em, idx+w)
				}
			}

			bw, bh := maxX-minX+1, maxY-minY+1
			if bw < c.config.MinBoxSize || bh < c.config.MinBoxSize {
				continue
			}
			boxes = append(boxes, types.Rectangle{X: minX, Y: minY, Width: bw, Height: bh})
		}
	}
	return boxes, nil
}

func (c *Contour) push(stack []int, visited []bool, em *vision.EdgeMap, idx int) []int {
	if visited[idx] || em.Mag[idx] < c.config.EdgeThreshold {
		return stack
	}
	visited[idx] = true
	return append(stack, idx)
}
