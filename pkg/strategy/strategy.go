// Package strategy holds the card candidate generators. Each generator reads
// the shared, immutable pixel buffer and edge map of one image and proposes
// rectangles; none of them mutate their input.
package strategy

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/card-finder/pkg/types"
	"github.com/menta2k/card-finder/pkg/vision"
)

// Input is the per-image data shared by all generators of a run
type Input struct {
	Image  image.Image
	Buffer *vision.PixelBuffer
	Edges  *vision.EdgeMap
}

// Result is what a generator produced for one image
type Result struct {
	Candidates []types.CardCandidate

	// BackgroundRemoved is set when the generator worked on a
	// background-removed copy of the image
	BackgroundRemoved bool
}

// Generator proposes card candidates for one image
type Generator interface {
	Name() types.Strategy
	Generate(ctx context.Context, in Input) (Result, error)
}

// Failure wraps the error of a single generator. The orchestrator records it
// and moves on to the next strategy.
type Failure struct {
	Strategy types.Strategy
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s strategy failed: %v", f.Strategy, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
