package cropper

import (
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/menta2k/card-finder/internal/logging"
	"github.com/menta2k/card-finder/pkg/types"
)

// Standard output size of a cropped card (2.5:3.5)
const (
	DefaultWidth  = 250
	DefaultHeight = 350
)

// ErrCropBounds is reported when a region does not fit the source image
var ErrCropBounds = errors.New("crop region outside image bounds")

// CropConfig holds configuration for card cropping
type CropConfig struct {
	Width  int
	Height int

	// PaddingRatio grows the region on every side by this fraction of its
	// size before cropping, clipped to the image
	PaddingRatio float64
}

// Cropper cuts detected card regions out of their source image and resamples
// them to a fixed size with bilinear interpolation.
type Cropper struct {
	config CropConfig
}

// New creates a Cropper producing DefaultWidth x DefaultHeight cards
func New() *Cropper {
	return &Cropper{config: CropConfig{Width: DefaultWidth, Height: DefaultHeight}}
}

// NewWithConfig creates a Cropper with custom configuration
func NewWithConfig(config CropConfig) *Cropper {
	return &Cropper{config: config}
}

// Config returns the cropper configuration
func (c *Cropper) Config() CropConfig {
	return c.config
}

// Crop cuts r out of src and resizes it to outW x outH. When r does not fit
// src or the size is invalid the card holds a copy of the uncropped source
// (resized when possible) and Fallback is set.
func (c *Cropper) Crop(src image.Image, r types.Rectangle, outW, outH int) types.CroppedCard {
	card := types.CroppedCard{
		ID:        uuid.New(),
		Bounds:    r,
		CreatedAt: time.Now(),
	}

	img, err := c.crop(src, r, outW, outH)
	if err != nil {
		logging.Logf("crop %s failed, returning uncropped image: %v", r, err)
		card.Image = fallback(src, outW, outH)
		card.Fallback = true
		return card
	}
	card.Image = img
	return card
}

// CropCandidate crops a single candidate at the configured size
func (c *Cropper) CropCandidate(src image.Image, cand types.CardCandidate) types.CroppedCard {
	card := c.Crop(src, c.pad(cand.Rectangle, src.Bounds()), c.config.Width, c.config.Height)
	card.Bounds = cand.Rectangle
	card.Confidence = cand.Confidence
	card.Source = cand.Source
	return card
}

// CropAll crops every candidate of a detection result, in result order
func (c *Cropper) CropAll(src image.Image, result types.DetectionResult) []types.CroppedCard {
	cards := make([]types.CroppedCard, 0, len(result.Candidates))
	for _, cand := range result.Candidates {
		cards = append(cards, c.CropCandidate(src, cand))
	}
	return cards
}

func (c *Cropper) crop(src image.Image, r types.Rectangle, outW, outH int) (*image.NRGBA, error) {
	if src == nil {
		return nil, fmt.Errorf("nil source image")
	}
	if outW <= 0 || outH <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", outW, outH)
	}
	b := src.Bounds()
	if !r.Within(b.Dx(), b.Dy()) {
		return nil, fmt.Errorf("%w: %s in %dx%d", ErrCropBounds, r, b.Dx(), b.Dy())
	}

	region := r.Image().Add(b.Min)
	cropped := imaging.Crop(src, region)
	return imaging.Resize(cropped, outW, outH, imaging.Linear), nil
}

// pad grows r by PaddingRatio and clips it to an image of size b
func (c *Cropper) pad(r types.Rectangle, b image.Rectangle) types.Rectangle {
	if c.config.PaddingRatio <= 0 {
		return r
	}
	px := int(math.Round(float64(r.Width) * c.config.PaddingRatio))
	py := int(math.Round(float64(r.Height) * c.config.PaddingRatio))
	grown := image.Rect(r.X-px, r.Y-py, r.X+r.Width+px, r.Y+r.Height+py).
		Intersect(image.Rect(0, 0, b.Dx(), b.Dy()))
	if grown.Empty() {
		return r
	}
	return types.Rectangle{X: grown.Min.X, Y: grown.Min.Y, Width: grown.Dx(), Height: grown.Dy()}
}

func fallback(src image.Image, outW, outH int) *image.NRGBA {
	if src == nil {
		return image.NewNRGBA(image.Rect(0, 0, max(outW, 0), max(outH, 0)))
	}
	if outW > 0 && outH > 0 && !src.Bounds().Empty() {
		return imaging.Resize(src, outW, outH, imaging.Linear)
	}
	return imaging.Clone(src)
}
