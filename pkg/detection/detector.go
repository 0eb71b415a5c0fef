package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/menta2k/card-finder/pkg/client"
	"github.com/menta2k/card-finder/pkg/processing"
	"github.com/menta2k/card-finder/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// DefaultPrompt asks the model for every object it can box, cards first
const DefaultPrompt = `You are an object locator for photographs of trading cards.

Return JSON only:
{
  "objects": [
    {"label": "string", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- Report every rectangular card you can see (trading cards, playing cards, photo cards) with label "card".
- Boxes must tightly enclose the card outline including its border.
- Report other prominent objects with a short lowercase label (person, hand, table, ...).
- Confidence is your certainty in [0,1].
- If nothing is visible, return {"objects": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Defaults for preparing the image sent to the model
const (
	DefaultMaxDim  = 1024
	DefaultQuality = 85
)

// ErrNoClient is returned when a ModelDetector has no vision client
var ErrNoClient = errors.New("no vision client configured")

// ModelDetector turns a vision model into an object detector that reports
// boxes in source image pixels.
type ModelDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	model     string
	prompt    string
	maxDim    int
	quality   int
}

// Option configures a ModelDetector
type Option func(*ModelDetector)

// WithPrompt replaces DefaultPrompt
func WithPrompt(prompt string) Option {
	return func(d *ModelDetector) { d.prompt = prompt }
}

// WithImageSize sets the longest side and JPEG quality of the model image
func WithImageSize(maxDim, quality int) Option {
	return func(d *ModelDetector) {
		d.maxDim = maxDim
		d.quality = quality
	}
}

// NewModelDetector creates a detector that queries model through c
func NewModelDetector(c client.VisionClient, model string, opts ...Option) *ModelDetector {
	d := &ModelDetector{
		client:    c,
		processor: processing.NewProcessor(),
		model:     model,
		prompt:    DefaultPrompt,
		maxDim:    DefaultMaxDim,
		quality:   DefaultQuality,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect sends img to the model and converts its reply to pixel detections.
// Boxes that end up empty after clipping are dropped.
func (d *ModelDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	if d.client == nil {
		return nil, ErrNoClient
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("empty image")
	}

	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", d.maxDim, d.quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}

	objects, err := d.client.DetectObjects(ctx, d.model, d.prompt, imgB64)
	if err != nil {
		return nil, fmt.Errorf("model detection failed: %w", err)
	}

	b := img.Bounds()
	scale := modelScale(b.Dx(), b.Dy(), d.maxDim)
	out := make([]types.Detection, 0, len(objects))
	for _, obj := range objects {
		r, ok := toPixels(obj.Box, b.Dx(), b.Dy(), scale)
		if !ok {
			continue
		}
		out = append(out, types.Detection{
			Box:   r,
			Label: obj.Label,
			Score: clamp(obj.Confidence, 0, 1),
		})
	}
	return out, nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *ModelDetector) TestVision(ctx context.Context, imageB64 string) (string, error) {
	if d.client == nil {
		return "", ErrNoClient
	}
	return d.client.SimpleQuery(ctx, d.model, SimpleTestPrompt, imageB64)
}

// modelScale is the factor from model image pixels back to source pixels
func modelScale(w, h, maxDim int) float64 {
	longest := max(w, h)
	if maxDim <= 0 || longest <= maxDim {
		return 1
	}
	return float64(longest) / float64(maxDim)
}

// toPixels converts a model box to a rectangle clipped to a w x h image.
// Boxes with any coordinate above 1 are treated as model image pixels.
func toPixels(b types.Box, w, h int, scale float64) (types.Rectangle, bool) {
	var x0, y0, x1, y1 float64
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		x0, y0 = b.X*scale, b.Y*scale
		x1, y1 = (b.X+b.W)*scale, (b.Y+b.H)*scale
	} else {
		fw, fh := float64(w), float64(h)
		x0, y0 = b.X*fw, b.Y*fh
		x1, y1 = (b.X+b.W)*fw, (b.Y+b.H)*fh
	}

	ix0 := int(math.Round(clamp(x0, 0, float64(w))))
	iy0 := int(math.Round(clamp(y0, 0, float64(h))))
	ix1 := int(math.Round(clamp(x1, 0, float64(w))))
	iy1 := int(math.Round(clamp(y1, 0, float64(h))))

	r, err := types.NewRectangle(ix0, iy0, ix1-ix0, iy1-iy0, w, h)
	if err != nil {
		return types.Rectangle{}, false
	}
	return r, true
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
