package strategy

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"

	"github.com/menta2k/card-finder/internal/logging"
	"github.com/menta2k/card-finder/pkg/client"
	"github.com/menta2k/card-finder/pkg/types"
	"github.com/menta2k/card-finder/pkg/vision"
)

// ErrNoDetector is returned by External when it has no object detector
var ErrNoDetector = errors.New("no object detector configured")

// DefaultExcludedLabels are detector labels that are never cards unless the
// box itself has a card-like aspect ratio
var DefaultExcludedLabels = []string{
	"person", "people", "man", "woman", "boy", "girl", "child", "face", "hand",
	"car", "truck", "bus", "bicycle", "motorcycle", "vehicle", "train", "airplane", "boat",
	"dog", "cat", "bird", "horse", "cow", "sheep", "animal",
}

// ExternalConfig tunes the external model strategy
type ExternalConfig struct {
	MinScore        float64  `json:"min_score"`
	AspectTolerance float64  `json:"aspect_tolerance"`
	TargetAspect    float64  `json:"target_aspect"`
	ExcludedLabels  []string `json:"excluded_labels"`

	// UseBackgroundRemoval asks the remover, when present, for a cleaned
	// image before detection
	UseBackgroundRemoval bool `json:"use_background_removal"`
}

// DefaultExternalConfig returns the default external model settings
func DefaultExternalConfig() ExternalConfig {
	return ExternalConfig{
		MinScore:             0.3,
		AspectTolerance:      0.25,
		TargetAspect:         vision.CardAspectRatio,
		ExcludedLabels:       slices.Clone(DefaultExcludedLabels),
		UseBackgroundRemoval: true,
	}
}

// External reinterprets the detections of an external object detector as
// card candidates.
type External struct {
	config   ExternalConfig
	detector client.ObjectDetector
	remover  client.BackgroundRemover
	excluded map[string]struct{}
}

// NewExternal creates the external model strategy. remover may be nil.
func NewExternal(config ExternalConfig, detector client.ObjectDetector, remover client.BackgroundRemover) *External {
	excluded := make(map[string]struct{}, len(config.ExcludedLabels))
	for _, l := range config.ExcludedLabels {
		excluded[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	return &External{
		config:   config,
		detector: detector,
		remover:  remover,
		excluded: excluded,
	}
}

func (e *External) Name() types.Strategy {
	return types.ExternalModel
}

// Generate runs background removal (best effort) and the detector, then keeps
// detections that pass the score floor and look like cards.
func (e *External) Generate(ctx context.Context, in Input) (Result, error) {
	if e.detector == nil {
		return Result{}, ErrNoDetector
	}

	var res Result
	img := in.Image
	if e.remover != nil && e.config.UseBackgroundRemoval {
		cleaned, err := e.remover.RemoveBackground(ctx, img)
		switch {
		case err != nil:
			logging.Logf("background removal failed, using original image: %v", err)
		case cleaned == nil || cleaned.Bounds().Size() != img.Bounds().Size():
			logging.Logf("background removal changed image size, using original image")
		default:
			img = cleaned
			res.BackgroundRemoved = true
		}
	}

	detections, err := e.detector.Detect(ctx, img)
	if err != nil {
		return res, err
	}

	w, h := in.Buffer.Width, in.Buffer.Height
	for _, d := range detections {
		if d.Score < e.config.MinScore {
			continue
		}
		r, ok := clip(d.Box, w, h)
		if !ok {
			continue
		}
		if !e.cardLike(r, d.Label) {
			continue
		}
		res.Candidates = append(res.Candidates, types.CardCandidate{
			Rectangle:  r,
			Confidence: math.Min(d.Score, 1),
			Source:     types.ExternalModel,
			Label:      d.Label,
		})
	}
	return res, nil
}

// cardLike keeps a detection whose aspect ratio is near the target, or whose
// label is not an excluded category.
func (e *External) cardLike(r types.Rectangle, label string) bool {
	if math.Abs(r.AspectRatio()-e.config.TargetAspect) <= e.config.AspectTolerance {
		return true
	}
	_, excluded := e.excluded[strings.ToLower(strings.TrimSpace(label))]
	return !excluded
}

// clip intersects r with a w x h image
func clip(r types.Rectangle, w, h int) (types.Rectangle, bool) {
	in := r.Image().Intersect(types.Rectangle{Width: w, Height: h}.Image())
	if in.Empty() {
		return types.Rectangle{}, false
	}
	return types.Rectangle{X: in.Min.X, Y: in.Min.Y, Width: in.Dx(), Height: in.Dy()}, true
}
