package client

import (
	"context"
	"image"

	"github.com/menta2k/card-finder/pkg/types"
)

// VisionClient talks to a multimodal model backend
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	DetectObjects(ctx context.Context, model, prompt, imgB64 string) ([]types.ModelObject, error)
}

// ObjectDetector locates labeled objects in an image. Implementations may be
// slow or fail; callers treat any error as "no detections".
type ObjectDetector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
}

// BackgroundRemover isolates foreground objects. The returned image must
// have the same bounds as the input.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, img image.Image) (image.Image, error)
}
