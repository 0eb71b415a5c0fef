// Package cardfinder locates rectangular trading cards in photographs and
// cuts them out as fixed-size images.
//
// Detection runs up to three strategies in priority order: an optional
// external vision model, region growing over a Sobel edge map, and an
// exhaustive sliding window. The first strategy that yields candidates
// satisfying the card geometry wins (or all are blended, see
// pipeline.ModeBlend); overlapping candidates are removed with
// non-maximum suppression.
//
// Basic usage:
//
//	finder, err := cardfinder.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	img, err := finder.LoadImage(ctx, "binder_page.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//	result, cards, err := finder.DetectAndCrop(ctx, img)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("%d cards via %s\n", len(cards), result.MethodUsed)
//
// The package consists of these main components:
//
//  1. Vision (pkg/vision): pixel buffer, edge map, confidence scorer, geometry
//  2. Strategy (pkg/strategy): the three candidate generators
//  3. Pipeline (pkg/pipeline): strategy fallback, constraints, overlap removal
//  4. Cropper (pkg/cropper): fixed-size bilinear card crops
package cardfinder

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/menta2k/card-finder/internal/config"
	"github.com/menta2k/card-finder/internal/logging"
	"github.com/menta2k/card-finder/internal/utils"
	"github.com/menta2k/card-finder/pkg/background"
	"github.com/menta2k/card-finder/pkg/client"
	"github.com/menta2k/card-finder/pkg/cropper"
	"github.com/menta2k/card-finder/pkg/detection"
	"github.com/menta2k/card-finder/pkg/llamacpp"
	"github.com/menta2k/card-finder/pkg/ollama"
	"github.com/menta2k/card-finder/pkg/pipeline"
	"github.com/menta2k/card-finder/pkg/processing"
	"github.com/menta2k/card-finder/pkg/types"
)

// Version of the card finder library
const Version = "1.0.0"

// Finder provides a high-level interface for card detection and cropping
type Finder struct {
	config       *config.Config
	processor    *processing.Processor
	orchestrator *pipeline.Orchestrator
	cropper      *cropper.Cropper
}

// New creates a Finder with the default configuration and no vision model
func New() (*Finder, error) {
	return NewWithConfig(config.Default())
}

// NewWithConfig creates a Finder from an application configuration. The
// model backend and the background remover are built from cfg.Model.
func NewWithConfig(cfg *config.Config) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	detector, err := newDetector(cfg.Model)
	if err != nil {
		return nil, err
	}
	var remover client.BackgroundRemover
	if cfg.Model.RemoveBackground {
		remover = background.New(cfg.Strategies.Background)
	}

	return newFinder(cfg, detector, remover)
}

// NewWithDetector creates a Finder that uses detector (and optionally
// remover) as the external model strategy
func NewWithDetector(cfg *config.Config, detector client.ObjectDetector, remover client.BackgroundRemover) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return newFinder(cfg, detector, remover)
}

func newFinder(cfg *config.Config, detector client.ObjectDetector, remover client.BackgroundRemover) (*Finder, error) {
	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}
	orch, err := pipeline.New(pcfg, detector, remover)
	if err != nil {
		return nil, err
	}
	return &Finder{
		config:       cfg,
		processor:    processing.NewProcessor(),
		orchestrator: orch,
		cropper: cropper.NewWithConfig(cropper.CropConfig{
			Width:        cfg.Cropper.Width,
			Height:       cfg.Cropper.Height,
			PaddingRatio: cfg.Cropper.PaddingRatio,
		}),
	}, nil
}

// newDetector builds the model-backed object detector, or nil when no
// backend is configured
func newDetector(m config.ModelConfig) (client.ObjectDetector, error) {
	var vc client.VisionClient
	var err error

	switch strings.ToLower(m.Backend) {
	case "", "none":
		return nil, nil
	case "ollama":
		url := m.URL
		if url == "" {
			url = "http://localhost:11434/api/chat"
		}
		vc, err = ollama.NewClient(url)
	case "llamacpp":
		vc, err = llamacpp.NewClient(m.URL)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use none, ollama or llamacpp)", m.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", m.Backend, err)
	}
	return detection.NewModelDetector(vc, m.Name, detection.WithImageSize(m.MaxDim, m.Quality)), nil
}

// Config returns the Finder configuration
func (f *Finder) Config() *config.Config {
	return f.config
}

// Strategies returns the strategy chain in priority order
func (f *Finder) Strategies() []types.Strategy {
	return f.orchestrator.Strategies()
}

// LoadImage loads an image from a file path or an http(s) URL
func (f *Finder) LoadImage(ctx context.Context, source string) (image.Image, error) {
	return f.processor.LoadImageSmart(ctx, source)
}

// SaveImage saves an image, picking the format from the file extension
func (f *Finder) SaveImage(img image.Image, path string) error {
	format := utils.GetFileExtension(path)
	if format == "" {
		format = f.config.Output.DefaultFormat
	}
	return f.processor.SaveImage(img, path, format, f.config.Output.Quality, f.config.Output.Lossless)
}

// ValidateImage checks that an image is large enough to hold a card
func (f *Finder) ValidateImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("%w: nil image", pipeline.ErrInvalidInput)
	}
	b := img.Bounds()
	minSize := f.config.Detection.MinImageSize
	if b.Dx() < minSize || b.Dy() < minSize {
		return fmt.Errorf("%w: image %dx%d is smaller than %dpx", pipeline.ErrInvalidInput, b.Dx(), b.Dy(), minSize)
	}
	return nil
}

// Detect finds card regions in img
func (f *Finder) Detect(ctx context.Context, img image.Image) (types.DetectionResult, error) {
	return f.orchestrator.Detect(ctx, img)
}

// DetectBatch finds card regions in several images in parallel
func (f *Finder) DetectBatch(ctx context.Context, imgs []image.Image) []pipeline.BatchItem {
	return f.orchestrator.DetectBatch(ctx, imgs)
}

// DetectAndCrop finds card regions and crops each one to the configured size
func (f *Finder) DetectAndCrop(ctx context.Context, img image.Image) (types.DetectionResult, []types.CroppedCard, error) {
	result, err := f.orchestrator.Detect(ctx, img)
	if err != nil {
		return result, nil, err
	}
	return result, f.cropper.CropAll(img, result), nil
}

// Report summarizes the processing of one input image
type Report struct {
	Source string                `json:"source"`
	Result types.DetectionResult `json:"result"`
	Cards  []CardFile            `json:"cards"`
	// Overlay is the path of the debug overlay, if one was written
	Overlay string `json:"overlay,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CardFile links a saved crop to its detection
type CardFile struct {
	types.CroppedCard
	Path string `json:"path"`
}

// ProcessImageFile loads source, detects and crops its cards and writes them
// to outputDir. A debug overlay is written when the output config asks for it.
func (f *Finder) ProcessImageFile(ctx context.Context, source, outputDir string) (Report, error) {
	report := Report{Source: source}

	img, err := f.LoadImage(ctx, source)
	if err != nil {
		return report, fmt.Errorf("failed to load image: %w", err)
	}
	if err := f.ValidateImage(img); err != nil {
		return report, fmt.Errorf("image validation failed: %w", err)
	}
	if err := utils.EnsureDir(outputDir); err != nil {
		return report, fmt.Errorf("failed to create output directory: %w", err)
	}

	result, cards, err := f.DetectAndCrop(ctx, img)
	report.Result = result
	if err != nil {
		return report, fmt.Errorf("detection failed: %w", err)
	}

	format := f.config.Output.DefaultFormat
	for i, card := range cards {
		path := utils.CardFilename(source, outputDir, f.config.Output.Prefix, i+1, format)
		if err := f.processor.SaveImage(card.Image, path, format, f.config.Output.Quality, f.config.Output.Lossless); err != nil {
			return report, fmt.Errorf("failed to save card %d: %w", i+1, err)
		}
		report.Cards = append(report.Cards, CardFile{CroppedCard: card, Path: path})
	}

	if f.config.Output.Debug {
		overlay := f.processor.CreateDebugOverlay(img, result.Candidates)
		path := filepath.Join(outputDir, f.config.Output.Prefix+utils.SanitizeFilename(utils.BaseName(source))+"_debug.png")
		if err := f.processor.SaveImage(overlay, path, "png", f.config.Output.Quality, false); err != nil {
			logging.Logf("debug overlay save failed: %v", err)
		} else {
			report.Overlay = path
		}
	}

	return report, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
