package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/menta2k/card-finder/pkg/background"
	"github.com/menta2k/card-finder/pkg/pipeline"
	"github.com/menta2k/card-finder/pkg/strategy"
	"github.com/menta2k/card-finder/pkg/vision"
)

// Config holds the application configuration
type Config struct {
	Detection  DetectionConfig  `json:"detection"`
	Strategies StrategiesConfig `json:"strategies"`
	Model      ModelConfig      `json:"model"`
	Cropper    CropperConfig    `json:"cropper"`
	Output     OutputConfig     `json:"output"`
}

// DetectionConfig holds the orchestrator settings
type DetectionConfig struct {
	TargetAspect     float64 `json:"target_aspect"`
	MinAreaRatio     float64 `json:"min_area_ratio"`
	MaxAreaRatio     float64 `json:"max_area_ratio"`
	MinSizePx        int     `json:"min_size_px"`
	OverlapThreshold float64 `json:"overlap_threshold"`
	MaxResults       int     `json:"max_results"`
	Mode             string  `json:"mode"`
	// Workers is the worker pool size; 0 uses every CPU
	Workers int `json:"workers"`
	// ExternalTimeoutSec bounds a single model call
	ExternalTimeoutSec float64 `json:"external_timeout_sec"`
	MinImageSize       int     `json:"min_image_size"`
}

// StrategiesConfig holds per-strategy tuning
type StrategiesConfig struct {
	Scorer     vision.ScorerConfig     `json:"scorer"`
	External   strategy.ExternalConfig `json:"external"`
	Contour    strategy.ContourConfig  `json:"contour"`
	Window     strategy.WindowConfig   `json:"window"`
	Background background.Config       `json:"background"`
}

// ModelConfig selects the vision model backend
type ModelConfig struct {
	// Backend is none, ollama or llamacpp
	Backend string `json:"backend"`
	URL     string `json:"url"`
	Name    string `json:"name"`
	// MaxDim is the longest side of the image sent to the model
	MaxDim  int `json:"max_dim"`
	Quality int `json:"quality"`
	// RemoveBackground enables the local background remover
	RemoveBackground bool `json:"remove_background"`
}

// CropperConfig holds configuration for card crops
type CropperConfig struct {
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	PaddingRatio float64 `json:"padding_ratio"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	OutputDir     string `json:"output_dir"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
	Prefix        string `json:"prefix"`
	Debug         bool   `json:"debug"`
}

// Default returns a configuration with default values
func Default() *Config {
	p := pipeline.DefaultConfig()
	return &Config{
		Detection: DetectionConfig{
			TargetAspect:       p.TargetAspect,
			MinAreaRatio:       p.MinAreaRatio,
			MaxAreaRatio:       p.MaxAreaRatio,
			MinSizePx:          p.MinSizePx,
			OverlapThreshold:   p.OverlapThreshold,
			MaxResults:         p.MaxResults,
			Mode:               p.Mode.String(),
			Workers:            0,
			ExternalTimeoutSec: p.ExternalTimeout.Seconds(),
			MinImageSize:       100,
		},
		Strategies: StrategiesConfig{
			Scorer:     p.Scorer,
			External:   p.External,
			Contour:    p.Contour,
			Window:     p.Window,
			Background: background.DefaultConfig(),
		},
		Model: ModelConfig{
			Backend: "none",
			Name:    "openbmb/minicpm-v4.5",
			MaxDim:  1024,
			Quality: 85,
		},
		Cropper: CropperConfig{
			Width:  250,
			Height: 350,
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			OutputDir:     "./output",
			Quality:       90,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Detection.Workers < 0 {
		return fmt.Errorf("detection.workers must not be negative")
	}
	if c.Detection.ExternalTimeoutSec < 0 {
		return fmt.Errorf("detection.external_timeout_sec must not be negative")
	}
	if c.Detection.MinImageSize < 1 {
		return fmt.Errorf("detection.min_image_size must be positive")
	}

	p, err := c.PipelineConfig()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("detection: %w", err)
	}

	switch strings.ToLower(c.Model.Backend) {
	case "", "none", "ollama", "llamacpp":
	default:
		return fmt.Errorf("model.backend must be none, ollama or llamacpp")
	}
	if c.Model.Quality < 1 || c.Model.Quality > 100 {
		return fmt.Errorf("model.quality must be between 1 and 100")
	}

	if c.Strategies.Background.Threshold <= 0 {
		return fmt.Errorf("strategies.background.threshold must be positive")
	}

	if c.Cropper.Width < 1 || c.Cropper.Height < 1 {
		return fmt.Errorf("cropper.width and cropper.height must be positive")
	}
	if c.Cropper.PaddingRatio < 0 || c.Cropper.PaddingRatio > 1 {
		return fmt.Errorf("cropper.padding_ratio must be between 0 and 1")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	switch strings.ToLower(c.Output.DefaultFormat) {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.default_format must be jpg, png or webp")
	}

	return nil
}

// PipelineConfig converts the detection and strategy sections into the
// immutable orchestrator configuration
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	mode, err := pipeline.ParseMode(c.Detection.Mode)
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("detection.mode: %w", err)
	}

	workers := c.Detection.Workers
	if workers == 0 {
		workers = max(1, runtime.NumCPU())
	}

	contour := c.Strategies.Contour
	contour.Workers = workers
	window := c.Strategies.Window
	window.Workers = workers

	return pipeline.Config{
		TargetAspect:     c.Detection.TargetAspect,
		MinAreaRatio:     c.Detection.MinAreaRatio,
		MaxAreaRatio:     c.Detection.MaxAreaRatio,
		MinSizePx:        c.Detection.MinSizePx,
		OverlapThreshold: c.Detection.OverlapThreshold,
		MaxResults:       c.Detection.MaxResults,
		ExternalTimeout:  time.Duration(c.Detection.ExternalTimeoutSec * float64(time.Second)),
		Workers:          workers,
		Mode:             mode,
		Scorer:           c.Strategies.Scorer,
		External:         c.Strategies.External,
		Contour:          contour,
		Window:           window,
	}, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "card-finder", "config.json")
}
