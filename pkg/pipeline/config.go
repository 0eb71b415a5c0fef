package pipeline

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/menta2k/card-finder/pkg/overlap"
	"github.com/menta2k/card-finder/pkg/strategy"
	"github.com/menta2k/card-finder/pkg/types"
	"github.com/menta2k/card-finder/pkg/vision"
)

// Mode selects how strategy results are combined
type Mode int

const (
	// ModeFirstNonEmpty returns the output of the first strategy that
	// produces any accepted candidate
	ModeFirstNonEmpty Mode = iota
	// ModeBlend runs every strategy and resolves overlaps across all of them
	ModeBlend
)

func (m Mode) String() string {
	switch m {
	case ModeFirstNonEmpty:
		return "first"
	case ModeBlend:
		return "blend"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode converts "first" or "blend" into a Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first", "first_non_empty":
		return ModeFirstNonEmpty, nil
	case "blend":
		return ModeBlend, nil
	}
	return ModeFirstNonEmpty, fmt.Errorf("unknown mode: %q", s)
}

// Config is the immutable configuration of an Orchestrator
type Config struct {
	TargetAspect     float64
	MinAreaRatio     float64
	MaxAreaRatio     float64
	MinSizePx        int
	OverlapThreshold float64
	MaxResults       int

	// ExternalTimeout bounds the external model strategy; zero disables it
	ExternalTimeout time.Duration

	// Workers bounds the worker pools of the generators and of DetectBatch
	Workers int
	Mode    Mode

	Scorer   vision.ScorerConfig
	External strategy.ExternalConfig
	Contour  strategy.ContourConfig
	Window   strategy.WindowConfig
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	workers := max(1, runtime.NumCPU())
	contour := strategy.DefaultContourConfig()
	contour.Workers = workers
	window := strategy.DefaultWindowConfig()
	window.Workers = workers

	return Config{
		TargetAspect:     vision.CardAspectRatio,
		MinAreaRatio:     0.01,
		MaxAreaRatio:     0.95,
		MinSizePx:        30,
		OverlapThreshold: overlap.DefaultThreshold,
		MaxResults:       10,
		ExternalTimeout:  30 * time.Second,
		Workers:          workers,
		Mode:             ModeFirstNonEmpty,
		Scorer:           vision.DefaultScorerConfig(),
		External:         strategy.DefaultExternalConfig(),
		Contour:          contour,
		Window:           window,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		return fmt.Errorf("overlap threshold must be in (0,1], got %g", c.OverlapThreshold)
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("max results must be positive")
	}
	if c.ExternalTimeout < 0 {
		return fmt.Errorf("external timeout must not be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Mode != ModeFirstNonEmpty && c.Mode != ModeBlend {
		return fmt.Errorf("invalid mode %s", c.Mode)
	}
	for _, s := range []types.Strategy{types.ExternalModel, types.ContourGrowth, types.SlidingWindow} {
		if err := c.Constraints(s).Validate(); err != nil {
			return fmt.Errorf("%s constraints: %w", s, err)
		}
	}
	if err := c.Scorer.Validate(); err != nil {
		return err
	}
	if err := c.Contour.Weights.Validate(); err != nil {
		return fmt.Errorf("contour %w", err)
	}
	if err := c.Window.Weights.Validate(); err != nil {
		return fmt.Errorf("window %w", err)
	}
	if len(c.Window.Scales) == 0 {
		return fmt.Errorf("window scales must not be empty")
	}
	if c.Window.Overlap < 0 || c.Window.Overlap >= 1 {
		return fmt.Errorf("window overlap must be in [0,1)")
	}
	return nil
}

// Constraints returns the geometric constraints applied to candidates of
// strategy s. Only the aspect tolerance differs between strategies.
func (c Config) Constraints(s types.Strategy) vision.Constraints {
	tol := c.Window.AspectTolerance
	switch s {
	case types.ExternalModel:
		tol = c.External.AspectTolerance
	case types.ContourGrowth:
		tol = c.Contour.AspectTolerance
	}
	return vision.Constraints{
		TargetAspect:    c.TargetAspect,
		AspectTolerance: tol,
		MinAreaRatio:    c.MinAreaRatio,
		MaxAreaRatio:    c.MaxAreaRatio,
		MinSizePx:       c.MinSizePx,
	}
}
