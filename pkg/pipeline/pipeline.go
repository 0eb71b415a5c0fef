// Package pipeline runs the card candidate strategies against an image in
// priority order and turns their output into a ranked, de-duplicated
// DetectionResult.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/card-finder/internal/logging"
	"github.com/menta2k/card-finder/pkg/client"
	"github.com/menta2k/card-finder/pkg/overlap"
	"github.com/menta2k/card-finder/pkg/strategy"
	"github.com/menta2k/card-finder/pkg/types"
	"github.com/menta2k/card-finder/pkg/vision"
)

// ErrInvalidInput is returned for nil or zero-area images
var ErrInvalidInput = errors.New("invalid input image")

// Orchestrator runs a fixed, ordered list of generators. It holds no
// per-run state and is safe for concurrent use.
type Orchestrator struct {
	config     Config
	generators []strategy.Generator
}

// New builds the default strategy chain: the external model strategy when
// detector is non-nil, then region growing, then the sliding window.
// remover may be nil.
func New(config Config, detector client.ObjectDetector, remover client.BackgroundRemover) (*Orchestrator, error) {
	config.Scorer.TargetAspect = config.TargetAspect
	config.External.TargetAspect = config.TargetAspect
	config.Window.TargetAspect = config.TargetAspect
	if config.Contour.Workers < 1 {
		config.Contour.Workers = config.Workers
	}
	if config.Window.Workers < 1 {
		config.Window.Workers = config.Workers
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	scorer := vision.NewScorer(config.Scorer)
	var gens []strategy.Generator
	if detector != nil {
		gens = append(gens, strategy.NewExternal(config.External, detector, remover))
	}
	gens = append(gens,
		strategy.NewContour(config.Contour, scorer),
		strategy.NewSlidingWindow(config.Window, scorer),
	)
	return &Orchestrator{config: config, generators: gens}, nil
}

// NewWithGenerators builds an orchestrator over a custom strategy chain
func NewWithGenerators(config Config, generators ...strategy.Generator) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if len(generators) == 0 {
		return nil, fmt.Errorf("at least one generator is required")
	}
	return &Orchestrator{config: config, generators: generators}, nil
}

// Config returns the orchestrator configuration
func (o *Orchestrator) Config() Config {
	return o.config
}

// Strategies returns the strategy chain in priority order
func (o *Orchestrator) Strategies() []types.Strategy {
	out := make([]types.Strategy, len(o.generators))
	for i, g := range o.generators {
		out[i] = g.Name()
	}
	return out
}

// Detect finds card regions in img. Strategy failures, panics and timeouts
// count as empty output and are recorded in the result's Attempts. Only an
// invalid image or a cancelled context produce an error.
func (o *Orchestrator) Detect(ctx context.Context, img image.Image) (types.DetectionResult, error) {
	start := time.Now()
	var res types.DetectionResult

	if img == nil {
		return res, fmt.Errorf("%w: nil image", ErrInvalidInput)
	}
	if b := img.Bounds(); b.Empty() {
		return res, fmt.Errorf("%w: zero-area image %dx%d", ErrInvalidInput, b.Dx(), b.Dy())
	}

	buf, err := vision.NewPixelBuffer(img)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	in := strategy.Input{Image: img, Buffer: buf, Edges: vision.BuildEdgeMap(buf)}

	var pool []types.CardCandidate
	for _, g := range o.generators {
		if err := ctx.Err(); err != nil {
			o.finish(&res, start)
			return res, err
		}

		out, attempt := o.run(ctx, g, in)
		accepted := o.config.Constraints(g.Name()).Filter(out.Candidates, buf.Width, buf.Height)
		attempt.Candidates = len(accepted)
		res.Attempts = append(res.Attempts, attempt)
		if out.BackgroundRemoved {
			res.BackgroundRemoved = true
		}

		if o.config.Mode == ModeBlend {
			pool = append(pool, accepted...)
			continue
		}
		if len(accepted) > 0 {
			res.Candidates = o.resolve(accepted)
			res.MethodUsed = g.Name()
			break
		}
	}

	if o.config.Mode == ModeBlend {
		res.Candidates = o.resolve(pool)
		if len(res.Candidates) > 0 {
			res.MethodUsed = res.Candidates[0].Source
		}
	}

	if err := ctx.Err(); err != nil && res.Empty() {
		o.finish(&res, start)
		return res, err
	}

	o.finish(&res, start)
	logging.Logf("card detection: %d candidates via %s in %dms", len(res.Candidates), res.MethodUsed, res.ProcessingTimeMs)
	return res, nil
}

func (o *Orchestrator) resolve(cands []types.CardCandidate) []types.CardCandidate {
	kept := overlap.Resolve(cands, o.config.OverlapThreshold)
	if len(kept) > o.config.MaxResults {
		kept = kept[:o.config.MaxResults]
	}
	return kept
}

func (o *Orchestrator) finish(res *types.DetectionResult, start time.Time) {
	res.ProcessingTime = time.Since(start)
	res.ProcessingTimeMs = res.ProcessingTime.Milliseconds()
}

type outcome struct {
	result strategy.Result
	err    error
}

// run executes one generator in its own goroutine so that a slow external
// capability can be abandoned on timeout. Panics are converted to errors.
func (o *Orchestrator) run(ctx context.Context, g strategy.Generator, in strategy.Input) (strategy.Result, types.Attempt) {
	name := g.Name()
	attempt := types.Attempt{Strategy: name}
	start := time.Now()

	if name == types.ExternalModel && o.config.ExternalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.ExternalTimeout)
		defer cancel()
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		result, err := g.Generate(ctx, in)
		done <- outcome{result: result, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
	}
	attempt.Duration = time.Since(start)

	if out.err != nil {
		failure := &strategy.Failure{Strategy: name, Err: out.err}
		logging.Logf("%v", failure)
		attempt.Error = failure.Error()
		return strategy.Result{}, attempt
	}
	return out.result, attempt
}

// BatchItem is the outcome for one image of DetectBatch
type BatchItem struct {
	Result types.DetectionResult
	Err    error
}

// DetectBatch runs Detect for every image on a pool of Config.Workers
// goroutines. Items keep the order of imgs. Once ctx is cancelled no new
// image is started and the remaining items carry ctx.Err().
func (o *Orchestrator) DetectBatch(ctx context.Context, imgs []image.Image) []BatchItem {
	items := make([]BatchItem, len(imgs))

	var g errgroup.Group
	g.SetLimit(o.config.Workers)
	for i, img := range imgs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(imgs); j++ {
				items[j].Err = err
			}
			break
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				items[i].Err = err
				return nil
			}
			res, err := o.Detect(ctx, img)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}
