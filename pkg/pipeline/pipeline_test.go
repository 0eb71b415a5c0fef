package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/card-finder/internal/logging"
	"github.com/menta2k/card-finder/pkg/strategy"
	"github.com/menta2k/card-finder/pkg/types"
	"github.com/menta2k/card-finder/pkg/vision"
)

func TestMain(m *testing.M) {
	logging.SetLogger(nil)
	m.Run()
}

// createCardImage draws solid light cards on a noisy dark background
func createCardImage(width, height int, cards ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	rng := rand.New(rand.NewPCG(3, 9))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(40 + rng.IntN(13) - 6)
			for _, card := range cards {
				if (image.Point{x, y}).In(card) {
					v = 160
				}
			}
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

func createBlankImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img
}

type fakeGenerator struct {
	name   types.Strategy
	cands  []types.CardCandidate
	err    error
	panics bool
	block  bool
	calls  atomic.Int32
}

func (f *fakeGenerator) Name() types.Strategy { return f.name }

func (f *fakeGenerator) Generate(ctx context.Context, in strategy.Input) (strategy.Result, error) {
	f.calls.Add(1)
	if f.panics {
		panic("index out of range")
	}
	if f.block {
		<-ctx.Done()
		return strategy.Result{}, ctx.Err()
	}
	return strategy.Result{Candidates: f.cands}, f.err
}

type emptyDetector struct{}

func (emptyDetector) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	return nil, nil
}

func card(x, y, w, h int, conf float64, src types.Strategy) types.CardCandidate {
	return types.CardCandidate{
		Rectangle:  types.Rectangle{X: x, Y: y, Width: w, Height: h},
		Confidence: conf,
		Source:     src,
	}
}

func newRealWindow(cfg Config) strategy.Generator {
	return strategy.NewSlidingWindow(cfg.Window, vision.NewScorer(cfg.Scorer))
}

func TestDetectFallsBackToSlidingWindow(t *testing.T) {
	cfg := DefaultConfig()
	external := &fakeGenerator{name: types.ExternalModel}
	contour := &fakeGenerator{name: types.ContourGrowth}
	o, err := NewWithGenerators(cfg, external, contour, newRealWindow(cfg))
	require.NoError(t, err)

	target := types.Rectangle{X: 340, Y: 476, Width: 200, Height: 280}
	res, err := o.Detect(context.Background(), createCardImage(1000, 1400, target.Image()))
	require.NoError(t, err)

	assert.Equal(t, types.SlidingWindow, res.MethodUsed)
	require.NotEmpty(t, res.Candidates)
	assert.Equal(t, target, res.Candidates[0].Rectangle)
	assert.Equal(t, int32(1), external.calls.Load())
	assert.Equal(t, int32(1), contour.calls.Load())
	require.Len(t, res.Attempts, 3)
	assert.Positive(t, res.Attempts[2].Candidates)
	assert.Empty(t, res.Attempts[0].Error)
}

func TestDetectBlankImage(t *testing.T) {
	o, err := New(DefaultConfig(), emptyDetector{}, nil)
	require.NoError(t, err)
	require.Equal(t, []types.Strategy{types.ExternalModel, types.ContourGrowth, types.SlidingWindow}, o.Strategies())

	res, err := o.Detect(context.Background(), createBlankImage(400, 560))
	require.NoError(t, err)

	assert.True(t, res.Empty())
	assert.Equal(t, types.StrategyNone, res.MethodUsed)
	require.Len(t, res.Attempts, 3)
	for _, a := range res.Attempts {
		assert.Empty(t, a.Error)
		assert.Zero(t, a.Candidates)
	}
}

func TestDetectContourScenario(t *testing.T) {
	o, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []types.Strategy{types.ContourGrowth, types.SlidingWindow}, o.Strategies())

	res, err := o.Detect(context.Background(), createCardImage(1000, 1400, image.Rect(100, 100, 500, 700)))
	require.NoError(t, err)

	assert.Equal(t, types.ContourGrowth, res.MethodUsed)
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, types.Rectangle{X: 99, Y: 99, Width: 402, Height: 602}, res.Candidates[0].Rectangle)
	assert.Greater(t, res.Candidates[0].Confidence, 0.8)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, res.ProcessingTime.Milliseconds(), res.ProcessingTimeMs)
}

func TestDetectInvalidInput(t *testing.T) {
	o, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	_, err = o.Detect(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = o.Detect(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDetectRecoversFromFailures(t *testing.T) {
	cfg := DefaultConfig()
	good := card(100, 100, 250, 350, 0.7, types.SlidingWindow)
	o, err := NewWithGenerators(cfg,
		&fakeGenerator{name: types.ExternalModel, panics: true},
		&fakeGenerator{name: types.ContourGrowth, err: errors.New("out of memory")},
		&fakeGenerator{name: types.SlidingWindow, cands: []types.CardCandidate{good}},
	)
	require.NoError(t, err)

	res, err := o.Detect(context.Background(), createBlankImage(1000, 1000))
	require.NoError(t, err)

	assert.Equal(t, []types.CardCandidate{good}, res.Candidates)
	assert.Equal(t, types.SlidingWindow, res.MethodUsed)
	require.Len(t, res.Attempts, 3)
	assert.Contains(t, res.Attempts[0].Error, "panic")
	assert.Contains(t, res.Attempts[1].Error, "out of memory")
	assert.Empty(t, res.Attempts[2].Error)
}

func TestDetectExternalTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExternalTimeout = 20 * time.Millisecond
	good := card(100, 100, 250, 350, 0.6, types.ContourGrowth)
	o, err := NewWithGenerators(cfg,
		&fakeGenerator{name: types.ExternalModel, block: true},
		&fakeGenerator{name: types.ContourGrowth, cands: []types.CardCandidate{good}},
	)
	require.NoError(t, err)

	res, err := o.Detect(context.Background(), createBlankImage(1000, 1000))
	require.NoError(t, err)
	assert.Equal(t, types.ContourGrowth, res.MethodUsed)
	assert.Contains(t, res.Attempts[0].Error, context.DeadlineExceeded.Error())
}

func TestDetectConstraintsTriggerFallback(t *testing.T) {
	cfg := DefaultConfig()
	landscape := card(0, 0, 400, 200, 0.9, types.ExternalModel)
	tiny := card(0, 0, 20, 28, 0.9, types.ExternalModel)
	good := card(500, 500, 250, 350, 0.5, types.ContourGrowth)
	o, err := NewWithGenerators(cfg,
		&fakeGenerator{name: types.ExternalModel, cands: []types.CardCandidate{landscape, tiny}},
		&fakeGenerator{name: types.ContourGrowth, cands: []types.CardCandidate{good}},
	)
	require.NoError(t, err)

	res, err := o.Detect(context.Background(), createBlankImage(1000, 1000))
	require.NoError(t, err)
	assert.Equal(t, []types.CardCandidate{good}, res.Candidates)
	assert.Zero(t, res.Attempts[0].Candidates)
}

func TestDetectCapsResults(t *testing.T) {
	var cands []types.CardCandidate
	for i := 0; i < 15; i++ {
		cands = append(cands, card(i%5*200, i/5*200, 120, 168, float64(i+1)/20, types.SlidingWindow))
	}
	o, err := NewWithGenerators(DefaultConfig(), &fakeGenerator{name: types.SlidingWindow, cands: cands})
	require.NoError(t, err)

	res, err := o.Detect(context.Background(), createBlankImage(1000, 1400))
	require.NoError(t, err)
	require.Len(t, res.Candidates, 10)
	assert.InDelta(t, 0.75, res.Candidates[0].Confidence, 1e-9)
	for i := 1; i < len(res.Candidates); i++ {
		assert.GreaterOrEqual(t, res.Candidates[i-1].Confidence, res.Candidates[i].Confidence)
	}
}

func TestDetectBlendMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeBlend
	a := card(100, 100, 250, 350, 0.6, types.ExternalModel)
	b := card(110, 100, 250, 350, 0.9, types.ContourGrowth)
	c := card(600, 500, 250, 350, 0.5, types.SlidingWindow)
	o, err := NewWithGenerators(cfg,
		&fakeGenerator{name: types.ExternalModel, cands: []types.CardCandidate{a}},
		&fakeGenerator{name: types.ContourGrowth, cands: []types.CardCandidate{b}},
		&fakeGenerator{name: types.SlidingWindow, cands: []types.CardCandidate{c}},
	)
	require.NoError(t, err)

	res, err := o.Detect(context.Background(), createBlankImage(1000, 1000))
	require.NoError(t, err)
	if diff := cmp.Diff([]types.CardCandidate{b, c}, res.Candidates); diff != "" {
		t.Errorf("blend mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, types.ContourGrowth, res.MethodUsed)
	assert.Len(t, res.Attempts, 3)
}

func TestDetectCancelled(t *testing.T) {
	gen := &fakeGenerator{name: types.ContourGrowth}
	o, err := NewWithGenerators(DefaultConfig(), gen)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.Detect(ctx, createBlankImage(100, 100))
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, res.Empty())
	assert.Zero(t, gen.calls.Load())
}

func TestDetectBatch(t *testing.T) {
	o, err := New(DefaultConfig(), nil, nil)
	require.NoError(t, err)

	imgs := []image.Image{
		createCardImage(500, 700, image.Rect(100, 100, 300, 380)),
		createBlankImage(300, 420),
		nil,
		createCardImage(500, 700, image.Rect(200, 300, 400, 580)),
	}
	items := o.DetectBatch(context.Background(), imgs)
	require.Len(t, items, 4)

	require.NoError(t, items[0].Err)
	require.Len(t, items[0].Result.Candidates, 1)
	assert.Equal(t, types.Rectangle{X: 99, Y: 99, Width: 202, Height: 282}, items[0].Result.Candidates[0].Rectangle)

	require.NoError(t, items[1].Err)
	assert.True(t, items[1].Result.Empty())

	assert.ErrorIs(t, items[2].Err, ErrInvalidInput)

	require.NoError(t, items[3].Err)
	require.Len(t, items[3].Result.Candidates, 1)
	assert.Equal(t, types.Rectangle{X: 199, Y: 299, Width: 202, Height: 282}, items[3].Result.Candidates[0].Rectangle)
}

func TestDetectBatchCancelled(t *testing.T) {
	gen := &fakeGenerator{name: types.SlidingWindow}
	o, err := NewWithGenerators(DefaultConfig(), gen)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	items := o.DetectBatch(ctx, []image.Image{createBlankImage(10, 10), createBlankImage(10, 10)})
	require.Len(t, items, 2)
	for _, it := range items {
		assert.ErrorIs(t, it.Err, context.Canceled)
	}
	assert.Zero(t, gen.calls.Load())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap", func(c *Config) { c.OverlapThreshold = 0 }},
		{"max results", func(c *Config) { c.MaxResults = 0 }},
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"area", func(c *Config) { c.MinAreaRatio = 0.9; c.MaxAreaRatio = 0.1 }},
		{"weights", func(c *Config) { c.Contour.Weights.Border = 0.9 }},
		{"scales", func(c *Config) { c.Window.Scales = nil }},
		{"mode", func(c *Config) { c.Mode = Mode(7) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := New(cfg, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("blend")
	require.NoError(t, err)
	assert.Equal(t, ModeBlend, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFirstNonEmpty, m)

	_, err = ParseMode("vote")
	assert.Error(t, err)
	assert.Equal(t, "blend", ModeBlend.String())
}
