package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRectangle(t *testing.T) {
	tests := []struct {
		name       string
		x, y, w, h int
		wantErr    bool
	}{
		{"inside", 10, 10, 50, 70, false},
		{"full image", 0, 0, 100, 140, false},
		{"negative x", -1, 0, 10, 10, true},
		{"zero width", 0, 0, 0, 10, true},
		{"past right edge", 60, 0, 41, 10, true},
		{"past bottom edge", 0, 100, 10, 41, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRectangle(tt.x, tt.y, tt.w, tt.h, 100, 140)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, r.Within(100, 140))
			assert.Equal(t, tt.w*tt.h, r.Area())
		})
	}
}

func TestRectangleIntersection(t *testing.T) {
	a := Rectangle{X: 0, Y: 0, Width: 100, Height: 100}
	b := Rectangle{X: 50, Y: 50, Width: 100, Height: 100}
	c := Rectangle{X: 200, Y: 200, Width: 10, Height: 10}

	assert.Equal(t, 2500, a.Intersection(b))
	assert.Equal(t, 2500, b.Intersection(a))
	assert.Equal(t, 0, a.Intersection(c))
}

func TestRectangleAspectRatio(t *testing.T) {
	r := Rectangle{Width: 250, Height: 350}
	assert.InDelta(t, 2.5/3.5, r.AspectRatio(), 1e-9)
	assert.Zero(t, Rectangle{Width: 10}.AspectRatio())
}

func TestStrategyNames(t *testing.T) {
	for _, s := range []Strategy{StrategyNone, ExternalModel, ContourGrowth, SlidingWindow} {
		parsed, err := ParseStrategy(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseStrategy("hough")
	assert.Error(t, err)
	assert.Equal(t, "strategy(42)", Strategy(42).String())
}

func TestDetectionResultJSON(t *testing.T) {
	res := DetectionResult{
		Candidates: []CardCandidate{{
			Rectangle:  Rectangle{X: 1, Y: 2, Width: 30, Height: 42},
			Confidence: 0.75,
			Source:     ContourGrowth,
		}},
		ProcessingTimeMs: 12,
		MethodUsed:       ContourGrowth,
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"method_used":"contour_growth"`)
	assert.Contains(t, string(data), `"width":30`)

	var back DetectionResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, res.Candidates, back.Candidates)
	assert.Equal(t, ContourGrowth, back.MethodUsed)
	assert.False(t, back.Empty())
}
