package types

import (
	"encoding/json"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ModelObject is a single object reported by a vision model
type ModelObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// ModelReply is the JSON document the vision model is asked to return
type ModelReply struct {
	Objects []ModelObject `json:"objects"`
}

// Rectangle is an axis-aligned region in source image pixel coordinates.
// X and Y address the top-left corner.
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// NewRectangle builds a Rectangle and checks that it lies inside an image of
// imgW x imgH pixels.
func NewRectangle(x, y, w, h, imgW, imgH int) (Rectangle, error) {
	if x < 0 || y < 0 || w <= 0 || h <= 0 {
		return Rectangle{}, fmt.Errorf("invalid rectangle %dx%d@%d,%d", w, h, x, y)
	}
	if x+w > imgW || y+h > imgH {
		return Rectangle{}, fmt.Errorf("rectangle %dx%d@%d,%d exceeds image %dx%d", w, h, x, y, imgW, imgH)
	}
	return Rectangle{X: x, Y: y, Width: w, Height: h}, nil
}

// Area returns the area of the rectangle in square pixels
func (r Rectangle) Area() int {
	return r.Width * r.Height
}

// AspectRatio returns width divided by height
func (r Rectangle) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// Image returns the rectangle as an image.Rectangle
func (r Rectangle) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Intersection returns the overlapping area of two rectangles
func (r Rectangle) Intersection(o Rectangle) int {
	in := r.Image().Intersect(o.Image())
	return in.Dx() * in.Dy()
}

// Within reports whether the rectangle fits inside an image of the given size
func (r Rectangle) Within(imgW, imgH int) bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0 &&
		r.X+r.Width <= imgW && r.Y+r.Height <= imgH
}

func (r Rectangle) String() string {
	return fmt.Sprintf("%dx%d@%d,%d", r.Width, r.Height, r.X, r.Y)
}

// Strategy identifies the candidate generator that proposed a region
type Strategy int

const (
	StrategyNone Strategy = iota
	ExternalModel
	ContourGrowth
	SlidingWindow
)

var strategyNames = map[Strategy]string{
	StrategyNone:  "none",
	ExternalModel: "external_model",
	ContourGrowth: "contour_growth",
	SlidingWindow: "sliding_window",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy converts a strategy name back into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return StrategyNone, fmt.Errorf("unknown strategy: %q", name)
}

// MarshalJSON encodes the strategy by name
func (s Strategy) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a strategy name
func (s *Strategy) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStrategy(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// CardCandidate is a rectangle proposed as a card location
type CardCandidate struct {
	Rectangle
	Confidence float64  `json:"confidence"`
	Source     Strategy `json:"source"`

	// Label is the model label for ExternalModel candidates
	Label string `json:"label,omitempty"`
}

// Detection is a labeled bounding box returned by an object detector
type Detection struct {
	Box   Rectangle `json:"box"`
	Label string    `json:"label"`
	Score float64   `json:"score"`
}

// Attempt records how a single strategy fared during a detection run
type Attempt struct {
	Strategy   Strategy      `json:"strategy"`
	Candidates int           `json:"candidates"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// DetectionResult is the outcome of one detection run. Candidates are sorted
// by confidence, highest first.
type DetectionResult struct {
	Candidates        []CardCandidate `json:"candidates"`
	ProcessingTime    time.Duration   `json:"-"`
	ProcessingTimeMs  int64           `json:"processing_time_ms"`
	MethodUsed        Strategy        `json:"method_used"`
	BackgroundRemoved bool            `json:"background_removed"`
	Attempts          []Attempt       `json:"attempts,omitempty"`
}

// Empty reports whether no card was found
func (r DetectionResult) Empty() bool {
	return len(r.Candidates) == 0
}

// CroppedCard is a standardized-size image cut from a detected region
type CroppedCard struct {
	ID         uuid.UUID    `json:"id"`
	Bounds     Rectangle    `json:"bounds"`
	Confidence float64      `json:"confidence"`
	Source     Strategy     `json:"source"`
	Image      *image.NRGBA `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`

	// Fallback is set when the crop failed and Image holds the uncropped source
	Fallback bool `json:"fallback,omitempty"`
}
