package vision

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned when a buffer is requested for a nil or
// zero-area image.
var ErrEmptyImage = errors.New("empty image")

// PixelBuffer is a read-only view of a decoded image. Gray holds one luma
// sample per pixel in row-major order; RGBA keeps the colour source with its
// origin moved to (0,0).
type PixelBuffer struct {
	Width  int
	Height int
	Gray   []uint8
	RGBA   *image.NRGBA
}

// NewPixelBuffer converts img into a PixelBuffer. Luma is computed as
// 0.299R + 0.587G + 0.114B, rounded to the nearest integer.
func NewPixelBuffer(img image.Image) (*PixelBuffer, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, b.Dx(), b.Dy())
	}

	nrgba := imaging.Clone(img)
	w, h := nrgba.Bounds().Dx(), nrgba.Bounds().Dy()
	gray := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < w; x++ {
			i := x * 4
			gray[y*w+x] = luma(row[i], row[i+1], row[i+2])
		}
	}

	return &PixelBuffer{Width: w, Height: h, Gray: gray, RGBA: nrgba}, nil
}

// NewGrayBuffer wraps an existing row-major grayscale sample slice. The
// slice is copied.
func NewGrayBuffer(samples []uint8, width, height int) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}
	if len(samples) != width*height {
		return nil, fmt.Errorf("sample count %d does not match %dx%d", len(samples), width, height)
	}
	gray := make([]uint8, len(samples))
	copy(gray, samples)

	rgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	for i, v := range gray {
		rgba.Pix[i*4+0] = v
		rgba.Pix[i*4+1] = v
		rgba.Pix[i*4+2] = v
		rgba.Pix[i*4+3] = 0xff
	}
	return &PixelBuffer{Width: width, Height: height, Gray: gray, RGBA: rgba}, nil
}

func luma(r, g, b uint8) uint8 {
	v := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(math.Min(255, math.Round(v)))
}

// At returns the luma at (x, y). The caller must stay within bounds.
func (p *PixelBuffer) At(x, y int) uint8 {
	return p.Gray[y*p.Width+x]
}

// In reports whether (x, y) addresses a pixel of the buffer
func (p *PixelBuffer) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < p.Width && y < p.Height
}

// Area returns the number of pixels
func (p *PixelBuffer) Area() int {
	return p.Width * p.Height
}
