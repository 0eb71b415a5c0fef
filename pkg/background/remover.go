// Package background is a local BackgroundRemover. It assumes the card lies
// on a roughly uniform surface that touches the image border, estimates that
// surface colour from the border ring and flattens every pixel close to it.
package background

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

// ErrNotUniform is returned when the border ring is too varied to be a
// background
var ErrNotUniform = errors.New("background is not uniform")

// Config tunes the remover
type Config struct {
	// BlurRadius of the Gaussian applied before colour comparison
	BlurRadius float64 `json:"blur_radius"`
	// Threshold is the CIE L*a*b* distance under which a pixel counts as
	// background
	Threshold float64 `json:"threshold"`
	// BorderWidth is the width in pixels of the ring sampled for the
	// background colour
	BorderWidth int `json:"border_width"`
	// MaxSpread is the largest mean Lab distance of ring pixels to their
	// mean colour
	MaxSpread float64 `json:"max_spread"`
}

// DefaultConfig returns the default remover settings
func DefaultConfig() Config {
	return Config{
		BlurRadius:  2,
		Threshold:   0.12,
		BorderWidth: 4,
		MaxSpread:   0.15,
	}
}

// Remover flattens a uniform background to a single colour
type Remover struct {
	config Config
}

// New creates a Remover
func New(config Config) *Remover {
	return &Remover{config: config}
}

// RemoveBackground returns a copy of img where every pixel near the border
// colour is replaced by that colour. The source image is not modified.
func (r *Remover) RemoveBackground(ctx context.Context, img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}
	b := img.Bounds()
	bw := max(1, r.config.BorderWidth)
	if b.Dx() <= 2*bw || b.Dy() <= 2*bw {
		return nil, fmt.Errorf("image %dx%d too small for a %dpx border", b.Dx(), b.Dy(), bw)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	smooth := src
	if r.config.BlurRadius > 0 {
		smooth = imaging.Clone(blur.Gaussian(src, r.config.BlurRadius))
	}

	bg, spread := borderColor(smooth, bw)
	if spread > r.config.MaxSpread {
		return nil, fmt.Errorf("%w: border spread %.3f", ErrNotUniform, spread)
	}
	br, bgG, bb := bg.RGB255()
	fill := color.NRGBA{br, bgG, bb, 255}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < w; x++ {
			c := toColorful(smooth.NRGBAAt(x, y))
			if c.DistanceLab(bg) < r.config.Threshold {
				src.SetNRGBA(x, y, fill)
			}
		}
	}
	return src, nil
}

// borderColor averages the ring of width bw in linear RGB and returns the
// mean colour and the mean Lab distance of the ring to it.
func borderColor(img *image.NRGBA, bw int) (colorful.Color, float64) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var ring []colorful.Color
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= bw && x < w-bw && y >= bw && y < h-bw {
				continue
			}
			ring = append(ring, toColorful(img.NRGBAAt(x, y)))
		}
	}

	var sr, sg, sb float64
	for _, c := range ring {
		lr, lg, lb := c.LinearRgb()
		sr, sg, sb = sr+lr, sg+lg, sb+lb
	}
	n := float64(len(ring))
	mean := colorful.LinearRgb(sr/n, sg/n, sb/n)

	var spread float64
	for _, c := range ring {
		spread += c.DistanceLab(mean)
	}
	return mean.Clamped(), spread / n
}

func toColorful(c color.NRGBA) colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}
