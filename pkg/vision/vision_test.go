package vision

import (
	"image"
	"image/color"
	"math/rand/v2"
)

// createCardImage draws a solid card rectangle on a noisy dark background.
// Noise stays within +/-6 so background gradients never reach 100.
func createCardImage(width, height int, card image.Rectangle, seed uint64) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	rng := rand.New(rand.NewPCG(seed, 7))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(40 + rng.IntN(13) - 6)
			if (image.Point{x, y}).In(card) {
				v = 160
			}
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}
	return img
}

// createUniformImage returns an image filled with a single colour
func createUniformImage(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}
