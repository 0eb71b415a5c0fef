package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPixelBufferLuma(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 255, 0, 255})
	img.SetNRGBA(2, 0, color.NRGBA{0, 0, 255, 255})

	buf, err := NewPixelBuffer(img)
	require.NoError(t, err)

	assert.Equal(t, 3, buf.Width)
	assert.Equal(t, 1, buf.Height)
	assert.Equal(t, uint8(76), buf.At(0, 0))
	assert.Equal(t, uint8(150), buf.At(1, 0))
	assert.Equal(t, uint8(29), buf.At(2, 0))
}

func TestNewPixelBufferRebasesSubImage(t *testing.T) {
	img := createUniformImage(20, 20, color.NRGBA{10, 10, 10, 255})
	img.SetNRGBA(5, 6, color.NRGBA{200, 200, 200, 255})
	sub := img.SubImage(image.Rect(5, 6, 15, 16))

	buf, err := NewPixelBuffer(sub)
	require.NoError(t, err)
	assert.Equal(t, 10, buf.Width)
	assert.Equal(t, uint8(200), buf.At(0, 0))
	assert.Equal(t, image.Rect(0, 0, 10, 10), buf.RGBA.Bounds())
}

func TestNewPixelBufferInvalid(t *testing.T) {
	_, err := NewPixelBuffer(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = NewPixelBuffer(image.NewNRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestNewGrayBuffer(t *testing.T) {
	samples := []uint8{1, 2, 3, 4, 5, 6}
	buf, err := NewGrayBuffer(samples, 3, 2)
	require.NoError(t, err)

	samples[0] = 99
	assert.Equal(t, uint8(1), buf.At(0, 0), "buffer must own its samples")
	assert.Equal(t, uint8(6), buf.At(2, 1))
	assert.True(t, buf.In(2, 1))
	assert.False(t, buf.In(3, 1))

	_, err = NewGrayBuffer(samples, 4, 2)
	assert.Error(t, err)
}
