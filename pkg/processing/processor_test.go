package processing

import (
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/card-finder/pkg/types"
)

func createTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x % 256), uint8(y % 256), 100, 255})
		}
	}
	return img
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(64, 48)

	for _, format := range []string{"png", "jpg", "webp"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(dir, "card."+format)
			require.NoError(t, p.SaveImage(img, path, format, 90, true))

			loaded, err := p.LoadImage(path)
			require.NoError(t, err)
			assert.Equal(t, 64, loaded.Bounds().Dx())
			assert.Equal(t, 48, loaded.Bounds().Dy())
		})
	}
}

func TestLoadImageErrors(t *testing.T) {
	p := NewProcessor()
	_, err := p.LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.png")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))
	_, err = p.LoadImage(garbage)
	assert.Error(t, err)
}

func TestLoadImageFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/card.png":
			w.Header().Set("Content-Type", "image/png")
			_ = png.Encode(w, createTestImage(20, 28))
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessor()
	img, err := p.LoadImageSmart(context.Background(), srv.URL+"/card.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 28), img.Bounds())

	_, err = p.LoadImageFromURL(context.Background(), srv.URL+"/page")
	assert.Error(t, err)

	_, err = p.LoadImageFromURL(context.Background(), srv.URL+"/missing")
	assert.Error(t, err)

	_, err = p.LoadImageFromURL(context.Background(), "ftp://example.com/card.png")
	assert.Error(t, err)
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "png", 100, 80)
	require.NoError(t, err)

	data, err := base64.StdEncoding.DecodeString(b64)
	require.NoError(t, err)
	img, err := p.DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	src := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	cands := []types.CardCandidate{
		{Rectangle: types.Rectangle{X: 10, Y: 10, Width: 50, Height: 70}, Confidence: 0.9, Source: types.ContourGrowth},
		{Rectangle: types.Rectangle{X: 150, Y: 150, Width: 80, Height: 80}, Confidence: 0.4, Source: types.SlidingWindow},
	}

	out := p.CreateDebugOverlay(src, cands)
	require.Equal(t, src.Bounds(), out.Bounds())

	assert.NotEqual(t, uint8(0), out.NRGBAAt(10, 40).A, "left edge of first candidate")
	assert.Equal(t, uint8(0), out.NRGBAAt(35, 40).A, "interior stays untouched")
	assert.NotEqual(t, uint8(0), out.NRGBAAt(199, 150).A, "clipped candidate still drawn")
	assert.Equal(t, uint8(0), src.NRGBAAt(10, 40).A, "source is not modified")
}
