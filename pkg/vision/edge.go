package vision

import "math"

// EdgeMap holds per-pixel Sobel gradient magnitudes in row-major order, with
// the same dimensions as the PixelBuffer it was built from.
type EdgeMap struct {
	Width  int
	Height int
	Mag    []uint8
}

// BuildEdgeMap convolves the buffer's luma with the 3x3 Sobel kernels.
//
//	Gx = [-1 0 1; -2 0 2; -1 0 1]
//	Gy = [-1 -2 -1; 0 0 0; 1 2 1]
//
// Magnitude is min(255, sqrt(Gx² + Gy²)), truncated. The one-pixel border is
// skipped and stays zero.
func BuildEdgeMap(buf *PixelBuffer) *EdgeMap {
	w, h := buf.Width, buf.Height
	mag := make([]uint8, w*h)
	g := buf.Gray

	for y := 1; y < h-1; y++ {
		up := (y - 1) * w
		mid := y * w
		down := (y + 1) * w
		for x := 1; x < w-1; x++ {
			p00, p01, p02 := int(g[up+x-1]), int(g[up+x]), int(g[up+x+1])
			p10, p12 := int(g[mid+x-1]), int(g[mid+x+1])
			p20, p21, p22 := int(g[down+x-1]), int(g[down+x]), int(g[down+x+1])

			gx := -p00 + p02 - 2*p10 + 2*p12 - p20 + p22
			gy := -p00 - 2*p01 - p02 + p20 + 2*p21 + p22

			m := math.Sqrt(float64(gx*gx + gy*gy))
			if m > 255 {
				m = 255
			}
			mag[mid+x] = uint8(m)
		}
	}

	return &EdgeMap{Width: w, Height: h, Mag: mag}
}

// At returns the magnitude at (x, y). The caller must stay within bounds.
func (e *EdgeMap) At(x, y int) uint8 {
	return e.Mag[y*e.Width+x]
}

// In reports whether (x, y) addresses a pixel of the map
func (e *EdgeMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < e.Width && y < e.Height
}
