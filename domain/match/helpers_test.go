package match

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// noiseBuffer creates a w x h buffer with seeded random samples in [0, 200).
func noiseBuffer(w, h, channels int, seed int64) PixelBuffer {
	r := rand.New(rand.NewSource(seed))
	pix := make([]uint8, w*h*channels)
	for i := range pix {
		pix[i] = uint8(r.Intn(200))
	}
	return PixelBuffer{Width: w, Height: h, Channels: channels, Pix: pix}
}

// flatBuffer creates a buffer where every sample is v.
func flatBuffer(w, h, channels int, v uint8) PixelBuffer {
	pix := make([]uint8, w*h*channels)
	for i := range pix {
		pix[i] = v
	}
	return PixelBuffer{Width: w, Height: h, Channels: channels, Pix: pix}
}

// crop copies the w x h block at (x, y).
func crop(b PixelBuffer, x, y, w, h int) PixelBuffer {
	out := make([]uint8, 0, w*h*b.Channels)
	for row := y; row < y+h; row++ {
		start := (row*b.Width + x) * b.Channels
		out = append(out, b.Pix[start:start+w*b.Channels]...)
	}
	return PixelBuffer{Width: w, Height: h, Channels: b.Channels, Pix: out}
}

// paste writes src into dst with its top-left at (x, y).
func paste(dst, src PixelBuffer, x, y int) {
	for row := 0; row < src.Height; row++ {
		d := ((y+row)*dst.Width + x) * dst.Channels
		s := row * src.Width * src.Channels
		copy(dst.Pix[d:d+src.Width*src.Channels], src.Pix[s:s+src.Width*src.Channels])
	}
}

// glyphPattern is a seeded binary 0/255 luma pattern, distinct per digit.
func glyphPattern(digit int) PixelBuffer {
	const w, h = 8, 10
	r := rand.New(rand.NewSource(int64(1000 + digit*7919)))
	pix := make([]uint8, w*h)
	for i := range pix {
		if r.Intn(2) == 1 {
			pix[i] = 255
		}
	}
	return PixelBuffer{Width: w, Height: h, Channels: 1, Pix: pix}
}

// padded copies m into a map whose rows carry extra trailing cells. The
// padding holds perfect scores so any read of it shows up in results.
func padded(t *testing.T, m ConfidenceMap, extra int) ConfidenceMap {
	t.Helper()
	require.Positive(t, extra)
	stride := m.Cols + extra
	scores := make([]float32, m.Rows*stride)
	for i := range scores {
		scores[i] = 1
	}
	for r := 0; r < m.Rows; r++ {
		copy(scores[r*stride:r*stride+m.Cols], m.Scores[r*m.Stride:r*m.Stride+m.Cols])
	}
	out := m
	out.Stride = stride
	out.Scores = scores
	return out
}
