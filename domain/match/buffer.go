package match

import (
	"fmt"
	"image"
	"image/color"
)

// PixelBuffer is a tightly packed, row-major grid of 8-bit samples.
// Channels is 1 (luma) or 3 (R, G, B).
type PixelBuffer struct {
	Width, Height int
	Channels      int
	Pix           []uint8
}

// NewPixelBuffer validates the declared shape against the sample slice.
func NewPixelBuffer(width, height, channels int, pix []uint8) (PixelBuffer, error) {
	if width < 1 || height < 1 {
		return PixelBuffer{}, fmt.Errorf("%w: %dx%d", ErrInvalidBufferShape, width, height)
	}
	if channels != 1 && channels != 3 {
		return PixelBuffer{}, fmt.Errorf("%w: %d channels", ErrInvalidBufferShape, channels)
	}
	if len(pix) != width*height*channels {
		return PixelBuffer{}, fmt.Errorf("%w: have %d samples, want %d*%d*%d",
			ErrInvalidBufferShape, len(pix), width, height, channels)
	}
	return PixelBuffer{Width: width, Height: height, Channels: channels, Pix: pix}, nil
}

// Gray reports whether the buffer is single channel.
func (b PixelBuffer) Gray() bool { return b.Channels == 1 }

// ColorAt returns the pixel at (x, y). Luma buffers replicate the sample.
func (b PixelBuffer) ColorAt(x, y int) Color {
	i := (y*b.Width + x) * b.Channels
	if b.Channels == 1 {
		v := b.Pix[i]
		return Color{R: v, G: v, B: v}
	}
	return Color{R: b.Pix[i], G: b.Pix[i+1], B: b.Pix[i+2]}
}

// luma is the fixed-point 0.299/0.587/0.114 weighting, same as color.GrayModel.
func luma(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

// ToGray converts to a single-channel buffer. A luma buffer is returned as is,
// so the result never depends on whether conversion already happened.
func (b PixelBuffer) ToGray() PixelBuffer {
	if b.Channels == 1 {
		return b
	}
	n := b.Width * b.Height
	out := make([]uint8, n)
	for i, j := 0, 0; i < n; i, j = i+1, j+3 {
		out[i] = luma(b.Pix[j], b.Pix[j+1], b.Pix[j+2])
	}
	return PixelBuffer{Width: b.Width, Height: b.Height, Channels: 1, Pix: out}
}

// FromRGBA converts a captured RGBA frame into a working buffer with the
// requested channel count. Alpha is dropped.
func FromRGBA(img *image.RGBA, channels int) (PixelBuffer, error) {
	if img == nil {
		return PixelBuffer{}, fmt.Errorf("%w: nil frame", ErrInvalidBufferShape)
	}
	if channels != 1 && channels != 3 {
		return PixelBuffer{}, fmt.Errorf("%w: %d channels", ErrInvalidBufferShape, channels)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 1 || h < 1 {
		return PixelBuffer{}, fmt.Errorf("%w: empty frame %v", ErrInvalidBufferShape, b)
	}
	out := make([]uint8, w*h*channels)
	if img.Stride == w*4 {
		// Contiguous rows: one flat pass.
		start := img.PixOffset(b.Min.X, b.Min.Y)
		packRow(out, img.Pix[start:start+w*h*4], channels)
	} else {
		for y := 0; y < h; y++ {
			start := img.PixOffset(b.Min.X, b.Min.Y+y)
			packRow(out[y*w*channels:(y+1)*w*channels], img.Pix[start:start+w*4], channels)
		}
	}
	return PixelBuffer{Width: w, Height: h, Channels: channels, Pix: out}, nil
}

func packRow(dst, src []uint8, channels int) {
	j := 0
	for i := 0; i+3 < len(src); i += 4 {
		r, g, bb := src[i], src[i+1], src[i+2]
		if channels == 1 {
			dst[j] = luma(r, g, bb)
			j++
			continue
		}
		dst[j], dst[j+1], dst[j+2] = r, g, bb
		j += 3
	}
}

// FromImage converts any decoded image into a 3-channel buffer.
func FromImage(img image.Image) (PixelBuffer, error) {
	if img == nil {
		return PixelBuffer{}, fmt.Errorf("%w: nil image", ErrInvalidBufferShape)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return FromRGBA(rgba, 3)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 1 || h < 1 {
		return PixelBuffer{}, fmt.Errorf("%w: empty image %v", ErrInvalidBufferShape, b)
	}
	out := make([]uint8, 0, w*h*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return PixelBuffer{Width: w, Height: h, Channels: 3, Pix: out}, nil
}

// Image renders the buffer as an opaque image for persistence.
func (b PixelBuffer) Image() image.Image {
	if b.Channels == 1 {
		g := image.NewGray(image.Rect(0, 0, b.Width, b.Height))
		copy(g.Pix, b.Pix)
		return g
	}
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for i, j := 0, 0; j < len(b.Pix); i, j = i+4, j+3 {
		img.Pix[i] = b.Pix[j]
		img.Pix[i+1] = b.Pix[j+1]
		img.Pix[i+2] = b.Pix[j+2]
		img.Pix[i+3] = 0xFF
	}
	return img
}
