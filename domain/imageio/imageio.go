// Package imageio decodes template files into working buffers and persists
// buffers back to disk.
package imageio

import (
	"fmt"
	"image"
	"io"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp" // glyph libraries ship as .bmp
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/soocke/pixelmatch/domain/match"
)

// Load reads and decodes the image at path into a 3-channel buffer. Any
// failure, including an empty image, wraps match.ErrTemplateUnreadable.
func Load(path string) (match.PixelBuffer, error) {
	if _, err := os.Stat(path); err != nil {
		return match.PixelBuffer{}, fmt.Errorf("%w: %s: %v", match.ErrTemplateUnreadable, path, err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		return match.PixelBuffer{}, fmt.Errorf("%w: %s: %v", match.ErrTemplateUnreadable, path, err)
	}
	return toBuffer(img, path)
}

// Decode is Load for an in-memory stream; name is only used in errors.
func Decode(r io.Reader, name string) (match.PixelBuffer, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return match.PixelBuffer{}, fmt.Errorf("%w: %s: %v", match.ErrTemplateUnreadable, name, err)
	}
	return toBuffer(img, name)
}

func toBuffer(img image.Image, name string) (match.PixelBuffer, error) {
	b := img.Bounds()
	if b.Dx() < 1 || b.Dy() < 1 {
		return match.PixelBuffer{}, fmt.Errorf("%w: %s: empty image", match.ErrTemplateUnreadable, name)
	}
	buf, err := match.FromImage(img)
	if err != nil {
		return match.PixelBuffer{}, fmt.Errorf("%w: %s: %v", match.ErrTemplateUnreadable, name, err)
	}
	return buf, nil
}

// Save writes buf to path; the format follows the file extension.
func Save(buf match.PixelBuffer, path string) error {
	if _, err := match.NewPixelBuffer(buf.Width, buf.Height, buf.Channels, buf.Pix); err != nil {
		return err
	}
	if err := imaging.Save(buf.Image(), path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// SaveImage writes an already rendered image, e.g. a raw capture.
func SaveImage(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
