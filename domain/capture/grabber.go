package capture

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/soocke/pixelmatch/domain/match"
)

// Grabber captures a rectangular screen region as RGBA. Implementations
// return errors wrapping match.ErrCaptureUnavailable when there is nothing to
// capture from.
type Grabber interface {
	Grab(r match.Region) (*image.RGBA, error)
}

// ScreenGrabber captures from the primary display.
type ScreenGrabber struct{}

// NewScreenGrabber returns a Grabber backed by the live display.
func NewScreenGrabber() *ScreenGrabber { return &ScreenGrabber{} }

// Grab captures r clipped to the screen.
func (ScreenGrabber) Grab(r match.Region) (*image.RGBA, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	screen, err := screenBounds()
	if err != nil {
		return nil, err
	}
	sel := image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
	clip := sel.Intersect(screen)
	if clip.Empty() || clip.Min != sel.Min {
		return nil, fmt.Errorf("%w: out of bounds sel=%v screen=%v", match.ErrInvalidRegion, sel, screen)
	}
	return grabScreen(clip)
}

// ImageGrabber serves regions out of a stored screenshot, so every operation
// can run against a file instead of the live display.
type ImageGrabber struct {
	img image.Image
}

// NewImageGrabber wraps img, whose bounds are taken as screen coordinates.
func NewImageGrabber(img image.Image) *ImageGrabber { return &ImageGrabber{img: img} }

// Grab crops r out of the stored image.
func (g *ImageGrabber) Grab(r match.Region) (*image.RGBA, error) {
	if g.img == nil {
		return nil, fmt.Errorf("%w: no screen image", match.ErrCaptureUnavailable)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	out, _, err := ExtractRegion(g.img, image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H))
	return out, err
}

// ExtractRegion copies sel, clamped to the source bounds, into a pooled
// frame whose origin is (0,0). It returns the frame and the clamped rectangle.
// Only the right and bottom edges may be clamped, so frame coordinates stay
// relative to sel.Min.
func ExtractRegion(src image.Image, sel image.Rectangle) (*image.RGBA, image.Rectangle, error) {
	if src == nil {
		return nil, image.Rectangle{}, errors.New("nil frame")
	}
	clip := sel.Intersect(src.Bounds())
	if clip.Empty() || clip.Min != sel.Min {
		return nil, image.Rectangle{}, fmt.Errorf("%w: out of bounds sel=%v frame=%v", match.ErrInvalidRegion, sel, src.Bounds())
	}
	out := acquireFrame(image.Rect(0, 0, clip.Dx(), clip.Dy()))
	draw.Draw(out, out.Bounds(), src, clip.Min, draw.Src)
	return out, clip, nil
}
