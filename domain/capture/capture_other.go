//go:build !windows

package capture

import (
	"fmt"
	"image"

	"github.com/vova616/screenshot"

	"github.com/soocke/pixelmatch/domain/match"
)

// screenBounds reports the primary display rectangle. A missing X display
// surfaces here as ErrCaptureUnavailable.
func screenBounds() (image.Rectangle, error) {
	r, err := screenshot.ScreenRect()
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("%w: %v", match.ErrCaptureUnavailable, err)
	}
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: empty screen", match.ErrCaptureUnavailable)
	}
	return r, nil
}

// grabScreen captures r, which must already lie inside screenBounds.
func grabScreen(r image.Rectangle) (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", match.ErrCaptureUnavailable, err)
	}
	return img, nil
}
