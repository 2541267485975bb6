package match

import (
	"errors"
	"fmt"
)

// Error kinds reported by the engine and its collaborators. Callers match
// them with errors.Is; call sites add context with %w.
var (
	ErrCaptureUnavailable       = errors.New("no capturable surface")
	ErrTemplateUnreadable       = errors.New("template unreadable")
	ErrTemplateLargerThanSource = errors.New("template larger than source")
	ErrInvalidBufferShape       = errors.New("invalid buffer shape")
	ErrInvalidRegion            = errors.New("invalid region")
)

// Color is an RGB triple. Channel order is always R, G, B.
type Color struct {
	R, G, B uint8
}

// Point is an integer pixel coordinate.
type Point struct {
	X, Y int
}

// PointF is a sub-pixel coordinate, used for unrounded candidate centers.
type PointF struct {
	X, Y float64
}

// Region is a rectangle in absolute screen coordinates.
type Region struct {
	X, Y int
	W, H int
}

// Validate reports ErrInvalidRegion when either dimension is below 1.
func (r Region) Validate() error {
	if r.W < 1 || r.H < 1 {
		return fmt.Errorf("%w: %dx%d at (%d,%d)", ErrInvalidRegion, r.W, r.H, r.X, r.Y)
	}
	return nil
}

// Origin returns the region's top-left corner.
func (r Region) Origin() Point { return Point{X: r.X, Y: r.Y} }

// MatchCandidate is one confidence-map cell at or above threshold.
// Corners are top-left, bottom-left, top-right, bottom-right.
type MatchCandidate struct {
	Confidence float64
	TopLeft    Point
	Corners    [4]Point
	Center     PointF
}

// Absolute returns the candidate center translated by origin and rounded to
// the nearest pixel.
func (c MatchCandidate) Absolute(origin Point) Point {
	return Point{X: origin.X + roundInt(c.Center.X), Y: origin.Y + roundInt(c.Center.Y)}
}
