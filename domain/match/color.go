package match

import "fmt"

// Difference is the Manhattan distance between two colors in RGB space,
// in the range 0..765.
func Difference(a, b Color) uint32 {
	return absDiff(a.R, b.R) + absDiff(a.G, b.G) + absDiff(a.B, b.B)
}

func absDiff(a, b uint8) uint32 {
	if a > b {
		return uint32(a - b)
	}
	return uint32(b - a)
}

// PointMatches compares the single pixel of a 1x1 buffer against target.
// Larger buffers are rejected, nothing is sampled or averaged.
func PointMatches(buf PixelBuffer, target Color, tolerance uint32) (bool, error) {
	if buf.Width != 1 || buf.Height != 1 {
		return false, fmt.Errorf("%w: point query needs 1x1, got %dx%d", ErrInvalidBufferShape, buf.Width, buf.Height)
	}
	return Difference(buf.ColorAt(0, 0), target) <= tolerance, nil
}

// RegionContainsColor scans row-major and stops at the first pixel within
// tolerance.
func RegionContainsColor(buf PixelBuffer, target Color, tolerance uint32) bool {
	_, ok := firstColor(buf, target, tolerance)
	return ok
}

// RegionFindColor returns the absolute coordinate of the first row-major pixel
// within tolerance. ok is false when nothing matched.
func RegionFindColor(buf PixelBuffer, region Region, target Color, tolerance uint32) (Point, bool) {
	p, ok := firstColor(buf, target, tolerance)
	if !ok {
		return Point{}, false
	}
	return Point{X: region.X + p.X, Y: region.Y + p.Y}, true
}

// RegionFindColorCoord is the compatibility form of RegionFindColor: a miss is
// reported as (0, 0), which cannot be told apart from a hit at the screen
// origin.
func RegionFindColorCoord(buf PixelBuffer, region Region, target Color, tolerance uint32) (int, int) {
	p, _ := RegionFindColor(buf, region, target, tolerance)
	return p.X, p.Y
}

func firstColor(buf PixelBuffer, target Color, tolerance uint32) (Point, bool) {
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			if Difference(buf.ColorAt(x, y), target) <= tolerance {
				return Point{X: x, Y: y}, true
			}
		}
	}
	return Point{}, false
}
