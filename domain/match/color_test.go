package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifference_SymmetricAndZeroOnSelf(t *testing.T) {
	samples := []Color{{0, 0, 0}, {255, 255, 255}, {43, 45, 48}, {180, 142, 136}, {255, 0, 7}, {1, 254, 128}}
	for _, a := range samples {
		assert.Zero(t, Difference(a, a), "self difference %v", a)
		for _, b := range samples {
			assert.Equal(t, Difference(a, b), Difference(b, a), "%v vs %v", a, b)
		}
	}
	assert.Equal(t, uint32(765), Difference(Color{0, 0, 0}, Color{255, 255, 255}))
	assert.Equal(t, uint32(6), Difference(Color{10, 20, 30}, Color{12, 18, 32}))
}

func TestPointMatches_RequiresSinglePixel(t *testing.T) {
	one := PixelBuffer{Width: 1, Height: 1, Channels: 3, Pix: []uint8{100, 50, 25}}
	ok, err := PointMatches(one, Color{105, 50, 25}, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = PointMatches(one, Color{106, 50, 25}, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = PointMatches(flatBuffer(2, 1, 3, 0), Color{}, 0)
	assert.ErrorIs(t, err, ErrInvalidBufferShape)
}

func TestRegionScan_UniformRegionHitsTopLeft(t *testing.T) {
	target := Color{180, 142, 136}
	buf := PixelBuffer{Width: 4, Height: 3, Channels: 3}
	for i := 0; i < 12; i++ {
		buf.Pix = append(buf.Pix, target.R, target.G, target.B)
	}
	region := Region{X: 37, Y: 91, W: 4, H: 3}

	assert.True(t, RegionContainsColor(buf, target, 0))
	p, ok := RegionFindColor(buf, region, target, 0)
	require.True(t, ok)
	assert.Equal(t, Point{X: 37, Y: 91}, p)
	x, y := RegionFindColorCoord(buf, region, target, 0)
	assert.Equal(t, []int{37, 91}, []int{x, y})
}

func TestRegionScan_RowMajorFirstHit(t *testing.T) {
	buf := flatBuffer(5, 4, 3, 0)
	set := func(x, y int) {
		i := (y*5 + x) * 3
		buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = 200, 10, 10
	}
	// (1,2) comes after (4,1) in row-major order.
	set(1, 2)
	set(4, 1)
	p, ok := RegionFindColor(buf, Region{X: 100, Y: 200, W: 5, H: 4}, Color{200, 10, 10}, 0)
	require.True(t, ok)
	assert.Equal(t, Point{X: 104, Y: 201}, p)
}

func TestRegionScan_NoMatchReturnsSentinel(t *testing.T) {
	buf := flatBuffer(6, 6, 3, 20)
	region := Region{X: 50, Y: 60, W: 6, H: 6}
	assert.False(t, RegionContainsColor(buf, Color{255, 255, 255}, 10))
	_, ok := RegionFindColor(buf, region, Color{255, 255, 255}, 10)
	assert.False(t, ok)
	x, y := RegionFindColorCoord(buf, region, Color{255, 255, 255}, 10)
	assert.Equal(t, 0, x)
	assert.Equal(t, 0, y)
}

func TestRegionScan_LumaBufferComparesReplicatedSample(t *testing.T) {
	buf := PixelBuffer{Width: 2, Height: 1, Channels: 1, Pix: []uint8{10, 90}}
	p, ok := RegionFindColor(buf, Region{W: 2, H: 1}, Color{90, 90, 90}, 0)
	require.True(t, ok)
	assert.Equal(t, Point{X: 1, Y: 0}, p)
}
