package locate

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soocke/pixelmatch/config"
	"github.com/soocke/pixelmatch/domain/capture"
	"github.com/soocke/pixelmatch/domain/imageio"
	"github.com/soocke/pixelmatch/domain/match"
)

var red = match.Color{R: 255, G: 0, B: 0}

func noise(w, h int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(r.Intn(200)), uint8(r.Intn(200)), uint8(r.Intn(200)), 255
	}
	return img
}

func glyph(digit int) *image.Gray {
	r := rand.New(rand.NewSource(int64(1000 + digit*7919)))
	g := image.NewGray(image.Rect(0, 0, 8, 10))
	for i := range g.Pix {
		if r.Intn(2) == 1 {
			g.Pix[i] = 255
		}
	}
	return g
}

// fixture is a 200x120 noisy screen with:
//   - patch P at (50,30) and (120,70), 16x12
//   - patch Q at (160,10), 10x10
//   - a pure red pixel at (190,5)
//   - digits 7, 0, 3 on a black strip starting at (20,100)
type fixture struct {
	screen *image.RGBA
	dir    string
	p, q   string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	screen := noise(200, 120, 1)
	p := noise(16, 12, 2)
	q := noise(10, 10, 3)
	draw.Draw(screen, image.Rect(50, 30, 66, 42), p, image.Point{}, draw.Src)
	draw.Draw(screen, image.Rect(120, 70, 136, 82), p, image.Point{}, draw.Src)
	draw.Draw(screen, image.Rect(160, 10, 170, 20), q, image.Point{}, draw.Src)
	screen.SetRGBA(190, 5, color.RGBA{R: 255, A: 255})

	draw.Draw(screen, image.Rect(20, 100, 80, 114), image.NewUniform(color.Black), image.Point{}, draw.Src)
	dir := t.TempDir()
	for i, d := range []int{7, 0, 3} {
		at := image.Pt(24+16*i, 102)
		draw.Draw(screen, image.Rectangle{Min: at, Max: at.Add(image.Pt(8, 10))}, glyph(d), image.Point{}, draw.Src)
	}
	for d := 0; d < match.GlyphCount; d++ {
		require.NoError(t, imageio.SaveImage(glyph(d), filepath.Join(dir, fmt.Sprintf("%d.png", d))))
	}

	f := fixture{screen: screen, dir: dir, p: filepath.Join(dir, "p.png"), q: filepath.Join(dir, "q.png")}
	require.NoError(t, imageio.SaveImage(p, f.p))
	require.NoError(t, imageio.SaveImage(q, f.q))
	t.Cleanup(match.ClearGlyphCache)
	return f
}

func newLocator(t *testing.T, f fixture, cfg *config.Config, opts ...Option) *Locator {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
		cfg.GlyphExt = ".png"
	}
	l, err := New(capture.NewImageGrabber(f.screen), cfg, nil, opts...)
	require.NoError(t, err)
	return l
}

func TestPointAndRegionColor(t *testing.T) {
	f := newFixture(t)
	l := newLocator(t, f, nil)

	ok, err := l.PointColor(190, 5, red, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.PointColor(191, 5, red, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	region := match.Region{X: 180, Y: 0, W: 20, H: 10}
	ok, err = l.RegionHasColor(region, red, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	p, found, err := l.RegionColorCoord(region, red, 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, match.Point{X: 190, Y: 5}, p)

	_, found, err = l.RegionColorCoord(match.Region{X: 0, Y: 0, W: 40, H: 40}, red, 0)
	require.NoError(t, err)
	assert.False(t, found)
	x, y, err := l.RegionColorCoordLegacy(match.Region{X: 0, Y: 0, W: 40, H: 40}, red, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, []int{x, y})
}

func TestImageExists(t *testing.T) {
	f := newFixture(t)
	l := newLocator(t, f, nil)
	for _, mode := range []match.Mode{match.ModeColor, match.ModeGray} {
		ok, err := l.ImageExists(match.Region{X: 0, Y: 0, W: 100, H: 60}, f.p, 0.95, mode)
		require.NoError(t, err)
		assert.True(t, ok, mode.String())

		ok, err = l.ImageExists(match.Region{X: 0, Y: 0, W: 100, H: 60}, f.q, 0.95, mode)
		require.NoError(t, err)
		assert.False(t, ok, mode.String())
	}
}

func TestImageCoord_AbsoluteCenter(t *testing.T) {
	f := newFixture(t)
	region := match.Region{X: 10, Y: 5, W: 100, H: 60}
	want := match.Point{X: 58, Y: 36}

	l := newLocator(t, f, nil)
	p, ok, err := l.ImageCoord(region, f.p, 0.95, match.ModeColor)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, p)

	cfg := config.DefaultConfig()
	cfg.FirstHit = true
	fl := newLocator(t, f, cfg)
	p, ok, err = fl.ImageCoord(region, f.p, 0.95, match.ModeGray)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, p)
}

func TestImageCoord_MissUsesSentinelInLegacyForm(t *testing.T) {
	f := newFixture(t)
	l := newLocator(t, f, nil)
	region := match.Region{X: 0, Y: 0, W: 100, H: 60}
	_, ok, err := l.ImageCoord(region, f.q, 0.95, match.ModeColor)
	require.NoError(t, err)
	assert.False(t, ok)
	x, y, err := l.ImageCoordLegacy(region, f.q, 0.95, match.ModeColor)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, []int{x, y})
}

func TestImagesCoords_DedupedInPathOrder(t *testing.T) {
	f := newFixture(t)
	l := newLocator(t, f, nil)
	pts, err := l.ImagesCoords(match.Region{X: 0, Y: 0, W: 200, H: 120}, []string{f.p, f.q}, 0.95, match.ModeColor)
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.ElementsMatch(t, []match.Point{{X: 58, Y: 36}, {X: 128, Y: 76}}, pts[:2])
	assert.Equal(t, match.Point{X: 165, Y: 15}, pts[2])

	pts, err = l.ImagesCoords(match.Region{X: 0, Y: 0, W: 200, H: 120}, nil, 0.95, match.ModeColor)
	require.NoError(t, err)
	assert.Empty(t, pts)
}

func TestImagesCoords_UnreadableTemplateFailsCall(t *testing.T) {
	f := newFixture(t)
	l := newLocator(t, f, nil)
	_, err := l.ImagesCoords(match.Region{X: 0, Y: 0, W: 200, H: 120}, []string{f.p, filepath.Join(f.dir, "nope.png")}, 0.95, match.ModeColor)
	assert.ErrorIs(t, err, match.ErrTemplateUnreadable)
}

func TestErrors(t *testing.T) {
	f := newFixture(t)
	l := newLocator(t, f, nil)

	_, err := l.ImageExists(match.Region{X: 0, Y: 0, W: 10, H: 10}, f.p, 0.9, match.ModeColor)
	assert.ErrorIs(t, err, match.ErrTemplateLargerThanSource)

	_, err = l.ImageExists(match.Region{X: 0, Y: 0, W: 50, H: 50}, filepath.Join(f.dir, "missing.png"), 0.9, match.ModeColor)
	assert.ErrorIs(t, err, match.ErrTemplateUnreadable)

	_, err = l.RegionHasColor(match.Region{X: 0, Y: 0, W: 0, H: 3}, red, 0)
	assert.ErrorIs(t, err, match.ErrInvalidRegion)

	_, err = l.RegionHasColor(match.Region{X: -5, Y: 0, W: 10, H: 3}, red, 0)
	assert.ErrorIs(t, err, match.ErrInvalidRegion)

	blind, err := New(capture.NewImageGrabber(nil), nil, nil)
	require.NoError(t, err)
	_, err = blind.PointColor(1, 1, red, 0)
	assert.ErrorIs(t, err, match.ErrCaptureUnavailable)
}

func TestTemplateCache(t *testing.T) {
	f := newFixture(t)
	var loads atomic.Int32
	counting := WithLoader(func(path string) (match.PixelBuffer, error) {
		loads.Add(1)
		return imageio.Load(path)
	})
	region := match.Region{X: 0, Y: 0, W: 100, H: 60}

	uncached := newLocator(t, f, nil, counting)
	for i := 0; i < 2; i++ {
		_, err := uncached.ImageExists(region, f.p, 0.95, match.ModeColor)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), loads.Load())

	loads.Store(0)
	cfg := config.DefaultConfig()
	cfg.TemplateCacheSize = 4
	cached := newLocator(t, f, cfg, counting)
	for i := 0; i < 3; i++ {
		_, err := cached.ImageExists(region, f.p, 0.95, match.ModeColor)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), loads.Load())
	cached.PurgeTemplates()
	_, err := cached.ImageExists(region, f.p, 0.95, match.ModeColor)
	require.NoError(t, err)
	assert.Equal(t, int32(2), loads.Load())
}

func TestRecognizeDigits(t *testing.T) {
	f := newFixture(t)
	l := newLocator(t, f, nil)
	got, err := l.RecognizeDigits(context.Background(), match.Region{X: 20, Y: 100, W: 60, H: 14}, f.dir, 0.9)
	require.NoError(t, err)
	assert.Equal(t, "703", got)
}

func TestRecognizeDigits_DeadlineAbandonsJoin(t *testing.T) {
	f := newFixture(t)
	slow := WithLoader(func(path string) (match.PixelBuffer, error) {
		time.Sleep(300 * time.Millisecond)
		return imageio.Load(path)
	})
	l := newLocator(t, f, nil, slow)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.RecognizeDigits(ctx, match.Region{X: 20, Y: 100, W: 60, H: 14}, t.TempDir(), 0.9)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
