// Package locate exposes the screen-level matching operations: each call
// captures a region once, decodes the templates it needs and runs the
// matching engine over the shared buffer.
package locate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/soocke/pixelmatch/config"
	"github.com/soocke/pixelmatch/domain/capture"
	"github.com/soocke/pixelmatch/domain/imageio"
	"github.com/soocke/pixelmatch/domain/match"
)

// Locator runs the matching operations against a Grabber.
type Locator struct {
	grabber   capture.Grabber
	load      match.Loader
	logger    *slog.Logger
	firstHit  bool
	glyphExt  string
	templates *lru.Cache[string, match.PixelBuffer]
}

// Option customizes a Locator.
type Option func(*Locator)

// WithLoader replaces the template decoder (imageio.Load by default).
func WithLoader(load match.Loader) Option { return func(l *Locator) { l.load = load } }

// New builds a Locator from cfg. A nil cfg uses defaults.
func New(g capture.Grabber, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Locator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	_ = cfg.Validate()
	l := &Locator{
		grabber:  g,
		load:     imageio.Load,
		logger:   logger,
		firstHit: cfg.FirstHit,
		glyphExt: cfg.GlyphExt,
	}
	if cfg.TemplateCacheSize > 0 {
		c, err := lru.New[string, match.PixelBuffer](cfg.TemplateCacheSize)
		if err != nil {
			return nil, fmt.Errorf("template cache: %w", err)
		}
		l.templates = c
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// PurgeTemplates empties the decoded-template cache, if enabled.
func (l *Locator) PurgeTemplates() {
	if l.templates != nil {
		l.templates.Purge()
	}
}

// capture grabs region once and converts it to a working buffer with the
// requested channel count. The RGBA frame is recycled after conversion.
func (l *Locator) capture(region match.Region, channels int) (match.PixelBuffer, error) {
	if err := region.Validate(); err != nil {
		return match.PixelBuffer{}, err
	}
	start := time.Now()
	img, err := l.grabber.Grab(region)
	if err != nil {
		return match.PixelBuffer{}, fmt.Errorf("capture %dx%d at (%d,%d): %w", region.W, region.H, region.X, region.Y, err)
	}
	buf, err := match.FromRGBA(img, channels)
	capture.RecycleFrame(img)
	if err != nil {
		return match.PixelBuffer{}, err
	}
	if l.logger != nil {
		l.logger.Debug("locate.capture", "w", buf.Width, "h", buf.Height, "channels", channels, "elapsed", time.Since(start))
	}
	return buf, nil
}

func channelsFor(mode match.Mode) int {
	if mode == match.ModeGray {
		return 1
	}
	return 3
}

// template decodes path, going through the cache when it is enabled.
func (l *Locator) template(path string) (match.PixelBuffer, error) {
	if l.templates != nil {
		if buf, ok := l.templates.Get(path); ok {
			return buf, nil
		}
	}
	buf, err := l.load(path)
	if err != nil {
		return match.PixelBuffer{}, err
	}
	if l.templates != nil {
		l.templates.Add(path, buf)
	}
	return buf, nil
}

// PointColor reports whether the screen pixel at (x, y) is within tolerance
// of target.
func (l *Locator) PointColor(x, y int, target match.Color, tolerance uint32) (bool, error) {
	buf, err := l.capture(match.Region{X: x, Y: y, W: 1, H: 1}, 3)
	if err != nil {
		return false, err
	}
	return match.PointMatches(buf, target, tolerance)
}

// RegionHasColor reports whether any pixel of region is within tolerance.
func (l *Locator) RegionHasColor(region match.Region, target match.Color, tolerance uint32) (bool, error) {
	buf, err := l.capture(region, 3)
	if err != nil {
		return false, err
	}
	return match.RegionContainsColor(buf, target, tolerance), nil
}

// RegionColorCoord returns the absolute coordinate of the first row-major
// pixel within tolerance; ok is false when none matched.
func (l *Locator) RegionColorCoord(region match.Region, target match.Color, tolerance uint32) (match.Point, bool, error) {
	buf, err := l.capture(region, 3)
	if err != nil {
		return match.Point{}, false, err
	}
	p, ok := match.RegionFindColor(buf, region, target, tolerance)
	return p, ok, nil
}

// RegionColorCoordLegacy is the compatibility form of RegionColorCoord:
// a miss returns (0, 0), indistinguishable from a hit at the screen origin.
func (l *Locator) RegionColorCoordLegacy(region match.Region, target match.Color, tolerance uint32) (int, int, error) {
	p, _, err := l.RegionColorCoord(region, target, tolerance)
	return p.X, p.Y, err
}

// ImageExists reports whether the template at path appears in region with
// at least confidence. It stops at the first qualifying alignment.
func (l *Locator) ImageExists(region match.Region, path string, confidence float64, mode match.Mode) (bool, error) {
	tmpl, err := l.template(path)
	if err != nil {
		return false, err
	}
	src, err := l.capture(region, channelsFor(mode))
	if err != nil {
		return false, err
	}
	m, err := match.BuildConfidenceMap(src, tmpl, mode)
	if err != nil {
		return false, err
	}
	return match.Exists(m, confidence), nil
}

// ImageCoord returns the absolute, rounded center of one match of the
// template at path. By default that is the highest-confidence candidate;
// with first_hit set it is the first row-major alignment over threshold.
func (l *Locator) ImageCoord(region match.Region, path string, confidence float64, mode match.Mode) (match.Point, bool, error) {
	tmpl, err := l.template(path)
	if err != nil {
		return match.Point{}, false, err
	}
	src, err := l.capture(region, channelsFor(mode))
	if err != nil {
		return match.Point{}, false, err
	}
	m, err := match.BuildConfidenceMap(src, tmpl, mode)
	if err != nil {
		return match.Point{}, false, err
	}
	if l.firstHit {
		p, ok := match.FirstHitCoord(m, confidence, region.Origin())
		return p, ok, nil
	}
	cands := match.ExtractCandidates(m, confidence)
	if len(cands) == 0 {
		return match.Point{}, false, nil
	}
	return cands[0].Absolute(region.Origin()), true, nil
}

// ImageCoordLegacy is ImageCoord with the (0, 0) miss sentinel.
func (l *Locator) ImageCoordLegacy(region match.Region, path string, confidence float64, mode match.Mode) (int, int, error) {
	p, _, err := l.ImageCoord(region, path, confidence, mode)
	return p.X, p.Y, err
}

// ImagesCoords captures region once and returns the deduplicated absolute
// centers of every template in paths, template by template in path order.
// Any unreadable template fails the whole call.
func (l *Locator) ImagesCoords(region match.Region, paths []string, confidence float64, mode match.Mode) ([]match.Point, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	src, err := l.capture(region, channelsFor(mode))
	if err != nil {
		return nil, err
	}
	var out []match.Point
	for _, path := range paths {
		tmpl, err := l.template(path)
		if err != nil {
			return nil, err
		}
		cands, err := match.FindAll(src, tmpl, confidence, mode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, match.Dedupe(cands, tmpl.Width, tmpl.Height, region.Origin())...)
	}
	return out, nil
}

// RecognizeDigits reads a left-to-right digit string from region using the
// glyph library in dir. Missing glyphs are skipped. When ctx ends before the
// recognition joins, ctx.Err() is returned and the late result is dropped.
func (l *Locator) RecognizeDigits(ctx context.Context, region match.Region, dir string, confidence float64) (string, error) {
	src, err := l.capture(region, 1)
	if err != nil {
		return "", err
	}
	lib := match.Glyphs(dir, l.glyphExt, l.load, l.logger)
	done := make(chan string, 1)
	go func() { done <- match.RecognizeDigits(src, lib, confidence, region.Origin()) }()
	select {
	case s := <-done:
		return s, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
