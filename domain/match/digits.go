package match

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// GlyphCount is the size of a digit library: glyphs 0 through 9.
const GlyphCount = 10

// Loader decodes a template file into a working buffer.
type Loader func(path string) (PixelBuffer, error)

// GlyphLibrary lazily loads <dir>/<digit><ext> templates. Each slot is loaded
// at most once; a failed load is remembered as an absent glyph.
type GlyphLibrary struct {
	dir    string
	ext    string
	load   Loader
	logger *slog.Logger
	slots  [GlyphCount]glyphSlot
}

type glyphSlot struct {
	once sync.Once
	buf  PixelBuffer
	ok   bool
}

// NewGlyphLibrary returns an uncached library. Most callers want Glyphs.
func NewGlyphLibrary(dir, ext string, load Loader, logger *slog.Logger) *GlyphLibrary {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &GlyphLibrary{dir: dir, ext: ext, load: load, logger: logger}
}

// Logger returns the logger the library reports to; it may be nil.
func (l *GlyphLibrary) Logger() *slog.Logger { return l.logger }

// Dir returns the directory the library reads from.
func (l *GlyphLibrary) Dir() string { return l.dir }

// Path returns the file path for digit.
func (l *GlyphLibrary) Path(digit int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%d%s", digit, l.ext))
}

// Glyph returns the template for digit, loading it on first use. ok is false
// when the file is missing or cannot be decoded.
func (l *GlyphLibrary) Glyph(digit int) (PixelBuffer, bool) {
	if digit < 0 || digit >= GlyphCount {
		return PixelBuffer{}, false
	}
	s := &l.slots[digit]
	s.once.Do(func() {
		if l.load == nil {
			return
		}
		buf, err := l.load(l.Path(digit))
		if err != nil {
			if l.logger != nil {
				l.logger.Debug("digits.glyph_missing", "digit", digit, "path", l.Path(digit), "error", err)
			}
			return
		}
		s.buf, s.ok = buf, true
	})
	return s.buf, s.ok
}

// Process-wide glyph libraries keyed by dir and extension. Populated on first
// use, dropped only by ClearGlyphCache.
var (
	glyphCacheMu sync.RWMutex
	glyphCache   = map[string]*GlyphLibrary{}
)

// Glyphs returns the shared library for dir and ext, creating it on first use.
func Glyphs(dir, ext string, load Loader, logger *slog.Logger) *GlyphLibrary {
	key := dir + "\x00" + ext
	glyphCacheMu.RLock()
	lib := glyphCache[key]
	glyphCacheMu.RUnlock()
	if lib != nil {
		return lib
	}
	glyphCacheMu.Lock()
	defer glyphCacheMu.Unlock()
	if existing := glyphCache[key]; existing != nil {
		return existing
	}
	lib = NewGlyphLibrary(dir, ext, load, logger)
	glyphCache[key] = lib
	return lib
}

// ClearGlyphCache forgets every shared library, so the next call reloads
// glyphs from disk.
func ClearGlyphCache() {
	glyphCacheMu.Lock()
	glyphCache = map[string]*GlyphLibrary{}
	glyphCacheMu.Unlock()
}

// DigitHit is one glyph detection: absolute center x and the digit value.
type DigitHit struct {
	X     float64
	Digit int
}

// FindDigits matches every available glyph against the shared luma buffer,
// one task per digit, and returns all hits ordered by ascending x. No
// deduplication is applied. buf is only read.
func FindDigits(buf PixelBuffer, lib *GlyphLibrary, threshold float64, origin Point) []DigitHit {
	gray := buf.ToGray()
	var perDigit [GlyphCount][]DigitHit

	var g errgroup.Group
	g.SetLimit(GlyphCount)
	for d := 0; d < GlyphCount; d++ {
		d := d
		g.Go(func() error {
			tmpl, ok := lib.Glyph(d)
			if !ok {
				return nil
			}
			cands, err := FindAll(gray, tmpl, threshold, ModeGray)
			if err != nil {
				if lib.logger != nil {
					lib.logger.Debug("digits.glyph_skipped", "digit", d, "error", err)
				}
				return nil
			}
			hits := make([]DigitHit, len(cands))
			for i, c := range cands {
				hits[i] = DigitHit{X: float64(origin.X) + c.Center.X, Digit: d}
			}
			perDigit[d] = hits
			return nil
		})
	}
	_ = g.Wait()

	// Join barrier passed: merge in digit order, then order by x.
	var merged []DigitHit
	for _, hits := range perDigit {
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].X < merged[j].X })
	return merged
}

// RecognizeDigits renders FindDigits as a left-to-right decimal string. An
// empty string means nothing matched.
func RecognizeDigits(buf PixelBuffer, lib *GlyphLibrary, threshold float64, origin Point) string {
	start := time.Now()
	hits := FindDigits(buf, lib, threshold, origin)
	var sb strings.Builder
	sb.Grow(len(hits))
	for _, h := range hits {
		sb.WriteByte(byte('0' + h.Digit))
	}
	if lib.logger != nil {
		lib.logger.Debug("digits.recognized", "dir", lib.dir, "result", sb.String(), "elapsed", time.Since(start))
	}
	return sb.String()
}
