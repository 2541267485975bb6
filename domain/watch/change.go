// Package watch decides when a polled region has changed enough to be
// recognized again.
package watch

import (
	"log/slog"

	"github.com/soocke/pixelmatch/domain/match"
)

const (
	pixelDiffThreshold = 10
	minChangedRatio    = 0.005
	minMeanDiff        = 0.5
)

// ChangeDetector compares luma frames against the last frame it reported as
// changed. Not safe for concurrent use; call Changed from a single goroutine.
type ChangeDetector struct {
	logger *slog.Logger
	ref    []byte
	w, h   int

	lastRatio    float64
	lastMeanDiff float64
	frames       int
	changes      int
}

// NewChangeDetector returns a detector with no reference frame.
func NewChangeDetector(logger *slog.Logger) *ChangeDetector {
	return &ChangeDetector{logger: logger}
}

// Reset drops the reference frame so the next frame counts as changed.
func (d *ChangeDetector) Reset() {
	d.ref = nil
	d.w, d.h = 0, 0
	d.lastRatio, d.lastMeanDiff = 0, 0
}

// Changed reports whether buf differs from the reference frame. The first
// frame, and any frame whose size differs, always counts as changed. A
// changed frame becomes the new reference. Color buffers are reduced to luma.
func (d *ChangeDetector) Changed(buf match.PixelBuffer) bool {
	d.frames++
	gray := buf.ToGray()
	n := gray.Width * gray.Height
	if n == 0 || len(gray.Pix) < n {
		return false
	}
	if d.ref == nil || gray.Width != d.w || gray.Height != d.h {
		d.remember(gray)
		return true
	}

	var sum, changed int
	for i, v := range gray.Pix[:n] {
		diff := int(v) - int(d.ref[i])
		if diff < 0 {
			diff = -diff
		}
		sum += diff
		if diff > pixelDiffThreshold {
			changed++
		}
	}
	d.lastRatio = float64(changed) / float64(n)
	d.lastMeanDiff = float64(sum) / float64(n)
	if changed == 0 || d.lastRatio < minChangedRatio || d.lastMeanDiff < minMeanDiff {
		return false
	}
	if d.logger != nil {
		d.logger.Debug("watch.changed", "ratio", d.lastRatio, "mean_diff", d.lastMeanDiff, "frames", d.frames)
	}
	d.remember(gray)
	return true
}

func (d *ChangeDetector) remember(gray match.PixelBuffer) {
	n := gray.Width * gray.Height
	if cap(d.ref) < n {
		d.ref = make([]byte, n)
	}
	d.ref = d.ref[:n]
	copy(d.ref, gray.Pix)
	d.w, d.h = gray.Width, gray.Height
	d.changes++
}

// Stats is a snapshot of detector counters.
type Stats struct {
	Frames       int
	Changes      int
	LastRatio    float64
	LastMeanDiff float64
}

// Stats returns the current counters.
func (d *ChangeDetector) Stats() Stats {
	return Stats{Frames: d.frames, Changes: d.changes, LastRatio: d.lastRatio, LastMeanDiff: d.lastMeanDiff}
}
