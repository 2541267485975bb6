package match

import (
	"math"
	"sort"
)

// ExtractCandidates scans every cell row-major, keeps scores at or above
// threshold and returns them ordered by descending confidence. Centers are
// left unrounded. Equal confidences keep scan order, though callers should
// not depend on it.
func ExtractCandidates(m ConfidenceMap, threshold float64) []MatchCandidate {
	var out []MatchCandidate
	w, h := m.TemplateW, m.TemplateH
	for row := 0; row < m.Rows; row++ {
		line := m.Scores[row*m.Stride : row*m.Stride+m.Cols]
		for col, s := range line {
			if float64(s) < threshold {
				continue
			}
			out = append(out, newCandidate(float64(s), col, row, w, h))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func newCandidate(score float64, col, row, w, h int) MatchCandidate {
	return MatchCandidate{
		Confidence: score,
		TopLeft:    Point{X: col, Y: row},
		Corners: [4]Point{
			{X: col, Y: row},
			{X: col, Y: row + h},
			{X: col + w, Y: row},
			{X: col + w, Y: row + h},
		},
		Center: PointF{X: float64(col) + float64(w)/2.0, Y: float64(row) + float64(h)/2.0},
	}
}

// FirstHit returns the first row-major cell whose score reaches threshold,
// without building the candidate list. The comparison is done in float32,
// the precision scores are stored at.
func FirstHit(m ConfidenceMap, threshold float64) (col, row int, ok bool) {
	t := float32(threshold)
	if m.Contiguous() {
		for i, s := range m.Scores[:m.Rows*m.Cols] {
			if s >= t {
				return i % m.Cols, i / m.Cols, true
			}
		}
		return 0, 0, false
	}
	for r := 0; r < m.Rows; r++ {
		for c, s := range m.Scores[r*m.Stride : r*m.Stride+m.Cols] {
			if s >= t {
				return c, r, true
			}
		}
	}
	return 0, 0, false
}

// Exists reports whether any cell reaches threshold.
func Exists(m ConfidenceMap, threshold float64) bool {
	_, _, ok := FirstHit(m, threshold)
	return ok
}

// FirstHitCoord returns the absolute, rounded center of the first row-major
// hit. Rounding happens before translation by origin.
func FirstHitCoord(m ConfidenceMap, threshold float64, origin Point) (Point, bool) {
	col, row, ok := FirstHit(m, threshold)
	if !ok {
		return Point{}, false
	}
	cx := roundInt(float64(col) + float64(m.TemplateW)/2.0)
	cy := roundInt(float64(row) + float64(m.TemplateH)/2.0)
	return Point{X: origin.X + cx, Y: origin.Y + cy}, true
}

// FindAll builds the confidence map for tmpl over src and extracts every
// candidate at or above threshold, highest confidence first.
func FindAll(src, tmpl PixelBuffer, threshold float64, mode Mode) ([]MatchCandidate, error) {
	m, err := BuildConfidenceMap(src, tmpl, mode)
	if err != nil {
		return nil, err
	}
	return ExtractCandidates(m, threshold), nil
}

// roundInt rounds half away from zero.
func roundInt(v float64) int { return int(math.Round(v)) }
