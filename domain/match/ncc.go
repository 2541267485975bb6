package match

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// Mode selects how source and template are correlated.
type Mode int

const (
	// ModeColor correlates all three channels jointly.
	ModeColor Mode = iota
	// ModeGray converts both sides to luma first.
	ModeGray
)

// ModeFor maps the legacy rgb flag onto a Mode.
func ModeFor(rgb bool) Mode {
	if rgb {
		return ModeColor
	}
	return ModeGray
}

func (m Mode) String() string {
	if m == ModeGray {
		return "gray"
	}
	return "color"
}

// ConfidenceMap holds one normalized correlation score per template
// alignment. Row r, column c lives at Scores[r*Stride+c]; Stride equals Cols
// for maps built here, wider strides only change traversal, never results.
type ConfidenceMap struct {
	Rows, Cols int
	Stride     int
	Scores     []float32
	TemplateW  int
	TemplateH  int
}

// At returns the score for top-left alignment (col, row).
func (m ConfidenceMap) At(row, col int) float32 { return m.Scores[row*m.Stride+col] }

// Contiguous reports whether rows are packed without padding.
func (m ConfidenceMap) Contiguous() bool { return m.Stride == m.Cols }

// planePrecomp stores per-channel samples and their summed-area tables
// (integral images) for O(1) window sums and variances.
type planePrecomp struct {
	planes     [][]float64 // per channel, length W*H
	integral   [][]int64   // summed-area table per channel
	integralSq [][]int64   // summed-area table of squares per channel
	W, H       int
}

// templatePrecomp caches template samples and summary statistics.
type templatePrecomp struct {
	planes [][]float64
	sumT   []int64
	varNT  int64 // sum over channels of n*sumT2 - sumT^2
	W, H   int
}

func validBuffer(b PixelBuffer) error {
	_, err := NewPixelBuffer(b.Width, b.Height, b.Channels, b.Pix)
	return err
}

// BuildConfidenceMap slides tmpl over src and scores every alignment with the
// mean-subtracted normalized cross-correlation. Scores are not thresholded.
func BuildConfidenceMap(src, tmpl PixelBuffer, mode Mode) (ConfidenceMap, error) {
	if err := validBuffer(src); err != nil {
		return ConfidenceMap{}, fmt.Errorf("source: %w", err)
	}
	if err := validBuffer(tmpl); err != nil {
		return ConfidenceMap{}, fmt.Errorf("template: %w", err)
	}
	if tmpl.Width > src.Width || tmpl.Height > src.Height {
		return ConfidenceMap{}, fmt.Errorf("%w: template %dx%d, source %dx%d",
			ErrTemplateLargerThanSource, tmpl.Width, tmpl.Height, src.Width, src.Height)
	}
	if mode == ModeGray {
		src, tmpl = src.ToGray(), tmpl.ToGray()
	} else if src.Channels != tmpl.Channels {
		return ConfidenceMap{}, fmt.Errorf("%w: color mode needs equal channels, source %d template %d",
			ErrInvalidBufferShape, src.Channels, tmpl.Channels)
	}

	pre := buildPlanePrecomp(src)
	pc := buildTemplatePrecomp(tmpl)
	rows := src.Height - tmpl.Height + 1
	cols := src.Width - tmpl.Width + 1
	m := ConfidenceMap{
		Rows: rows, Cols: cols, Stride: cols,
		Scores:    make([]float32, rows*cols),
		TemplateW: tmpl.Width, TemplateH: tmpl.Height,
	}

	// Row bands are independent; each worker writes a disjoint slice.
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	band := max(1, rows/(4*runtime.NumCPU()))
	for y0 := 0; y0 < rows; y0 += band {
		y0 := y0
		y1 := min(rows, y0+band)
		g.Go(func() error {
			for y := y0; y < y1; y++ {
				out := m.Scores[y*m.Stride : y*m.Stride+cols]
				for x := 0; x < cols; x++ {
					out[x] = scoreAt(pre, pc, x, y)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return m, nil
}

// scoreAt evaluates one alignment. All sums are scaled by n so the integer
// parts stay exact; a flat window therefore has exactly zero variance.
func scoreAt(pre *planePrecomp, pc *templatePrecomp, x, y int) float32 {
	w, h := pc.W, pc.H
	n := int64(w * h)
	var numN float64
	var varNI int64
	for c := range pc.planes {
		sumI := integralSum(pre.integral[c], pre.W, x, y, x+w-1, y+h-1)
		sumI2 := integralSum(pre.integralSq[c], pre.W, x, y, x+w-1, y+h-1)
		varNI += n*sumI2 - sumI*sumI
		var cross float64
		src, tp := pre.planes[c], pc.planes[c]
		for r := 0; r < h; r++ {
			off := (y+r)*pre.W + x
			cross += floats.Dot(src[off:off+w], tp[r*w:(r+1)*w])
		}
		numN += float64(n)*cross - float64(sumI)*float64(pc.sumT[c])
	}
	if varNI <= 0 || pc.varNT <= 0 {
		return 0
	}
	t := math.Sqrt(float64(varNI)) * math.Sqrt(float64(pc.varNT))
	switch a := math.Abs(numN); {
	case a < t:
		return float32(numN / t)
	case a < t*1.125:
		// Rounding overshoot past ±1.
		if numN > 0 {
			return 1
		}
		return -1
	default:
		return 0
	}
}

func buildPlanePrecomp(b PixelBuffer) *planePrecomp {
	W, H, C := b.Width, b.Height, b.Channels
	p := &planePrecomp{
		planes:     make([][]float64, C),
		integral:   make([][]int64, C),
		integralSq: make([][]int64, C),
		W:          W,
		H:          H,
	}
	for c := 0; c < C; c++ {
		plane := make([]float64, W*H)
		in := make([]int64, W*H)
		inSq := make([]int64, W*H)
		for y := 0; y < H; y++ {
			var rowSum, rowSum2 int64
			for x := 0; x < W; x++ {
				off := y*W + x
				v := int64(b.Pix[off*C+c])
				plane[off] = float64(v)
				rowSum += v
				rowSum2 += v * v
				if y == 0 {
					in[off] = rowSum
					inSq[off] = rowSum2
				} else {
					in[off] = in[(y-1)*W+x] + rowSum
					inSq[off] = inSq[(y-1)*W+x] + rowSum2
				}
			}
		}
		p.planes[c], p.integral[c], p.integralSq[c] = plane, in, inSq
	}
	return p
}

func buildTemplatePrecomp(b PixelBuffer) *templatePrecomp {
	C := b.Channels
	n := int64(b.Width * b.Height)
	pc := &templatePrecomp{
		planes: make([][]float64, C),
		sumT:   make([]int64, C),
		W:      b.Width,
		H:      b.Height,
	}
	for c := 0; c < C; c++ {
		plane := make([]float64, n)
		var sum, sum2 int64
		for i := range plane {
			v := int64(b.Pix[i*C+c])
			plane[i] = float64(v)
			sum += v
			sum2 += v * v
		}
		pc.planes[c] = plane
		pc.sumT[c] = sum
		pc.varNT += n*sum2 - sum*sum
	}
	return pc
}

// integralSum returns the inclusive sum over rectangle [x0..x1] x [y0..y1]
// from an integral image stored in row-major order with width W.
func integralSum(I []int64, W int, x0, y0, x1, y1 int) int64 {
	if x0 > x1 || y0 > y1 {
		return 0
	}
	A := func(x, y int) int64 {
		if x < 0 || y < 0 {
			return 0
		}
		return I[y*W+x]
	}
	return A(x1, y1) - A(x0-1, y1) - A(x1, y0-1) + A(x0-1, y0-1)
}
