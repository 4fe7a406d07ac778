// Package contrast estimates display intensity bounds from a spatial
// subsample of a frame.
package contrast

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Window is the (low, high) intensity range mapped onto the display.
type Window struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Degenerate reports a window unusable for scaling; callers must not divide
// by High-Low when this is true.
func (w Window) Degenerate() bool {
	return math.IsNaN(w.Low) || math.IsNaN(w.High) ||
		math.IsInf(w.Low, 0) || math.IsInf(w.High, 0) ||
		w.High <= w.Low
}

const (
	lowQuantile  = 0.005
	highQuantile = 0.995

	// maxPerAxis bounds the subsample so estimation cost stays flat on
	// large frames.
	maxPerAxis = 512
)

// Estimate computes robust percentile bounds on a strided subsample of the
// frame. Degenerate percentiles (flat frames, non-finite data) fall back to
// the exact min/max of the same sample. Pure; the caller throttles calls.
func Estimate(frame types.DecodedFrame) Window {
	if frame.Pix == nil || frame.Pix.Len() == 0 {
		return Window{}
	}

	sy := stride(frame.Height)
	sx := stride(frame.Width)
	ch := frame.Channels
	if ch < 1 {
		ch = 1
	}

	samples := make([]float64, 0, (frame.Height/sy+1)*(frame.Width/sx+1)*ch)
	for y := 0; y < frame.Height; y += sy {
		for x := 0; x < frame.Width; x += sx {
			base := (y*frame.Width + x) * ch
			for c := 0; c < ch; c++ {
				samples = append(samples, types.AsFloat64(frame.Pix, base+c))
			}
		}
	}
	if len(samples) == 0 {
		return Window{}
	}

	sort.Float64s(samples)
	win := Window{
		Low:  stat.Quantile(lowQuantile, stat.Empirical, samples, nil),
		High: stat.Quantile(highQuantile, stat.Empirical, samples, nil),
	}
	if win.Degenerate() {
		win = Window{Low: samples[0], High: samples[len(samples)-1]}
	}
	return win
}

func stride(dim int) int {
	s := dim / maxPerAxis
	if s < 1 {
		return 1
	}
	return s
}
