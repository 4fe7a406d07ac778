// Package processing holds the display-time pixel transforms: strided
// decimation, the fixed transpose/flip pipeline, luminance conversion and
// flat-field correction. All transforms allocate a fresh buffer and leave
// their input untouched.
package processing

import (
	"math"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Luminance weights for RGB to mono conversion (ITU-R BT.709).
const (
	lumR = 0.2126
	lumG = 0.7152
	lumB = 0.0722
)

// Decimate subsamples the frame with stride b on both spatial axes. Not an
// anti-aliased resize; purely a throughput tradeoff.
func Decimate(frame types.DecodedFrame, b int) types.DecodedFrame {
	if b <= 1 {
		return frame
	}
	ow := (frame.Width + b - 1) / b
	oh := (frame.Height + b - 1) / b
	ch := frame.Channels
	idx := make([]int, 0, ow*oh*ch)
	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			base := (y*b*frame.Width + x*b) * ch
			for c := 0; c < ch; c++ {
				idx = append(idx, base+c)
			}
		}
	}
	out := frame
	out.Width = ow
	out.Height = oh
	out.Pix = gatherPayload(frame.Pix, idx)
	return out
}

// Transpose swaps the spatial axes, keeping channels interleaved last.
func Transpose(frame types.DecodedFrame) types.DecodedFrame {
	w, h, ch := frame.Width, frame.Height, frame.Channels
	idx := make([]int, 0, w*h*ch)
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			base := (x*w + y) * ch
			for c := 0; c < ch; c++ {
				idx = append(idx, base+c)
			}
		}
	}
	out := frame
	out.Width = h
	out.Height = w
	out.Pix = gatherPayload(frame.Pix, idx)
	return out
}

// FlipH mirrors the frame horizontally.
func FlipH(frame types.DecodedFrame) types.DecodedFrame {
	w, h, ch := frame.Width, frame.Height, frame.Channels
	idx := make([]int, 0, w*h*ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (y*w + (w - 1 - x)) * ch
			for c := 0; c < ch; c++ {
				idx = append(idx, base+c)
			}
		}
	}
	out := frame
	out.Pix = gatherPayload(frame.Pix, idx)
	return out
}

// FlipV mirrors the frame vertically.
func FlipV(frame types.DecodedFrame) types.DecodedFrame {
	w, h, ch := frame.Width, frame.Height, frame.Channels
	idx := make([]int, 0, w*h*ch)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := ((h-1-y)*w + x) * ch
			for c := 0; c < ch; c++ {
				idx = append(idx, base+c)
			}
		}
	}
	out := frame
	out.Pix = gatherPayload(frame.Pix, idx)
	return out
}

// Luminance collapses a 3-channel frame to mono with fixed BT.709 weights,
// preserving the numeric kind (integer kinds are rounded back). Mono frames
// pass through unchanged.
func Luminance(frame types.DecodedFrame) types.DecodedFrame {
	if frame.Channels != 3 {
		return frame
	}
	out := frame
	out.Channels = 1
	out.Pix = luminancePayload(frame.Pix, frame.Width*frame.Height)
	return out
}

// FlatField is a per-pixel gain reference captured from a blank frame.
type FlatField struct {
	Width  int
	Height int
	Data   []float64
	Mean   float64
}

const flatEpsilon = 1e-12

// NewFlatField builds a reference from a mono frame. Returns false for RGB
// or empty frames.
func NewFlatField(frame types.DecodedFrame) (FlatField, bool) {
	if frame.Channels != 1 || frame.Pix == nil || frame.Pix.Len() == 0 {
		return FlatField{}, false
	}
	n := frame.Pix.Len()
	data := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		data[i] = types.AsFloat64(frame.Pix, i)
		sum += data[i]
	}
	return FlatField{
		Width:  frame.Width,
		Height: frame.Height,
		Data:   data,
		Mean:   sum / float64(n),
	}, true
}

// Matches reports whether the reference applies to the given frame shape.
func (ff FlatField) Matches(frame types.DecodedFrame) bool {
	return len(ff.Data) > 0 &&
		ff.Width == frame.Width && ff.Height == frame.Height &&
		frame.Channels == 1 && frame.Pix != nil && frame.Pix.Len() == len(ff.Data)
}

// Apply divides the frame by the reference and rescales by the reference
// mean so global intensity is preserved. Integer kinds are clipped to their
// type range. The frame passes through unchanged when the shape mismatches.
func (ff FlatField) Apply(frame types.DecodedFrame) types.DecodedFrame {
	if !ff.Matches(frame) {
		return frame
	}
	out := frame
	out.Pix = flatFieldPayload(frame.Pix, ff)
	return out
}

func gatherPayload(p types.Payload, idx []int) types.Payload {
	switch v := p.(type) {
	case types.Buf[int8]:
		return gather(v, idx)
	case types.Buf[uint8]:
		return gather(v, idx)
	case types.Buf[int16]:
		return gather(v, idx)
	case types.Buf[uint16]:
		return gather(v, idx)
	case types.Buf[int32]:
		return gather(v, idx)
	case types.Buf[uint32]:
		return gather(v, idx)
	case types.Buf[int64]:
		return gather(v, idx)
	case types.Buf[uint64]:
		return gather(v, idx)
	case types.Buf[float32]:
		return gather(v, idx)
	case types.Buf[float64]:
		return gather(v, idx)
	default:
		return p
	}
}

func gather[T types.Element](src types.Buf[T], idx []int) types.Buf[T] {
	out := make(types.Buf[T], len(idx))
	for i, j := range idx {
		out[i] = src[j]
	}
	return out
}

func luminancePayload(p types.Payload, n int) types.Payload {
	switch v := p.(type) {
	case types.Buf[int8]:
		return luminance(v, n, true)
	case types.Buf[uint8]:
		return luminance(v, n, true)
	case types.Buf[int16]:
		return luminance(v, n, true)
	case types.Buf[uint16]:
		return luminance(v, n, true)
	case types.Buf[int32]:
		return luminance(v, n, true)
	case types.Buf[uint32]:
		return luminance(v, n, true)
	case types.Buf[int64]:
		return luminance(v, n, true)
	case types.Buf[uint64]:
		return luminance(v, n, true)
	case types.Buf[float32]:
		return luminance(v, n, false)
	case types.Buf[float64]:
		return luminance(v, n, false)
	default:
		return p
	}
}

func luminance[T types.Element](src types.Buf[T], n int, integer bool) types.Buf[T] {
	out := make(types.Buf[T], n)
	for i := 0; i < n; i++ {
		y := lumR*float64(src[i*3]) + lumG*float64(src[i*3+1]) + lumB*float64(src[i*3+2])
		if integer {
			y = math.Round(y)
		}
		out[i] = T(y)
	}
	return out
}

func flatFieldPayload(p types.Payload, ff FlatField) types.Payload {
	switch v := p.(type) {
	case types.Buf[int8]:
		return flatField(v, ff)
	case types.Buf[uint8]:
		return flatField(v, ff)
	case types.Buf[int16]:
		return flatField(v, ff)
	case types.Buf[uint16]:
		return flatField(v, ff)
	case types.Buf[int32]:
		return flatField(v, ff)
	case types.Buf[uint32]:
		return flatField(v, ff)
	case types.Buf[int64]:
		return flatField(v, ff)
	case types.Buf[uint64]:
		return flatField(v, ff)
	case types.Buf[float32]:
		return flatField(v, ff)
	case types.Buf[float64]:
		return flatField(v, ff)
	default:
		return p
	}
}

func flatField[T types.Element](src types.Buf[T], ff FlatField) types.Buf[T] {
	kind := src.Kind()
	lo, hi, clip := kindRange(kind)
	out := make(types.Buf[T], len(src))
	for i := range src {
		gain := ff.Data[i]
		if gain < flatEpsilon {
			gain = flatEpsilon
		}
		v := float64(src[i]) / gain * ff.Mean
		if clip {
			v = math.Round(v)
			if v < lo {
				v = lo
			} else if v > hi {
				v = hi
			}
		}
		out[i] = T(v)
	}
	return out
}

// kindRange returns the clip bounds for integer kinds; clip is false for the
// float kinds.
func kindRange(kind types.Dtype) (lo, hi float64, clip bool) {
	switch kind {
	case types.Int8:
		return math.MinInt8, math.MaxInt8, true
	case types.Uint8:
		return 0, math.MaxUint8, true
	case types.Int16:
		return math.MinInt16, math.MaxInt16, true
	case types.Uint16:
		return 0, math.MaxUint16, true
	case types.Int32:
		return math.MinInt32, math.MaxInt32, true
	case types.Uint32:
		return 0, math.MaxUint32, true
	case types.Int64:
		return math.MinInt64, math.MaxInt64, true
	case types.Uint64:
		return 0, math.MaxUint64, true
	default:
		return 0, 0, false
	}
}
