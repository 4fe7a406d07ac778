package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Decode failure taxonomy. EmptyPayload and NoDimensions mean the detector
// had nothing ready this tick; UnsupportedLayout means the frame was dropped.
var (
	ErrEmptyPayload      = errors.New("ingest: empty payload")
	ErrNoDimensions      = errors.New("ingest: no dimensions")
	ErrUnsupportedLayout = errors.New("ingest: unsupported layout")
)

// Decode turns a raw wire frame into a typed, contiguous image. Pure: no
// I/O, no state. Every failure is non-fatal to the caller.
func Decode(raw RawFrame) (types.DecodedFrame, error) {
	if raw.Value == nil || raw.Value.Len() == 0 {
		return types.DecodedFrame{}, ErrEmptyPayload
	}
	if len(raw.Dims) == 0 {
		return types.DecodedFrame{}, ErrNoDimensions
	}

	mode := ColorModeOf(raw.Attrs)
	frame := types.DecodedFrame{
		UniqueID:  raw.UniqueID,
		Timestamp: timestampOf(raw.Timestamp),
	}

	switch len(raw.Dims) {
	case 2:
		// Flat buffer is row-major (height, width); dims carry (width, height).
		width := raw.Dims[0].Size
		height := raw.Dims[1].Size
		if width*height != raw.Value.Len() {
			w, h, ok := guessShape(raw.Value.Len())
			if !ok {
				return types.DecodedFrame{}, fmt.Errorf("%w: %dx%d dims for %d elements",
					ErrUnsupportedLayout, width, height, raw.Value.Len())
			}
			width, height = w, h
		}
		frame.Width = width
		frame.Height = height
		frame.Channels = 1
		frame.Pix = raw.Value
		return frame, nil

	case 3:
		d0 := raw.Dims[0].Size
		d1 := raw.Dims[1].Size
		d2 := raw.Dims[2].Size
		if d0*d1*d2 != raw.Value.Len() {
			return types.DecodedFrame{}, fmt.Errorf("%w: %dx%dx%d dims for %d elements",
				ErrUnsupportedLayout, d0, d1, d2, raw.Value.Len())
		}

		var nx, ny int
		switch {
		case mode == types.ModeRGBPlanarFirst && d0 == 3:
			nx, ny = d1, d2
		case mode == types.ModeRGBPlanarMid && d1 == 3:
			nx, ny = d0, d2
		case mode == types.ModeRGBInterleaved && d2 == 3:
			nx, ny = d0, d1
		default:
			// Mislabeled single-channel data: drop a singleton axis and
			// treat the remaining two as (height, width).
			height, width, ok := dropSingleton(d0, d1, d2)
			if !ok {
				return types.DecodedFrame{}, fmt.Errorf("%w: dims %dx%dx%d with color mode %d",
					ErrUnsupportedLayout, d0, d1, d2, mode)
			}
			frame.Width = width
			frame.Height = height
			frame.Channels = 1
			frame.Pix = raw.Value
			return frame, nil
		}

		frame.Width = nx
		frame.Height = ny
		frame.Channels = 3
		frame.Pix = interleavePayload(raw.Value, mode, nx, ny)
		return frame, nil

	default:
		return types.DecodedFrame{}, fmt.Errorf("%w: %d dimensions", ErrUnsupportedLayout, len(raw.Dims))
	}
}

func timestampOf(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ts*1e9))
}

// dropSingleton removes a size-1 axis from a 3-entry dimension list. The
// buffer stays contiguous, so the remaining axes in order are (rows, cols).
func dropSingleton(d0, d1, d2 int) (rows, cols int, ok bool) {
	switch {
	case d0 == 1:
		return d1, d2, true
	case d1 == 1:
		return d0, d2, true
	case d2 == 1:
		return d0, d1, true
	default:
		return 0, 0, false
	}
}

// commonShapes are tried first when guessing a 2D shape from a bare element
// count, width-major.
var commonShapes = [][2]int{
	{640, 480},
	{800, 600},
	{1024, 768},
	{1280, 960},
	{1280, 1024},
	{1920, 1080},
	{512, 512},
	{1024, 1024},
	{2048, 2048},
}

// guessShape maps a flat element count to a plausible (width, height).
// Heuristic only: common resolutions first, then the most square factoring.
// A count that only factors into a degenerate strip is rejected.
func guessShape(n int) (width, height int, ok bool) {
	if n <= 0 {
		return 0, 0, false
	}
	for _, shape := range commonShapes {
		if shape[0]*shape[1] == n {
			return shape[0], shape[1], true
		}
	}
	for d := intSqrt(n); d >= 2; d-- {
		if n%d == 0 {
			return n / d, d, true
		}
	}
	return 0, 0, false
}

func intSqrt(n int) int {
	d := 1
	for (d+1)*(d+1) <= n {
		d++
	}
	return d
}

// interleavePayload rewrites a 3-axis buffer into (height, width, 3)
// row-major with channels interleaved last. The source buffer is C-order
// over the dimension list as transmitted.
func interleavePayload(p types.Payload, mode types.ColorMode, nx, ny int) types.Payload {
	switch v := p.(type) {
	case types.Buf[int8]:
		return interleave(v, mode, nx, ny)
	case types.Buf[uint8]:
		return interleave(v, mode, nx, ny)
	case types.Buf[int16]:
		return interleave(v, mode, nx, ny)
	case types.Buf[uint16]:
		return interleave(v, mode, nx, ny)
	case types.Buf[int32]:
		return interleave(v, mode, nx, ny)
	case types.Buf[uint32]:
		return interleave(v, mode, nx, ny)
	case types.Buf[int64]:
		return interleave(v, mode, nx, ny)
	case types.Buf[uint64]:
		return interleave(v, mode, nx, ny)
	case types.Buf[float32]:
		return interleave(v, mode, nx, ny)
	case types.Buf[float64]:
		return interleave(v, mode, nx, ny)
	default:
		return p
	}
}

func interleave[T types.Element](src types.Buf[T], mode types.ColorMode, nx, ny int) types.Buf[T] {
	out := make(types.Buf[T], nx*ny*3)
	switch mode {
	case types.ModeRGBPlanarFirst:
		// src[c][x][y] -> out[y][x][c], permutation (2,1,0)
		for c := 0; c < 3; c++ {
			for x := 0; x < nx; x++ {
				for y := 0; y < ny; y++ {
					out[(y*nx+x)*3+c] = src[(c*nx+x)*ny+y]
				}
			}
		}
	case types.ModeRGBPlanarMid:
		// src[x][c][y] -> out[y][x][c], permutation (2,0,1)
		for x := 0; x < nx; x++ {
			for c := 0; c < 3; c++ {
				for y := 0; y < ny; y++ {
					out[(y*nx+x)*3+c] = src[(x*3+c)*ny+y]
				}
			}
		}
	case types.ModeRGBInterleaved:
		// src[x][y][c] -> out[y][x][c], permutation (1,0,2)
		for x := 0; x < nx; x++ {
			for y := 0; y < ny; y++ {
				for c := 0; c < 3; c++ {
					out[(y*nx+x)*3+c] = src[(x*ny+y)*3+c]
				}
			}
		}
	}
	return out
}
