// Package simulator produces synthetic detector frames for debug mode and
// the standalone publisher: a noisy gaussian spot in mono uint16 alternating
// with an RGB interleaved test pattern.
package simulator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/mittoalb/pystream-sub000/internal/ingest"
	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Stream emits raw frames at the given rate until the context is cancelled.
// Even ids carry mono uint16 data, odd ids an RGB interleaved pattern.
func Stream(ctx context.Context, width, height int, rate float64) <-chan ingest.RawFrame {
	if rate <= 0 {
		rate = 10
	}
	out := make(chan ingest.RawFrame)
	go func() {
		defer close(out)

		interval := time.Duration(float64(time.Second) / rate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		base := gaussianBase(width, height)
		var uid uint64

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var frame ingest.RawFrame
				if uid%2 == 0 {
					frame = monoFrame(uid, width, height, base)
				} else {
					frame = rgbFrame(uid, width, height)
				}
				select {
				case <-ctx.Done():
					return
				case out <- frame:
				}
				uid++
			}
		}
	}()
	return out
}

func gaussianBase(width, height int) []float64 {
	base := make([]float64, width*height)
	cx := float64(width) / 2
	cy := float64(height) / 2
	sigma := float64(width*height) / 20
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			base[y*width+x] = 1000 * math.Exp(-(dx*dx+dy*dy)/sigma)
		}
	}
	return base
}

// monoFrame packs a 2D frame: dims (width, height), buffer row-major
// (height, width).
func monoFrame(uid uint64, width, height int, base []float64) ingest.RawFrame {
	pix := make(types.Buf[uint16], width*height)
	for i, b := range base {
		v := b + rand.NormFloat64()*math.Sqrt(b+1)
		if v < 0 {
			v = 0
		}
		pix[i] = uint16(v)
	}
	return ingest.RawFrame{
		UniqueID: uid,
		Dims: []ingest.Dim{
			{Size: width},
			{Size: height},
		},
		Value: pix,
		Attrs: []ingest.Attribute{
			{Name: types.ColorModeAttr, Value: int(types.ModeMono)},
		},
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
}

// rgbFrame packs an interleaved color frame: dims (width, height, 3),
// buffer C-order over (x, y, c).
func rgbFrame(uid uint64, width, height int) ingest.RawFrame {
	pix := make(types.Buf[uint8], width*height*3)
	shift := int(uid)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			i := (x*height + y) * 3
			pix[i] = uint8((x + shift) * 255 / max(width, 1))
			pix[i+1] = uint8((y + shift) * 255 / max(height, 1))
			pix[i+2] = uint8(((x + y) / 2) * 255 / max((width+height)/2, 1))
		}
	}
	return ingest.RawFrame{
		UniqueID: uid,
		Dims: []ingest.Dim{
			{Size: width},
			{Size: height},
			{Size: 3},
		},
		Value: pix,
		Attrs: []ingest.Attribute{
			{Name: types.ColorModeAttr, Value: int(types.ModeRGBInterleaved)},
		},
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
