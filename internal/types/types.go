// Package types holds the shared frame model: the numeric payload union,
// element kinds, color modes and the decoded frame handed between the
// pipeline stages.
package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Dtype identifies the numeric kind of a pixel buffer.
type Dtype uint8

const (
	Int8 Dtype = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
)

var dtypeNames = map[Dtype]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float32: "float32",
	Float64: "float64",
}

func (d Dtype) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// ParseDtype maps a wire kind name back to its Dtype.
func ParseDtype(name string) (Dtype, bool) {
	for d, n := range dtypeNames {
		if n == name {
			return d, true
		}
	}
	return 0, false
}

// Size returns the element size in bytes.
func (d Dtype) Size() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	default:
		return 8
	}
}

// Integer reports whether the kind is an integer kind.
func (d Dtype) Integer() bool {
	return d != Float32 && d != Float64
}

// ColorMode is the on-wire axis interpretation for multi-channel frames.
type ColorMode int

const (
	ModeMono  ColorMode = 0
	ModeBayer ColorMode = 1
	// ModeRGBPlanarFirst carries dimensions (3, NX, NY).
	ModeRGBPlanarFirst ColorMode = 2
	// ModeRGBPlanarMid carries dimensions (NX, 3, NY).
	ModeRGBPlanarMid ColorMode = 3
	// ModeRGBInterleaved carries dimensions (NX, NY, 3).
	ModeRGBInterleaved ColorMode = 4
)

// ColorModeAttr is the attribute key carrying the color mode on the wire.
const ColorModeAttr = "ColorMode"

// Element constrains the numeric kinds a pixel buffer may hold.
type Element interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// Payload is a closed union over the typed flat pixel buffers. Exactly the
// ten Buf instantiations implement it, so a type switch over the variants is
// exhaustive.
type Payload interface {
	isPayload()
	Len() int
	Kind() Dtype
}

// Buf is one variant of the payload union: a flat, row-major element buffer.
type Buf[T Element] []T

func (Buf[T]) isPayload() {}

func (b Buf[T]) Len() int { return len(b) }

func (b Buf[T]) Kind() Dtype {
	var zero T
	switch any(zero).(type) {
	case int8:
		return Int8
	case uint8:
		return Uint8
	case int16:
		return Int16
	case uint16:
		return Uint16
	case int32:
		return Int32
	case uint32:
		return Uint32
	case int64:
		return Int64
	case uint64:
		return Uint64
	case float32:
		return Float32
	default:
		return Float64
	}
}

// DecodedFrame is a fully owned, contiguous typed image. Pix holds
// Width*Height*Channels elements, row-major, channels interleaved last.
type DecodedFrame struct {
	Width    int
	Height   int
	Channels int
	Pix      Payload
	UniqueID uint64
	// Timestamp is the capture time reported by the feed; zero when the
	// feed did not report one.
	Timestamp time.Time
}

// Elems returns the expected element count for the frame geometry.
func (f DecodedFrame) Elems() int {
	return f.Width * f.Height * f.Channels
}

// Kind returns the numeric kind of the pixel buffer.
func (f DecodedFrame) Kind() Dtype {
	if f.Pix == nil {
		return Uint8
	}
	return f.Pix.Kind()
}

// AppendLE appends the payload packed little-endian, the byte layout used on
// the wire and toward renderer clients.
func AppendLE(dst []byte, p Payload) []byte {
	switch v := p.(type) {
	case Buf[int8]:
		for _, e := range v {
			dst = append(dst, byte(e))
		}
	case Buf[uint8]:
		dst = append(dst, v...)
	case Buf[int16]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint16(dst, uint16(e))
		}
	case Buf[uint16]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint16(dst, e)
		}
	case Buf[int32]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(e))
		}
	case Buf[uint32]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint32(dst, e)
		}
	case Buf[int64]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint64(dst, uint64(e))
		}
	case Buf[uint64]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint64(dst, e)
		}
	case Buf[float32]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(e))
		}
	case Buf[float64]:
		for _, e := range v {
			dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(e))
		}
	}
	return dst
}

// FromLE unpacks a little-endian byte buffer into a typed payload.
func FromLE(kind Dtype, data []byte) (Payload, error) {
	size := kind.Size()
	if len(data)%size != 0 {
		return nil, fmt.Errorf("buffer length %d not a multiple of element size %d", len(data), size)
	}
	n := len(data) / size
	switch kind {
	case Int8:
		out := make(Buf[int8], n)
		for i := range out {
			out[i] = int8(data[i])
		}
		return out, nil
	case Uint8:
		out := make(Buf[uint8], n)
		copy(out, data)
		return out, nil
	case Int16:
		out := make(Buf[int16], n)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
		}
		return out, nil
	case Uint16:
		out := make(Buf[uint16], n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(data[i*2:])
		}
		return out, nil
	case Int32:
		out := make(Buf[int32], n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case Uint32:
		out := make(Buf[uint32], n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(data[i*4:])
		}
		return out, nil
	case Int64:
		out := make(Buf[int64], n)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	case Uint64:
		out := make(Buf[uint64], n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(data[i*8:])
		}
		return out, nil
	case Float32:
		out := make(Buf[float32], n)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case Float64:
		out := make(Buf[float64], n)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown dtype %d", kind)
	}
}

// AsFloat64 reads one element as float64. Used where the exact kind does not
// matter (statistics, flat-field math).
func AsFloat64(p Payload, i int) float64 {
	switch v := p.(type) {
	case Buf[int8]:
		return float64(v[i])
	case Buf[uint8]:
		return float64(v[i])
	case Buf[int16]:
		return float64(v[i])
	case Buf[uint16]:
		return float64(v[i])
	case Buf[int32]:
		return float64(v[i])
	case Buf[uint32]:
		return float64(v[i])
	case Buf[int64]:
		return float64(v[i])
	case Buf[uint64]:
		return float64(v[i])
	case Buf[float32]:
		return float64(v[i])
	case Buf[float64]:
		return v[i]
	default:
		return 0
	}
}
