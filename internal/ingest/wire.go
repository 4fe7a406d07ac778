package ingest

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

// Dim describes one axis of the on-wire array.
type Dim struct {
	Size   int `cbor:"size" json:"size"`
	Offset int `cbor:"offset" json:"offset"`
}

// Attribute is a key/value pair riding along with a frame.
type Attribute struct {
	Name  string `cbor:"name" json:"name"`
	Value any    `cbor:"value" json:"value"`
}

// RawFrame is the in-memory form of a feed message: a self-describing
// multidimensional array plus metadata. Value holds exactly one populated
// payload variant, or nil when the message carried none.
type RawFrame struct {
	UniqueID  uint64
	Dims      []Dim
	Value     types.Payload
	Attrs     []Attribute
	Timestamp float64
}

// wireFrame is the CBOR shape of a frame message. The value union is a map
// with one key per numeric kind; the byte string is the flat element buffer
// packed little-endian.
type wireFrame struct {
	UniqueID  uint64            `cbor:"uid"`
	Dims      []Dim             `cbor:"dims,omitempty"`
	Value     map[string][]byte `cbor:"value,omitempty"`
	Attrs     []Attribute       `cbor:"attrs,omitempty"`
	Timestamp float64           `cbor:"ts,omitempty"`
}

// Marshal encodes a frame into its CBOR wire form.
func Marshal(frame RawFrame) ([]byte, error) {
	wf := wireFrame{
		UniqueID:  frame.UniqueID,
		Dims:      frame.Dims,
		Attrs:     frame.Attrs,
		Timestamp: frame.Timestamp,
	}
	if frame.Value != nil {
		wf.Value = map[string][]byte{
			frame.Value.Kind().String(): types.AppendLE(nil, frame.Value),
		}
	}
	return cbor.Marshal(wf)
}

// Unmarshal decodes a CBOR wire message into a RawFrame. A missing or empty
// value union yields a frame with a nil Value; the decoder turns that into
// the empty-payload case.
func Unmarshal(data []byte) (RawFrame, error) {
	var wf wireFrame
	if err := cbor.Unmarshal(data, &wf); err != nil {
		return RawFrame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	frame := RawFrame{
		UniqueID:  wf.UniqueID,
		Dims:      wf.Dims,
		Attrs:     wf.Attrs,
		Timestamp: wf.Timestamp,
	}
	if len(wf.Value) > 1 {
		return RawFrame{}, fmt.Errorf("value union has %d variants", len(wf.Value))
	}
	for name, buf := range wf.Value {
		kind, ok := types.ParseDtype(name)
		if !ok {
			return RawFrame{}, fmt.Errorf("unknown value kind %q", name)
		}
		payload, err := types.FromLE(kind, buf)
		if err != nil {
			return RawFrame{}, fmt.Errorf("value kind %s: %w", name, err)
		}
		frame.Value = payload
	}
	return frame, nil
}

// ColorModeOf scans the attribute list for the color mode. Absent or
// malformed values fall back to mono, never an error.
func ColorModeOf(attrs []Attribute) types.ColorMode {
	for _, attr := range attrs {
		if attr.Name != types.ColorModeAttr {
			continue
		}
		mode, err := toInt(attr.Value)
		if err != nil {
			return types.ModeMono
		}
		return types.ColorMode(mode)
	}
	return types.ModeMono
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case uint16:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case float32:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}
