package ingest

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/mittoalb/pystream-sub000/internal/types"
)

func TestWireRoundTrip(t *testing.T) {
	frame := RawFrame{
		UniqueID: 42,
		Dims: []Dim{
			{Size: 3},
			{Size: 2},
		},
		Value: types.Buf[uint16]{1, 2, 3, 4, 5, 6},
		Attrs: []Attribute{
			{Name: types.ColorModeAttr, Value: int64(0)},
		},
		Timestamp: 1.5,
	}

	payload, err := Marshal(frame)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	back, err := Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if back.UniqueID != 42 || back.Timestamp != 1.5 {
		t.Fatalf("metadata mismatch: %+v", back)
	}
	if diff := cmp.Diff(frame.Dims, back.Dims); diff != "" {
		t.Fatalf("dims mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(frame.Value, back.Value); diff != "" {
		t.Fatalf("value mismatch (-want +got):\n%s", diff)
	}
	if ColorModeOf(back.Attrs) != types.ModeMono {
		t.Fatalf("color mode mismatch: %v", back.Attrs)
	}
}

func TestWireEmptyValue(t *testing.T) {
	payload, err := Marshal(RawFrame{UniqueID: 1})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	back, err := Unmarshal(payload)
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if back.Value != nil {
		t.Fatalf("expected nil value, got %T", back.Value)
	}
}

func TestWireRejectsMultipleVariants(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{
		"uid": 1,
		"value": map[string][]byte{
			"uint8":  {1},
			"uint16": {1, 0},
		},
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if _, err := Unmarshal(payload); err == nil {
		t.Fatal("expected error for a multi-variant value union")
	}
}

func TestWireRejectsUnknownKind(t *testing.T) {
	payload, err := cbor.Marshal(map[string]any{
		"uid":   1,
		"value": map[string][]byte{"complex64": {1, 2, 3, 4}},
	})
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if _, err := Unmarshal(payload); err == nil {
		t.Fatal("expected error for an unknown value kind")
	}
}

func TestColorModeOf(t *testing.T) {
	cases := []struct {
		name  string
		attrs []Attribute
		want  types.ColorMode
	}{
		{"absent", nil, types.ModeMono},
		{"mono", []Attribute{{Name: types.ColorModeAttr, Value: 0}}, types.ModeMono},
		{"interleaved", []Attribute{{Name: types.ColorModeAttr, Value: uint64(4)}}, types.ModeRGBInterleaved},
		{"malformed", []Attribute{{Name: types.ColorModeAttr, Value: "not a number"}}, types.ModeMono},
		{"other attrs", []Attribute{{Name: "exposure", Value: 0.1}}, types.ModeMono},
	}
	for _, tc := range cases {
		if got := ColorModeOf(tc.attrs); got != tc.want {
			t.Fatalf("%s: ColorModeOf = %v, want %v", tc.name, got, tc.want)
		}
	}
}
