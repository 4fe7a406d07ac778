package types

import (
	"testing"
)

func TestLERoundTrip(t *testing.T) {
	payloads := []Payload{
		Buf[int8]{-1, 0, 1, 127},
		Buf[uint16]{0, 1, 513, 65535},
		Buf[int32]{-100000, 0, 100000},
		Buf[uint64]{0, 1 << 40},
		Buf[float32]{-1.5, 0, 3.25},
		Buf[float64]{-1e9, 0, 3.141592653589793},
	}
	for _, p := range payloads {
		packed := AppendLE(nil, p)
		if len(packed) != p.Len()*p.Kind().Size() {
			t.Fatalf("%s: packed %d bytes for %d elements", p.Kind(), len(packed), p.Len())
		}
		back, err := FromLE(p.Kind(), packed)
		if err != nil {
			t.Fatalf("%s: FromLE error: %v", p.Kind(), err)
		}
		if back.Len() != p.Len() {
			t.Fatalf("%s: round trip length %d want %d", p.Kind(), back.Len(), p.Len())
		}
		for i := 0; i < p.Len(); i++ {
			if AsFloat64(back, i) != AsFloat64(p, i) {
				t.Fatalf("%s: element %d mismatch", p.Kind(), i)
			}
		}
	}
}

func TestFromLEBadLength(t *testing.T) {
	if _, err := FromLE(Uint16, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for odd-length uint16 buffer")
	}
}

func TestParseDtype(t *testing.T) {
	for _, kind := range []Dtype{Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64, Float32, Float64} {
		got, ok := ParseDtype(kind.String())
		if !ok || got != kind {
			t.Fatalf("ParseDtype(%q) = %v, %v", kind.String(), got, ok)
		}
	}
	if _, ok := ParseDtype("complex64"); ok {
		t.Fatal("ParseDtype accepted an unknown kind")
	}
}

func TestKind(t *testing.T) {
	if k := (Buf[uint16]{}).Kind(); k != Uint16 {
		t.Fatalf("Buf[uint16].Kind() = %v", k)
	}
	if k := (Buf[float64]{}).Kind(); k != Float64 {
		t.Fatalf("Buf[float64].Kind() = %v", k)
	}
}
