package cbor

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func TestDecodeScalarTable(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want any
	}{
		{"zero", []byte{0x00}, uint64(0)},
		{"unsigned24", []byte{0x18, 0x18}, uint64(24)},
		{"negative one", []byte{0x20}, int64(-1)},
		{"empty bytes", []byte{0x40}, []byte{}},
		{"text hi", []byte{0x62, 'h', 'i'}, "hi"},
		{"true", []byte{0xF5}, true},
		{"false", []byte{0xF4}, false},
		{"null", []byte{0xF6}, nil},
		{"half precision one", []byte{0xF9, 0x3C, 0x00}, float64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeUndefined(t *testing.T) {
	got, err := Decode([]byte{0xF7})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if _, ok := got.(Undefined); !ok {
		t.Fatalf("got %T, want Undefined", got)
	}
}

func TestDecodeArray(t *testing.T) {
	got, err := Decode([]byte{0x83, 0x01, 0x02, 0x03})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []any{uint64(1), uint64(2), uint64(3)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeUnexpectedEnd(t *testing.T) {
	_, err := Decode([]byte{0x18})
	if err == nil {
		t.Fatal("expected error on truncated input")
	}
}

func TestDecodeMalformedHead(t *testing.T) {
	// major 0, additional info 28 (reserved).
	_, err := DecodeItem([]byte{0x1C})
	if !errors.Is(err, ErrMalformedHead) {
		t.Fatalf("err = %v, want ErrMalformedHead", err)
	}
}

func TestDecodeTrailingDataRejected(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	if err != ErrNotAtEnd {
		t.Fatalf("err = %v, want ErrNotAtEnd", err)
	}
}

func TestDecodeIndefiniteLengthArray(t *testing.T) {
	data := []byte{0x9F, 0x01, 0x02, 0xFF}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := []any{uint64(1), uint64(2)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeIndefiniteChunkTypeMismatch(t *testing.T) {
	// indefinite byte string (0x5F) containing a text-string chunk (0x61 'a').
	data := []byte{0x5F, 0x61, 'a', 0xFF}
	_, err := Decode(data)
	if !errors.Is(err, ErrIndefiniteChunkTypeMismatch) {
		t.Fatalf("err = %v, want ErrIndefiniteChunkTypeMismatch", err)
	}
}

func TestDecodeStrictMapKeysRejectsDuplicate(t *testing.T) {
	// {"a": 1, "a": 2}
	data := []byte{0xA2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}
	_, err := DecodeItem(data, WithStrictMapKeys())
	if err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestDecodeNestingDepthExceeded(t *testing.T) {
	// deeply nested single-element arrays: [[[...]]]
	var data []byte
	for i := 0; i < 10; i++ {
		data = append(data, 0x81)
	}
	data = append(data, 0x00)
	_, err := DecodeItem(data, WithDecodeMaxNestingDepth(3))
	if err == nil {
		t.Fatal("expected nesting depth error")
	}
}

func TestDecodeBignumRoundTrip(t *testing.T) {
	huge := new(big.Int)
	huge.SetString("18446744073709551616", 10)
	encoded, err := Encode(huge)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	gotBig, ok := got.(*big.Int)
	if !ok || gotBig.Cmp(huge) != 0 {
		t.Fatalf("got %v, want %v", got, huge)
	}
}

func TestDecodeUUIDRoundTrip(t *testing.T) {
	id := uuid.New()
	encoded, err := Encode(id)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	got, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	gotID, ok := got.(uuid.UUID)
	if !ok || gotID != id {
		t.Fatalf("got %v, want %v", got, id)
	}
}

func TestDecodeDateTimeString(t *testing.T) {
	// Tag 0 wrapping "2013-03-21T20:04:00Z", the RFC 8949 appendix example.
	data := []byte{
		0xC0, 0x74,
		'2', '0', '1', '3', '-', '0', '3', '-', '2', '1', 'T',
		'2', '0', ':', '0', '4', ':', '0', '0', 'Z',
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	tm, ok := got.(time.Time)
	if !ok {
		t.Fatalf("got %T, want time.Time", got)
	}
	want := time.Date(2013, 3, 21, 20, 4, 0, 0, time.UTC)
	if !tm.Equal(want) {
		t.Fatalf("got %v, want %v", tm, want)
	}
}
