package cbor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestItemEqualsArrayPositional(t *testing.T) {
	a := NewItem(MajorTypeArray, 0)
	a.AppendChild(liftInteger(1))
	a.AppendChild(liftInteger(2))

	b := NewItem(MajorTypeArray, 0)
	b.AppendChild(liftInteger(2))
	b.AppendChild(liftInteger(1))

	if Equals(a, b) {
		t.Fatal("arrays with swapped elements should not be equal")
	}
}

func TestItemEqualsMapOrderInsensitive(t *testing.T) {
	a := NewItem(MajorTypeMap, 0)
	a.SetPair(textItem("a"), liftInteger(1))
	a.SetPair(textItem("b"), liftInteger(2))

	b := NewItem(MajorTypeMap, 0)
	b.SetPair(textItem("b"), liftInteger(2))
	b.SetPair(textItem("a"), liftInteger(1))

	if !Equals(a, b) {
		t.Fatal("maps with the same pairs in different order should be equal")
	}
}

func TestItemSetPairReplacesExisting(t *testing.T) {
	m := NewItem(MajorTypeMap, 0)
	m.SetPair(textItem("k"), liftInteger(1))
	m.SetPair(textItem("k"), liftInteger(2))

	if len(m.pairs) != 1 {
		t.Fatalf("expected 1 pair after overwrite, got %d", len(m.pairs))
	}
	v, ok := m.Get(textItem("k"))
	if !ok || v.IntValue() != 2 {
		t.Fatalf("expected overwritten value 2, got %+v ok=%v", v, ok)
	}
}

func TestItemGetUsesHashIndexPastThreshold(t *testing.T) {
	m := NewItem(MajorTypeMap, 0)
	for i := 0; i < hashMapThreshold+5; i++ {
		m.SetPair(liftInteger(int64(i)), liftInteger(int64(i*10)))
	}
	if m.hashIndex == nil {
		t.Fatal("expected hash index to be built past threshold")
	}
	v, ok := m.Get(liftInteger(3))
	if !ok || v.IntValue() != 30 {
		t.Fatalf("Get(3) = %+v, ok=%v, want 30", v, ok)
	}
}

func TestItemClone(t *testing.T) {
	orig := NewItem(MajorTypeArray, 0)
	orig.AppendChild(liftInteger(42))
	clone := orig.Clone()

	if !Equals(orig, clone) {
		t.Fatal("clone should be structurally equal to the original")
	}
	clone.children[0].intVal = 99
	if orig.children[0].intVal == 99 {
		t.Fatal("mutating the clone mutated the original")
	}
}

func TestItemToNativeHeterogeneousMapKeys(t *testing.T) {
	inner := NewItem(MajorTypeArray, 0)
	inner.AppendChild(liftInteger(1))

	m := NewItem(MajorTypeMap, 0)
	m.SetPair(inner, textItem("v"))

	native, err := m.ToNative()
	if err != nil {
		t.Fatalf("ToNative failed: %v", err)
	}
	if _, ok := native.(*Map); !ok {
		t.Fatalf("expected *Map fallback for non-comparable key, got %T", native)
	}
}

func TestItemToNativeScalarMapKeys(t *testing.T) {
	m := NewItem(MajorTypeMap, 0)
	m.SetPair(textItem("a"), liftInteger(1))

	native, err := m.ToNative()
	if err != nil {
		t.Fatalf("ToNative failed: %v", err)
	}
	asMap, ok := native.(map[any]any)
	if !ok {
		t.Fatalf("expected map[any]any, got %T", native)
	}
	if diff := cmp.Diff(map[any]any{"a": uint64(1)}, asMap); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func textItem(s string) *Item {
	it, _ := NewBytes(MajorTypeTextString, []byte(s))
	return it
}
