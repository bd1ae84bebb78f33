package cbor

import (
	"testing"
	"time"
)

type testShape struct {
	majors    map[string]Major
	mapper    map[string][]string
	blacklist map[string]bool
	whitelist []string
	hasWL     bool
	children  map[string]ShapeDescriptor
}

func (s *testShape) PropertyMajor(field string) (Major, bool) {
	m, ok := s.majors[field]
	return m, ok
}
func (s *testShape) PropertyMinor(string) (uint64, bool)  { return 0, false }
func (s *testShape) PropertySequence() []string           { return nil }
func (s *testShape) MapperKeys(field string) []string     { return s.mapper[field] }
func (s *testShape) Blacklisted(field string) bool        { return s.blacklist[field] }
func (s *testShape) Whitelist() ([]string, bool)          { return s.whitelist, s.hasWL }
func (s *testShape) ContainerElement(field string) (ShapeDescriptor, bool) {
	c, ok := s.children[field]
	return c, ok
}

func TestDecodeClassAppliesMapperKeys(t *testing.T) {
	data, err := Encode(map[string]any{"old_name": 1})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	shape := &testShape{mapper: map[string][]string{"old_name": {"new_name"}}}
	got, err := DecodeClass(shape, data)
	if err != nil {
		t.Fatalf("DecodeClass failed: %v", err)
	}
	if _, ok := got["new_name"]; !ok {
		t.Fatalf("expected re-keyed field new_name, got %+v", got)
	}
	if _, ok := got["old_name"]; ok {
		t.Fatalf("old key should have been dropped, got %+v", got)
	}
}

func TestDecodeClassBlacklist(t *testing.T) {
	data, err := Encode(map[string]any{"keep": 1, "drop": 2})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	shape := &testShape{blacklist: map[string]bool{"drop": true}}
	got, err := DecodeClass(shape, data)
	if err != nil {
		t.Fatalf("DecodeClass failed: %v", err)
	}
	if _, ok := got["drop"]; ok {
		t.Fatal("blacklisted field should be absent")
	}
	if _, ok := got["keep"]; !ok {
		t.Fatal("non-blacklisted field should be present")
	}
}

func TestDecodeClassWhitelist(t *testing.T) {
	data, err := Encode(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	shape := &testShape{whitelist: []string{"a"}, hasWL: true}
	got, err := DecodeClass(shape, data)
	if err != nil {
		t.Fatalf("DecodeClass failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected only whitelisted field, got %+v", got)
	}
	if _, ok := got["a"]; !ok {
		t.Fatal("whitelisted field missing")
	}
}

func TestDecodeClassRecursesContainerElement(t *testing.T) {
	data, err := Encode(map[string]any{
		"inner": map[string]any{"old": 7},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	innerShape := &testShape{mapper: map[string][]string{"old": {"renamed"}}}
	shape := &testShape{children: map[string]ShapeDescriptor{"inner": innerShape}}

	got, err := DecodeClass(shape, data)
	if err != nil {
		t.Fatalf("DecodeClass failed: %v", err)
	}
	inner, ok := got["inner"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %T", got["inner"])
	}
	if _, ok := inner["renamed"]; !ok {
		t.Fatalf("expected nested field re-keyed to renamed, got %+v", inner)
	}
}

func TestEncodeObjectHintedEpochDate(t *testing.T) {
	// RFC 8949 appendix example, rendered as tag 1 (epoch seconds) instead
	// of the default tag 0 (date/time string).
	want := time.Date(2013, 3, 21, 20, 4, 0, 0, time.UTC)
	data, err := EncodeObjectHinted(want, MajorTypeTag, 1)
	if err != nil {
		t.Fatalf("EncodeObjectHinted failed: %v", err)
	}
	if data[0] != 0xC1 {
		t.Fatalf("head = %#x, want 0xC1 (tag 1)", data[0])
	}
	item, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem failed: %v", err)
	}
	if item.Major != MajorTypeTag || CborTag(item.Minor) != TagUnixTime {
		t.Fatalf("expected tag 1, got major=%v minor=%v", item.Major, item.Minor)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	tm, ok := got.(time.Time)
	if !ok || !tm.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestEncodeObjectHintedDaysSinceEpoch(t *testing.T) {
	want := time.Date(2013, 3, 21, 0, 0, 0, 0, time.UTC)
	data, err := EncodeObjectHinted(want, MajorTypeTag, 100)
	if err != nil {
		t.Fatalf("EncodeObjectHinted failed: %v", err)
	}
	item, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem failed: %v", err)
	}
	if item.Major != MajorTypeTag || CborTag(item.Minor) != TagDaysSinceEpoch {
		t.Fatalf("expected tag 100, got major=%v minor=%v", item.Major, item.Minor)
	}
	if item.tagChild.Major != MajorTypeUnsignedInteger {
		t.Fatalf("expected an integer day count, got major=%v", item.tagChild.Major)
	}
}

func TestEncodeWithMajorHintTagWrapsRatherThanMutates(t *testing.T) {
	data, err := Encode(42, WithMajorHint(MajorTypeTag), WithMinorHint(5))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	item, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem failed: %v", err)
	}
	if item.Major != MajorTypeTag || item.Minor != 5 {
		t.Fatalf("expected Tag(5, ...), got major=%v minor=%v", item.Major, item.Minor)
	}
	if item.tagChild == nil || item.tagChild.Major != MajorTypeUnsignedInteger || item.tagChild.IntValue() != 42 {
		t.Fatalf("expected Tag child Unsigned(42), got %+v", item.tagChild)
	}
}

func TestEncodeWithMajorHintTagWithoutMinorHintFails(t *testing.T) {
	_, err := Encode(42, WithMajorHint(MajorTypeTag))
	if err != ErrUnencodable {
		t.Fatalf("err = %v, want ErrUnencodable", err)
	}
}

func TestEncodeDecodeKeySequenceRoundTrip(t *testing.T) {
	data, err := Encode(map[string]any{"z": 1, "a": 2, "m": 3}, WithKeySequence("m", "a"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	item, err := DecodeItem(data)
	if err != nil {
		t.Fatalf("DecodeItem failed: %v", err)
	}
	if len(item.pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(item.pairs))
	}
	wantOrder := []string{"m", "a", "z"}
	for i, k := range wantOrder {
		if keyText(item.pairs[i].Key) != k {
			t.Fatalf("position %d = %q, want %q", i, keyText(item.pairs[i].Key), k)
		}
	}
}
