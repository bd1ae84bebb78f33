package cbor

import (
	"bytes"
	"math"
	"math/big"
)

// FloatWidth selects which IEEE 754 width a Primitive float item carries.
type FloatWidth int

const (
	// FloatWidthHalf is a 16-bit (binary16) float.
	FloatWidthHalf FloatWidth = iota
	// FloatWidthSingle is a 32-bit (binary32) float.
	FloatWidthSingle
	// FloatWidthDouble is a 64-bit (binary64) float.
	FloatWidthDouble
)

// Undefined is the native projection of CBOR's "undefined" simple value
// (major 7, simple value 23) — distinct from nil, which projects from null.
type Undefined struct{}

// TaggedValue is the native projection of a tag the decoder does not
// otherwise understand, or one whose projection retains the tag as
// metadata (tags 21-24). Value is the inner item's own native projection.
type TaggedValue struct {
	Tag   uint64
	Value any
}

// Map is the native projection of a CBOR map that has at least one key
// which is not itself representable as a comparable Go value (e.g. a key
// that is an Array or Map). Ordinary maps with scalar keys project to
// map[any]any instead; see Item.ToNative.
type Map struct {
	Pairs []KV
}

// KV is one entry of a Map.
type KV struct {
	Key   any
	Value any
}

// Pair is one key/value entry of a CBOR Map item. Keys are themselves
// items and may be of any major type.
type Pair struct {
	Key   *Item
	Value *Item
}

// hashMapThreshold is the pair count past which Item indexes map keys by
// their canonical encoding instead of scanning linearly. Spec calls a
// linear scan "acceptable at typical scales" and names a canonical-byte
// hash as "the natural optimization" beyond that.
const hashMapThreshold = 32

// Item is a tagged union mirroring the CBOR major/minor grid of RFC 8949.
// Exactly one of its payload fields is meaningful, selected by Major.
type Item struct {
	Major Major
	Minor uint64

	intVal     uint64
	isFloat    bool
	floatVal   float64
	floatW     FloatWidth
	bytes      []byte
	indefinite bool
	children   []*Item // Array elements, or Bytes/Text indefinite chunks
	pairs      []Pair  // Map entries
	tagChild   *Item   // Tag's single child

	widthHint byte // explicit minor-width-class override (0 = minimal encoding)

	hashIndex map[string]int // lazily built Map key index, keyed by CanonicalBytes
}

// Major is an alias for MajorType, named to match the spec vocabulary
// ("major") while keeping the constants already defined in cbor.go.
type Major = MajorType

// NewItem constructs a bare item with the given major/minor header. Most
// callers want one of the typed constructors below instead.
func NewItem(major Major, minor uint64) *Item {
	return &Item{Major: major, Minor: minor}
}

// NewNumberInt constructs an Unsigned or Negative item from a 64-bit
// magnitude. For Negative, magnitude n represents the logical value -1-n.
func NewNumberInt(major Major, magnitude uint64) (*Item, error) {
	if major != MajorTypeUnsignedInteger && major != MajorTypeNegativeInteger {
		return nil, ErrUnreachable
	}
	return &Item{Major: major, Minor: magnitude, intVal: magnitude}, nil
}

// NewNumberFloat constructs a Primitive float item of the given width.
func NewNumberFloat(width FloatWidth, value float64) *Item {
	return &Item{
		Major:    MajorTypeSimpleOrFloat,
		Minor:    floatWidthMinor(width),
		isFloat:  true,
		floatVal: value,
		floatW:   width,
	}
}

func floatWidthMinor(width FloatWidth) uint64 {
	switch width {
	case FloatWidthHalf:
		return uint64(AdditionalInfo16Bit)
	case FloatWidthSingle:
		return uint64(AdditionalInfo32Bit)
	default:
		return uint64(AdditionalInfo64Bit)
	}
}

// NewBytes constructs a Bytes or Text item from a definite-length payload.
// The payload is copied; the item owns its own copy.
func NewBytes(major Major, payload []byte) (*Item, error) {
	if major != MajorTypeByteString && major != MajorTypeTextString {
		return nil, ErrUnreachable
	}
	cp := append([]byte(nil), payload...)
	return &Item{Major: major, Minor: uint64(len(cp)), bytes: cp}, nil
}

func newIndefiniteContainer(major Major) *Item {
	return &Item{Major: major, Minor: uint64(AdditionalInfoIndefiniteLength), indefinite: true}
}

func newSimple(value SimpleValue) *Item {
	return &Item{Major: MajorTypeSimpleOrFloat, Minor: uint64(value)}
}

// AppendChild appends a child to an Array, or a chunk to an indefinite
// Bytes/Text item, preserving insertion order. Definite-length Bytes/Text
// items and Maps (use SetPair for those) reject the call.
func (it *Item) AppendChild(child *Item) error {
	switch it.Major {
	case MajorTypeArray:
		it.children = append(it.children, child)
		if !it.indefinite {
			it.Minor = uint64(len(it.children))
		}
		return nil
	case MajorTypeByteString, MajorTypeTextString:
		if !it.indefinite {
			return ErrInvalidState
		}
		it.children = append(it.children, child)
		if child != nil {
			it.bytes = append(it.bytes, child.bytes...)
		}
		return nil
	default:
		return ErrInvalidState
	}
}

// SetPair inserts or updates a Map entry. If key is already present (by
// Equals), its value is replaced in place; otherwise the pair is appended,
// preserving insertion order.
func (it *Item) SetPair(key, value *Item) error {
	if it.Major != MajorTypeMap {
		return ErrInvalidState
	}
	if idx, ok := it.indexOfKey(key); ok {
		it.pairs[idx].Value = value
		return nil
	}
	it.pairs = append(it.pairs, Pair{Key: key, Value: value})
	if it.hashIndex != nil {
		it.hashIndex[string(key.CanonicalBytes())] = len(it.pairs) - 1
	} else if len(it.pairs) > hashMapThreshold {
		it.buildHashIndex()
	}
	if !it.indefinite {
		it.Minor = uint64(len(it.pairs))
	}
	return nil
}

// Get looks up a Map entry's value by key equality.
func (it *Item) Get(key *Item) (*Item, bool) {
	if it.Major != MajorTypeMap {
		return nil, false
	}
	idx, ok := it.indexOfKey(key)
	if !ok {
		return nil, false
	}
	return it.pairs[idx].Value, true
}

func (it *Item) indexOfKey(key *Item) (int, bool) {
	if it.hashIndex != nil {
		idx, ok := it.hashIndex[string(key.CanonicalBytes())]
		return idx, ok
	}
	for i, p := range it.pairs {
		if Equals(p.Key, key) {
			return i, true
		}
	}
	return 0, false
}

func (it *Item) buildHashIndex() {
	it.hashIndex = make(map[string]int, len(it.pairs))
	for i, p := range it.pairs {
		it.hashIndex[string(p.Key.CanonicalBytes())] = i
	}
}

// Pairs returns the Map's entries in insertion order.
func (it *Item) Pairs() []Pair {
	return it.pairs
}

// Children returns an Array's elements, or the chunks added to an
// indefinite Bytes/Text item with AppendChild, in order. Indefinite
// Bytes/Text items built by the decoder hold only the concatenated
// payload and have no chunks.
func (it *Item) Children() []*Item {
	return it.children
}

// TagChild returns a Tag item's single wrapped child.
func (it *Item) TagChild() *Item {
	return it.tagChild
}

// Bytes returns a Bytes/Text item's raw payload (the concatenation of
// chunks, for indefinite-length items).
func (it *Item) Bytes() []byte {
	return it.bytes
}

// Text returns a Text item's payload as a string.
func (it *Item) Text() string {
	return string(it.bytes)
}

// IsIndefinite reports whether a Bytes/Text/Array/Map item is
// indefinite-length.
func (it *Item) IsIndefinite() bool {
	return it.indefinite
}

// IntValue returns an Unsigned/Negative item's magnitude, or a Primitive
// simple value's number (not meaningful for float items).
func (it *Item) IntValue() uint64 {
	if it.Major == MajorTypeSimpleOrFloat && !it.isFloat {
		return it.Minor
	}
	return it.intVal
}

// FloatValue returns a Primitive float item's value and width.
func (it *Item) FloatValue() (float64, FloatWidth, bool) {
	return it.floatVal, it.floatW, it.isFloat
}

// WithWidthHint requests that serialization use the given additional-info
// width class (one of AdditionalInfo8Bit/16Bit/32Bit/64Bit) instead of the
// minimal class, so long as it is not narrower than minimal. The hint
// applies to Unsigned, Negative, Bytes and Text items only; other items
// ignore it. It mutates and returns the item for chaining.
func (it *Item) WithWidthHint(class byte) *Item {
	it.widthHint = class
	return it
}

// wrapTag builds a Tag item wrapping child.
func wrapTag(tag uint64, child *Item) *Item {
	return &Item{Major: MajorTypeTag, Minor: tag, tagChild: child}
}

// Clone deep-copies an item. Items are value-type-semantic: two clones
// never alias mutable state.
func (it *Item) Clone() *Item {
	if it == nil {
		return nil
	}
	cp := &Item{
		Major:      it.Major,
		Minor:      it.Minor,
		intVal:     it.intVal,
		isFloat:    it.isFloat,
		floatVal:   it.floatVal,
		floatW:     it.floatW,
		indefinite: it.indefinite,
		widthHint:  it.widthHint,
	}
	if it.bytes != nil {
		cp.bytes = append([]byte(nil), it.bytes...)
	}
	if it.children != nil {
		cp.children = make([]*Item, len(it.children))
		for i, c := range it.children {
			cp.children[i] = c.Clone()
		}
	}
	if it.pairs != nil {
		cp.pairs = make([]Pair, len(it.pairs))
		for i, p := range it.pairs {
			cp.pairs[i] = Pair{Key: p.Key.Clone(), Value: p.Value.Clone()}
		}
	}
	cp.tagChild = it.tagChild.Clone()
	return cp
}

// Equals reports structural equality: majors match, minors match, and
// payloads compare equal componentwise. Map equality is order-insensitive
// (multiset semantics over key/value pairs); Array equality is positional.
func Equals(a, b *Item) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Major != b.Major {
		return false
	}
	switch a.Major {
	case MajorTypeUnsignedInteger, MajorTypeNegativeInteger:
		return a.intVal == b.intVal
	case MajorTypeByteString, MajorTypeTextString:
		return bytes.Equal(a.bytes, b.bytes)
	case MajorTypeArray:
		if len(a.children) != len(b.children) {
			return false
		}
		for i := range a.children {
			if !Equals(a.children[i], b.children[i]) {
				return false
			}
		}
		return true
	case MajorTypeMap:
		return mapEquals(a, b)
	case MajorTypeTag:
		return a.Minor == b.Minor && Equals(a.tagChild, b.tagChild)
	case MajorTypeSimpleOrFloat:
		if a.isFloat != b.isFloat {
			return false
		}
		if a.isFloat {
			return math.Float64bits(a.floatVal) == math.Float64bits(b.floatVal)
		}
		return a.Minor == b.Minor && a.intVal == b.intVal
	default:
		return false
	}
}

func mapEquals(a, b *Item) bool {
	if len(a.pairs) != len(b.pairs) {
		return false
	}
	used := make([]bool, len(b.pairs))
	for _, pa := range a.pairs {
		found := false
		for j, pb := range b.pairs {
			if used[j] {
				continue
			}
			if Equals(pa.Key, pb.Key) && Equals(pa.Value, pb.Value) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CanonicalBytes encodes the item using minimal encoding, ignoring any
// width-hint override. It is used as a map-key hash input and has no
// other observable effect.
func (it *Item) CanonicalBytes() []byte {
	hint := it.widthHint
	it.widthHint = 0
	b, err := appendItem(nil, it)
	it.widthHint = hint
	if err != nil {
		return nil
	}
	return b
}

// ToNative projects the item to a host-language value per spec §4.C/§4.E:
// Unsigned to uint64, Negative to int64 (or *big.Int beyond int64 range), Bytes/
// Text to []byte/string, Array/Map to slices/maps, Tag through tag
// projection, and Primitive to bool/nil/Undefined/float/SimpleValue.
func (it *Item) ToNative() (any, error) {
	switch it.Major {
	case MajorTypeUnsignedInteger:
		return it.intVal, nil
	case MajorTypeNegativeInteger:
		if it.intVal > math.MaxInt64 {
			n := new(big.Int).SetUint64(it.intVal)
			n.Add(n, big.NewInt(1))
			n.Neg(n)
			return n, nil
		}
		return -1 - int64(it.intVal), nil
	case MajorTypeByteString:
		out := make([]byte, len(it.bytes))
		copy(out, it.bytes)
		return out, nil
	case MajorTypeTextString:
		return string(it.bytes), nil
	case MajorTypeArray:
		return it.nativeArray()
	case MajorTypeMap:
		return it.nativeMap()
	case MajorTypeTag:
		return projectTag(it)
	case MajorTypeSimpleOrFloat:
		return it.nativePrimitive()
	default:
		return nil, ErrUnreachable
	}
}

func (it *Item) nativeArray() (any, error) {
	out := make([]any, len(it.children))
	for i, c := range it.children {
		v, err := c.ToNative()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (it *Item) nativeMap() (any, error) {
	kvs := make([]KV, 0, len(it.pairs))
	comparable := true
	for _, p := range it.pairs {
		k, err := p.Key.ToNative()
		if err != nil {
			return nil, err
		}
		v, err := p.Value.ToNative()
		if err != nil {
			return nil, err
		}
		if !isComparableNative(k) {
			comparable = false
		}
		kvs = append(kvs, KV{Key: k, Value: v})
	}
	if !comparable {
		return &Map{Pairs: kvs}, nil
	}
	out := make(map[any]any, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out, nil
}

func isComparableNative(v any) bool {
	switch x := v.(type) {
	case []any, map[any]any, *Map, []byte:
		return false
	case TaggedValue:
		return isComparableNative(x.Value)
	default:
		return true
	}
}

func (it *Item) nativePrimitive() (any, error) {
	if it.isFloat {
		return it.floatVal, nil
	}
	switch it.Minor {
	case uint64(SimpleValueFalse):
		return false, nil
	case uint64(SimpleValueTrue):
		return true, nil
	case uint64(SimpleValueNull):
		return nil, nil
	case uint64(SimpleValueUndefined):
		return Undefined{}, nil
	default:
		return SimpleValue(it.Minor), nil
	}
}
