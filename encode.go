package cbor

import (
	"math"
	"math/big"
	"net/url"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/x448/float16"
)

func float16Fromfloat32(f float32) uint16 {
	return float16.Fromfloat32(f).Bits()
}

func float16ToFloat32(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

// Lift converts a host Go value into an Item tree. It is the encoder's
// entry point: every Encode/EncodeObject call starts here.
func Lift(value any) (*Item, error) {
	if value == nil {
		return newSimple(SimpleValueNull), nil
	}
	switch v := value.(type) {
	case *Item:
		return v, nil
	case Undefined:
		return newSimple(SimpleValueUndefined), nil
	case bool:
		if v {
			return newSimple(SimpleValueTrue), nil
		}
		return newSimple(SimpleValueFalse), nil
	case []byte:
		it, err := NewBytes(MajorTypeByteString, v)
		return it, err
	case string:
		it, err := NewBytes(MajorTypeTextString, []byte(v))
		return it, err
	case float32:
		return liftFloat(float64(v), FloatWidthSingle), nil
	case float64:
		return liftFloat(v, FloatWidthDouble), nil
	case time.Time:
		return liftTime(v), nil
	case *big.Int:
		return liftBigInt(v), nil
	case big.Int:
		return liftBigInt(&v), nil
	case *big.Float:
		return liftBigFloat(v), nil
	case decimal.Decimal:
		return liftDecimal(v), nil
	case *decimal.Decimal:
		return liftDecimal(*v), nil
	case uuid.UUID:
		return liftUUID(v), nil
	case *url.URL:
		return liftURIString(v.String()), nil
	case SimpleValue:
		return newSimple(v), nil
	}

	if vi := anyToInt64(value); vi.ok {
		return liftInteger(vi.value), nil
	}
	if vu := anyToUint64(value); vu.ok {
		return liftUnsigned(vu.value), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return liftSequence(rv)
	case reflect.Map:
		return liftMapping(rv, nil)
	case reflect.Ptr:
		if rv.IsNil() {
			return newSimple(SimpleValueNull), nil
		}
		return Lift(rv.Elem().Interface())
	}

	return nil, ErrUnencodable
}

type int64Result struct {
	value int64
	ok    bool
}

func anyToInt64(value any) int64Result {
	switch v := value.(type) {
	case int:
		return int64Result{int64(v), true}
	case int8:
		return int64Result{int64(v), true}
	case int16:
		return int64Result{int64(v), true}
	case int32:
		return int64Result{int64(v), true}
	case int64:
		return int64Result{v, true}
	default:
		return int64Result{}
	}
}

type uint64Result struct {
	value uint64
	ok    bool
}

func anyToUint64(value any) uint64Result {
	switch v := value.(type) {
	case uint:
		return uint64Result{uint64(v), true}
	case uint8:
		return uint64Result{uint64(v), true}
	case uint16:
		return uint64Result{uint64(v), true}
	case uint32:
		return uint64Result{uint64(v), true}
	case uint64:
		return uint64Result{v, true}
	default:
		return uint64Result{}
	}
}

// liftInteger builds an Unsigned or Negative item from a signed value.
func liftInteger(value int64) *Item {
	if value >= 0 {
		it, _ := NewNumberInt(MajorTypeUnsignedInteger, uint64(value))
		return it
	}
	it, _ := NewNumberInt(MajorTypeNegativeInteger, uint64(-1-value))
	return it
}

func liftUnsigned(value uint64) *Item {
	it, _ := NewNumberInt(MajorTypeUnsignedInteger, value)
	return it
}

// liftFloat narrows to the smallest width that round-trips exactly. A
// float32 input is never widened to double, but still narrows to half
// when that is exact.
func liftFloat(value float64, width FloatWidth) *Item {
	if width == FloatWidthDouble {
		f32 := float32(value)
		if float64(f32) == value {
			if h, ok := narrowToHalf(f32); ok && !math.IsNaN(value) {
				return NewNumberFloat(FloatWidthHalf, float64(h))
			}
			return NewNumberFloat(FloatWidthSingle, float64(f32))
		}
		return NewNumberFloat(FloatWidthDouble, value)
	}
	f32 := float32(value)
	if h, ok := narrowToHalf(f32); ok && !math.IsNaN(value) {
		return NewNumberFloat(FloatWidthHalf, float64(h))
	}
	return NewNumberFloat(FloatWidthSingle, value)
}

func narrowToHalf(f32 float32) (float32, bool) {
	h := float16Fromfloat32(f32)
	if float16ToFloat32(h) == f32 {
		return f32, true
	}
	return 0, false
}

// liftTime encodes a time.Time as tag 0 (date/time string), the teacher's
// own default in WriteDateTimeString.
func liftTime(t time.Time) *Item {
	text, _ := NewBytes(MajorTypeTextString, []byte(t.Format(time.RFC3339Nano)))
	return wrapTag(uint64(TagDateTimeString), text)
}

// liftUnixSeconds encodes a time.Time as tag 1 (epoch-based date/time).
func liftUnixSeconds(t time.Time) *Item {
	if t.Nanosecond() != 0 {
		seconds := float64(t.Unix()) + float64(t.Nanosecond())/1e9
		return wrapTag(uint64(TagUnixTime), NewNumberFloat(FloatWidthDouble, seconds))
	}
	return wrapTag(uint64(TagUnixTime), liftInteger(t.Unix()))
}

// liftDaysSinceEpoch encodes a date-only value as tag 100.
func liftDaysSinceEpoch(days int64) *Item {
	return wrapTag(uint64(TagDaysSinceEpoch), liftInteger(days))
}

const secondsPerDay = 86400

func daysSinceUnixEpoch(t time.Time) int64 {
	return t.UTC().Unix() / secondsPerDay
}

// liftWithHints lifts value consulting an encoder config's major/minor
// hints the way the lifting stage is specified: major_hint = Tag wraps the
// value as Tag(minor_hint, inner), picking the date-specific representation
// for a time.Time; any other major_hint reinterprets the default lifting's
// major type (Bytes<->Text only). minor_hint is required alongside a Tag
// major_hint, since a tag wrap needs a tag number to wrap with.
func liftWithHints(value any, cfg *encodeConfig) (*Item, error) {
	if cfg.majorHint != nil && *cfg.majorHint == MajorTypeTag {
		if cfg.minorHint == nil {
			return nil, ErrUnencodable
		}
		return liftAsTag(value, uint64(*cfg.minorHint))
	}
	item, err := Lift(value)
	if err != nil {
		return nil, err
	}
	if cfg.majorHint != nil && item.Major != *cfg.majorHint {
		if err := reinterpretMajor(item, *cfg.majorHint); err != nil {
			return nil, err
		}
	}
	return item, nil
}

// liftAsTag implements the major_hint = Tag lifting rule for an explicit
// tag number: a date value picks its representation from the tag itself
// (1 = epoch seconds, 100 = days since epoch); anything else wraps the
// value's default lifting in Tag(tag, inner).
func liftAsTag(value any, tag uint64) (*Item, error) {
	if t, ok := value.(time.Time); ok {
		switch CborTag(tag) {
		case TagUnixTime:
			return liftUnixSeconds(t), nil
		case TagDaysSinceEpoch:
			return liftDaysSinceEpoch(daysSinceUnixEpoch(t)), nil
		}
	}
	inner, err := Lift(value)
	if err != nil {
		return nil, err
	}
	return wrapTag(tag, inner), nil
}

// liftBigInt builds Unsigned/Negative when the value fits in 64 bits,
// else Tag(2, bytes)/Tag(3, bytes).
func liftBigInt(v *big.Int) *Item {
	if v.IsInt64() {
		return liftInteger(v.Int64())
	}
	if v.IsUint64() {
		return liftUnsigned(v.Uint64())
	}
	if v.Sign() >= 0 {
		b, _ := NewBytes(MajorTypeByteString, v.Bytes())
		return wrapTag(uint64(TagUnsignedBignum), b)
	}
	abs := new(big.Int).Neg(v)
	abs.Sub(abs, big.NewInt(1))
	b, _ := NewBytes(MajorTypeByteString, abs.Bytes())
	return wrapTag(uint64(TagNegativeBignum), b)
}

// liftDecimal encodes a decimal.Decimal as Tag(4, [exponent, mantissa]),
// nesting a Tag(2/3, bytes) bignum mantissa when it lies outside both the
// int64 and uint64 ranges (see liftBigInt).
func liftDecimal(d decimal.Decimal) *Item {
	arr := NewItem(MajorTypeArray, 0)
	arr.AppendChild(liftInteger(int64(d.Exponent())))
	arr.AppendChild(liftBigInt(d.Coefficient()))
	return wrapTag(uint64(TagDecimalFraction), arr)
}

// liftBigFloat encodes a *big.Float as Tag(5, [exponent, mantissa]),
// representing mantissa * 2^exponent. Values beyond float64 precision are
// narrowed to their nearest float64 before decomposition.
func liftBigFloat(bf *big.Float) *Item {
	f, _ := bf.Float64()
	mant, exp := math.Frexp(f)
	// scale the fractional mantissa into a 53-bit integer
	scaled := mant * (1 << 53)
	mantissaInt := new(big.Int).SetInt64(int64(scaled))
	arr := NewItem(MajorTypeArray, 0)
	arr.AppendChild(liftInteger(int64(exp - 53)))
	arr.AppendChild(liftBigInt(mantissaInt))
	return wrapTag(uint64(TagBigFloat), arr)
}

// liftUUID encodes a uuid.UUID as Tag(37, bytes).
func liftUUID(id uuid.UUID) *Item {
	raw := id[:]
	b, _ := NewBytes(MajorTypeByteString, raw)
	return wrapTag(uint64(TagUUID), b)
}

// liftURIString encodes a URI string as Tag(32, text).
func liftURIString(uri string) *Item {
	text, _ := NewBytes(MajorTypeTextString, []byte(uri))
	return wrapTag(uint64(TagURI), text)
}

func liftSequence(rv reflect.Value) (*Item, error) {
	n := rv.Len()
	arr := NewItem(MajorTypeArray, uint64(n))
	for i := 0; i < n; i++ {
		child, err := Lift(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if err := arr.AppendChild(child); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

func liftMapping(rv reflect.Value, keySequence []string) (*Item, error) {
	m := NewItem(MajorTypeMap, 0)
	keys := rv.MapKeys()
	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		keyItem, err := Lift(k.Interface())
		if err != nil {
			return nil, err
		}
		valItem, err := Lift(rv.MapIndex(k).Interface())
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Key: keyItem, Value: valItem})
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return keyText(pairs[i].Key) < keyText(pairs[j].Key)
	})
	if len(keySequence) > 0 {
		pairs = reorderPairs(pairs, keySequence)
	}
	m.pairs = pairs
	m.Minor = uint64(len(pairs))
	return m, nil
}

func keyText(it *Item) string {
	if it.Major == MajorTypeTextString {
		return it.Text()
	}
	return ""
}

// reorderPairs moves the named keys to the front, in the given order;
// keys not mentioned trail in their original relative order.
func reorderPairs(pairs []Pair, keySequence []string) []Pair {
	used := make([]bool, len(pairs))
	out := make([]Pair, 0, len(pairs))
	for _, want := range keySequence {
		for i, p := range pairs {
			if used[i] {
				continue
			}
			if keyText(p.Key) == want {
				out = append(out, p)
				used[i] = true
				break
			}
		}
	}
	for i, p := range pairs {
		if !used[i] {
			out = append(out, p)
		}
	}
	return out
}

// Serialize walks an item tree and writes it through the teacher's
// CborWriter, the same streaming engine the low-level API uses.
func Serialize(item *Item, cfg *encodeConfig) ([]byte, error) {
	w := NewCborWriter(WithConformanceMode(cfg.conformance))
	if err := writeItem(w, item, cfg); err != nil {
		return nil, err
	}
	return w.BytesCopy(), nil
}

func writeItem(w *CborWriter, it *Item, cfg *encodeConfig) error {
	if it.Major == MajorTypeTag {
		if err := w.WriteTag(CborTag(it.Minor)); err != nil {
			return err
		}
		return writeItem(w, it.tagChild, cfg)
	}

	if it.widthHint != 0 && cfg.conformance != ConformanceCanonical && cfg.conformance != ConformanceCtap2Canonical {
		switch it.Major {
		case MajorTypeUnsignedInteger, MajorTypeNegativeInteger, MajorTypeByteString, MajorTypeTextString:
			return writeHinted(w, it)
		}
	}

	switch it.Major {
	case MajorTypeUnsignedInteger:
		return w.WriteUint64(it.intVal)
	case MajorTypeNegativeInteger:
		return w.WriteBigInt(negOneMinusN(it.intVal))
	case MajorTypeByteString:
		return w.WriteByteString(it.bytes)
	case MajorTypeTextString:
		return w.WriteTextString(it.Text())
	case MajorTypeArray:
		if err := w.WriteStartArray(len(it.children)); err != nil {
			return err
		}
		for _, c := range it.children {
			if err := writeItem(w, c, cfg); err != nil {
				return err
			}
		}
		return w.WriteEndArray()
	case MajorTypeMap:
		if err := w.WriteStartMap(len(it.pairs)); err != nil {
			return err
		}
		for _, p := range it.pairs {
			if err := writeItem(w, p.Key, cfg); err != nil {
				return err
			}
			if err := writeItem(w, p.Value, cfg); err != nil {
				return err
			}
		}
		return w.WriteEndMap()
	case MajorTypeSimpleOrFloat:
		if it.isFloat {
			switch it.floatW {
			case FloatWidthHalf:
				return w.WriteFloat16(float32(it.floatVal))
			case FloatWidthSingle:
				return w.WriteFloat32(float32(it.floatVal))
			default:
				return w.WriteFloat64(it.floatVal)
			}
		}
		switch it.Minor {
		case uint64(SimpleValueTrue):
			return w.WriteBoolean(true)
		case uint64(SimpleValueFalse):
			return w.WriteBoolean(false)
		case uint64(SimpleValueNull):
			return w.WriteNull()
		case uint64(SimpleValueUndefined):
			return w.WriteUndefined()
		default:
			return w.WriteSimpleValue(SimpleValue(it.Minor))
		}
	default:
		return ErrUnreachable
	}
}

func negOneMinusN(n uint64) *big.Int {
	v := new(big.Int).SetUint64(n)
	v.Add(v, big.NewInt(1))
	v.Neg(v)
	return v
}

// writeHinted emits a scalar item's header at an explicitly requested
// width class instead of minimal encoding, via WriteRaw.
func writeHinted(w *CborWriter, it *Item) error {
	value := it.intVal
	if it.Major == MajorTypeByteString || it.Major == MajorTypeTextString {
		value = uint64(len(it.bytes))
	}
	head := appendHead(nil, it.Major, value, it.widthHint)
	if err := w.WriteRaw(head); err != nil {
		return err
	}
	if it.Major == MajorTypeByteString || it.Major == MajorTypeTextString {
		if err := w.WriteRaw(it.bytes); err != nil {
			return err
		}
	}
	w.advanceContainer()
	return nil
}

// appendHead appends a head byte (and any following length/value bytes)
// for the given major type, magnitude, and explicit width class
// (AdditionalInfo8Bit/16Bit/32Bit/64Bit), never narrower than minimal.
func appendHead(buf []byte, major Major, value uint64, class byte) []byte {
	min := minimalWidthClass(value)
	if class == 0 || class < min {
		class = min
	}
	switch class {
	case byte(AdditionalInfoDirect):
		return append(buf, encodeInitialByte(major, byte(value)))
	case byte(AdditionalInfo8Bit):
		return append(buf, encodeInitialByte(major, byte(AdditionalInfo8Bit)), byte(value))
	case byte(AdditionalInfo16Bit):
		buf = append(buf, encodeInitialByte(major, byte(AdditionalInfo16Bit)))
		return appendUint16(buf, uint16(value))
	case byte(AdditionalInfo32Bit):
		buf = append(buf, encodeInitialByte(major, byte(AdditionalInfo32Bit)))
		return appendUint32(buf, uint32(value))
	default:
		buf = append(buf, encodeInitialByte(major, byte(AdditionalInfo64Bit)))
		return appendUint64(buf, value)
	}
}

func minimalWidthClass(value uint64) byte {
	switch {
	case value < 24:
		return byte(AdditionalInfoDirect)
	case value <= math.MaxUint8:
		return byte(AdditionalInfo8Bit)
	case value <= math.MaxUint16:
		return byte(AdditionalInfo16Bit)
	case value <= math.MaxUint32:
		return byte(AdditionalInfo32Bit)
	default:
		return byte(AdditionalInfo64Bit)
	}
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v>>8), byte(v))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// appendItem serializes an item using minimal encoding only, ignoring any
// width-hint override. It backs Item.CanonicalBytes and never observes
// conformance mode.
func appendItem(buf []byte, it *Item) ([]byte, error) {
	switch it.Major {
	case MajorTypeUnsignedInteger:
		return appendHead(buf, it.Major, it.intVal, 0), nil
	case MajorTypeNegativeInteger:
		return appendHead(buf, it.Major, it.intVal, 0), nil
	case MajorTypeByteString, MajorTypeTextString:
		buf = appendHead(buf, it.Major, uint64(len(it.bytes)), 0)
		return append(buf, it.bytes...), nil
	case MajorTypeArray:
		buf = appendHead(buf, it.Major, uint64(len(it.children)), 0)
		var err error
		for _, c := range it.children {
			buf, err = appendItem(buf, c)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case MajorTypeMap:
		buf = appendHead(buf, it.Major, uint64(len(it.pairs)), 0)
		var err error
		for _, p := range it.pairs {
			buf, err = appendItem(buf, p.Key)
			if err != nil {
				return nil, err
			}
			buf, err = appendItem(buf, p.Value)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case MajorTypeTag:
		buf = appendHead(buf, it.Major, it.Minor, 0)
		return appendItem(buf, it.tagChild)
	case MajorTypeSimpleOrFloat:
		return appendPrimitive(buf, it), nil
	default:
		return nil, ErrUnreachable
	}
}

func appendPrimitive(buf []byte, it *Item) []byte {
	if it.isFloat {
		switch it.floatW {
		case FloatWidthHalf:
			buf = append(buf, encodeInitialByte(it.Major, 25))
			bits := float16Fromfloat32(float32(it.floatVal))
			return appendUint16(buf, bits)
		case FloatWidthSingle:
			buf = append(buf, encodeInitialByte(it.Major, 26))
			return appendUint32(buf, math.Float32bits(float32(it.floatVal)))
		default:
			buf = append(buf, encodeInitialByte(it.Major, 27))
			return appendUint64(buf, math.Float64bits(it.floatVal))
		}
	}
	if it.Minor < 24 {
		return append(buf, encodeInitialByte(it.Major, byte(it.Minor)))
	}
	return append(buf, encodeInitialByte(it.Major, byte(AdditionalInfo8Bit)), byte(it.Minor))
}
