package cbor

import (
	"math/big"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecodeItem parses a single CBOR-encoded value into an Item tree. It is
// the entry point DecodeClass starts from; Decode reads its root through
// decodeRoot instead, and both share the recursive builder decodeOne.
// Header validation (malformed reserved heads, indefinite-length
// handling, and minimal-width checks in the stricter conformance modes)
// happens in CborReader, the same low-level reader package-level code
// drives directly. The tree builder assembles the recursive Item shape
// around it and rejects a Text payload that is not valid UTF-8 with
// ErrInvalidUTF8 in every conformance mode.
func DecodeItem(data []byte, opts ...DecodeOption) (*Item, error) {
	cfg := newDecodeConfig(opts...)
	r := NewCborReader(data,
		WithReaderConformanceMode(cfg.conformance),
		WithReaderMaxNestingDepth(cfg.maxDepth),
	)
	it, err := decodeOne(r, 0, cfg)
	if err != nil {
		return nil, wrapErr(err, r.CurrentOffset())
	}
	return it, nil
}

func wrapErr(err error, offset int) error {
	if err == nil {
		return nil
	}
	return NewCborError(err, offset, "")
}

func decodeOne(r *CborReader, depth int, cfg *decodeConfig) (*Item, error) {
	state, err := r.PeekState()
	if err != nil {
		return nil, err
	}

	switch state {
	case StateUnsignedInteger:
		v, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return NewNumberInt(MajorTypeUnsignedInteger, v)

	case StateNegativeInteger:
		v, err := r.ReadNegativeMagnitude()
		if err != nil {
			return nil, err
		}
		return NewNumberInt(MajorTypeNegativeInteger, v)

	case StateByteString, StateStartIndefiniteLengthByteString:
		payload, err := r.ReadByteString()
		if err != nil {
			return nil, err
		}
		it, err := NewBytes(MajorTypeByteString, payload)
		if err != nil {
			return nil, err
		}
		if state == StateStartIndefiniteLengthByteString {
			it.indefinite = true
			it.Minor = uint64(AdditionalInfoIndefiniteLength)
		}
		return it, nil

	case StateTextString, StateStartIndefiniteLengthTextString:
		s, err := r.ReadTextString()
		if err != nil {
			return nil, err
		}
		if !utf8.ValidString(s) {
			return nil, ErrInvalidUTF8
		}
		it, err := NewBytes(MajorTypeTextString, []byte(s))
		if err != nil {
			return nil, err
		}
		if state == StateStartIndefiniteLengthTextString {
			it.indefinite = true
			it.Minor = uint64(AdditionalInfoIndefiniteLength)
		}
		return it, nil

	case StateStartArray:
		return decodeArray(r, depth, cfg)

	case StateStartMap:
		return decodeMap(r, depth, cfg)

	case StateTag:
		tag, err := r.ReadTag()
		if err != nil {
			return nil, err
		}
		if depth+1 > cfg.maxDepth {
			return nil, ErrNestingDepthExceeded
		}
		child, err := decodeOne(r, depth+1, cfg)
		if err != nil {
			return nil, err
		}
		return wrapTag(uint64(tag), child), nil

	case StateBoolean:
		b, err := r.ReadBoolean()
		if err != nil {
			return nil, err
		}
		if b {
			return newSimple(SimpleValueTrue), nil
		}
		return newSimple(SimpleValueFalse), nil

	case StateNull:
		if err := r.ReadNull(); err != nil {
			return nil, err
		}
		return newSimple(SimpleValueNull), nil

	case StateUndefinedValue:
		if err := r.ReadUndefined(); err != nil {
			return nil, err
		}
		return newSimple(SimpleValueUndefined), nil

	case StateSimpleValue:
		v, err := r.ReadSimpleValue()
		if err != nil {
			return nil, err
		}
		return newSimple(v), nil

	case StateHalfPrecisionFloat:
		f, err := r.ReadFloat16()
		if err != nil {
			return nil, err
		}
		return NewNumberFloat(FloatWidthHalf, float64(f)), nil

	case StateSinglePrecisionFloat:
		f, err := r.ReadFloat32()
		if err != nil {
			return nil, err
		}
		return NewNumberFloat(FloatWidthSingle, float64(f)), nil

	case StateDoublePrecisionFloat:
		f, err := r.ReadFloat64()
		if err != nil {
			return nil, err
		}
		return NewNumberFloat(FloatWidthDouble, f), nil

	case StateFinished:
		return nil, ErrUnexpectedEndOfData

	default:
		return nil, ErrInvalidMajorType
	}
}

func decodeArray(r *CborReader, depth int, cfg *decodeConfig) (*Item, error) {
	if depth+1 > cfg.maxDepth {
		return nil, ErrNestingDepthExceeded
	}
	length, err := r.ReadStartArray()
	if err != nil {
		return nil, err
	}
	arr := NewItem(MajorTypeArray, 0)
	if length < 0 {
		for {
			state, err := r.PeekState()
			if err != nil {
				return nil, err
			}
			if state == StateEndArray {
				break
			}
			child, err := decodeOne(r, depth+1, cfg)
			if err != nil {
				return nil, err
			}
			arr.children = append(arr.children, child)
		}
		arr.indefinite = true
		arr.Minor = uint64(AdditionalInfoIndefiniteLength)
	} else {
		for i := 0; i < length; i++ {
			child, err := decodeOne(r, depth+1, cfg)
			if err != nil {
				return nil, err
			}
			arr.children = append(arr.children, child)
		}
		arr.Minor = uint64(length)
	}
	if err := r.ReadEndArray(); err != nil {
		return nil, err
	}
	return arr, nil
}

func decodeMap(r *CborReader, depth int, cfg *decodeConfig) (*Item, error) {
	if depth+1 > cfg.maxDepth {
		return nil, ErrNestingDepthExceeded
	}
	length, err := r.ReadStartMap()
	if err != nil {
		return nil, err
	}
	m := NewItem(MajorTypeMap, 0)
	var seen map[string]bool
	if cfg.strictMapKeys {
		seen = make(map[string]bool)
	}
	addPair := func(key, value *Item) error {
		if cfg.strictMapKeys {
			ks := string(key.CanonicalBytes())
			if seen[ks] {
				return ErrMapKeyDuplicate
			}
			seen[ks] = true
		}
		m.pairs = append(m.pairs, Pair{Key: key, Value: value})
		return nil
	}
	if length < 0 {
		for {
			state, err := r.PeekState()
			if err != nil {
				return nil, err
			}
			if state == StateEndMap {
				break
			}
			key, err := decodeOne(r, depth+1, cfg)
			if err != nil {
				return nil, err
			}
			value, err := decodeOne(r, depth+1, cfg)
			if err != nil {
				return nil, err
			}
			if err := addPair(key, value); err != nil {
				return nil, err
			}
		}
		m.indefinite = true
		m.Minor = uint64(AdditionalInfoIndefiniteLength)
	} else {
		for i := 0; i < length; i++ {
			key, err := decodeOne(r, depth+1, cfg)
			if err != nil {
				return nil, err
			}
			value, err := decodeOne(r, depth+1, cfg)
			if err != nil {
				return nil, err
			}
			if err := addPair(key, value); err != nil {
				return nil, err
			}
		}
		m.Minor = uint64(length)
	}
	if err := r.ReadEndMap(); err != nil {
		return nil, err
	}
	return m, nil
}

// projectTag turns a Tag item into the native value spec §4.E describes
// for well-known tags, falling back to TaggedValue for everything else.
func projectTag(it *Item) (any, error) {
	switch CborTag(it.Minor) {
	case TagDateTimeString:
		return projectDateTimeString(it)
	case TagUnixTime:
		return projectUnixTime(it)
	case TagUnsignedBignum:
		return nativeBigInt(it.tagChild, false)
	case TagNegativeBignum:
		return nativeBigInt(it.tagChild, true)
	case TagDecimalFraction:
		return projectDecimalFraction(it)
	case TagBigFloat:
		return projectBigFloat(it)
	case TagURI:
		return projectURI(it)
	case TagUUID:
		return projectUUID(it)
	case TagDaysSinceEpoch:
		return projectDaysSinceEpoch(it)
	case TagSelfDescribedCbor:
		return it.tagChild.ToNative()
	default:
		inner, err := it.tagChild.ToNative()
		if err != nil {
			return nil, err
		}
		return TaggedValue{Tag: it.Minor, Value: inner}, nil
	}
}

func projectDateTimeString(it *Item) (any, error) {
	if it.tagChild.Major != MajorTypeTextString {
		return nil, ErrUnsupportedTag
	}
	s := it.tagChild.Text()
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return TaggedValue{Tag: uint64(TagDateTimeString), Value: s}, nil
	}
	return t, nil
}

func projectUnixTime(it *Item) (any, error) {
	child := it.tagChild
	switch {
	case child.Major == MajorTypeUnsignedInteger || child.Major == MajorTypeNegativeInteger:
		secs, err := nativeInt64(child)
		if err != nil {
			return nil, err
		}
		return time.Unix(secs, 0), nil
	case child.Major == MajorTypeSimpleOrFloat && child.isFloat:
		secs := int64(child.floatVal)
		nsecs := int64((child.floatVal - float64(secs)) * 1e9)
		return time.Unix(secs, nsecs), nil
	default:
		return nil, ErrUnsupportedTag
	}
}

func nativeBigInt(child *Item, negative bool) (*big.Int, error) {
	if child == nil || child.Major != MajorTypeByteString {
		return nil, ErrUnsupportedTag
	}
	n := new(big.Int).SetBytes(child.bytes)
	if negative {
		n.Add(n, big.NewInt(1))
		n.Neg(n)
	}
	return n, nil
}

func nativeInt64(item *Item) (int64, error) {
	v, err := item.ToNative()
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > uint64(1<<63-1) {
			return 0, ErrOverflow
		}
		return int64(n), nil
	case *big.Int:
		if !n.IsInt64() {
			return 0, ErrOverflow
		}
		return n.Int64(), nil
	default:
		return 0, ErrUnsupportedTag
	}
}

func toBigInt(v any) (*big.Int, error) {
	switch n := v.(type) {
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case *big.Int:
		return n, nil
	default:
		return nil, ErrUnsupportedTag
	}
}

// projectDecimalFraction projects Tag(4, [exponent, mantissa]) to a
// decimal.Decimal, supporting a nested tag-2/3 bignum mantissa.
func projectDecimalFraction(it *Item) (any, error) {
	arr := it.tagChild
	if arr == nil || arr.Major != MajorTypeArray || len(arr.children) != 2 {
		return nil, ErrUnsupportedTag
	}
	expVal, err := arr.children[0].ToNative()
	if err != nil {
		return nil, err
	}
	exp, err := toInt64(expVal)
	if err != nil {
		return nil, err
	}
	mantVal, err := arr.children[1].ToNative()
	if err != nil {
		return nil, err
	}
	mant, err := toBigInt(mantVal)
	if err != nil {
		return nil, err
	}
	return decimal.NewFromBigInt(mant, int32(exp)), nil
}

// projectBigFloat projects Tag(5, [exponent, mantissa]) — representing
// mantissa * 2^exponent — to a *big.Rat, since decimal.Decimal is base-10
// only and cannot represent a binary fraction exactly.
func projectBigFloat(it *Item) (any, error) {
	arr := it.tagChild
	if arr == nil || arr.Major != MajorTypeArray || len(arr.children) != 2 {
		return nil, ErrUnsupportedTag
	}
	expVal, err := arr.children[0].ToNative()
	if err != nil {
		return nil, err
	}
	exp, err := toInt64(expVal)
	if err != nil {
		return nil, err
	}
	mantVal, err := arr.children[1].ToNative()
	if err != nil {
		return nil, err
	}
	mant, err := toBigInt(mantVal)
	if err != nil {
		return nil, err
	}
	rat := new(big.Rat).SetInt(mant)
	if exp >= 0 {
		shift := new(big.Int).Lsh(big.NewInt(1), uint(exp))
		rat.Mul(rat, new(big.Rat).SetInt(shift))
	} else {
		shift := new(big.Int).Lsh(big.NewInt(1), uint(-exp))
		rat.Quo(rat, new(big.Rat).SetInt(shift))
	}
	return rat, nil
}

// projectURI projects Tag(32, text) to a *url.URL, falling back to the
// raw string with the tag retained if parsing fails.
func projectURI(it *Item) (any, error) {
	if it.tagChild.Major != MajorTypeTextString {
		return nil, ErrUnsupportedTag
	}
	s := it.tagChild.Text()
	u, err := url.Parse(s)
	if err != nil {
		return TaggedValue{Tag: uint64(TagURI), Value: s}, nil
	}
	return u, nil
}

// projectUUID projects Tag(37, bytes) to a uuid.UUID.
func projectUUID(it *Item) (any, error) {
	if it.tagChild.Major != MajorTypeByteString {
		return nil, ErrUnsupportedTag
	}
	id, err := uuid.FromBytes(it.tagChild.bytes)
	if err != nil {
		return nil, ErrUnsupportedTag
	}
	return id, nil
}

// projectDaysSinceEpoch projects Tag(100, int) to a UTC date.
func projectDaysSinceEpoch(it *Item) (any, error) {
	days, err := nativeInt64(it.tagChild)
	if err != nil {
		return nil, err
	}
	return time.Unix(days*secondsPerDay, 0).UTC(), nil
}
