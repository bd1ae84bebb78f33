package cbor

// encodeConfig holds the assembled effect of EncodeOption values passed to
// Encode/EncodeObjectHinted.
type encodeConfig struct {
	majorHint   *Major
	minorHint   *byte
	keySequence []string
	conformance CborConformanceMode
}

func newEncodeConfig(opts ...EncodeOption) *encodeConfig {
	cfg := &encodeConfig{conformance: ConformanceLax}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// EncodeOption configures a single Encode/EncodeObjectHinted call.
type EncodeOption func(*encodeConfig)

// WithMajorHint forces the item produced for the top-level value to carry
// the given major type, when the value's natural lifting is ambiguous (e.g.
// lifting a string as Bytes instead of Text). MajorTypeTag is special: it
// wraps the value's default lifting in a Tag item instead, using
// WithMinorHint's value as the tag number — WithMinorHint is required
// alongside it.
func WithMajorHint(major Major) EncodeOption {
	return func(c *encodeConfig) {
		c.majorHint = &major
	}
}

// WithMinorHint has two meanings depending on WithMajorHint: alongside
// MajorTypeTag it supplies the tag number to wrap the value in; otherwise
// it forces serialization to use the given additional-info width class
// (AdditionalInfo8Bit/16Bit/32Bit/64Bit) for the top-level item's header,
// overriding minimal encoding. The width class applies only to Unsigned,
// Negative, Bytes and Text heads; float, simple, Array and Map items keep
// their usual encoding, so it does not select a float width. The
// width-class use has no effect in
// ConformanceCanonical/ConformanceCtap2Canonical modes, which always use
// minimal encoding.
func WithMinorHint(class byte) EncodeOption {
	return func(c *encodeConfig) {
		c.minorHint = &class
	}
}

// WithKeySequence reorders a lifted map's entries so the named keys come
// first, in the given order; any keys not mentioned keep their original
// relative order and are appended after.
func WithKeySequence(keys ...string) EncodeOption {
	return func(c *encodeConfig) {
		c.keySequence = keys
	}
}

// WithEncodeConformanceMode sets the conformance mode the lifted item
// tree is serialized under.
func WithEncodeConformanceMode(mode CborConformanceMode) EncodeOption {
	return func(c *encodeConfig) {
		c.conformance = mode
	}
}

// decodeConfig holds the assembled effect of DecodeOption values passed to
// Decode/DecodeItem/DecodeClass.
type decodeConfig struct {
	strictMapKeys bool
	maxDepth      int
	conformance   CborConformanceMode
}

func newDecodeConfig(opts ...DecodeOption) *decodeConfig {
	cfg := &decodeConfig{maxDepth: 64, conformance: ConformanceLax}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// DecodeOption configures a single Decode/DecodeItem/DecodeClass call.
type DecodeOption func(*decodeConfig)

// WithStrictMapKeys rejects a map containing a duplicate key with
// ErrMapKeyDuplicate. Without it, the Item keeps every pair and a native
// map[any]any projection keeps the later value.
func WithStrictMapKeys() DecodeOption {
	return func(c *decodeConfig) {
		c.strictMapKeys = true
	}
}

// WithDecodeMaxNestingDepth bounds how deeply Array/Map/Tag items may
// nest before decoding fails with ErrNestingDepthExceeded.
func WithDecodeMaxNestingDepth(depth int) DecodeOption {
	return func(c *decodeConfig) {
		c.maxDepth = depth
	}
}

// WithDecodeConformanceMode sets the conformance mode applied while
// decoding (e.g. ConformanceCanonical rejects indefinite-length items).
func WithDecodeConformanceMode(mode CborConformanceMode) DecodeOption {
	return func(c *decodeConfig) {
		c.conformance = mode
	}
}
