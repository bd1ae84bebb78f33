package cbor

// Encode lifts value to an item tree and serializes it to CBOR bytes.
func Encode(value any, opts ...EncodeOption) ([]byte, error) {
	cfg := newEncodeConfig(opts...)
	item, err := liftWithHints(value, cfg)
	if err != nil {
		return nil, err
	}
	applyEncodeHints(item, cfg)
	return Serialize(item, cfg)
}

// EncodeObject lifts value and forces the root item to carry the given
// major type, failing with ErrUnencodable if the lifted item's natural
// major type cannot be reinterpreted as major (only Bytes<->Text swaps
// are supported; anything else is a mismatch) or, for major = Tag, if no
// minor hint (the tag number) was supplied.
func EncodeObject(value any, major Major, opts ...EncodeOption) ([]byte, error) {
	return Encode(value, append([]EncodeOption{WithMajorHint(major)}, opts...)...)
}

// EncodeObjectHinted is EncodeObject plus an explicit tag number (when
// major = Tag) or width class (otherwise) for the root item's header.
func EncodeObjectHinted(value any, major Major, minor uint64, opts ...EncodeOption) ([]byte, error) {
	cfg := newEncodeConfig(opts...)
	var item *Item
	var err error
	if major == MajorTypeTag {
		item, err = liftAsTag(value, minor)
	} else {
		item, err = Lift(value)
		if err == nil && item.Major != major {
			err = reinterpretMajor(item, major)
		}
		if err == nil {
			item.WithWidthHint(byte(minor))
		}
	}
	if err != nil {
		return nil, err
	}
	applyEncodeHints(item, cfg)
	return Serialize(item, cfg)
}

func reinterpretMajor(item *Item, major Major) error {
	if (item.Major == MajorTypeByteString || item.Major == MajorTypeTextString) &&
		(major == MajorTypeByteString || major == MajorTypeTextString) {
		item.Major = major
		return nil
	}
	return ErrUnencodable
}

// applyEncodeHints applies the hints liftWithHints/liftAsTag don't already
// consume during lifting: minor_hint as a serialization width override
// (meaningless on a Tag item, since the tag number already consumed it),
// and a key sequence override on a map's pairs.
func applyEncodeHints(item *Item, cfg *encodeConfig) {
	if cfg.minorHint != nil && item.Major != MajorTypeTag {
		item.WithWidthHint(*cfg.minorHint)
	}
	if len(cfg.keySequence) > 0 && item.Major == MajorTypeMap {
		item.pairs = reorderPairs(item.pairs, cfg.keySequence)
	}
}

// Decode parses data into a native Go value, failing with ErrNotAtEnd if
// trailing bytes remain after the root value.
func Decode(data []byte, opts ...DecodeOption) (any, error) {
	item, rest, err := decodeRoot(data, opts...)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, ErrNotAtEnd
	}
	return item.ToNative()
}

func decodeRoot(data []byte, opts ...DecodeOption) (*Item, []byte, error) {
	cfg := newDecodeConfig(opts...)
	r := NewCborReader(data,
		WithReaderConformanceMode(cfg.conformance),
		WithReaderMaxNestingDepth(cfg.maxDepth),
	)
	item, err := decodeOne(r, 0, cfg)
	if err != nil {
		return nil, nil, wrapErr(err, r.CurrentOffset())
	}
	return item, data[r.CurrentOffset():], nil
}

// ShapeDescriptor is the minimal contract the external mapping layer
// implements to steer encode/decode of a single Go type's fields,
// without the codec itself doing any struct reflection.
type ShapeDescriptor interface {
	PropertyMajor(field string) (Major, bool)
	PropertyMinor(field string) (uint64, bool)
	PropertySequence() []string
	MapperKeys(field string) []string
	ContainerElement(field string) (ShapeDescriptor, bool)
	Blacklisted(field string) bool
	Whitelist() ([]string, bool)
}

// DecodeClass decodes data as a map and applies shape's field re-keying,
// blacklist/whitelist filtering, and recursion into nested container
// shapes. Binding the result to a concrete Go struct is the external
// mapping layer's job.
func DecodeClass(shape ShapeDescriptor, data []byte, opts ...DecodeOption) (map[string]any, error) {
	item, err := DecodeItem(data, opts...)
	if err != nil {
		return nil, err
	}
	if item.Major != MajorTypeMap {
		return nil, ErrUnsupportedTag
	}
	return applyShape(shape, item)
}

func applyShape(shape ShapeDescriptor, item *Item) (map[string]any, error) {
	whitelist, hasWhitelist := shape.Whitelist()
	allowed := make(map[string]bool, len(whitelist))
	for _, f := range whitelist {
		allowed[f] = true
	}

	out := make(map[string]any, len(item.pairs))
	for _, pair := range item.pairs {
		if pair.Key.Major != MajorTypeTextString {
			continue
		}
		field := pair.Key.Text()
		if shape.Blacklisted(field) {
			continue
		}
		if hasWhitelist && !allowed[field] {
			continue
		}

		keys := shape.MapperKeys(field)
		outKey := field
		if len(keys) > 0 {
			outKey = keys[0]
		}

		if childShape, ok := shape.ContainerElement(field); ok && pair.Value.Major == MajorTypeMap {
			nested, err := applyShape(childShape, pair.Value)
			if err != nil {
				return nil, err
			}
			out[outKey] = nested
			continue
		}
		if childShape, ok := shape.ContainerElement(field); ok && pair.Value.Major == MajorTypeArray {
			elems := make([]any, len(pair.Value.children))
			for i, c := range pair.Value.children {
				if c.Major == MajorTypeMap {
					nested, err := applyShape(childShape, c)
					if err != nil {
						return nil, err
					}
					elems[i] = nested
					continue
				}
				v, err := c.ToNative()
				if err != nil {
					return nil, err
				}
				elems[i] = v
			}
			out[outKey] = elems
			continue
		}

		v, err := pair.Value.ToNative()
		if err != nil {
			return nil, err
		}
		out[outKey] = v
	}
	return out, nil
}
