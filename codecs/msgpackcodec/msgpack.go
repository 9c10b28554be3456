// Package msgpackcodec serializes docstream Documents as MessagePack.
package msgpackcodec

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/RobertWHurst/docstream"
)

// Codec implements docstream.Codec using MessagePack. Documents are maps
// written in field order, int32 and int64 always use their fixed-width
// codes, and doubles use the float64 code.
type Codec struct{}

// MaxDepth caps how deeply documents and arrays may nest in decoded input.
const MaxDepth = 512

var errTooDeep = fmt.Errorf("nesting exceeds %d levels", MaxDepth)

var _ docstream.Codec = &Codec{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) ContentType() string {
	return "application/msgpack"
}

func (c *Codec) Marshal(doc docstream.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := writeDocument(enc, doc); err != nil {
		return nil, fmt.Errorf("msgpackcodec: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *Codec) Unmarshal(data []byte) (docstream.Document, error) {
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	code, err := dec.PeekCode()
	if err != nil {
		return docstream.Document{}, fmt.Errorf("msgpackcodec: %w", err)
	}
	if !isMap(code) {
		return docstream.Document{}, fmt.Errorf("msgpackcodec: expected map, got code 0x%x", code)
	}
	doc, err := readDocument(dec, r, 1)
	if err != nil {
		return docstream.Document{}, fmt.Errorf("msgpackcodec: %w", err)
	}
	if r.Len() > 0 {
		return docstream.Document{}, errors.New("msgpackcodec: trailing data after document")
	}
	return doc, nil
}

func writeDocument(enc *msgpack.Encoder, doc docstream.Document) error {
	if err := enc.EncodeMapLen(doc.Len()); err != nil {
		return err
	}
	for name, el := range doc.Fields() {
		if err := enc.EncodeString(name); err != nil {
			return err
		}
		if err := writeElement(enc, el); err != nil {
			return err
		}
	}
	return nil
}

func writeElement(enc *msgpack.Encoder, el docstream.Element) error {
	switch el.Kind() {
	case docstream.KindBool:
		b, _ := el.BoolOK()
		return enc.EncodeBool(b)
	case docstream.KindInt32:
		n, _ := el.Int32OK()
		return enc.EncodeInt32(n)
	case docstream.KindInt64:
		n, _ := el.Int64OK()
		return enc.EncodeInt64(n)
	case docstream.KindDouble:
		f, _ := el.DoubleOK()
		return enc.EncodeFloat64(f)
	case docstream.KindString:
		s, _ := el.StringOK()
		return enc.EncodeString(s)
	case docstream.KindDocument:
		doc, _ := el.DocumentOK()
		return writeDocument(enc, doc)
	case docstream.KindArray:
		arr, _ := el.ArrayOK()
		if err := enc.EncodeArrayLen(arr.Len()); err != nil {
			return err
		}
		for _, item := range arr.Elements() {
			if err := writeElement(enc, item); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("cannot write %s element %q", el.Kind(), el.Name())
}

// readDocument and readArray take the underlying reader so declared lengths
// can be checked against the bytes actually left in the input.
func readDocument(dec *msgpack.Decoder, r *bytes.Reader, depth int) (docstream.Document, error) {
	if depth > MaxDepth {
		return docstream.Document{}, errTooDeep
	}
	n, err := dec.DecodeMapLen()
	if err != nil {
		return docstream.Document{}, err
	}
	if n < 0 {
		return docstream.Document{}, errors.New("nil map is not a document")
	}
	// Each field takes at least a one byte name and a one byte value.
	if n > r.Len()/2 {
		return docstream.Document{}, fmt.Errorf("map of %d fields exceeds remaining input", n)
	}
	enc := docstream.NewEncoder()
	seen := make(map[string]struct{}, n)
	for range n {
		name, err := dec.DecodeString()
		if err != nil {
			return docstream.Document{}, err
		}
		if _, dup := seen[name]; dup {
			return docstream.Document{}, fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = struct{}{}

		v, err := readValue(dec, r, depth)
		if err != nil {
			return docstream.Document{}, fmt.Errorf("field %q: %w", name, err)
		}
		enc.Append(name).Value(v)
	}
	return enc.Finalize()
}

func readArray(dec *msgpack.Decoder, r *bytes.Reader, depth int) (docstream.Array, error) {
	if depth > MaxDepth {
		return docstream.Array{}, errTooDeep
	}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return docstream.Array{}, err
	}
	if n > r.Len() {
		return docstream.Array{}, fmt.Errorf("array of %d elements exceeds remaining input", n)
	}
	enc := docstream.NewArrayEncoder()
	for range n {
		v, err := readValue(dec, r, depth)
		if err != nil {
			return docstream.Array{}, err
		}
		enc.Append(v)
	}
	return enc.Finalize()
}

func readValue(dec *msgpack.Decoder, r *bytes.Reader, depth int) (any, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case code == msgpcode.True || code == msgpcode.False:
		return dec.DecodeBool()
	case code == msgpcode.Int32:
		return dec.DecodeInt32()
	case code == msgpcode.Int64:
		return dec.DecodeInt64()
	case code == msgpcode.Uint64:
		n, err := dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		if n > math.MaxInt64 {
			return nil, fmt.Errorf("uint64 %d overflows int64", n)
		}
		return int64(n), nil
	case isSmallInt(code):
		n, err := dec.DecodeInt64()
		if err != nil {
			return nil, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return n, nil
		}
		return int32(n), nil
	case code == msgpcode.Float || code == msgpcode.Double:
		return dec.DecodeFloat64()
	case isString(code):
		return dec.DecodeString()
	case isMap(code):
		return readDocument(dec, r, depth+1)
	case isArray(code):
		return readArray(dec, r, depth+1)
	case code == msgpcode.Nil:
		return nil, errors.New("nil has no document representation")
	}
	return nil, fmt.Errorf("unsupported msgpack code 0x%x", code)
}

func isSmallInt(c byte) bool {
	switch c {
	case msgpcode.Int8, msgpcode.Int16, msgpcode.Uint8, msgpcode.Uint16, msgpcode.Uint32:
		return true
	}
	return msgpcode.IsFixedNum(c)
}

func isString(c byte) bool {
	return msgpcode.IsFixedString(c) || c == msgpcode.Str8 || c == msgpcode.Str16 || c == msgpcode.Str32
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}
