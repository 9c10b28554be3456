// Package protobufcodec serializes docstream Documents in the protobuf wire
// format using this schema:
//
//	message Document { repeated Field fields = 1; }
//	message Field    { string name = 1; Value value = 2; }
//	message Array    { repeated Value values = 1; }
//	message Value {
//		oneof kind {
//			bool     bool_value     = 1;
//			sint32   int32_value    = 2;
//			sint64   int64_value    = 3;
//			double   double_value   = 4;
//			string   string_value   = 5;
//			Document document_value = 6;
//			Array    array_value    = 7;
//		}
//	}
//
// Fields are written in document order, so decoding preserves it.
package protobufcodec

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/RobertWHurst/docstream"
)

const (
	documentFields protowire.Number = 1

	fieldName  protowire.Number = 1
	fieldValue protowire.Number = 2

	arrayValues protowire.Number = 1

	valueBool     protowire.Number = 1
	valueInt32    protowire.Number = 2
	valueInt64    protowire.Number = 3
	valueDouble   protowire.Number = 4
	valueString   protowire.Number = 5
	valueDocument protowire.Number = 6
	valueArray    protowire.Number = 7
)

// MaxDepth caps how deeply documents and arrays may nest in decoded input.
const MaxDepth = 512

var (
	errNoValue = errors.New("value has no kind set")
	errTooDeep = fmt.Errorf("nesting exceeds %d levels", MaxDepth)
)

type Codec struct{}

var _ docstream.Codec = &Codec{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) ContentType() string {
	return "application/x-protobuf"
}

func (c *Codec) Marshal(doc docstream.Document) ([]byte, error) {
	b, err := appendDocument(nil, doc)
	if err != nil {
		return nil, fmt.Errorf("protobufcodec: %w", err)
	}
	return b, nil
}

func (c *Codec) Unmarshal(data []byte) (docstream.Document, error) {
	doc, err := consumeDocument(data, 1)
	if err != nil {
		return docstream.Document{}, fmt.Errorf("protobufcodec: %w", err)
	}
	return doc, nil
}

func appendDocument(b []byte, doc docstream.Document) ([]byte, error) {
	for name, el := range doc.Fields() {
		value, err := appendValue(nil, el)
		if err != nil {
			return nil, err
		}
		var field []byte
		field = protowire.AppendTag(field, fieldName, protowire.BytesType)
		field = protowire.AppendString(field, name)
		field = protowire.AppendTag(field, fieldValue, protowire.BytesType)
		field = protowire.AppendBytes(field, value)

		b = protowire.AppendTag(b, documentFields, protowire.BytesType)
		b = protowire.AppendBytes(b, field)
	}
	return b, nil
}

func appendArray(b []byte, arr docstream.Array) ([]byte, error) {
	for _, el := range arr.Elements() {
		value, err := appendValue(nil, el)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, arrayValues, protowire.BytesType)
		b = protowire.AppendBytes(b, value)
	}
	return b, nil
}

func appendValue(b []byte, el docstream.Element) ([]byte, error) {
	switch el.Kind() {
	case docstream.KindBool:
		v, _ := el.BoolOK()
		b = protowire.AppendTag(b, valueBool, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(v)), nil
	case docstream.KindInt32:
		v, _ := el.Int32OK()
		b = protowire.AppendTag(b, valueInt32, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v))), nil
	case docstream.KindInt64:
		v, _ := el.Int64OK()
		b = protowire.AppendTag(b, valueInt64, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(v)), nil
	case docstream.KindDouble:
		v, _ := el.DoubleOK()
		b = protowire.AppendTag(b, valueDouble, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, math.Float64bits(v)), nil
	case docstream.KindString:
		v, _ := el.StringOK()
		b = protowire.AppendTag(b, valueString, protowire.BytesType)
		return protowire.AppendString(b, v), nil
	case docstream.KindDocument:
		doc, _ := el.DocumentOK()
		inner, err := appendDocument(nil, doc)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, valueDocument, protowire.BytesType)
		return protowire.AppendBytes(b, inner), nil
	case docstream.KindArray:
		arr, _ := el.ArrayOK()
		inner, err := appendArray(nil, arr)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, valueArray, protowire.BytesType)
		return protowire.AppendBytes(b, inner), nil
	}
	return nil, fmt.Errorf("cannot write %s element %q", el.Kind(), el.Name())
}

// consumeMessage walks the top-level fields of a message, handing each
// known field to fn and skipping the rest.
func consumeMessage(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func consumeDocument(b []byte, depth int) (docstream.Document, error) {
	if depth > MaxDepth {
		return docstream.Document{}, errTooDeep
	}
	enc := docstream.NewEncoder()
	seen := make(map[string]struct{})
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != documentFields || typ != protowire.BytesType {
			return 0, nil
		}
		field, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		name, v, err := consumeField(field, depth)
		if err != nil {
			return 0, err
		}
		if _, dup := seen[name]; dup {
			return 0, fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = struct{}{}
		enc.Append(name).Value(v)
		return n, nil
	})
	if err != nil {
		return docstream.Document{}, err
	}
	return enc.Finalize()
}

func consumeField(b []byte, depth int) (string, any, error) {
	var (
		name  string
		value []byte
		set   bool
	)
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return 0, nil
		}
		switch num {
		case fieldName:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			name = s
			return n, nil
		case fieldValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			value, set = v, true
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return "", nil, err
	}
	if !set {
		return "", nil, fmt.Errorf("field %q: %w", name, errNoValue)
	}
	v, err := consumeValue(value, depth)
	if err != nil {
		return "", nil, fmt.Errorf("field %q: %w", name, err)
	}
	return name, v, nil
}

func consumeArray(b []byte, depth int) (docstream.Array, error) {
	if depth > MaxDepth {
		return docstream.Array{}, errTooDeep
	}
	enc := docstream.NewArrayEncoder()
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != arrayValues || typ != protowire.BytesType {
			return 0, nil
		}
		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return 0, protowire.ParseError(n)
		}
		v, err := consumeValue(raw, depth)
		if err != nil {
			return 0, err
		}
		enc.Append(v)
		return n, nil
	})
	if err != nil {
		return docstream.Array{}, err
	}
	return enc.Finalize()
}

// consumeValue returns the last kind set in the oneof, as proto3 does.
func consumeValue(b []byte, depth int) (any, error) {
	var out any
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case typ == protowire.VarintType && (num == valueBool || num == valueInt32 || num == valueInt64):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			switch num {
			case valueBool:
				out = protowire.DecodeBool(v)
			case valueInt32:
				z := protowire.DecodeZigZag(v)
				if z < math.MinInt32 || z > math.MaxInt32 {
					return 0, fmt.Errorf("int32 value %d out of range", z)
				}
				out = int32(z)
			default:
				out = protowire.DecodeZigZag(v)
			}
			return n, nil
		case typ == protowire.Fixed64Type && num == valueDouble:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			out = math.Float64frombits(v)
			return n, nil
		case typ == protowire.BytesType && (num == valueString || num == valueDocument || num == valueArray):
			raw, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			var err error
			switch num {
			case valueString:
				out = string(raw)
			case valueDocument:
				out, err = consumeDocument(raw, depth+1)
			default:
				out, err = consumeArray(raw, depth+1)
			}
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errNoValue
	}
	return out, nil
}
