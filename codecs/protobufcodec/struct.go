package protobufcodec

import (
	"fmt"
	"math"
	"slices"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/RobertWHurst/docstream"
)

// ToStruct converts doc into a google.protobuf.Struct for services that
// speak the well-known types. Struct has a single number type, so every
// numeric tag becomes a double.
func ToStruct(doc docstream.Document) (*structpb.Struct, error) {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, doc.Len())}
	for name, el := range doc.Fields() {
		v, err := toValue(el)
		if err != nil {
			return nil, fmt.Errorf("protobufcodec: field %q: %w", name, err)
		}
		s.Fields[name] = v
	}
	return s, nil
}

// FromStruct converts s into a Document. Struct fields are unordered, so
// the document's fields are sorted by name. Whole numbers that fit an
// int64 come back as int64, anything else as a double. Null values are
// left out.
func FromStruct(s *structpb.Struct) (docstream.Document, error) {
	names := make([]string, 0, len(s.GetFields()))
	for name := range s.GetFields() {
		names = append(names, name)
	}
	slices.Sort(names)

	enc := docstream.NewEncoder()
	for _, name := range names {
		v, err := fromValue(s.Fields[name])
		if err != nil {
			return docstream.Document{}, fmt.Errorf("protobufcodec: field %q: %w", name, err)
		}
		if v == nil {
			continue
		}
		enc.Append(name).Value(v)
	}
	return enc.Finalize()
}

func toValue(el docstream.Element) (*structpb.Value, error) {
	switch el.Kind() {
	case docstream.KindBool:
		b, _ := el.BoolOK()
		return structpb.NewBoolValue(b), nil
	case docstream.KindInt32, docstream.KindInt64, docstream.KindDouble:
		f, err := el.Number()
		if err != nil {
			return nil, err
		}
		return structpb.NewNumberValue(f), nil
	case docstream.KindString:
		s, _ := el.StringOK()
		return structpb.NewStringValue(s), nil
	case docstream.KindDocument:
		doc, _ := el.DocumentOK()
		s, err := ToStruct(doc)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(s), nil
	case docstream.KindArray:
		arr, _ := el.ArrayOK()
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, arr.Len())}
		for _, item := range arr.Elements() {
			v, err := toValue(item)
			if err != nil {
				return nil, err
			}
			list.Values = append(list.Values, v)
		}
		return structpb.NewListValue(list), nil
	}
	return nil, fmt.Errorf("cannot convert %s element", el.Kind())
}

func fromValue(v *structpb.Value) (any, error) {
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NullValue, nil:
		return nil, nil
	case *structpb.Value_BoolValue:
		return kind.BoolValue, nil
	case *structpb.Value_NumberValue:
		f := kind.NumberValue
		if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f), nil
		}
		return f, nil
	case *structpb.Value_StringValue:
		return kind.StringValue, nil
	case *structpb.Value_StructValue:
		return FromStruct(kind.StructValue)
	case *structpb.Value_ListValue:
		enc := docstream.NewArrayEncoder()
		for i, item := range kind.ListValue.GetValues() {
			v, err := fromValue(item)
			if err != nil {
				return nil, err
			}
			if v == nil {
				return nil, fmt.Errorf("null at index %d has no array representation", i)
			}
			enc.Append(v)
		}
		return enc.Finalize()
	}
	return nil, fmt.Errorf("unknown struct value kind %T", v.GetKind())
}
