// Package cborcodec serializes docstream Documents as deterministic CBOR
// (RFC 8949 Core Deterministic Encoding).
//
// A Document is an array of [name, kind, value] triples in field order and
// an Array is an array of [kind, value] pairs. The kind byte keeps int32,
// int64 and double apart, which plain CBOR numbers would not.
package cborcodec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/RobertWHurst/docstream"
)

// Kind bytes on the wire. These are protocol constants.
const (
	kindBool     uint8 = 1
	kindInt32    uint8 = 2
	kindInt64    uint8 = 3
	kindDouble   uint8 = 4
	kindString   uint8 = 5
	kindDocument uint8 = 6
	kindArray    uint8 = 7
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cborcodec: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cborcodec: CBOR decoder initialization failed: " + err.Error())
	}
}

type fieldOut struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Kind  uint8
	Value any
}

type itemOut struct {
	_     struct{} `cbor:",toarray"`
	Kind  uint8
	Value any
}

type fieldIn struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Kind  uint8
	Value cbor.RawMessage
}

type itemIn struct {
	_     struct{} `cbor:",toarray"`
	Kind  uint8
	Value cbor.RawMessage
}

type Codec struct{}

var _ docstream.Codec = &Codec{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) ContentType() string {
	return "application/cbor"
}

func (c *Codec) Marshal(doc docstream.Document) ([]byte, error) {
	fields, err := documentOut(doc)
	if err != nil {
		return nil, fmt.Errorf("cborcodec: %w", err)
	}
	b, err := encMode.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("cborcodec: %w", err)
	}
	return b, nil
}

func (c *Codec) Unmarshal(data []byte) (docstream.Document, error) {
	doc, err := documentIn(data)
	if err != nil {
		return docstream.Document{}, fmt.Errorf("cborcodec: %w", err)
	}
	return doc, nil
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for data.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}

func documentOut(doc docstream.Document) ([]fieldOut, error) {
	fields := make([]fieldOut, 0, doc.Len())
	for name, el := range doc.Fields() {
		kind, v, err := valueOut(el)
		if err != nil {
			return nil, err
		}
		fields = append(fields, fieldOut{Name: name, Kind: kind, Value: v})
	}
	return fields, nil
}

func valueOut(el docstream.Element) (uint8, any, error) {
	switch el.Kind() {
	case docstream.KindBool:
		v, _ := el.BoolOK()
		return kindBool, v, nil
	case docstream.KindInt32:
		v, _ := el.Int32OK()
		return kindInt32, v, nil
	case docstream.KindInt64:
		v, _ := el.Int64OK()
		return kindInt64, v, nil
	case docstream.KindDouble:
		v, _ := el.DoubleOK()
		return kindDouble, v, nil
	case docstream.KindString:
		v, _ := el.StringOK()
		return kindString, v, nil
	case docstream.KindDocument:
		doc, _ := el.DocumentOK()
		fields, err := documentOut(doc)
		return kindDocument, fields, err
	case docstream.KindArray:
		arr, _ := el.ArrayOK()
		items := make([]itemOut, 0, arr.Len())
		for _, item := range arr.Elements() {
			kind, v, err := valueOut(item)
			if err != nil {
				return 0, nil, err
			}
			items = append(items, itemOut{Kind: kind, Value: v})
		}
		return kindArray, items, nil
	}
	return 0, nil, fmt.Errorf("cannot write %s element %q", el.Kind(), el.Name())
}

func documentIn(data []byte) (docstream.Document, error) {
	var fields []fieldIn
	if err := decMode.Unmarshal(data, &fields); err != nil {
		return docstream.Document{}, err
	}
	if fields == nil && !isEmptyArray(data) {
		return docstream.Document{}, errors.New("expected an array of fields")
	}
	enc := docstream.NewEncoder()
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, dup := seen[f.Name]; dup {
			return docstream.Document{}, fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		v, err := valueIn(f.Kind, f.Value)
		if err != nil {
			return docstream.Document{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		enc.Append(f.Name).Value(v)
	}
	return enc.Finalize()
}

func arrayIn(data []byte) (docstream.Array, error) {
	var items []itemIn
	if err := decMode.Unmarshal(data, &items); err != nil {
		return docstream.Array{}, err
	}
	if items == nil && !isEmptyArray(data) {
		return docstream.Array{}, errors.New("expected an array")
	}
	enc := docstream.NewArrayEncoder()
	for i, item := range items {
		v, err := valueIn(item.Kind, item.Value)
		if err != nil {
			return docstream.Array{}, fmt.Errorf("index %d: %w", i, err)
		}
		enc.Append(v)
	}
	return enc.Finalize()
}

func valueIn(kind uint8, raw cbor.RawMessage) (any, error) {
	switch kind {
	case kindBool:
		return scalarIn[bool](raw)
	case kindInt32:
		return scalarIn[int32](raw)
	case kindInt64:
		return scalarIn[int64](raw)
	case kindDouble:
		return scalarIn[float64](raw)
	case kindString:
		return scalarIn[string](raw)
	case kindDocument:
		return documentIn(raw)
	case kindArray:
		return arrayIn(raw)
	}
	return nil, fmt.Errorf("unknown kind %d", kind)
}

func scalarIn[T any](raw cbor.RawMessage) (any, error) {
	if len(raw) == 0 || raw[0] == 0xf6 || raw[0] == 0xf7 {
		return nil, errors.New("null has no document representation")
	}
	var v T
	if err := decMode.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// isEmptyArray reports whether data is the single byte of a zero-length
// CBOR array.
func isEmptyArray(data []byte) bool {
	return len(data) == 1 && data[0] == 0x80
}
