// Package bsoncodec serializes docstream Documents as BSON. The BSON type
// system has int32, int64 and double of its own, so every Kind maps onto a
// native BSON type and field order is kept by going through bson.D.
package bsoncodec

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/RobertWHurst/docstream"
)

type Codec struct{}

var _ docstream.Codec = &Codec{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) ContentType() string {
	return "application/bson"
}

func (c *Codec) Marshal(doc docstream.Document) ([]byte, error) {
	d, err := ToD(doc)
	if err != nil {
		return nil, err
	}
	b, err := bson.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("bsoncodec: %w", err)
	}
	return b, nil
}

func (c *Codec) Unmarshal(data []byte) (docstream.Document, error) {
	if err := bson.Raw(data).Validate(); err != nil {
		return docstream.Document{}, fmt.Errorf("bsoncodec: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(data, &d); err != nil {
		return docstream.Document{}, fmt.Errorf("bsoncodec: %w", err)
	}
	return FromD(d)
}

// ToD converts doc into an ordered bson.D, for handing documents to the
// MongoDB driver directly.
func ToD(doc docstream.Document) (bson.D, error) {
	d := make(bson.D, 0, doc.Len())
	for name, el := range doc.Fields() {
		v, err := toValue(el)
		if err != nil {
			return nil, fmt.Errorf("bsoncodec: field %q: %w", name, err)
		}
		d = append(d, bson.E{Key: name, Value: v})
	}
	return d, nil
}

// FromD converts a bson.D into a Document. BSON types with no Kind
// (ObjectID, datetime, binary and the rest) are rejected.
func FromD(d bson.D) (docstream.Document, error) {
	enc := docstream.NewEncoder()
	seen := make(map[string]struct{}, len(d))
	for _, e := range d {
		if _, dup := seen[e.Key]; dup {
			return docstream.Document{}, fmt.Errorf("bsoncodec: duplicate field %q", e.Key)
		}
		seen[e.Key] = struct{}{}
		v, err := fromValue(e.Value)
		if err != nil {
			return docstream.Document{}, fmt.Errorf("bsoncodec: field %q: %w", e.Key, err)
		}
		enc.Append(e.Key).Value(v)
	}
	return enc.Finalize()
}

func toValue(el docstream.Element) (any, error) {
	switch el.Kind() {
	case docstream.KindDocument:
		doc, _ := el.DocumentOK()
		return ToD(doc)
	case docstream.KindArray:
		arr, _ := el.ArrayOK()
		a := make(bson.A, 0, arr.Len())
		for _, item := range arr.Elements() {
			v, err := toValue(item)
			if err != nil {
				return nil, err
			}
			a = append(a, v)
		}
		return a, nil
	case docstream.KindMissing:
		return nil, fmt.Errorf("cannot write missing element %q", el.Name())
	}
	// bool, int32, int64, float64 and string are native BSON types.
	return el.Value(), nil
}

func fromValue(v any) (any, error) {
	switch tv := v.(type) {
	case bool, int32, int64, float64, string:
		return tv, nil
	case bson.D:
		return FromD(tv)
	case bson.A:
		enc := docstream.NewArrayEncoder()
		for i, item := range tv {
			iv, err := fromValue(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			enc.Append(iv)
		}
		return enc.Finalize()
	}
	return nil, fmt.Errorf("unsupported BSON value of type %T", v)
}
