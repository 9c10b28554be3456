// Package jsoncodec serializes docstream Documents as JSON objects.
//
// Field order is preserved. int32 values are written as plain JSON
// integers, doubles always carry a fraction or an exponent, and int64
// values use the extended form {"$numberLong": "<digits>"} so the three
// numeric tags survive a round trip. Non-finite doubles use
// {"$numberDouble": "NaN" | "Infinity" | "-Infinity"}. A nested document
// whose only field uses one of these reserved names is written inside
// {"$document": ...} so it is not mistaken for a number.
package jsoncodec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/RobertWHurst/docstream"
)

const (
	numberLongKey   = "$numberLong"
	numberDoubleKey = "$numberDouble"
	documentKey     = "$document"
)

// MaxDepth caps how deeply documents and arrays may nest in decoded input.
const MaxDepth = 512

var errTooDeep = fmt.Errorf("jsoncodec: nesting exceeds %d levels", MaxDepth)

// Codec implements docstream.Codec using JSON.
type Codec struct {
	// Indent, when set, pretty-prints output with this per-level indent.
	Indent string
}

var _ docstream.Codec = &Codec{}

// New creates a new JSON codec.
func New() *Codec {
	return &Codec{}
}

func (c *Codec) ContentType() string {
	return "application/json"
}

// Marshal serializes doc to JSON bytes.
func (c *Codec) Marshal(doc docstream.Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeDocument(&buf, doc); err != nil {
		return nil, err
	}
	if c.Indent == "" {
		return buf.Bytes(), nil
	}
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", c.Indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Unmarshal deserializes a JSON object into a Document.
func (c *Codec) Unmarshal(data []byte) (docstream.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return docstream.Document{}, fmt.Errorf("jsoncodec: %w", err)
	}
	if tok != json.Delim('{') {
		return docstream.Document{}, fmt.Errorf("jsoncodec: expected object, got %v", tok)
	}
	doc, err := readDocument(dec, 1, false)
	if err != nil {
		return docstream.Document{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return docstream.Document{}, errors.New("jsoncodec: trailing data after document")
	}
	return doc, nil
}

func writeDocument(buf *bytes.Buffer, doc docstream.Document) error {
	buf.WriteByte('{')
	i := 0
	for name, el := range doc.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		writeString(buf, name)
		buf.WriteByte(':')
		if err := writeElement(buf, el); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeArray(buf *bytes.Buffer, arr docstream.Array) error {
	buf.WriteByte('[')
	for i, el := range arr.Elements() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeElement(buf, el); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeElement(buf *bytes.Buffer, el docstream.Element) error {
	switch el.Kind() {
	case docstream.KindBool:
		b, _ := el.BoolOK()
		buf.WriteString(strconv.FormatBool(b))
	case docstream.KindInt32:
		n, _ := el.Int32OK()
		buf.WriteString(strconv.FormatInt(int64(n), 10))
	case docstream.KindInt64:
		n, _ := el.Int64OK()
		buf.WriteString(`{"` + numberLongKey + `":"`)
		buf.WriteString(strconv.FormatInt(n, 10))
		buf.WriteString(`"}`)
	case docstream.KindDouble:
		f, _ := el.DoubleOK()
		writeDouble(buf, f)
	case docstream.KindString:
		s, _ := el.StringOK()
		writeString(buf, s)
	case docstream.KindDocument:
		doc, _ := el.DocumentOK()
		if !reserved(doc) {
			return writeDocument(buf, doc)
		}
		buf.WriteString(`{"` + documentKey + `":`)
		if err := writeDocument(buf, doc); err != nil {
			return err
		}
		buf.WriteByte('}')
	case docstream.KindArray:
		arr, _ := el.ArrayOK()
		return writeArray(buf, arr)
	default:
		return fmt.Errorf("jsoncodec: cannot write %s element %q", el.Kind(), el.Name())
	}
	return nil
}

func writeDouble(buf *bytes.Buffer, f float64) {
	switch {
	case math.IsNaN(f):
		buf.WriteString(`{"` + numberDoubleKey + `":"NaN"}`)
	case math.IsInf(f, 1):
		buf.WriteString(`{"` + numberDoubleKey + `":"Infinity"}`)
	case math.IsInf(f, -1):
		buf.WriteString(`{"` + numberDoubleKey + `":"-Infinity"}`)
	default:
		buf.WriteString(docstream.FormatDouble(f))
	}
}

// reserved reports whether doc would read back as an extended wrapper.
func reserved(doc docstream.Document) bool {
	if doc.Len() != 1 {
		return false
	}
	return doc.Has(numberLongKey) || doc.Has(numberDoubleKey) || doc.Has(documentKey)
}

func writeString(buf *bytes.Buffer, s string) {
	// json.Marshal on a string can not fail.
	b, _ := json.Marshal(s)
	buf.Write(b)
}

type member struct {
	name  string
	value any
}

// readDocument reads object members up to and including the closing brace.
// A $document member is read without unwrapping. When nested is set and it
// is the only member, it is left for unwrapExtended in the parent.
func readDocument(dec *json.Decoder, depth int, nested bool) (docstream.Document, error) {
	if depth > MaxDepth {
		return docstream.Document{}, errTooDeep
	}
	var members []member
	escaped := -1
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return docstream.Document{}, fmt.Errorf("jsoncodec: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return docstream.Document{}, fmt.Errorf("jsoncodec: expected field name, got %v", tok)
		}
		if _, dup := seen[name]; dup {
			return docstream.Document{}, fmt.Errorf("jsoncodec: duplicate field %q", name)
		}
		seen[name] = struct{}{}

		if name == documentKey {
			escaped = len(members)
		}
		v, err := readValue(dec, depth, name != documentKey)
		if err != nil {
			return docstream.Document{}, fmt.Errorf("%w (in field %q)", err, name)
		}
		members = append(members, member{name: name, value: v})
	}
	if _, err := dec.Token(); err != nil {
		return docstream.Document{}, fmt.Errorf("jsoncodec: %w", err)
	}

	if escaped >= 0 && (!nested || len(members) != 1) {
		if doc, ok := members[escaped].value.(docstream.Document); ok {
			v, err := unwrapExtended(doc)
			if err != nil {
				return docstream.Document{}, fmt.Errorf("%w (in field %q)", err, documentKey)
			}
			members[escaped].value = v
		}
	}

	enc := docstream.NewEncoder()
	for _, m := range members {
		enc.Append(m.name).Value(m.value)
	}
	return enc.Finalize()
}

func readArray(dec *json.Decoder, depth int) (docstream.Array, error) {
	if depth > MaxDepth {
		return docstream.Array{}, errTooDeep
	}
	enc := docstream.NewArrayEncoder()
	for dec.More() {
		v, err := readValue(dec, depth, true)
		if err != nil {
			return docstream.Array{}, err
		}
		enc.Append(v)
	}
	if _, err := dec.Token(); err != nil {
		return docstream.Array{}, fmt.Errorf("jsoncodec: %w", err)
	}
	return enc.Finalize()
}

// readValue returns the next value as one of the Go types the core encodes
// to a single tag. Objects are unwrapped only when unwrap is set.
func readValue(dec *json.Decoder, depth int, unwrap bool) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("jsoncodec: %w", err)
	}
	switch tv := tok.(type) {
	case bool:
		return tv, nil
	case string:
		return tv, nil
	case json.Number:
		return parseNumber(tv)
	case nil:
		return nil, errors.New("jsoncodec: null has no document representation")
	case json.Delim:
		switch tv {
		case '{':
			doc, err := readDocument(dec, depth+1, true)
			if err != nil {
				return nil, err
			}
			if !unwrap {
				return doc, nil
			}
			return unwrapExtended(doc)
		case '[':
			return readArray(dec, depth+1)
		}
	}
	return nil, fmt.Errorf("jsoncodec: unexpected token %v", tok)
}

func parseNumber(n json.Number) (any, error) {
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("jsoncodec: %w", err)
		}
		return f, nil
	}
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("jsoncodec: integer %s does not fit int32; use %s", s, numberLongKey)
	}
	return int32(i), nil
}

// unwrapExtended turns the single-field wrapper objects back into the
// value they stand for. Any other document is returned as is.
func unwrapExtended(doc docstream.Document) (any, error) {
	if doc.Len() != 1 {
		return doc, nil
	}
	if inner, ok := doc.Lookup(documentKey).DocumentOK(); ok {
		return settle(inner)
	}
	if s, ok := doc.Lookup(numberLongKey).StringOK(); ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("jsoncodec: bad %s %q: %w", numberLongKey, s, err)
		}
		return n, nil
	}
	if s, ok := doc.Lookup(numberDoubleKey).StringOK(); ok {
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return nil, fmt.Errorf("jsoncodec: bad %s %q", numberDoubleKey, s)
	}
	return doc, nil
}

// settle resolves the $document member readDocument left unwrapped once the
// document holding it is known to be a plain document.
func settle(doc docstream.Document) (docstream.Document, error) {
	if doc.Len() != 1 {
		return doc, nil
	}
	raw, ok := doc.Lookup(documentKey).DocumentOK()
	if !ok {
		return doc, nil
	}
	v, err := unwrapExtended(raw)
	if err != nil {
		return docstream.Document{}, err
	}
	return docstream.NewEncoder().Append(documentKey).Value(v).Finalize()
}
