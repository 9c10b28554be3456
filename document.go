package docstream

import (
	"iter"
	"math"
	"strconv"
	"strings"
)

// Kind is the type tag carried by every Element.
type Kind uint8

const (
	// KindMissing marks the result of looking up a field or index that does not exist.
	KindMissing Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindString
	KindDocument
	KindArray
)

var kindNames = [...]string{
	KindMissing:  "missing",
	KindBool:     "bool",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindDouble:   "double",
	KindString:   "string",
	KindDocument: "document",
	KindArray:    "array",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// IsNumber reports whether k is one of the numeric tags.
func (k Kind) IsNumber() bool {
	return k == KindInt32 || k == KindInt64 || k == KindDouble
}

// indexThreshold is the field count above which a Document keeps a name index.
const indexThreshold = 8

// Document is an immutable, ordered mapping from unique field names to
// Elements. Documents are produced by Encoder.Finalize and by codecs, and
// may be shared between goroutines for reading. The zero value is an empty
// document.
type Document struct {
	fields []Element
	index  map[string]int
}

func newDocument(fields []Element) Document {
	doc := Document{fields: fields}
	if len(fields) > indexThreshold {
		doc.index = make(map[string]int, len(fields))
		for i, field := range fields {
			doc.index[field.name] = i
		}
	}
	return doc
}

// Len returns the number of fields in the document.
func (d Document) Len() int {
	return len(d.fields)
}

// Lookup returns the element stored under name. When the document has no
// such field the returned element has KindMissing.
func (d Document) Lookup(name string) Element {
	if d.index != nil {
		if i, ok := d.index[name]; ok {
			return d.fields[i]
		}
		return missingElement(name)
	}
	for _, field := range d.fields {
		if field.name == name {
			return field
		}
	}
	return missingElement(name)
}

// Has reports whether the document contains a field called name.
func (d Document) Has(name string) bool {
	return !d.Lookup(name).IsMissing()
}

// Fields iterates over the document's fields in insertion order.
func (d Document) Fields() iter.Seq2[string, Element] {
	return func(yield func(string, Element) bool) {
		for _, field := range d.fields {
			if !yield(field.name, field) {
				return
			}
		}
	}
}

// Keys returns the field names in insertion order.
func (d Document) Keys() []string {
	keys := make([]string, len(d.fields))
	for i, field := range d.fields {
		keys[i] = field.name
	}
	return keys
}

// Equal reports whether both documents hold the same field names, in the
// same order, with equal values.
func (d Document) Equal(other Document) bool {
	if len(d.fields) != len(other.fields) {
		return false
	}
	for i, field := range d.fields {
		if field.name != other.fields[i].name || !field.Equal(other.fields[i]) {
			return false
		}
	}
	return true
}

func (d Document) String() string {
	var b strings.Builder
	writeDocument(&b, d)
	return b.String()
}

// Array is an immutable ordered sequence of Elements.
type Array struct {
	elements []Element
}

func newArray(elements []Element) Array {
	for i := range elements {
		elements[i].name = strconv.Itoa(i)
		elements[i].inArray = true
	}
	return Array{elements: elements}
}

// Len returns the number of elements in the array.
func (a Array) Len() int {
	return len(a.elements)
}

// Index returns the element at position i, or a missing element when i is
// out of range.
func (a Array) Index(i int) Element {
	if i < 0 || i >= len(a.elements) {
		el := missingElement(strconv.Itoa(i))
		el.inArray = true
		return el
	}
	return a.elements[i]
}

// Elements iterates over the array in order.
func (a Array) Elements() iter.Seq2[int, Element] {
	return func(yield func(int, Element) bool) {
		for i, el := range a.elements {
			if !yield(i, el) {
				return
			}
		}
	}
}

// Equal reports whether both arrays hold equal elements in the same order.
func (a Array) Equal(other Array) bool {
	if len(a.elements) != len(other.elements) {
		return false
	}
	for i, el := range a.elements {
		if !el.Equal(other.elements[i]) {
			return false
		}
	}
	return true
}

func (a Array) String() string {
	var b strings.Builder
	writeArray(&b, a)
	return b.String()
}

// Element is a tagged value read out of a Document or an Array. It
// remembers the field name (or array index) it was read from so that
// decode errors can report where they happened.
type Element struct {
	name    string
	inArray bool
	kind    Kind

	b   bool
	i   int64
	f   float64
	s   string
	doc Document
	arr Array
}

// DocumentElement wraps doc in a synthetic, unnamed element. It is the
// bridge that lets an Element-based decode hook run against a whole
// Document.
func DocumentElement(doc Document) Element {
	return Element{kind: KindDocument, doc: doc}
}

func missingElement(name string) Element {
	return Element{name: name, kind: KindMissing}
}

func boolElement(v bool) Element { return Element{kind: KindBool, b: v} }
func int32Element(v int32) Element { return Element{kind: KindInt32, i: int64(v)} }
func int64Element(v int64) Element { return Element{kind: KindInt64, i: v} }
func doubleElement(v float64) Element { return Element{kind: KindDouble, f: v} }
func stringElement(v string) Element { return Element{kind: KindString, s: v} }
func arrayElement(v Array) Element { return Element{kind: KindArray, arr: v} }
func documentElement(v Document) Element { return Element{kind: KindDocument, doc: v} }

// Kind returns the element's type tag.
func (e Element) Kind() Kind { return e.kind }

// Name returns the field name the element was read from. Array elements
// are named by their decimal index.
func (e Element) Name() string { return e.name }

// IsMissing reports whether the element marks an absent field.
func (e Element) IsMissing() bool { return e.kind == KindMissing }

func (e Element) BoolOK() (bool, bool) {
	return e.b, e.kind == KindBool
}

func (e Element) Int32OK() (int32, bool) {
	return int32(e.i), e.kind == KindInt32
}

func (e Element) Int64OK() (int64, bool) {
	return e.i, e.kind == KindInt64
}

func (e Element) DoubleOK() (float64, bool) {
	return e.f, e.kind == KindDouble
}

func (e Element) StringOK() (string, bool) {
	return e.s, e.kind == KindString
}

func (e Element) DocumentOK() (Document, bool) {
	return e.doc, e.kind == KindDocument
}

func (e Element) ArrayOK() (Array, bool) {
	return e.arr, e.kind == KindArray
}

// Number returns any numeric element as a float64. Non-numeric elements
// yield a *TypeMismatchError and missing ones a *MissingFieldError.
func (e Element) Number() (float64, error) {
	switch e.kind {
	case KindInt32, KindInt64:
		return float64(e.i), nil
	case KindDouble:
		return e.f, nil
	case KindMissing:
		return 0, &MissingFieldError{Path: e.segment()}
	}
	return 0, &TypeMismatchError{Path: e.segment(), Want: "number", Got: e.kind}
}

// Lookup returns the named field of a document element. Any other element
// yields a missing element.
func (e Element) Lookup(name string) Element {
	if e.kind != KindDocument {
		return missingElement(name)
	}
	return e.doc.Lookup(name)
}

// Value returns the element's natural Go value: bool, int32, int64,
// float64, string, Document, Array, or nil for a missing element.
func (e Element) Value() any {
	switch e.kind {
	case KindBool:
		return e.b
	case KindInt32:
		return int32(e.i)
	case KindInt64:
		return e.i
	case KindDouble:
		return e.f
	case KindString:
		return e.s
	case KindDocument:
		return e.doc
	case KindArray:
		return e.arr
	}
	return nil
}

// Equal compares tag and value. Names are not compared.
func (e Element) Equal(other Element) bool {
	if e.kind != other.kind {
		return false
	}
	switch e.kind {
	case KindBool:
		return e.b == other.b
	case KindInt32, KindInt64:
		return e.i == other.i
	case KindDouble:
		return e.f == other.f
	case KindString:
		return e.s == other.s
	case KindDocument:
		return e.doc.Equal(other.doc)
	case KindArray:
		return e.arr.Equal(other.arr)
	}
	return true
}

func (e Element) String() string {
	var b strings.Builder
	writeElement(&b, e)
	return b.String()
}

// segment is the element's contribution to an error path.
func (e Element) segment() string {
	if e.inArray {
		return "[" + e.name + "]"
	}
	return e.name
}

func (e Element) withName(name string) Element {
	e.name = name
	e.inArray = false
	return e
}

func writeDocument(b *strings.Builder, d Document) {
	b.WriteString("{")
	for i, field := range d.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(field.name)
		b.WriteString(": ")
		writeElement(b, field)
	}
	b.WriteString("}")
}

func writeArray(b *strings.Builder, a Array) {
	b.WriteString("[")
	for i, el := range a.elements {
		if i > 0 {
			b.WriteString(", ")
		}
		writeElement(b, el)
	}
	b.WriteString("]")
}

func writeElement(b *strings.Builder, e Element) {
	switch e.kind {
	case KindBool:
		b.WriteString(strconv.FormatBool(e.b))
	case KindInt32, KindInt64:
		b.WriteString(strconv.FormatInt(e.i, 10))
	case KindDouble:
		b.WriteString(FormatDouble(e.f))
	case KindString:
		b.WriteString(strconv.Quote(e.s))
	case KindDocument:
		writeDocument(b, e.doc)
	case KindArray:
		writeArray(b, e.arr)
	default:
		b.WriteString("<missing>")
	}
}

// FormatDouble renders f so that it always reads back as a double: integral
// values keep a trailing ".0".
func FormatDouble(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
