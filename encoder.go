package docstream

import (
	"reflect"
	"slices"
	"strings"
)

// Encoder builds a single Document from chained key/value appends:
//
//	doc, err := docstream.NewEncoder().
//		Append("a").Value(2.0).
//		Append("b").Value([]float64{1.1, -2.9}).
//		Finalize()
//
// Append returns a Field whose only operation is Value, so a value can
// never be written without a key. Protocol violations the type system can
// not rule out (a second key while one is pending, reusing a spent Field,
// duplicate names, touching a finalized Encoder) panic with a *UsageError.
//
// Values of unsupported types do not panic. The first such error is kept
// and returned by Finalize.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	fields []Element
	names  map[string]struct{}

	pending string
	token   uint64
	issued  uint64

	err  error
	done bool
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{names: make(map[string]struct{})}
}

// Field is a key bound to an Encoder, waiting for its value.
type Field struct {
	enc   *Encoder
	key   string
	token uint64
}

// Append binds key as the pending field name.
func (e *Encoder) Append(key string) Field {
	e.mustBeOpen("Append")
	if e.token != 0 {
		usagePanic("Append", "key %q appended while key %q is still pending", key, e.pending)
	}
	if _, dup := e.names[key]; dup {
		usagePanic("Append", "duplicate field name %q", key)
	}
	e.issued++
	e.token = e.issued
	e.pending = key
	return Field{enc: e, key: key, token: e.token}
}

// Key returns the field name this Field will write.
func (f Field) Key() string {
	return f.key
}

// Value consumes the pending key and stores v under it. A nil pointer,
// nil interface or missing Element leaves the field out of the document.
func (f Field) Value(v any) *Encoder {
	e := f.enc
	if e == nil {
		usagePanic("Value", "field %q is not bound to an encoder", f.key)
	}
	e.mustBeOpen("Value")
	if f.token == 0 || e.token != f.token {
		usagePanic("Value", "key %q was already consumed", f.key)
	}
	e.token = 0
	e.pending = ""

	el, err := encodeAny(v)
	if err != nil {
		e.fail(withPath(err, f.key))
		return e
	}
	if el.kind != KindMissing {
		e.appendElement(f.key, el)
	}
	return e
}

// Inline writes the fields of v straight into this encoder's document
// rather than nesting them under a key. v may be a Document, a
// string-keyed map or a composite type.
func (e *Encoder) Inline(v any) *Encoder {
	e.mustBeOpen("Inline")
	if e.token != 0 {
		usagePanic("Inline", "key %q is still pending", e.pending)
	}
	if v == nil {
		return e
	}
	switch tv := v.(type) {
	case Document:
		for name, el := range tv.Fields() {
			e.Append(name).Value(el)
		}
		return e
	case *Document:
		if tv != nil {
			return e.Inline(*tv)
		}
		return e
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return e
		}
		if hook := compositeHook(rv.Type()); hook != nil {
			break
		}
		rv = rv.Elem()
	}

	if hook := compositeHook(rv.Type()); hook != nil {
		if out := hook(rv, e); out != nil && out != e {
			// The hook returned a different encoder; fold its fields in.
			doc, err := out.Finalize()
			if err != nil {
				e.fail(err)
				return e
			}
			return e.Inline(doc)
		}
		return e
	}

	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String && !isSetType(rv.Type()) {
		elemEnc := typeEncoder(rv.Type().Elem())
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(a.String(), b.String())
		})
		for _, key := range keys {
			name := key.String()
			if _, dup := e.names[name]; dup {
				usagePanic("Inline", "duplicate field name %q", name)
			}
			el, err := elemEnc(rv.MapIndex(key))
			if err != nil {
				e.fail(withPath(err, name))
				continue
			}
			if el.kind != KindMissing {
				e.appendElement(name, el)
			}
		}
		return e
	}

	e.fail(&UnsupportedTypeError{Type: rv.Type(), Reason: "cannot be inlined as document fields"})
	return e
}

// Err returns the first encode error recorded so far.
func (e *Encoder) Err() error {
	return e.err
}

// Finalize consumes the encoder and returns the finished Document, or the
// first encode error recorded by the chain. The Encoder can not be used
// afterwards.
func (e *Encoder) Finalize() (Document, error) {
	e.mustBeOpen("Finalize")
	if e.token != 0 {
		usagePanic("Finalize", "key %q is still pending", e.pending)
	}
	e.done = true
	fields, err := e.fields, e.err
	e.fields, e.names = nil, nil
	if err != nil {
		return Document{}, err
	}
	return newDocument(fields), nil
}

func (e *Encoder) appendElement(name string, el Element) {
	e.names[name] = struct{}{}
	e.fields = append(e.fields, el.withName(name))
}

func (e *Encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *Encoder) mustBeOpen(op string) {
	if e == nil {
		usagePanic(op, "nil encoder")
	}
	if e.done {
		usagePanic(op, "encoder already finalized")
	}
}

// ArrayEncoder builds an Array from positional appends. It shares the
// value dispatch of Encoder and follows the same one-shot rules.
type ArrayEncoder struct {
	elements []Element
	err      error
	done     bool
}

// NewArrayEncoder returns an empty ArrayEncoder.
func NewArrayEncoder() *ArrayEncoder {
	return &ArrayEncoder{}
}

// Append adds v as the next element. Nil pointers and nil interfaces have
// no array representation and are recorded as errors.
func (a *ArrayEncoder) Append(v any) *ArrayEncoder {
	a.mustBeOpen("Append")
	index := len(a.elements)
	el, err := encodeAny(v)
	if err != nil {
		a.fail(withPath(err, indexSegment(index)))
		return a
	}
	if el.kind == KindMissing {
		a.fail(&UnsupportedTypeError{
			Path:   indexSegment(index),
			Type:   reflect.TypeOf(v),
			Reason: "nil value has no array representation",
		})
		return a
	}
	a.elements = append(a.elements, el)
	return a
}

// Err returns the first encode error recorded so far.
func (a *ArrayEncoder) Err() error {
	return a.err
}

// Finalize consumes the encoder and returns the finished Array.
func (a *ArrayEncoder) Finalize() (Array, error) {
	a.mustBeOpen("Finalize")
	a.done = true
	elements, err := a.elements, a.err
	a.elements = nil
	if err != nil {
		return Array{}, err
	}
	return newArray(elements), nil
}

func (a *ArrayEncoder) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

func (a *ArrayEncoder) mustBeOpen(op string) {
	if a == nil {
		usagePanic(op, "nil array encoder")
	}
	if a.done {
		usagePanic(op, "array encoder already finalized")
	}
}

// Marshal encodes v as a whole document. v may be a composite type, a
// string-keyed map or a Document.
func Marshal(v any) (Document, error) {
	return NewEncoder().Inline(v).Finalize()
}

// MarshalArray encodes a sequence or set as an Array.
func MarshalArray(v any) (Array, error) {
	el, err := encodeAny(v)
	if err != nil {
		return Array{}, err
	}
	arr, ok := el.ArrayOK()
	if !ok {
		return Array{}, &UnsupportedTypeError{Type: reflect.TypeOf(v), Reason: "does not encode as an array"}
	}
	return arr, nil
}
