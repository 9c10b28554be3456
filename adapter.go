package docstream

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Marshaler is implemented by composite types that write their own fields.
// The hook receives a fresh Encoder for the composite's sub-document and
// returns it (or the encoder it chained to).
type Marshaler interface {
	MarshalDocument(enc *Encoder) *Encoder
}

// ElementUnmarshaler is implemented by composite types whose decode hook
// reads from an Element, typically via Element.Lookup.
type ElementUnmarshaler interface {
	UnmarshalElement(el Element) error
}

// DocumentUnmarshaler is implemented by composite types whose decode hook
// reads from a whole Document.
//
// A type needs only one of the two unmarshal styles: an Element hook is
// handed DocumentElement(doc) when driven from a Document, and a Document
// hook is handed the element's sub-document when driven from an Element.
type DocumentUnmarshaler interface {
	UnmarshalDocument(doc Document) error
}

// EncodeFunc writes the fields of v into enc.
type EncodeFunc[T any] func(enc *Encoder, v T) *Encoder

var (
	elementUnmarshalerType  = reflect.TypeFor[ElementUnmarshaler]()
	documentUnmarshalerType = reflect.TypeFor[DocumentUnmarshaler]()
)

type encodeHook func(v reflect.Value, enc *Encoder) *Encoder

type adapter struct {
	encode encodeHook
	decode decodeFunc
	style  string
}

var (
	adaptersMu sync.RWMutex
	adapters   = make(map[reflect.Type]*adapter)
)

// RegisterElement registers an adapter for T whose decode hook reads from
// an Element. Either hook may be nil. Registered adapters take precedence
// over Marshaler and the unmarshaler interfaces.
func RegisterElement[T any](encode EncodeFunc[T], decode func(el Element) (T, error)) {
	t := reflect.TypeFor[T]()
	a := &adapter{style: "element", encode: typedEncodeHook(encode)}
	if decode != nil {
		a.decode = func(el Element, dst reflect.Value) error {
			if el.kind == KindMissing {
				return &MissingFieldError{}
			}
			v, err := decode(el)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(&v).Elem())
			return nil
		}
	}
	register(t, a)
}

// RegisterDocument registers an adapter for T whose decode hook reads from
// a Document. Either hook may be nil.
func RegisterDocument[T any](encode EncodeFunc[T], decode func(doc Document) (T, error)) {
	t := reflect.TypeFor[T]()
	a := &adapter{style: "document", encode: typedEncodeHook(encode)}
	if decode != nil {
		a.decode = func(el Element, dst reflect.Value) error {
			doc, err := unwrapDocument(el)
			if err != nil {
				return err
			}
			v, err := decode(doc)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(&v).Elem())
			return nil
		}
	}
	register(t, a)
}

// Unregister removes any adapter registered for T.
func Unregister[T any]() {
	t := reflect.TypeFor[T]()
	adaptersMu.Lock()
	delete(adapters, t)
	adaptersMu.Unlock()
	resetCaches()
}

func typedEncodeHook[T any](encode EncodeFunc[T]) encodeHook {
	if encode == nil {
		return nil
	}
	return func(v reflect.Value, enc *Encoder) *Encoder {
		return encode(enc, v.Interface().(T))
	}
}

func register(t reflect.Type, a *adapter) {
	if a.encode == nil && a.decode == nil {
		panic("docstream: adapter for " + t.String() + " has neither an encode nor a decode hook")
	}
	adaptersMu.Lock()
	adapters[t] = a
	adaptersMu.Unlock()
	resetCaches()
	Logger().Debug("registered adapter", zap.Stringer("type", t), zap.String("style", a.style))
}

func lookupAdapter(t reflect.Type) *adapter {
	adaptersMu.RLock()
	defer adaptersMu.RUnlock()
	return adapters[t]
}

// resetCaches drops every resolved dispatch so the next lookup sees the
// current adapter registry.
func resetCaches() {
	encoderCache.Clear()
	decoderCache.Clear()
}

// compositeHook returns the encode hook for t when t is a composite type,
// or nil. Pointer and interface types are never composites themselves:
// they are dereferenced first so nil values are handled uniformly.
func compositeHook(t reflect.Type) encodeHook {
	if a := lookupAdapter(t); a != nil && a.encode != nil {
		return a.encode
	}
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return nil
	}
	if t.Implements(marshalerType) {
		return func(v reflect.Value, enc *Encoder) *Encoder {
			return v.Interface().(Marshaler).MarshalDocument(enc)
		}
	}
	if reflect.PointerTo(t).Implements(marshalerType) {
		return func(v reflect.Value, enc *Encoder) *Encoder {
			if !v.CanAddr() {
				cp := reflect.New(t).Elem()
				cp.Set(v)
				v = cp
			}
			return v.Addr().Interface().(Marshaler).MarshalDocument(enc)
		}
	}
	return nil
}

// compositeDecoder returns the decode hook for t when t is a composite
// type, or nil.
func compositeDecoder(t reflect.Type) decodeFunc {
	if a := lookupAdapter(t); a != nil && a.decode != nil {
		return a.decode
	}
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return nil
	}
	ptr := reflect.PointerTo(t)
	switch {
	case ptr.Implements(elementUnmarshalerType):
		return func(el Element, dst reflect.Value) error {
			if el.kind == KindMissing {
				return &MissingFieldError{}
			}
			return addressable(dst).Interface().(ElementUnmarshaler).UnmarshalElement(el)
		}
	case ptr.Implements(documentUnmarshalerType):
		return func(el Element, dst reflect.Value) error {
			doc, err := unwrapDocument(el)
			if err != nil {
				return err
			}
			return addressable(dst).Interface().(DocumentUnmarshaler).UnmarshalDocument(doc)
		}
	}
	return nil
}

// unwrapDocument is the Element-to-Document half of the adapter bridge.
func unwrapDocument(el Element) (Document, error) {
	switch el.kind {
	case KindDocument:
		return el.doc, nil
	case KindMissing:
		return Document{}, &MissingFieldError{}
	}
	return Document{}, &TypeMismatchError{Want: "document", Got: el.kind}
}

// addressable returns a pointer to dst. Decoders only ever write into
// addressable staging values.
func addressable(dst reflect.Value) reflect.Value {
	return dst.Addr()
}
