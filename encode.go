package docstream

import (
	"cmp"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// encodeFunc turns a value of one concrete type into an Element. A
// KindMissing result means "nothing to write" (nil pointer or interface).
type encodeFunc func(v reflect.Value) (Element, error)

var encoderCache sync.Map // map[reflect.Type]encodeFunc

var (
	documentType  = reflect.TypeFor[Document]()
	arrayType     = reflect.TypeFor[Array]()
	elementType   = reflect.TypeFor[Element]()
	marshalerType = reflect.TypeFor[Marshaler]()
)

func encodeAny(v any) (Element, error) {
	switch tv := v.(type) {
	case nil:
		return Element{}, nil
	case Document:
		return documentElement(tv), nil
	case Array:
		return arrayElement(tv), nil
	case Element:
		return tv, nil
	}
	rv := reflect.ValueOf(v)
	if lookupAdapter(rv.Type()) == nil {
		if el, ok := encodeScalar(v); ok {
			return el, nil
		}
	}
	return typeEncoder(rv.Type())(rv)
}

// encodeScalar encodes the builtin types that map straight onto a Kind.
func encodeScalar(v any) (Element, bool) {
	switch tv := v.(type) {
	case bool:
		return boolElement(tv), true
	case int32:
		return int32Element(tv), true
	case int64:
		return int64Element(tv), true
	case int:
		return int64Element(int64(tv)), true
	case float64:
		return doubleElement(tv), true
	case string:
		return stringElement(tv), true
	}
	return Element{}, false
}

// typeEncoder resolves, once per type, which capability encodes t.
func typeEncoder(t reflect.Type) encodeFunc {
	if fi, ok := encoderCache.Load(t); ok {
		return fi.(encodeFunc)
	}

	// Recursive types reach this point again while the outer call is still
	// building. Hand them an indirect func that waits for the real one.
	var (
		wg sync.WaitGroup
		f  encodeFunc
	)
	wg.Add(1)
	fi, loaded := encoderCache.LoadOrStore(t, encodeFunc(func(v reflect.Value) (Element, error) {
		wg.Wait()
		return f(v)
	}))
	if loaded {
		return fi.(encodeFunc)
	}

	f = newTypeEncoder(t)
	wg.Done()
	encoderCache.Store(t, f)
	return f
}

func newTypeEncoder(t reflect.Type) encodeFunc {
	switch t {
	case documentType:
		return func(v reflect.Value) (Element, error) {
			return documentElement(v.Interface().(Document)), nil
		}
	case arrayType:
		return func(v reflect.Value) (Element, error) {
			return arrayElement(v.Interface().(Array)), nil
		}
	case elementType:
		return func(v reflect.Value) (Element, error) {
			return v.Interface().(Element), nil
		}
	}

	if hook := compositeHook(t); hook != nil {
		return compositeEncoder(hook)
	}

	switch t.Kind() {
	case reflect.Bool:
		return func(v reflect.Value) (Element, error) {
			return boolElement(v.Bool()), nil
		}
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return func(v reflect.Value) (Element, error) {
			return int32Element(int32(v.Int())), nil
		}
	case reflect.Uint8, reflect.Uint16:
		return func(v reflect.Value) (Element, error) {
			return int32Element(int32(v.Uint())), nil
		}
	case reflect.Int, reflect.Int64:
		return func(v reflect.Value) (Element, error) {
			return int64Element(v.Int()), nil
		}
	case reflect.Uint32, reflect.Uint, reflect.Uint64:
		return uintEncoder(t)
	case reflect.Float32, reflect.Float64:
		return func(v reflect.Value) (Element, error) {
			return doubleElement(v.Float()), nil
		}
	case reflect.String:
		return func(v reflect.Value) (Element, error) {
			return stringElement(v.String()), nil
		}
	case reflect.Pointer:
		return pointerEncoder(t)
	case reflect.Interface:
		return interfaceEncoder
	case reflect.Slice, reflect.Array:
		return sequenceEncoder(t)
	case reflect.Map:
		switch {
		case isSetType(t):
			return setEncoder(t)
		case t.Key().Kind() == reflect.String:
			return stringMapEncoder(t)
		default:
			return pairMapEncoder(t)
		}
	case reflect.Struct:
		return unsupportedEncoder(t, "struct types need a Marshaler or a registered adapter")
	}
	return unsupportedEncoder(t, "")
}

func unsupportedEncoder(t reflect.Type, reason string) encodeFunc {
	return func(reflect.Value) (Element, error) {
		return Element{}, &UnsupportedTypeError{Type: t, Reason: reason}
	}
}

func uintEncoder(t reflect.Type) encodeFunc {
	return func(v reflect.Value) (Element, error) {
		n := v.Uint()
		if n > math.MaxInt64 {
			return Element{}, &UnsupportedTypeError{
				Type:   t,
				Reason: "value " + strconv.FormatUint(n, 10) + " overflows int64",
			}
		}
		return int64Element(int64(n)), nil
	}
}

func pointerEncoder(t reflect.Type) encodeFunc {
	elemEnc := typeEncoder(t.Elem())
	return func(v reflect.Value) (Element, error) {
		if v.IsNil() {
			return Element{}, nil
		}
		return elemEnc(v.Elem())
	}
}

func interfaceEncoder(v reflect.Value) (Element, error) {
	if v.IsNil() {
		return Element{}, nil
	}
	inner := v.Elem()
	return typeEncoder(inner.Type())(inner)
}

func compositeEncoder(hook encodeHook) encodeFunc {
	return func(v reflect.Value) (Element, error) {
		sub := NewEncoder()
		out := hook(v, sub)
		if out == nil {
			out = sub
		}
		doc, err := out.Finalize()
		if err != nil {
			return Element{}, err
		}
		return documentElement(doc), nil
	}
}

func sequenceEncoder(t reflect.Type) encodeFunc {
	elemEnc := typeEncoder(t.Elem())
	return func(v reflect.Value) (Element, error) {
		n := v.Len()
		elements := make([]Element, 0, n)
		for i := range n {
			el, err := elemEnc(v.Index(i))
			if err != nil {
				return Element{}, withPath(err, indexSegment(i))
			}
			if el.kind == KindMissing {
				return Element{}, nilInArray(t.Elem(), i)
			}
			elements = append(elements, el)
		}
		return arrayElement(newArray(elements)), nil
	}
}

// setEncoder emits the members of a map[T]struct{} in element order so
// that equal sets always encode identically.
func setEncoder(t reflect.Type) encodeFunc {
	keyEnc := typeEncoder(t.Key())
	return func(v reflect.Value) (Element, error) {
		elements := make([]Element, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			el, err := keyEnc(iter.Key())
			if err != nil {
				return Element{}, withPath(err, indexSegment(len(elements)))
			}
			if el.kind == KindMissing {
				return Element{}, nilInArray(t.Key(), len(elements))
			}
			elements = append(elements, el)
		}
		slices.SortFunc(elements, compareElements)
		return arrayElement(newArray(elements)), nil
	}
}

// stringMapEncoder nests a string-keyed map as a sub-document whose fields
// are the map's keys, sorted.
func stringMapEncoder(t reflect.Type) encodeFunc {
	elemEnc := typeEncoder(t.Elem())
	return func(v reflect.Value) (Element, error) {
		keys := v.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return strings.Compare(a.String(), b.String())
		})
		fields := make([]Element, 0, len(keys))
		for _, key := range keys {
			name := key.String()
			el, err := elemEnc(v.MapIndex(key))
			if err != nil {
				return Element{}, withPath(err, name)
			}
			if el.kind == KindMissing {
				continue
			}
			fields = append(fields, el.withName(name))
		}
		return documentElement(newDocument(fields)), nil
	}
}

// pairMapEncoder writes a map with non-string keys as an array of
// {first: key, second: value} documents ordered by key.
func pairMapEncoder(t reflect.Type) encodeFunc {
	keyEnc := typeEncoder(t.Key())
	elemEnc := typeEncoder(t.Elem())
	return func(v reflect.Value) (Element, error) {
		type entry struct {
			key, value Element
		}
		entries := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := keyEnc(iter.Key())
			if err != nil {
				return Element{}, withPath(err, pairFirst)
			}
			if k.kind == KindMissing {
				return Element{}, &UnsupportedTypeError{Path: pairFirst, Type: t.Key(), Reason: "nil map key"}
			}
			val, err := elemEnc(iter.Value())
			if err != nil {
				return Element{}, withPath(err, pairSecond)
			}
			entries = append(entries, entry{key: k, value: val})
		}
		slices.SortFunc(entries, func(a, b entry) int {
			return compareElements(a.key, b.key)
		})

		elements := make([]Element, len(entries))
		for i, e := range entries {
			fields := []Element{e.key.withName(pairFirst)}
			if e.value.kind != KindMissing {
				fields = append(fields, e.value.withName(pairSecond))
			}
			elements[i] = documentElement(newDocument(fields))
		}
		return arrayElement(newArray(elements)), nil
	}
}

// compareElements gives elements a total order: by kind first, then by
// value. Containers compare by their rendered form.
func compareElements(a, b Element) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		}
		return 1
	case KindInt32, KindInt64:
		return cmp.Compare(a.i, b.i)
	case KindDouble:
		return cmp.Compare(a.f, b.f)
	case KindString:
		return strings.Compare(a.s, b.s)
	case KindDocument, KindArray:
		return strings.Compare(a.String(), b.String())
	}
	return 0
}

func isSetType(t reflect.Type) bool {
	return t.Kind() == reflect.Map && t.Elem().Kind() == reflect.Struct && t.Elem().NumField() == 0
}

func nilInArray(t reflect.Type, index int) error {
	return &UnsupportedTypeError{
		Path:   indexSegment(index),
		Type:   t,
		Reason: "nil value has no array representation",
	}
}

func indexSegment(i int) string {
	return "[" + strconv.Itoa(i) + "]"
}
