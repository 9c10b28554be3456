package docstream

import (
	"math"
	"reflect"
	"strconv"
	"sync"
)

// decodeFunc reads el into dst. dst is always a freshly zeroed,
// addressable value of the decoder's type.
type decodeFunc func(el Element, dst reflect.Value) error

var decoderCache sync.Map // map[reflect.Type]decodeFunc

// Decode reads el into the value pointed to by dst.
//
// The element is decoded into a fresh staging value that replaces *dst only
// when decoding succeeds: containers are rebuilt rather than appended to,
// so decoding twice into the same variable yields the same result, and a
// failed decode leaves *dst untouched.
//
// Numeric destinations accept any numeric tag. Integer destinations reject
// values they can not represent exactly. Every other destination needs a
// matching tag. Decoding a missing element into anything but a pointer,
// interface or Element fails with a *MissingFieldError.
func Decode(el Element, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &InvalidDecodeError{Type: reflect.TypeOf(dst)}
	}
	t := rv.Elem().Type()
	staged := reflect.New(t).Elem()
	if err := typeDecoder(t)(el, staged); err != nil {
		return withPath(err, el.segment())
	}
	rv.Elem().Set(staged)
	return nil
}

// DecodeDocument reads a whole document into dst, typically a string-keyed
// map or a composite type.
func DecodeDocument(doc Document, dst any) error {
	return Decode(DocumentElement(doc), dst)
}

// DecodeAs decodes el into a new value of type T.
func DecodeAs[T any](el Element) (T, error) {
	var v T
	err := Decode(el, &v)
	return v, err
}

// DecodeDocumentAs decodes doc into a new value of type T.
func DecodeDocumentAs[T any](doc Document) (T, error) {
	var v T
	err := DecodeDocument(doc, &v)
	return v, err
}

// decodeElement runs dec and attributes any failure to el's position.
func decodeElement(el Element, dst reflect.Value, dec decodeFunc) error {
	if err := dec(el, dst); err != nil {
		return withPath(err, el.segment())
	}
	return nil
}

func typeDecoder(t reflect.Type) decodeFunc {
	if fi, ok := decoderCache.Load(t); ok {
		return fi.(decodeFunc)
	}

	var (
		wg sync.WaitGroup
		f  decodeFunc
	)
	wg.Add(1)
	fi, loaded := decoderCache.LoadOrStore(t, decodeFunc(func(el Element, dst reflect.Value) error {
		wg.Wait()
		return f(el, dst)
	}))
	if loaded {
		return fi.(decodeFunc)
	}

	f = newTypeDecoder(t)
	wg.Done()
	decoderCache.Store(t, f)
	return f
}

func newTypeDecoder(t reflect.Type) decodeFunc {
	switch t {
	case documentType:
		return func(el Element, dst reflect.Value) error {
			doc, ok := el.DocumentOK()
			if !ok {
				return mismatch(el, "document")
			}
			dst.Set(reflect.ValueOf(doc))
			return nil
		}
	case arrayType:
		return func(el Element, dst reflect.Value) error {
			arr, ok := el.ArrayOK()
			if !ok {
				return mismatch(el, "array")
			}
			dst.Set(reflect.ValueOf(arr))
			return nil
		}
	case elementType:
		return func(el Element, dst reflect.Value) error {
			dst.Set(reflect.ValueOf(el))
			return nil
		}
	}

	if dec := compositeDecoder(t); dec != nil {
		return dec
	}

	switch t.Kind() {
	case reflect.Bool:
		return boolDecoder
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intDecoder
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return uintDecoder
	case reflect.Float32, reflect.Float64:
		return floatDecoder
	case reflect.String:
		return stringDecoder
	case reflect.Pointer:
		return pointerDecoder(t)
	case reflect.Interface:
		return interfaceDecoder(t)
	case reflect.Slice:
		return sliceDecoder(t)
	case reflect.Array:
		return arrayDecoder(t)
	case reflect.Map:
		switch {
		case isSetType(t):
			return setDecoder(t)
		case t.Key().Kind() == reflect.String:
			return stringMapDecoder(t)
		default:
			return pairMapDecoder(t)
		}
	case reflect.Struct:
		return unsupportedDecoder(t, "struct types need an unmarshaler or a registered adapter")
	}
	return unsupportedDecoder(t, "")
}

func unsupportedDecoder(t reflect.Type, reason string) decodeFunc {
	return func(Element, reflect.Value) error {
		return &UnsupportedTypeError{Type: t, Reason: reason}
	}
}

// mismatch reports el as the wrong tag for want, or as missing.
func mismatch(el Element, want string) error {
	if el.kind == KindMissing {
		return &MissingFieldError{}
	}
	return &TypeMismatchError{Want: want, Got: el.kind}
}

func boolDecoder(el Element, dst reflect.Value) error {
	b, ok := el.BoolOK()
	if !ok {
		return mismatch(el, "bool")
	}
	dst.SetBool(b)
	return nil
}

func stringDecoder(el Element, dst reflect.Value) error {
	s, ok := el.StringOK()
	if !ok {
		return mismatch(el, "string")
	}
	dst.SetString(s)
	return nil
}

// integerValue applies the Number coercion for integer destinations: a
// double is accepted only when it holds an integral value.
func integerValue(el Element, want string) (int64, error) {
	switch el.kind {
	case KindInt32, KindInt64:
		return el.i, nil
	case KindDouble:
		f := el.f
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, &TypeMismatchError{
				Want:   want,
				Got:    el.kind,
				Detail: FormatDouble(f) + " is not an integer",
			}
		}
		return int64(f), nil
	}
	return 0, mismatch(el, want)
}

func intDecoder(el Element, dst reflect.Value) error {
	want := dst.Type().String()
	n, err := integerValue(el, want)
	if err != nil {
		return err
	}
	if dst.OverflowInt(n) {
		return &TypeMismatchError{Want: want, Got: el.kind, Detail: strconv.FormatInt(n, 10) + " overflows"}
	}
	dst.SetInt(n)
	return nil
}

func uintDecoder(el Element, dst reflect.Value) error {
	want := dst.Type().String()
	n, err := integerValue(el, want)
	if err != nil {
		return err
	}
	if n < 0 || dst.OverflowUint(uint64(n)) {
		return &TypeMismatchError{Want: want, Got: el.kind, Detail: strconv.FormatInt(n, 10) + " overflows"}
	}
	dst.SetUint(uint64(n))
	return nil
}

func floatDecoder(el Element, dst reflect.Value) error {
	var f float64
	switch el.kind {
	case KindInt32, KindInt64:
		f = float64(el.i)
	case KindDouble:
		f = el.f
	default:
		return mismatch(el, "number")
	}
	if dst.OverflowFloat(f) {
		return &TypeMismatchError{Want: dst.Type().String(), Got: el.kind, Detail: FormatDouble(f) + " overflows"}
	}
	dst.SetFloat(f)
	return nil
}

// pointerDecoder treats a missing element as absence and leaves the
// pointer nil.
func pointerDecoder(t reflect.Type) decodeFunc {
	elemDec := typeDecoder(t.Elem())
	return func(el Element, dst reflect.Value) error {
		if el.kind == KindMissing {
			return nil
		}
		p := reflect.New(t.Elem())
		if err := elemDec(el, p.Elem()); err != nil {
			return err
		}
		dst.Set(p)
		return nil
	}
}

func interfaceDecoder(t reflect.Type) decodeFunc {
	return func(el Element, dst reflect.Value) error {
		v := el.Value()
		if v == nil {
			return nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().AssignableTo(t) {
			return &TypeMismatchError{Want: t.String(), Got: el.kind}
		}
		dst.Set(rv)
		return nil
	}
}

func sliceDecoder(t reflect.Type) decodeFunc {
	elemDec := typeDecoder(t.Elem())
	return func(el Element, dst reflect.Value) error {
		arr, ok := el.ArrayOK()
		if !ok {
			return mismatch(el, "array")
		}
		s := reflect.MakeSlice(t, arr.Len(), arr.Len())
		for i, item := range arr.Elements() {
			if err := decodeElement(item, s.Index(i), elemDec); err != nil {
				return err
			}
		}
		dst.Set(s)
		return nil
	}
}

func arrayDecoder(t reflect.Type) decodeFunc {
	elemDec := typeDecoder(t.Elem())
	return func(el Element, dst reflect.Value) error {
		arr, ok := el.ArrayOK()
		if !ok {
			return mismatch(el, "array")
		}
		if arr.Len() != t.Len() {
			return &TypeMismatchError{
				Want:   t.String(),
				Got:    el.kind,
				Detail: "array has " + strconv.Itoa(arr.Len()) + " elements",
			}
		}
		for i, item := range arr.Elements() {
			if err := decodeElement(item, dst.Index(i), elemDec); err != nil {
				return err
			}
		}
		return nil
	}
}

func setDecoder(t reflect.Type) decodeFunc {
	keyDec := typeDecoder(t.Key())
	member := reflect.Zero(t.Elem())
	return func(el Element, dst reflect.Value) error {
		arr, ok := el.ArrayOK()
		if !ok {
			return mismatch(el, "array")
		}
		m := reflect.MakeMapWithSize(t, arr.Len())
		for _, item := range arr.Elements() {
			key := reflect.New(t.Key()).Elem()
			if err := decodeElement(item, key, keyDec); err != nil {
				return err
			}
			m.SetMapIndex(key, member)
		}
		dst.Set(m)
		return nil
	}
}

func stringMapDecoder(t reflect.Type) decodeFunc {
	elemDec := typeDecoder(t.Elem())
	return func(el Element, dst reflect.Value) error {
		doc, ok := el.DocumentOK()
		if !ok {
			return mismatch(el, "document")
		}
		m := reflect.MakeMapWithSize(t, doc.Len())
		for name, field := range doc.Fields() {
			value := reflect.New(t.Elem()).Elem()
			if err := decodeElement(field, value, elemDec); err != nil {
				return err
			}
			key := reflect.New(t.Key()).Elem()
			key.SetString(name)
			m.SetMapIndex(key, value)
		}
		dst.Set(m)
		return nil
	}
}

func pairMapDecoder(t reflect.Type) decodeFunc {
	keyDec := typeDecoder(t.Key())
	elemDec := typeDecoder(t.Elem())
	return func(el Element, dst reflect.Value) error {
		arr, ok := el.ArrayOK()
		if !ok {
			return mismatch(el, "array")
		}
		m := reflect.MakeMapWithSize(t, arr.Len())
		for _, item := range arr.Elements() {
			pair, ok := item.DocumentOK()
			if !ok {
				return withPath(mismatch(item, "document"), item.segment())
			}
			key := reflect.New(t.Key()).Elem()
			if err := decodeElement(pair.Lookup(pairFirst), key, keyDec); err != nil {
				return withPath(err, item.segment())
			}
			value := reflect.New(t.Elem()).Elem()
			if err := decodeElement(pair.Lookup(pairSecond), value, elemDec); err != nil {
				return withPath(err, item.segment())
			}
			m.SetMapIndex(key, value)
		}
		dst.Set(m)
		return nil
	}
}
