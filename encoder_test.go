package docstream

import (
	"errors"
	"testing"

	"github.com/RobertWHurst/docstream/internal/testing/require"
)

func TestEncoderScalarTypes(t *testing.T) {
	tests := []struct {
		name  string
		value any
		kind  Kind
	}{
		{name: "int64", value: int64(1), kind: KindInt64},
		{name: "bool", value: true, kind: KindBool},
		{name: "int32", value: int32(2), kind: KindInt32},
		{name: "double", value: 2.1, kind: KindDouble},
		{name: "string", value: "Hello world!", kind: KindString},
		{name: "int", value: 7, kind: KindInt64},
		{name: "int8", value: int8(-3), kind: KindInt32},
		{name: "uint16", value: uint16(9), kind: KindInt32},
		{name: "uint32", value: uint32(9), kind: KindInt64},
		{name: "float32", value: float32(0.5), kind: KindDouble},
		{name: "named string", value: label("x"), kind: KindString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDocument(t, NewEncoder().Append("a").Value(tt.value))

			if doc.Len() != 1 {
				t.Fatalf("Expected 1 field, got %d", doc.Len())
			}
			if kind := doc.Lookup("a").Kind(); kind != tt.kind {
				t.Errorf("Expected kind %s, got %s", tt.kind, kind)
			}
		})
	}
}

func TestEncoderDouble(t *testing.T) {
	doc := mustDocument(t, NewEncoder().Append("a").Value(1.0))

	f, ok := doc.Lookup("a").DoubleOK()
	if !ok || f != 1.0 {
		t.Errorf("Expected double 1.0, got %v", doc.Lookup("a"))
	}
}

func TestEncoderTwoDoubles(t *testing.T) {
	doc := mustDocument(t, NewEncoder().Append("a").Value(1.0).Append("b").Value(2.1))

	require.Equal(t, doc.Keys(), []string{"a", "b"})
	require.Equal(t, doc.String(), "{a: 1.0, b: 2.1}")
}

func TestEncoderFinalizedDocumentIsReusable(t *testing.T) {
	doc := mustDocument(t, NewEncoder().Append("a").Value(1.0).Append("b").Value(2.1))

	first := doc.String()
	second := doc.String()
	if first != second {
		t.Errorf("Expected stable rendering, got %q and %q", first, second)
	}
}

func TestEncoderSequence(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "doubles", value: []float64{-1.1, 1.0}, want: "{a: [-1.1, 1.0]}"},
		{name: "int64s", value: []int64{1, 2}, want: "{a: [1, 2]}"},
		{name: "bools", value: []bool{true, true}, want: "{a: [true, true]}"},
		{name: "int32s", value: []int32{1, 2}, want: "{a: [1, 2]}"},
		{name: "strings", value: []string{"Hello world!", "Bla"}, want: `{a: ["Hello world!", "Bla"]}`},
		{name: "go array", value: [2]string{"x", "y"}, want: `{a: ["x", "y"]}`},
		{name: "empty", value: []float64{}, want: "{a: []}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDocument(t, NewEncoder().Append("a").Value(tt.value))
			require.Equal(t, doc.String(), tt.want)
		})
	}
}

func TestEncoderSequenceMatchesArrayEncoder(t *testing.T) {
	values := []float64{1.1, -2.1}
	doc := mustDocument(t, NewEncoder().Append("a").Value(values))

	arr := mustArray(t, NewArrayEncoder().Append(1.1).Append(-2.1))
	expected := mustDocument(t, NewEncoder().Append("a").Value(arr))

	if !doc.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, doc)
	}
}

func TestEncoderSetIsSorted(t *testing.T) {
	set := NewSet("Hello world!", "Bla")
	doc := mustDocument(t, NewEncoder().Append("a").Value(set))

	require.Equal(t, doc.String(), `{a: ["Bla", "Hello world!"]}`)

	plain := map[int32]struct{}{3: {}, 1: {}, 2: {}}
	doc = mustDocument(t, NewEncoder().Append("a").Value(plain))
	require.Equal(t, doc.String(), "{a: [1, 2, 3]}")
}

func TestEncoderSetIsDeterministic(t *testing.T) {
	set := NewSet("d", "a", "c", "b", "e", "f", "g")

	first := mustDocument(t, NewEncoder().Append("s").Value(set))
	for range 20 {
		again := mustDocument(t, NewEncoder().Append("s").Value(set))
		if !again.Equal(first) {
			t.Fatalf("Expected %v, got %v", first, again)
		}
	}
}

func TestEncoderInlineMap(t *testing.T) {
	mymap := map[string]float64{"a": 1.0}
	doc := mustDocument(t, NewEncoder().Inline(mymap))

	expected := mustDocument(t, NewEncoder().Append("a").Value(1.0))
	if !doc.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, doc)
	}
}

func TestEncoderMapAsValue(t *testing.T) {
	mymap := map[string]float64{"a": 1.0}
	doc := mustDocument(t, NewEncoder().Append("map").Value(mymap))

	sub := mustDocument(t, NewEncoder().Append("a").Value(1.0))
	expected := mustDocument(t, NewEncoder().Append("map").Value(sub))
	if !doc.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, doc)
	}
}

func TestEncoderMapKeysSorted(t *testing.T) {
	mymap := map[string]int32{"c": 3, "a": 1, "b": 2}
	doc := mustDocument(t, NewEncoder().Append("m").Value(mymap))

	require.Equal(t, doc.String(), "{m: {a: 1, b: 2, c: 3}}")
}

func TestEncoderVectorOfMaps(t *testing.T) {
	maps := []map[string]float64{{"a": 1.0}}
	doc := mustDocument(t, NewEncoder().Append("map").Value(maps))

	sub := mustDocument(t, NewEncoder().Append("a").Value(1.0))
	arr := mustArray(t, NewArrayEncoder().Append(sub))
	expected := mustDocument(t, NewEncoder().Append("map").Value(arr))
	if !doc.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, doc)
	}
}

func TestEncoderNonStringMap(t *testing.T) {
	m := map[int]float64{2: 3.1, 1: 2.1}
	doc := mustDocument(t, NewEncoder().Append("map").Value(m))

	first := mustDocument(t, NewEncoder().Append("first").Value(int64(1)).Append("second").Value(2.1))
	second := mustDocument(t, NewEncoder().Append("first").Value(int64(2)).Append("second").Value(3.1))
	arr := mustArray(t, NewArrayEncoder().Append(first).Append(second))
	expected := mustDocument(t, NewEncoder().Append("map").Value(arr))

	if !doc.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, doc)
	}
}

func TestEncoderComposite(t *testing.T) {
	p := point{A: -1.1, B: 1.0}
	doc := mustDocument(t, NewEncoder().Append("test").Value(p))

	sub := mustDocument(t, NewEncoder().Append("a").Value(p.A).Append("b").Value(p.B))
	expected := mustDocument(t, NewEncoder().Append("test").Value(sub))
	if !doc.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, doc)
	}
}

func TestEncoderSequenceOfComposites(t *testing.T) {
	points := []point{{A: -1.1, B: 1.0}, {A: -2.0, B: -1.1}}
	doc := mustDocument(t, NewEncoder().Append("test").Value(points))

	first := mustDocument(t, NewEncoder().Append("a").Value(-1.1).Append("b").Value(1.0))
	second := mustDocument(t, NewEncoder().Append("a").Value(-2.0).Append("b").Value(-1.1))
	arr := mustArray(t, NewArrayEncoder().Append(first).Append(second))
	expected := mustDocument(t, NewEncoder().Append("test").Value(arr))

	if !doc.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, doc)
	}
}

func TestEncoderCompositePointer(t *testing.T) {
	p := &point{A: 1, B: 2}
	doc := mustDocument(t, NewEncoder().Append("p").Value(p))

	require.Equal(t, doc.String(), "{p: {a: 1.0, b: 2.0}}")
}

func TestEncoderInlineComposite(t *testing.T) {
	doc, err := Marshal(point{A: 2.01, B: 3.1})
	require.Nil(t, err)

	require.Equal(t, doc.String(), "{a: 2.01, b: 3.1}")
}

func TestEncoderPair(t *testing.T) {
	doc := mustDocument(t, NewEncoder().Append("pair").Value(MakePair(int32(1), 2.1)))

	require.Equal(t, doc.String(), "{pair: {first: 1, second: 2.1}}")
}

func TestEncoderNilPointerOmitsField(t *testing.T) {
	var missing *float64
	doc := mustDocument(t, NewEncoder().Append("a").Value(missing).Append("b").Value(1.0))

	require.Equal(t, doc.Keys(), []string{"b"})
	if !doc.Lookup("a").IsMissing() {
		t.Error("Expected field a to be missing")
	}
}

func TestEncoderNilInArray(t *testing.T) {
	values := []*float64{nil}

	_, err := NewEncoder().Append("a").Value(values).Finalize()
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = NewArrayEncoder().Append(nil).Finalize()
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestEncoderUnsupportedTypeIsSticky(t *testing.T) {
	type plain struct{ X int }

	enc := NewEncoder().
		Append("ok").Value(1.0).
		Append("bad").Value(plain{X: 1}).
		Append("chan").Value(make(chan int))

	if enc.Err() == nil {
		t.Fatal("Expected Err() to report the unsupported value")
	}

	_, err := enc.Finalize()
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected *UnsupportedTypeError, got %v", err)
	}
	if unsupported.Path != "bad" {
		t.Errorf("Expected path 'bad', got '%s'", unsupported.Path)
	}
}

func TestEncoderUnsupportedSetMemberPath(t *testing.T) {
	members := NewSet[any](make(chan int))

	_, err := NewEncoder().Append("s").Value(members).Finalize()

	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected *UnsupportedTypeError, got %v", err)
	}
	if unsupported.Path != "s[0]" {
		t.Errorf("Expected path 's[0]', got '%s'", unsupported.Path)
	}
}

func TestEncoderUnsupportedNestedPath(t *testing.T) {
	values := map[string][]any{"xs": {1.0, func() {}}}

	_, err := NewEncoder().Append("root").Value(values).Finalize()

	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected *UnsupportedTypeError, got %v", err)
	}
	if unsupported.Path != "root.xs[1]" {
		t.Errorf("Expected path 'root.xs[1]', got '%s'", unsupported.Path)
	}
}

func TestEncoderUint64Overflow(t *testing.T) {
	_, err := NewEncoder().Append("n").Value(uint64(1) << 63).Finalize()
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestEncoderKeyWhilePending(t *testing.T) {
	enc := NewEncoder()
	enc.Append("a")

	require.PanicIs(t, ErrUsage, func() {
		enc.Append("b")
	})
}

func TestEncoderSpentField(t *testing.T) {
	enc := NewEncoder()
	field := enc.Append("a")
	field.Value(1.0)

	require.PanicIs(t, ErrUsage, func() {
		field.Value(2.0)
	})
}

func TestEncoderZeroField(t *testing.T) {
	require.PanicIs(t, ErrUsage, func() {
		Field{}.Value(1.0)
	})
}

func TestEncoderDuplicateKey(t *testing.T) {
	enc := NewEncoder().Append("a").Value(1.0)

	require.PanicIs(t, ErrUsage, func() {
		enc.Append("a")
	})
}

func TestEncoderFinalizeIsOneShot(t *testing.T) {
	enc := NewEncoder().Append("a").Value(1.0)
	if _, err := enc.Finalize(); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}

	require.PanicIs(t, ErrUsage, func() {
		enc.Append("b")
	})
	require.PanicIs(t, ErrUsage, func() {
		enc.Inline(map[string]int32{"x": 1})
	})
	require.PanicIs(t, ErrUsage, func() {
		enc.Finalize()
	})
}

func TestEncoderFieldAfterFinalize(t *testing.T) {
	enc := NewEncoder()
	field := enc.Append("a")

	require.PanicIs(t, ErrUsage, func() {
		enc.Finalize()
	})

	field.Value(1.0)
	doc := mustDocument(t, enc)
	require.Equal(t, doc.Keys(), []string{"a"})
}

func TestArrayEncoderFinalizeIsOneShot(t *testing.T) {
	enc := NewArrayEncoder().Append(1.0)
	if _, err := enc.Finalize(); err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}

	require.PanicIs(t, ErrUsage, func() {
		enc.Append(2.0)
	})
}

func TestArrayEncoderPositional(t *testing.T) {
	p := point{A: 1, B: 2}
	arr := mustArray(t, NewArrayEncoder().
		Append(int32(1)).
		Append("two").
		Append([]float64{3}).
		Append(p))

	require.Equal(t, arr.String(), `[1, "two", [3.0], {a: 1.0, b: 2.0}]`)
	require.Equal(t, arr.Index(1).Name(), "1")
}

func TestMarshalArray(t *testing.T) {
	arr, err := MarshalArray([]string{"a", "b"})
	require.Nil(t, err)
	require.Equal(t, arr.Len(), 2)

	_, err = MarshalArray(1.0)
	require.ErrorIs(t, err, ErrUnsupportedType)
}

func TestEncoderRecursiveType(t *testing.T) {
	type tree []tree

	doc := mustDocument(t, NewEncoder().Append("t").Value(tree{tree{}, tree{tree{}}}))

	require.Equal(t, doc.String(), "{t: [[], [[]]]}")
}

func BenchmarkEncoderScalars(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		NewEncoder().Append("a").Value(1.0).Append("b").Value("x").Finalize()
	}
}

func BenchmarkEncoderComposites(b *testing.B) {
	points := []point{{A: -1.1, B: 1.0}, {A: -2.0, B: -1.1}}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewEncoder().Append("test").Value(points).Finalize()
	}
}
