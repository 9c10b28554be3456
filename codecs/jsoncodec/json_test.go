package jsoncodec

import (
	"math"
	"strings"
	"testing"

	"github.com/RobertWHurst/docstream"
)

func sampleDocument(t testing.TB) docstream.Document {
	t.Helper()
	sub, err := docstream.NewEncoder().Append("a").Value(2.01).Append("b").Value(3.1).Finalize()
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	doc, err := docstream.NewEncoder().
		Append("z").Value(int32(1)).
		Append("a").Value(int64(1) << 40).
		Append("d").Value(2.0).
		Append("s").Value(`he said "hi"`).
		Append("ok").Value(true).
		Append("xs").Value([]float64{1.1, -2.9}).
		Append("test").Value(sub).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	return doc
}

func TestCodecMarshal(t *testing.T) {
	codec := New()

	encoded, err := codec.Marshal(sampleDocument(t))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	expected := `{"z":1,"a":{"$numberLong":"1099511627776"},"d":2.0,"s":"he said \"hi\"","ok":true,"xs":[1.1,-2.9],"test":{"a":2.01,"b":3.1}}`
	if string(encoded) != expected {
		t.Errorf("Expected %s, got %s", expected, encoded)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	codec := New()
	original := sampleDocument(t)

	encoded, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	decoded, err := codec.Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}

	if !decoded.Equal(original) {
		t.Errorf("Expected %v, got %v", original, decoded)
	}
}

func TestCodecNonFinite(t *testing.T) {
	codec := New()
	doc, _ := docstream.NewEncoder().
		Append("nan").Value(math.NaN()).
		Append("inf").Value(math.Inf(-1)).
		Finalize()

	encoded, err := codec.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	decoded, err := codec.Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}

	nan, _ := decoded.Lookup("nan").DoubleOK()
	if !math.IsNaN(nan) {
		t.Errorf("Expected NaN, got %v", nan)
	}
	inf, _ := decoded.Lookup("inf").DoubleOK()
	if !math.IsInf(inf, -1) {
		t.Errorf("Expected -Inf, got %v", inf)
	}
}

func TestCodecIndent(t *testing.T) {
	codec := &Codec{Indent: "  "}
	doc, _ := docstream.NewEncoder().Append("a").Value(int32(1)).Finalize()

	encoded, err := codec.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	if string(encoded) != "{\n  \"a\": 1\n}" {
		t.Errorf("Unexpected indented output %q", encoded)
	}
}

func TestCodecUnmarshalInvalid(t *testing.T) {
	codec := New()

	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{{"},
		{name: "not an object", data: "[1]"},
		{name: "null value", data: `{"a":null}`},
		{name: "duplicate field", data: `{"a":1,"a":2}`},
		{name: "wide integer", data: `{"a":9999999999}`},
		{name: "bad long", data: `{"a":{"$numberLong":"x"}}`},
		{name: "trailing data", data: `{"a":1} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Unmarshal([]byte(tt.data))
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestCodecReservedFieldNames(t *testing.T) {
	codec := New()

	single := func(name string, v any) docstream.Document {
		doc, err := docstream.NewEncoder().Append(name).Value(v).Finalize()
		if err != nil {
			t.Fatalf("Finalize() failed: %v", err)
		}
		return doc
	}
	pair, _ := docstream.NewEncoder().
		Append("$document").Value(single("$numberLong", "5")).
		Append("y").Value(int32(1)).
		Finalize()

	tests := []struct {
		name string
		doc  docstream.Document
	}{
		{name: "number long string", doc: single("x", single("$numberLong", "12"))},
		{name: "number double string", doc: single("x", single("$numberDouble", "hello"))},
		{name: "number long int32", doc: single("x", single("$numberLong", int32(3)))},
		{name: "document key", doc: single("x", single("$document", int64(5)))},
		{name: "document key nested twice", doc: single("x", single("$document", single("$document", single("a", int32(1)))))},
		{name: "in array", doc: single("xs", []docstream.Document{single("$numberLong", "12")})},
		{name: "top level", doc: single("$numberLong", "12")},
		{name: "top level document key", doc: single("$document", single("$numberDouble", "NaN"))},
		{name: "document key among others", doc: single("x", pair)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.Marshal(tt.doc)
			if err != nil {
				t.Fatalf("Marshal() failed: %v", err)
			}
			decoded, err := codec.Unmarshal(encoded)
			if err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", encoded, err)
			}
			if !decoded.Equal(tt.doc) {
				t.Errorf("Expected %v, got %v from %s", tt.doc, decoded, encoded)
			}
		})
	}
}

func TestCodecEscapesReservedDocuments(t *testing.T) {
	inner, _ := docstream.NewEncoder().Append("$numberLong").Value("12").Finalize()
	doc, _ := docstream.NewEncoder().Append("x").Value(inner).Finalize()

	encoded, err := New().Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	expected := `{"x":{"$document":{"$numberLong":"12"}}}`
	if string(encoded) != expected {
		t.Errorf("Expected %s, got %s", expected, encoded)
	}
}

func TestCodecNestingLimit(t *testing.T) {
	codec := New()

	nested := func(levels int) []byte {
		return []byte(`{"x":` + strings.Repeat("[", levels) + "1" + strings.Repeat("]", levels) + "}")
	}

	if _, err := codec.Unmarshal(nested(MaxDepth - 1)); err != nil {
		t.Fatalf("Expected %d levels to decode, got %v", MaxDepth-1, err)
	}
	if _, err := codec.Unmarshal(nested(MaxDepth)); err == nil {
		t.Error("Expected error past the nesting limit, got nil")
	}
	if _, err := codec.Unmarshal(nested(1024 * 1024)); err == nil {
		t.Error("Expected error for deeply nested input, got nil")
	}
}

func TestCodecValue(t *testing.T) {
	codec := New()

	encoded, err := docstream.MarshalValue(codec, map[string][]string{"names": {"a", "b"}})
	if err != nil {
		t.Fatalf("MarshalValue() failed: %v", err)
	}
	if !strings.Contains(string(encoded), `"names":["a","b"]`) {
		t.Errorf("Unexpected output %s", encoded)
	}

	var out map[string][]string
	if err := docstream.UnmarshalValue(codec, encoded, &out); err != nil {
		t.Fatalf("UnmarshalValue() failed: %v", err)
	}
	if len(out["names"]) != 2 {
		t.Errorf("Expected 2 names, got %v", out)
	}
}

func TestCodecContentType(t *testing.T) {
	if ct := New().ContentType(); ct != "application/json" {
		t.Errorf("Expected application/json, got %s", ct)
	}
}

func BenchmarkCodecMarshal(b *testing.B) {
	codec := New()
	doc := sampleDocument(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		codec.Marshal(doc)
	}
}

func BenchmarkCodecUnmarshal(b *testing.B) {
	codec := New()
	encoded, _ := codec.Marshal(sampleDocument(b))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		codec.Unmarshal(encoded)
	}
}
