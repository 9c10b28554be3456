package bsoncodec

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/RobertWHurst/docstream"
)

func sampleDocument(t testing.TB) docstream.Document {
	t.Helper()
	doc, err := docstream.NewEncoder().
		Append("z").Value(int32(1)).
		Append("a").Value(int64(2)).
		Append("d").Value(-2.9).
		Append("s").Value("x").
		Append("ok").Value(true).
		Append("test_vector").Value([]map[string]float64{{"a": 2.01, "b": 3.1}}).
		Finalize()
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	return doc
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

func TestCodecRawLookup(t *testing.T) {
	encoded, err := New().Marshal(sampleDocument(t))
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	raw := bson.Raw(encoded)
	if n, ok := raw.Lookup("z").Int32OK(); !ok || n != 1 {
		t.Errorf("Expected int32 1, got %v", raw.Lookup("z"))
	}
	if n, ok := raw.Lookup("a").Int64OK(); !ok || n != 2 {
		t.Errorf("Expected int64 2, got %v", raw.Lookup("a"))
	}
	if f, ok := raw.Lookup("test_vector", "0", "b").DoubleOK(); !ok || f != 3.1 {
		t.Errorf("Expected double 3.1, got %v", raw.Lookup("test_vector", "0", "b"))
	}
}

func TestFromDRejectsForeignTypes(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "object id", value: primitive.NewObjectID()},
		{name: "null", value: nil},
		{name: "datetime", value: primitive.DateTime(0)},
		{name: "nested", value: bson.A{bson.D{{Key: "x", Value: primitive.Null{}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromD(bson.D{{Key: "v", Value: tt.value}})
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestCodecUnmarshalInvalid(t *testing.T) {
	codec := New()

	if _, err := codec.Unmarshal([]byte{0x01, 0x02}); err == nil {
		t.Error("Expected error for invalid BSON, got nil")
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
