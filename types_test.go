package docstream

import "testing"

// point writes its fields through Marshaler and reads them back from an
// Element, the way most field types are written.
type point struct {
	A float64
	B float64
}

func (p point) MarshalDocument(enc *Encoder) *Encoder {
	return enc.Append("a").Value(p.A).Append("b").Value(p.B)
}

func (p *point) UnmarshalElement(el Element) error {
	if err := Decode(el.Lookup("a"), &p.A); err != nil {
		return err
	}
	return Decode(el.Lookup("b"), &p.B)
}

// bundle nests containers of composites and reads itself from a whole
// Document.
type bundle struct {
	Points  []point
	Doubles []float64
}

func newBundle() bundle {
	return bundle{
		Points:  []point{{A: 1.0, B: 0.1}},
		Doubles: []float64{1.0, 0.1},
	}
}

func (b bundle) MarshalDocument(enc *Encoder) *Encoder {
	return enc.
		Append("double_vector").Value(b.Doubles).
		Append("test_vector").Value(b.Points)
}

func (b *bundle) UnmarshalDocument(doc Document) error {
	if err := Decode(doc.Lookup("test_vector"), &b.Points); err != nil {
		return err
	}
	return Decode(doc.Lookup("double_vector"), &b.Doubles)
}

// celsius has no methods; tests register adapters for it.
type celsius float64

type label string

func mustDocument(t testing.TB, enc *Encoder) Document {
	t.Helper()
	doc, err := enc.Finalize()
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	return doc
}

func mustArray(t testing.TB, enc *ArrayEncoder) Array {
	t.Helper()
	arr, err := enc.Finalize()
	if err != nil {
		t.Fatalf("Finalize() failed: %v", err)
	}
	return arr
}
