package docstream

// Field names of the two-field document a Pair, and every entry of a
// non-string-keyed map, encodes to.
const (
	pairFirst  = "first"
	pairSecond = "second"
)

// Pair is a two-value composite encoded as {first: First, second: Second}.
// Maps whose keys are not strings encode as an array of these documents.
type Pair[K, V any] struct {
	First  K
	Second V
}

// MakePair returns a Pair holding first and second.
func MakePair[K, V any](first K, second V) Pair[K, V] {
	return Pair[K, V]{First: first, Second: second}
}

func (p Pair[K, V]) MarshalDocument(enc *Encoder) *Encoder {
	return enc.Append(pairFirst).Value(p.First).Append(pairSecond).Value(p.Second)
}

func (p *Pair[K, V]) UnmarshalDocument(doc Document) error {
	var out Pair[K, V]
	if err := Decode(doc.Lookup(pairFirst), &out.First); err != nil {
		return err
	}
	if err := Decode(doc.Lookup(pairSecond), &out.Second); err != nil {
		return err
	}
	*p = out
	return nil
}
