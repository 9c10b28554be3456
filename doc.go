// Package docstream converts between typed Go values and an ordered,
// self-describing document tree.
//
// A Document is an immutable ordered mapping from field names to Elements.
// An Element is a tagged value: bool, int32, int64, double, string, a nested
// Document, an Array, or the missing marker returned for absent fields.
//
// Documents are built with an Encoder by chaining key and value appends:
//
//	doc, err := docstream.NewEncoder().
//		Append("name").Value("Ryan Braun").
//		Append("scores").Value([]float64{1.1, -2.9}).
//		Finalize()
//
// and read back with Decode:
//
//	var scores []float64
//	err := docstream.Decode(doc.Lookup("scores"), &scores)
//
// Values are dispatched on their shape: scalars become scalar elements,
// slices and arrays become Arrays, map[T]struct{} sets become sorted Arrays,
// string-keyed maps become sub-documents, other maps become arrays of
// {first, second} documents, and composite types write their own fields.
//
// A composite type plugs in either by implementing Marshaler together with
// ElementUnmarshaler or DocumentUnmarshaler, or through RegisterElement and
// RegisterDocument for types defined elsewhere.
//
// Wire formats are provided by the codecs under codecs/, which all
// implement Codec.
package docstream
