package docstream

// Codec converts finished Documents to and from a wire format.
// Implementations live under codecs/ and must keep field order and the
// int32, int64 and double tags apart.
type Codec interface {
	// Marshal serializes doc into bytes.
	Marshal(doc Document) ([]byte, error)

	// Unmarshal deserializes data into a Document.
	Unmarshal(data []byte) (Document, error)

	// ContentType returns the MIME type of the wire format.
	ContentType() string
}

// MarshalValue encodes v as a whole document and serializes it with codec.
func MarshalValue(codec Codec, v any) ([]byte, error) {
	doc, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(doc)
}

// UnmarshalValue deserializes data with codec and decodes the document
// into dst.
func UnmarshalValue(codec Codec, data []byte, dst any) error {
	doc, err := codec.Unmarshal(data)
	if err != nil {
		return err
	}
	return DecodeDocument(doc, dst)
}
