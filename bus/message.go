package bus

import (
	"bytes"
	"io"
	"strings"

	"github.com/RobertWHurst/docstream"
)

type Message struct {
	subject           string
	sourceServiceName string
	replySubject      string
	data              []byte
	reader            io.Reader
	client            *Client
	err               error
}

// Subject returns the subject the message was sent on.
func (m *Message) Subject() string {
	return m.subject
}

// SourceServiceName returns the name of the sending service.
func (m *Message) SourceServiceName() string {
	return m.sourceServiceName
}

// Err returns the error carried by the message, if any. Requests that time
// out and reads from closed bindings produce messages with an error.
func (m *Message) Err() error {
	return m.err
}

// Document decodes the payload with the client's codec.
func (m *Message) Document() (docstream.Document, error) {
	if m.err != nil {
		return docstream.Document{}, m.err
	}
	return m.client.codec.Unmarshal(m.data)
}

// Into decodes the payload into v. It leaves v untouched on failure.
func (m *Message) Into(v any) error {
	doc, err := m.Document()
	if err != nil {
		return err
	}
	return docstream.DecodeDocument(doc, v)
}

// Read reads the raw payload.
func (m *Message) Read(p []byte) (n int, err error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.reader.Read(p)
}

// Reply sends v back to the service that made the request.
func (m *Message) Reply(v any) error {
	if m.err != nil {
		return m.err
	}
	if m.replySubject == "" {
		return ErrNoReplySubject
	}

	data, err := intoDataReader(m.client.codec, v)
	if err != nil {
		return err
	}

	return m.client.transport.Send(m.sourceServiceName, m.replySubject, m.client.serviceName, "", data)
}

// intoDataReader passes readers, byte slices and strings through as raw
// payloads. Documents are serialized directly and anything else is encoded
// as a whole document first.
func intoDataReader(codec docstream.Codec, v any) (io.Reader, error) {
	switch dv := v.(type) {
	case io.Reader:
		return dv, nil
	case []byte:
		return bytes.NewReader(dv), nil
	case string:
		return strings.NewReader(dv), nil
	case docstream.Document:
		encodedData, err := codec.Marshal(dv)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(encodedData), nil
	default:
		encodedData, err := docstream.MarshalValue(codec, v)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(encodedData), nil
	}
}
