package bus

import (
	"io"

	"github.com/RobertWHurst/docstream"
)

type mockCodec struct {
	marshalFunc   func(doc docstream.Document) ([]byte, error)
	unmarshalFunc func(data []byte) (docstream.Document, error)
}

func (m *mockCodec) Marshal(doc docstream.Document) ([]byte, error) {
	if m.marshalFunc != nil {
		return m.marshalFunc(doc)
	}
	return []byte("encoded"), nil
}

func (m *mockCodec) Unmarshal(data []byte) (docstream.Document, error) {
	if m.unmarshalFunc != nil {
		return m.unmarshalFunc(data)
	}
	return docstream.Document{}, nil
}

func (m *mockCodec) ContentType() string {
	return "application/x-mock"
}

type mockTransport struct {
	sendFunc        func(serviceName, subject, sourceServiceName, replySubject string, reader io.Reader) error
	handleFunc      func(serviceName string, handler Handler)
	handleQueueFunc func(serviceName string, handler Handler)
	closeFunc       func() error
}

func (m *mockTransport) Send(serviceName, subject, sourceServiceName, replySubject string, reader io.Reader) error {
	if m.sendFunc != nil {
		return m.sendFunc(serviceName, subject, sourceServiceName, replySubject, reader)
	}
	return nil
}

func (m *mockTransport) Handle(serviceName string, handler Handler) {
	if m.handleFunc != nil {
		m.handleFunc(serviceName, handler)
	}
}

func (m *mockTransport) HandleQueue(serviceName string, handler Handler) {
	if m.handleQueueFunc != nil {
		m.handleQueueFunc(serviceName, handler)
	}
}

func (m *mockTransport) Close() error {
	if m.closeFunc != nil {
		return m.closeFunc()
	}
	return nil
}

// greeting is a composite payload used across the tests.
type greeting struct {
	Text  string
	Count int32
}

func (g greeting) MarshalDocument(enc *docstream.Encoder) *docstream.Encoder {
	return enc.Append("text").Value(g.Text).Append("count").Value(g.Count)
}

func (g *greeting) UnmarshalDocument(doc docstream.Document) error {
	if err := docstream.Decode(doc.Lookup("text"), &g.Text); err != nil {
		return err
	}
	return docstream.Decode(doc.Lookup("count"), &g.Count)
}

// capturingTransport records the handlers a client registers.
func capturingTransport() (*mockTransport, *Handler, *Handler) {
	var handler, queueHandler Handler
	transport := &mockTransport{
		handleFunc: func(serviceName string, h Handler) {
			handler = h
		},
		handleQueueFunc: func(serviceName string, h Handler) {
			queueHandler = h
		},
	}
	return transport, &handler, &queueHandler
}
