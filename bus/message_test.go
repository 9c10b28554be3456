package bus

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/codecs/msgpackcodec"
)

func newTestMessage(client *Client, data []byte) *Message {
	return &Message{
		subject:           "test.event",
		sourceServiceName: "source",
		replySubject:      "reply",
		data:              data,
		reader:            bytes.NewReader(data),
		client:            client,
	}
}

func TestMessageInto(t *testing.T) {
	client := NewClient("test-service", &mockTransport{})
	data, err := docstream.MarshalValue(client.Codec(), greeting{Text: "hello", Count: 3})
	if err != nil {
		t.Fatalf("MarshalValue() failed: %v", err)
	}

	var result greeting
	if err := newTestMessage(client, data).Into(&result); err != nil {
		t.Fatalf("Into() failed: %v", err)
	}

	if result.Text != "hello" || result.Count != 3 {
		t.Errorf("Expected {hello 3}, got %+v", result)
	}
}

func TestMessageIntoWithCodecError(t *testing.T) {
	expectedErr := errors.New("decode error")
	codec := &mockCodec{
		unmarshalFunc: func(data []byte) (docstream.Document, error) {
			return docstream.Document{}, expectedErr
		},
	}
	client := NewClient("test-service", &mockTransport{}, WithCodec(codec))

	var result greeting
	err := newTestMessage(client, []byte("test data")).Into(&result)
	if err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestMessageIntoMismatchLeavesValue(t *testing.T) {
	client := NewClient("test-service", &mockTransport{})
	doc, _ := docstream.NewEncoder().
		Append("text").Value("hi").
		Append("count").Value("three").
		Finalize()
	data, _ := client.Codec().Marshal(doc)

	result := greeting{Text: "kept", Count: 1}
	err := newTestMessage(client, data).Into(&result)
	if !errors.Is(err, docstream.ErrTypeMismatch) {
		t.Fatalf("Expected type mismatch, got %v", err)
	}
	if result.Text != "kept" || result.Count != 1 {
		t.Errorf("Expected value to be left intact, got %+v", result)
	}
}

func TestMessageIntoWithPriorError(t *testing.T) {
	expectedErr := errors.New("prior error")
	msg := &Message{err: expectedErr}

	var result greeting
	if err := msg.Into(&result); err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
	if _, err := msg.Document(); err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestMessageDocument(t *testing.T) {
	client := NewClient("test-service", &mockTransport{}, WithCodec(msgpackcodec.New()))
	original, _ := docstream.NewEncoder().Append("a").Value(int64(9)).Finalize()
	data, _ := client.Codec().Marshal(original)

	doc, err := newTestMessage(client, data).Document()
	if err != nil {
		t.Fatalf("Document() failed: %v", err)
	}
	if !doc.Equal(original) {
		t.Errorf("Expected %v, got %v", original, doc)
	}
}

func TestMessageRead(t *testing.T) {
	msg := newTestMessage(nil, []byte("test data"))

	data, err := io.ReadAll(msg)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}

	if string(data) != "test data" {
		t.Errorf("Expected 'test data', got '%s'", string(data))
	}
}

func TestMessageReadWithPriorError(t *testing.T) {
	expectedErr := errors.New("prior error")
	msg := &Message{err: expectedErr}

	buf := make([]byte, 10)
	_, err := msg.Read(buf)
	if err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestMessageReply(t *testing.T) {
	var capturedServiceName, capturedSubject, capturedSource, capturedReplySubject string
	var capturedData []byte

	transport := &mockTransport{
		sendFunc: func(serviceName, subject, sourceServiceName, replySubject string, reader io.Reader) error {
			capturedServiceName = serviceName
			capturedSubject = subject
			capturedSource = sourceServiceName
			capturedReplySubject = replySubject
			capturedData, _ = io.ReadAll(reader)
			return nil
		},
	}

	client := NewClient("my-service", transport)
	msg := newTestMessage(client, nil)

	if err := msg.Reply(greeting{Text: "back", Count: 1}); err != nil {
		t.Fatalf("Reply() failed: %v", err)
	}

	if capturedServiceName != "source" {
		t.Errorf("Expected service name 'source', got '%s'", capturedServiceName)
	}
	if capturedSubject != "reply" {
		t.Errorf("Expected subject 'reply', got '%s'", capturedSubject)
	}
	if capturedSource != "my-service" {
		t.Errorf("Expected source 'my-service', got '%s'", capturedSource)
	}
	if capturedReplySubject != "" {
		t.Errorf("Expected empty reply subject, got '%s'", capturedReplySubject)
	}

	var decoded greeting
	if err := docstream.UnmarshalValue(client.Codec(), capturedData, &decoded); err != nil {
		t.Fatalf("UnmarshalValue() failed: %v", err)
	}
	if decoded.Text != "back" {
		t.Errorf("Expected 'back', got '%s'", decoded.Text)
	}
}

func TestMessageReplyWithoutReplySubject(t *testing.T) {
	client := NewClient("my-service", &mockTransport{})
	msg := newTestMessage(client, nil)
	msg.replySubject = ""

	if err := msg.Reply("x"); err != ErrNoReplySubject {
		t.Errorf("Expected ErrNoReplySubject, got %v", err)
	}
}

func TestMessageReplyWithPriorError(t *testing.T) {
	expectedErr := errors.New("prior error")
	msg := &Message{err: expectedErr}

	if err := msg.Reply("response"); err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func TestMessageReplyWithUnsupportedValue(t *testing.T) {
	client := NewClient("my-service", &mockTransport{})
	msg := newTestMessage(client, nil)

	err := msg.Reply(42)
	if !errors.Is(err, docstream.ErrUnsupportedType) {
		t.Errorf("Expected unsupported type error, got %v", err)
	}
}

func TestIntoDataReader(t *testing.T) {
	codec := &mockCodec{}
	doc, _ := docstream.NewEncoder().Append("a").Value(true).Finalize()

	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "io.Reader", input: strings.NewReader("reader data"), expected: "reader data"},
		{name: "[]byte", input: []byte("byte data"), expected: "byte data"},
		{name: "string", input: "string data", expected: "string data"},
		{name: "document", input: doc, expected: "encoded"},
		{name: "composite", input: greeting{Text: "x"}, expected: "encoded"},
		{name: "string map", input: map[string]int32{"a": 1}, expected: "encoded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := intoDataReader(codec, tt.input)
			if err != nil {
				t.Fatalf("intoDataReader() failed: %v", err)
			}

			data, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("ReadAll() failed: %v", err)
			}

			if string(data) != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, string(data))
			}
		})
	}
}

func TestIntoDataReaderCodecError(t *testing.T) {
	expectedErr := errors.New("encode error")
	codec := &mockCodec{
		marshalFunc: func(doc docstream.Document) ([]byte, error) {
			return nil, expectedErr
		},
	}

	_, err := intoDataReader(codec, greeting{})
	if err != expectedErr {
		t.Errorf("Expected error %v, got %v", expectedErr, err)
	}
}

func BenchmarkMessageInto(b *testing.B) {
	client := NewClient("test-service", &mockTransport{})
	data, _ := docstream.MarshalValue(client.Codec(), greeting{Text: "hello", Count: 3})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var g greeting
		newTestMessage(client, data).Into(&g)
	}
}

func BenchmarkIntoDataReader(b *testing.B) {
	codec := msgpackcodec.New()
	g := greeting{Text: "hello", Count: 3}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		intoDataReader(codec, g)
	}
}
