package bus

import (
	"context"
	"math/rand/v2"
	"time"
)

// DefaultRequestTimeout bounds Request.
const DefaultRequestTimeout = 30 * time.Second

// ServiceClient provides methods for communicating with a specific remote service.
// It is created by calling Client.Service() with the target service name.
type ServiceClient struct {
	client            *Client
	remoteServiceName string
}

// Send sends a fire-and-forget message to the remote service.
// The value v can be a Document, any value the docstream encoder accepts as
// a whole document, a string, []byte, or io.Reader.
func (s *ServiceClient) Send(subject string, v any) error {
	data, err := intoDataReader(s.client.codec, v)
	if err != nil {
		return err
	}
	return s.client.transport.Send(s.remoteServiceName, subject, s.client.serviceName, "", data)
}

// Request sends a message and waits for a reply with a default 30-second timeout.
// The returned Message can be chained with Into() to decode the response.
func (s *ServiceClient) Request(subject string, v any) *Message {
	return s.RequestWithTimeout(subject, v, DefaultRequestTimeout)
}

// RequestWithTimeout sends a message and waits for a reply with a custom timeout.
func (s *ServiceClient) RequestWithTimeout(subject string, v any, timeout time.Duration) *Message {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.RequestWithCtx(ctx, subject, v)
}

// RequestWithCtx sends a message and waits for a reply until the context is canceled.
// Returns a Message with an error if the context is canceled or times out.
func (s *ServiceClient) RequestWithCtx(ctx context.Context, subject string, v any) *Message {
	replySubject := generateReplySubject()

	data, err := intoDataReader(s.client.codec, v)
	if err != nil {
		return &Message{err: err}
	}

	// Bound before sending so a fast reply is not dropped.
	binding := s.client.BindOnce(replySubject)
	defer binding.Unbind()

	err = s.client.transport.Send(s.remoteServiceName, subject, s.client.serviceName, replySubject, data)
	if err != nil {
		return &Message{err: err}
	}

	select {
	case <-ctx.Done():
		return &Message{err: ctx.Err()}
	case msg, ok := <-binding.handlerChan:
		if !ok {
			return &Message{err: ErrBindingClosed}
		}
		return msg
	}
}

var replySubjectChars = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_")

func generateReplySubject() string {
	b := make([]rune, 32)
	for i := range b {
		b[i] = replySubjectChars[rand.N(len(replySubjectChars))]
	}
	return string(b)
}
