// Package bus sends docstream Documents between services over a pluggable
// Transport. Payloads are encoded with a docstream.Codec, so anything the
// core package can encode as a whole document can be sent, and replies are
// decoded straight into Go values.
package bus

import (
	"bytes"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/codecs/msgpackcodec"
)

// MaxDecodeSize is the default cap on inbound payloads.
var MaxDecodeSize = int64(1024 * 1024 * 5) // 5 MB

type Client struct {
	serviceName   string
	transport     Transport
	codec         docstream.Codec
	maxDecodeSize int64

	handlerChansMu sync.RWMutex
	handlerChans   map[string]map[*Binding]chan *Message

	queueHandlerChansMu sync.RWMutex
	queueHandlerChans   map[string]map[*Binding]chan *Message
	queueHandleOnce     sync.Once
}

func NewClient(serviceName string, transport Transport, opts ...Option) *Client {
	c := &Client{
		serviceName:       serviceName,
		transport:         transport,
		codec:             msgpackcodec.New(),
		maxDecodeSize:     MaxDecodeSize,
		handlerChans:      make(map[string]map[*Binding]chan *Message),
		queueHandlerChans: make(map[string]map[*Binding]chan *Message),
	}
	for _, opt := range opts {
		opt(c)
	}
	transport.Handle(c.serviceName, c.handleMessage)
	return c
}

// Codec returns the codec used for payloads.
func (c *Client) Codec() docstream.Codec {
	return c.codec
}

func (c *Client) Service(remoteServiceName string) *ServiceClient {
	return &ServiceClient{
		client:            c,
		remoteServiceName: remoteServiceName,
	}
}

// Bind receives every message sent to this service on eventName.
func (c *Client) Bind(eventName string) *Binding {
	return newBinding(c, BindTypeNormal, eventName)
}

// BindOnce receives a single message and then unbinds.
func (c *Client) BindOnce(eventName string) *Binding {
	return newBinding(c, BindTypeOnce, eventName)
}

// BindQueue shares messages on eventName with the other instances of this
// service so that each message is handled once. The queue handler is
// registered with the transport on first use.
func (c *Client) BindQueue(eventName string) *Binding {
	c.queueHandleOnce.Do(func() {
		c.transport.HandleQueue(c.serviceName, c.handleQueueMessage)
	})
	return newBinding(c, BindTypeQueue, eventName)
}

// Close unbinds every binding and closes the transport.
func (c *Client) Close() error {
	var bindings []*Binding
	c.handlerChansMu.RLock()
	for _, chans := range c.handlerChans {
		for b := range chans {
			bindings = append(bindings, b)
		}
	}
	c.handlerChansMu.RUnlock()
	c.queueHandlerChansMu.RLock()
	for _, chans := range c.queueHandlerChans {
		for b := range chans {
			bindings = append(bindings, b)
		}
	}
	c.queueHandlerChansMu.RUnlock()

	for _, b := range bindings {
		b.Unbind()
	}
	return c.transport.Close()
}

func (c *Client) handleMessage(subject, sourceServiceName, replySubject string, reader io.Reader) {
	c.dispatch(&c.handlerChansMu, c.handlerChans, subject, sourceServiceName, replySubject, reader)
}

func (c *Client) handleQueueMessage(subject, sourceServiceName, replySubject string, reader io.Reader) {
	c.dispatch(&c.queueHandlerChansMu, c.queueHandlerChans, subject, sourceServiceName, replySubject, reader)
}

func (c *Client) dispatch(mu *sync.RWMutex, chans map[string]map[*Binding]chan *Message, subject, sourceServiceName, replySubject string, reader io.Reader) {
	mu.RLock()
	bound := len(chans[subject]) > 0
	mu.RUnlock()
	if !bound {
		Logger().Debug("no binding for message",
			zap.String("subject", subject),
			zap.String("source", sourceServiceName))
		return
	}

	// Streamed payloads can take a while to arrive, so the registry is not
	// held while reading.
	data, err := c.readPayload(reader)
	if err != nil {
		Logger().Warn("failed to read message payload",
			zap.String("subject", subject),
			zap.String("source", sourceServiceName),
			zap.Error(err))
	}

	mu.RLock()
	defer mu.RUnlock()
	for _, ch := range chans[subject] {
		ch <- &Message{
			subject:           subject,
			sourceServiceName: sourceServiceName,
			replySubject:      replySubject,
			data:              data,
			reader:            bytes.NewReader(data),
			client:            c,
			err:               err,
		}
	}
}

// readPayload buffers the payload so every binding on a subject can read
// it. Oversized payloads are reported as ErrPayloadTooLarge.
func (c *Client) readPayload(reader io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(reader, c.maxDecodeSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxDecodeSize {
		return nil, ErrPayloadTooLarge
	}
	return data, nil
}
