package bus

import "io"

// Handler receives one inbound message from a Transport. The reader holds
// the encoded payload and must be consumed before the handler returns.
type Handler func(subject, sourceServiceName, replySubject string, reader io.Reader)

// Transport defines the interface for underlying message delivery mechanisms.
// Implementations handle the actual sending and receiving of messages between services.
type Transport interface {
	// Send delivers a message to the specified service and subject.
	// The reader contains the message payload and will be consumed by the transport.
	Send(serviceName, subject, sourceServiceName, replySubject string, reader io.Reader) error

	// Handle registers a handler for broadcast messages (all instances receive).
	Handle(serviceName string, handler Handler)

	// HandleQueue registers a handler for load-balanced messages (one instance receives).
	HandleQueue(serviceName string, handler Handler)

	// Close cleans up resources and closes connections.
	Close() error
}
