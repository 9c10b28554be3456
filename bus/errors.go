package bus

import "errors"

var (
	// ErrBindingClosed is carried by messages taken from an unbound binding.
	ErrBindingClosed = errors.New("bus: binding closed")

	// ErrPayloadTooLarge is carried by messages whose payload exceeds the
	// client's max decode size.
	ErrPayloadTooLarge = errors.New("bus: payload exceeds max decode size")

	// ErrNoReplySubject is returned when replying to a message that was not
	// sent as a request.
	ErrNoReplySubject = errors.New("bus: message has no reply subject")
)
