package bus

import "github.com/RobertWHurst/docstream"

// Option configures a Client.
type Option func(*Client)

// WithCodec sets the codec used for payloads. The default is MessagePack.
func WithCodec(codec docstream.Codec) Option {
	if codec == nil {
		panic("bus: codec cannot be nil")
	}
	return func(c *Client) {
		c.codec = codec
	}
}

// WithMaxDecodeSize caps the size of inbound payloads in bytes.
func WithMaxDecodeSize(size int64) Option {
	if size <= 0 {
		panic("bus: max decode size must be positive")
	}
	return func(c *Client) {
		c.maxDecodeSize = size
	}
}
