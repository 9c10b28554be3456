// Package stores defines persistence for docstream Documents. Backends live
// in the subpackages and serialize documents with a docstream.Codec.
package stores

import (
	"context"
	"errors"
	"time"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/codecs/msgpackcodec"
)

// ErrClosed is returned by Store methods when the store has been closed.
var ErrClosed = errors.New("store is closed")

// Store persists Documents by key.
type Store interface {
	// Put stores doc under key, replacing any previous document. A ttl of
	// zero keeps the document until it is deleted.
	Put(ctx context.Context, key string, doc docstream.Document, ttl time.Duration) error

	// Get returns the document stored under key. The boolean is false when
	// the key is absent or expired.
	Get(ctx context.Context, key string) (docstream.Document, bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend.
	Close() error
}

// Options holds the settings shared by every backend.
type Options struct {
	Codec docstream.Codec
}

type Option func(*Options)

// WithCodec sets the codec documents are stored with. The default is
// MessagePack.
func WithCodec(codec docstream.Codec) Option {
	if codec == nil {
		panic("codec can't be nil")
	}
	return func(o *Options) {
		o.Codec = codec
	}
}

// ApplyOptions resolves opts over the defaults.
func ApplyOptions(opts ...Option) Options {
	o := Options{Codec: msgpackcodec.New()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ValidateKey rejects keys no backend can store.
func ValidateKey(key string) error {
	if key == "" {
		return errors.New("key can't be empty")
	}
	return nil
}
