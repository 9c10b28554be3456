// Package compress wraps a docstream.Codec with block compression.
//
// Every payload is framed as one tag byte, the uncompressed length as a
// uvarint, then the body. Payloads that do not shrink are stored with
// TagNone so decoding never pays for useless compression.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/RobertWHurst/docstream"
)

// Tag identifies the algorithm a frame was compressed with. Tags are
// written to the wire; changing them breaks compatibility.
type Tag uint8

const (
	TagNone Tag = 0
	TagLZ4  Tag = 1
	TagZstd Tag = 2
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagLZ4:
		return "lz4"
	case TagZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// DefaultMaxSize caps the uncompressed size a frame may claim.
const DefaultMaxSize = 64 * 1024 * 1024

var errIncompressible = errors.New("data is incompressible")

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(DefaultMaxSize))
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Codec compresses the output of an inner codec.
type Codec struct {
	inner docstream.Codec
	tag   Tag

	// MaxSize bounds the uncompressed size accepted by Unmarshal.
	MaxSize int
}

var _ docstream.Codec = &Codec{}

// Zstd wraps inner with zstd compression. It gives the better ratio on
// text-like formats such as JSON.
func Zstd(inner docstream.Codec) *Codec {
	return newCodec(inner, TagZstd)
}

// LZ4 wraps inner with LZ4 block compression, the faster choice for
// binary formats.
func LZ4(inner docstream.Codec) *Codec {
	return newCodec(inner, TagLZ4)
}

func newCodec(inner docstream.Codec, tag Tag) *Codec {
	if inner == nil {
		panic("compress: inner codec cannot be nil")
	}
	return &Codec{inner: inner, tag: tag, MaxSize: DefaultMaxSize}
}

func (c *Codec) ContentType() string {
	return c.inner.ContentType() + "+" + c.tag.String()
}

func (c *Codec) Marshal(doc docstream.Document) ([]byte, error) {
	data, err := c.inner.Marshal(doc)
	if err != nil {
		return nil, err
	}

	tag := c.tag
	body, err := compressBlock(data, tag)
	if errors.Is(err, errIncompressible) {
		tag, body = TagNone, data
	} else if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, 1+binary.MaxVarintLen64+len(body))
	frame = append(frame, byte(tag))
	frame = binary.AppendUvarint(frame, uint64(len(data)))
	return append(frame, body...), nil
}

func (c *Codec) Unmarshal(frame []byte) (docstream.Document, error) {
	if len(frame) == 0 {
		return docstream.Document{}, errors.New("compress: empty frame")
	}
	tag := Tag(frame[0])
	size, n := binary.Uvarint(frame[1:])
	if n <= 0 {
		return docstream.Document{}, errors.New("compress: malformed frame length")
	}
	if size > uint64(c.MaxSize) {
		return docstream.Document{}, fmt.Errorf("compress: frame of %d bytes exceeds limit of %d", size, c.MaxSize)
	}

	data, err := decompressBlock(frame[1+n:], tag, int(size))
	if err != nil {
		return docstream.Document{}, err
	}
	return c.inner.Unmarshal(data)
}

func compressBlock(data []byte, tag Tag) ([]byte, error) {
	switch tag {
	case TagLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4: %w", err)
		}
		if written == 0 || written >= len(data) {
			return nil, errIncompressible
		}
		return destination[:written], nil
	case TagZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return nil, errIncompressible
		}
		return compressed, nil
	}
	return nil, fmt.Errorf("compress: unsupported tag %s", tag)
}

func decompressBlock(body []byte, tag Tag, size int) ([]byte, error) {
	switch tag {
	case TagNone:
		if len(body) != size {
			return nil, fmt.Errorf("compress: stored frame has %d bytes, expected %d", len(body), size)
		}
		return body, nil
	case TagLZ4:
		destination := make([]byte, size)
		read, err := lz4.UncompressBlock(body, destination)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4: %w", err)
		}
		if read != size {
			return nil, fmt.Errorf("compress: lz4 produced %d bytes, expected %d", read, size)
		}
		return destination, nil
	case TagZstd:
		result, err := zstdDecoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("compress: zstd: %w", err)
		}
		if len(result) != size {
			return nil, fmt.Errorf("compress: zstd produced %d bytes, expected %d", len(result), size)
		}
		return result, nil
	}
	return nil, fmt.Errorf("compress: unsupported tag %s", tag)
}
