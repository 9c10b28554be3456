package natstransport

import (
	"encoding/binary"
	"errors"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/codecs/msgpackcodec"
)

// envelopeCodec serializes the stream setup messages.
var envelopeCodec = msgpackcodec.New()

// Chunk metadata travels in NATS headers so chunk bodies stay raw bytes.
const (
	headerIndex = "Docstream-Index"
	headerEOF   = "Docstream-Eof"
	headerError = "Docstream-Error"
)

// sendEnvelope opens a stream. DataSubject is empty when the frame holds
// the whole payload; otherwise the sender picks it and receivers subscribe
// to it before acknowledging.
type sendEnvelope struct {
	SourceServiceName string
	ReplySubject      string
	Subject           string
	DataSubject       string
}

func (s sendEnvelope) MarshalDocument(enc *docstream.Encoder) *docstream.Encoder {
	return enc.
		Append("sourceServiceName").Value(s.SourceServiceName).
		Append("replySubject").Value(s.ReplySubject).
		Append("subject").Value(s.Subject).
		Append("dataSubject").Value(s.DataSubject)
}

func (s *sendEnvelope) UnmarshalDocument(doc docstream.Document) error {
	fields := []struct {
		name string
		dst  *string
	}{
		{"sourceServiceName", &s.SourceServiceName},
		{"replySubject", &s.ReplySubject},
		{"subject", &s.Subject},
		{"dataSubject", &s.DataSubject},
	}
	for _, f := range fields {
		if err := docstream.Decode(doc.Lookup(f.name), f.dst); err != nil {
			return err
		}
	}
	return nil
}

// ackEnvelope answers a sendEnvelope. A non-empty Error means the receiver
// could not open the stream.
type ackEnvelope struct {
	Error string
}

func (a ackEnvelope) MarshalDocument(enc *docstream.Encoder) *docstream.Encoder {
	if a.Error == "" {
		return enc
	}
	return enc.Append("error").Value(a.Error)
}

func (a *ackEnvelope) UnmarshalDocument(doc docstream.Document) error {
	if el := doc.Lookup("error"); el.Kind() != docstream.KindMissing {
		return docstream.Decode(el, &a.Error)
	}
	return nil
}

// appendFrame lays out a send message as the envelope length as a uvarint,
// the envelope, then the first chunk of the payload.
func appendFrame(dst []byte, envelope sendEnvelope, head []byte) ([]byte, error) {
	encoded, err := docstream.MarshalValue(envelopeCodec, envelope)
	if err != nil {
		return nil, err
	}
	dst = binary.AppendUvarint(dst, uint64(len(encoded)))
	dst = append(dst, encoded...)
	return append(dst, head...), nil
}

func readFrame(frame []byte) (sendEnvelope, []byte, error) {
	var envelope sendEnvelope
	size, n := binary.Uvarint(frame)
	if n <= 0 || size > uint64(len(frame)-n) {
		return envelope, nil, errors.New("natstransport: malformed send frame")
	}
	end := n + int(size)
	if err := docstream.UnmarshalValue(envelopeCodec, frame[n:end], &envelope); err != nil {
		return envelope, nil, err
	}
	return envelope, frame[end:], nil
}
