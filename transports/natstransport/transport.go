// Package natstransport provides a NATS transport for the bus package.
// It uses a chunked streaming protocol to send messages of any size over NATS
// without loading them entirely into memory.
//
// A send carries a sendEnvelope and the first chunk of the payload to the
// service subject. Payloads that fit in one chunk are complete at that
// point. Larger payloads name a data subject in the envelope; receivers
// subscribe to it before acknowledging and the sender then publishes the
// remaining chunks in order. A subscription that was not yet listening when
// the streamed chunks began fails its stream with errMissedStart.
package natstransport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nuid"
	"go.uber.org/zap"

	"github.com/RobertWHurst/docstream"
	"github.com/RobertWHurst/docstream/bus"
)

// SendTimeout is the default time to wait for a send acknowledgment.
const SendTimeout = 5 * time.Second

// ChunkTimeout is the maximum gap between chunks of one stream.
const ChunkTimeout = 30 * time.Second

// ChunkSize is the size of each chunk when streaming large messages.
const ChunkSize = 1024 * 16

// subjectPrefix roots every subject this transport uses.
const subjectPrefix = "docstream"

var errMissedStart = errors.New("natstransport: stream started before subscription")

// Transport implements bus.Transport using NATS as the message broker.
type Transport struct {
	NatsConnection *nats.Conn
	SendTimeout    time.Duration

	ownsConnection  bool
	mu              sync.Mutex
	subscriptions   []*nats.Subscription
	subscriptionErr error
}

var _ bus.Transport = &Transport{}

// New creates a transport over an existing connection. Close leaves the
// connection open.
func New(natsConnection *nats.Conn) *Transport {
	return &Transport{
		NatsConnection: natsConnection,
		SendTimeout:    SendTimeout,
	}
}

func (t *Transport) Send(serviceName, subject, sourceServiceName, replySubject string, reader io.Reader) error {
	if err := t.err(); err != nil {
		return err
	}

	buf := make([]byte, ChunkSize)
	n, readErr := io.ReadFull(reader, buf)
	complete := errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF)
	if readErr != nil && !complete {
		return readErr
	}

	envelope := sendEnvelope{
		SourceServiceName: sourceServiceName,
		ReplySubject:      replySubject,
		Subject:           subject,
	}
	if !complete {
		envelope.DataSubject = subjectPrefix + ".data." + nuid.Next()
	}
	sendBuf, err := appendFrame(nil, envelope, buf[:n])
	if err != nil {
		return err
	}

	natsSubject := namespace(subjectPrefix, serviceName)
	ackMsg, err := t.NatsConnection.Request(natsSubject, sendBuf, t.SendTimeout)
	if err != nil {
		return fmt.Errorf("natstransport: send to %s: %w", natsSubject, err)
	}

	var ack ackEnvelope
	if err := docstream.UnmarshalValue(envelopeCodec, ackMsg.Data, &ack); err != nil {
		return fmt.Errorf("natstransport: ack: %w", err)
	}
	if ack.Error != "" {
		return fmt.Errorf("natstransport: receiver refused stream: %s", ack.Error)
	}
	if complete {
		return nil
	}

	for index := 1; ; index++ {
		n, readErr := reader.Read(buf)
		isEOF := errors.Is(readErr, io.EOF)

		chunk := nats.NewMsg(envelope.DataSubject)
		chunk.Header.Set(headerIndex, strconv.Itoa(index))
		chunk.Data = buf[:n]
		switch {
		case isEOF:
			chunk.Header.Set(headerEOF, "1")
		case readErr != nil:
			chunk.Header.Set(headerError, readErr.Error())
		}

		if err := t.NatsConnection.PublishMsg(chunk); err != nil {
			return fmt.Errorf("natstransport: publish chunk %d: %w", index, err)
		}
		if readErr != nil && !isEOF {
			return readErr
		}
		if isEOF {
			return nil
		}
	}
}

func (t *Transport) Handle(serviceName string, handler bus.Handler) {
	natsSubject := namespace(subjectPrefix, serviceName)
	subscription, err := t.NatsConnection.Subscribe(natsSubject, t.streamHandler(handler))
	t.track(subscription, err)
}

func (t *Transport) HandleQueue(serviceName string, handler bus.Handler) {
	natsSubject := namespace(subjectPrefix, serviceName)
	subscription, err := t.NatsConnection.QueueSubscribe(natsSubject, natsSubject, t.streamHandler(handler))
	t.track(subscription, err)
}

func (t *Transport) streamHandler(handler bus.Handler) nats.MsgHandler {
	return func(natsMsg *nats.Msg) {
		send, head, err := readFrame(natsMsg.Data)
		if err != nil {
			Logger().Warn("dropping malformed send envelope",
				zap.String("subject", natsMsg.Subject),
				zap.Error(err))
			t.respond(natsMsg, ackEnvelope{Error: err.Error()})
			return
		}

		if send.DataSubject == "" {
			if t.respond(natsMsg, ackEnvelope{}) {
				handler(send.Subject, send.SourceServiceName, send.ReplySubject, bytes.NewReader(head))
			}
			return
		}

		dataSubscription, err := t.NatsConnection.SubscribeSync(send.DataSubject)
		if err != nil {
			t.respond(natsMsg, ackEnvelope{Error: err.Error()})
			handler(send.Subject, send.SourceServiceName, send.ReplySubject, &errReader{err: err})
			return
		}

		if !t.respond(natsMsg, ackEnvelope{}) {
			_ = dataSubscription.Unsubscribe()
			return
		}

		pr, pw := io.Pipe()
		go receiveChunks(dataSubscription, pw, send.Subject, head)

		handler(send.Subject, send.SourceServiceName, send.ReplySubject, pr)
		_ = pr.Close()
	}
}

func (t *Transport) respond(natsMsg *nats.Msg, ack ackEnvelope) bool {
	ackBuf, err := docstream.MarshalValue(envelopeCodec, ack)
	if err == nil {
		err = natsMsg.Respond(ackBuf)
	}
	if err != nil {
		Logger().Warn("failed to acknowledge stream",
			zap.String("subject", natsMsg.Subject),
			zap.Error(err))
		return false
	}
	return true
}

// receiveChunks feeds head and then the streamed chunks into pw. Chunk
// indexes start at 1; head is chunk 0.
func receiveChunks(dataSubscription *nats.Subscription, pw *io.PipeWriter, subject string, head []byte) {
	defer dataSubscription.Unsubscribe()

	fail := func(err error) {
		Logger().Debug("stream failed",
			zap.String("subject", subject),
			zap.String("dataSubject", dataSubscription.Subject),
			zap.Error(err))
		pw.CloseWithError(err)
	}

	if _, err := pw.Write(head); err != nil {
		return
	}

	for expected := 1; ; expected++ {
		dataMsg, err := dataSubscription.NextMsg(ChunkTimeout)
		if err != nil {
			fail(err)
			return
		}

		index, err := strconv.Atoi(dataMsg.Header.Get(headerIndex))
		if err != nil {
			fail(fmt.Errorf("natstransport: chunk index: %w", err))
			return
		}
		if index != expected {
			if expected == 1 {
				fail(errMissedStart)
			} else {
				fail(fmt.Errorf("natstransport: expected chunk %d, got %d", expected, index))
			}
			return
		}

		if msg := dataMsg.Header.Get(headerError); msg != "" {
			fail(errors.New(msg))
			return
		}

		if len(dataMsg.Data) > 0 {
			if _, err := pw.Write(dataMsg.Data); err != nil {
				// The handler stopped reading.
				return
			}
		}

		if dataMsg.Header.Get(headerEOF) != "" {
			pw.Close()
			return
		}
	}
}

func (t *Transport) track(subscription *nats.Subscription, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		Logger().Error("failed to subscribe", zap.Error(err))
		t.subscriptionErr = err
		return
	}
	t.subscriptions = append(t.subscriptions, subscription)
}

func (t *Transport) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscriptionErr
}

// Close unsubscribes every handler. A connection opened by Connect is
// drained and closed as well.
func (t *Transport) Close() error {
	t.mu.Lock()
	subscriptions := t.subscriptions
	t.subscriptions = nil
	t.mu.Unlock()

	var err error
	for _, s := range subscriptions {
		if e := s.Unsubscribe(); e != nil {
			err = e
		}
	}
	if t.ownsConnection {
		if e := t.NatsConnection.Drain(); e != nil {
			err = e
		}
	}
	return err
}

type errReader struct {
	err error
}

func (r *errReader) Read(p []byte) (n int, err error) {
	return 0, r.err
}
