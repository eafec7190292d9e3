package kafka

import (
	"context"
	"encoding/json"
	"io"

	"github.com/BearBump/ShipBox/internal/broker/messages"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID     = "event-id"
	HeaderContentType = "content-type"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Producer publishes transaction.accepted events for ship-worker.
type Producer struct {
	w messageWriter
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func newProducerWithWriter(w messageWriter) *Producer {
	return &Producer{w: w}
}

// PublishAccepted keys the event by transaction id, so redeliveries for one booking land on one
// partition in order. The event id rides in a header for log correlation on the consumer side.
func (p *Producer) PublishAccepted(ctx context.Context, topic string, m messages.TransactionAccepted) error {
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "transaction accepted")
	}
	if topic == "" {
		topic = messages.TopicTransactionAccepted
	}
	value, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode transaction accepted")
	}
	return p.write(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(m.TransactionID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventID, Value: []byte(m.EventID)},
			{Key: HeaderContentType, Value: []byte("application/json")},
		},
	})
}

// Publish writes one raw message.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return p.write(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
}

func (p *Producer) write(ctx context.Context, msg kafka.Message) error {
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "kafka publish")
	}
	return nil
}

func (p *Producer) Close() error {
	if c, ok := p.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
