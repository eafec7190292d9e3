package kafka

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler gets the raw key/value of a transaction.accepted event. A nil return commits the
// offset; an error stops consumption without committing, so the event is redelivered after
// restart. fulfillment.Service.HandleMessage returns nil for everything it has dealt with,
// including malformed payloads and label failures routed to the failure reporter, and
// returns an error only when ctx is cancelled mid-purchase.
type Handler func(key, value []byte) error

type ConsumerOption func(*Consumer)

func WithConsumerLogger(log *zap.Logger) ConsumerOption {
	return func(c *Consumer) {
		if log != nil {
			c.log = log
		}
	}
}

// Consumer reads transaction.accepted for ship-worker, one message at a time, committing after
// the handler returns.
type Consumer struct {
	r   messageReader
	log *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, opts ...ConsumerOption) *Consumer {
	cfg := kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
		StartOffset:       kafka.FirstOffset,
		MaxWait:           time.Second,
	}
	if groupID != "" {
		cfg.GroupTopics = []string{topic}
	} else {
		cfg.Topic = topic
	}
	return newConsumerWithReader(kafka.NewReader(cfg), opts...)
}

func newConsumerWithReader(r messageReader, opts ...ConsumerOption) *Consumer {
	c := &Consumer{r: r, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Consumer) Close() error {
	return c.r.Close()
}

func (c *Consumer) Consume(ctx context.Context, handler Handler) error {
	for {
		msg, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "fetch message")
		}
		if err := handler(msg.Key, msg.Value); err != nil {
			c.log.Warn("transaction accepted left uncommitted",
				zap.ByteString("transaction_id", msg.Key),
				zap.String("event_id", headerValue(msg, HeaderEventID)),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return err
		}
		if err := c.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "commit message")
		}
		c.log.Debug("transaction accepted committed",
			zap.ByteString("transaction_id", msg.Key),
			zap.String("event_id", headerValue(msg, HeaderEventID)),
			zap.Int64("offset", msg.Offset),
		)
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
