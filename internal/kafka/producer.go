package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher writes a batch of messages; each message carries its own topic.
type Publisher interface {
	Publish(ctx context.Context, msgs ...Message) error
}

// Producer wraps a kafka-go Writer without a fixed topic, so outbox rows
// can target different topics in one batch.
type Producer struct {
	w *kafka.Writer
}

var _ Publisher = (*Producer)(nil)

func NewProducer(brokers []string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *Producer) Close() error { return p.w.Close() }
