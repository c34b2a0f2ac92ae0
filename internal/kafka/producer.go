package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer publishes outbox events. One writer serves all topics; the topic
// is carried per message.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{w: w}
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: value,
	})
}

func (p *Producer) Close() error { return p.w.Close() }
