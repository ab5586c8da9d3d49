package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
)

// Publisher writes raw transaction events to the ingestion topic. It exists
// for the sample producer and for upstream systems run locally; the
// ingestion core itself only consumes.
type Publisher struct {
	writer *kafka.Writer
}

// NewPublisher builds a writer against the given brokers and topic.
func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Publish marshals event to JSON and writes it to the topic.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Value: data})
}

// PublishRaw writes an already-serialized payload, useful for sending
// deliberately malformed messages when exercising the consumer.
func (p *Publisher) PublishRaw(ctx context.Context, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Value: payload})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
