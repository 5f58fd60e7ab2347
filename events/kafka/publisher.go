// Package kafka publishes recurring instance events to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/warp/recurring-engine/recurring"
)

// DefaultTopic receives one message per created instance.
const DefaultTopic = "recurring.instance_created"

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer MessageWriter
}

func NewPublisher(brokers []string, topic string) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

// NewPublisherWithWriter is used by tests.
func NewPublisherWithWriter(w MessageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish writes the event keyed by company so one tenant's events stay ordered.
func (p *Publisher) Publish(ctx context.Context, event recurring.InstanceCreated) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal instance event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.CompanyID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("instance_created")},
			{Key: "kind", Value: []byte(event.Kind)},
		},
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ recurring.Publisher = (*Publisher)(nil)
