// Package messaging adapts the news pipeline's DomainEvent envelope
// onto the shared Kafka producer/consumer, implementing
// application.EventPublisher and feeding the embedding pipeline's
// consumer group.
package messaging

import (
	"context"
	"fmt"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/kafka"
)

// EventPublisher publishes DomainEvents to Kafka, keyed by aggregate
// ID so every event for one News item lands on the same partition.
type EventPublisher struct {
	producer kafka.Producer
	topic    string
}

// NewEventPublisher builds a Kafka-backed EventPublisher.
func NewEventPublisher(producer kafka.Producer, topic string) *EventPublisher {
	return &EventPublisher{producer: producer, topic: topic}
}

// Publish serializes and sends event, implementing
// application.EventPublisher.
func (p *EventPublisher) Publish(ctx context.Context, event *domain.DomainEvent) error {
	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("messaging: marshal event %s: %w", event.Type, err)
	}
	if err := p.producer.PushToQueue(p.topic, event.AggregateID, payload); err != nil {
		return fmt.Errorf("messaging: publish event %s: %w", event.Type, err)
	}
	return nil
}
