// Package messaging adapts the auto-stop monitor's warning signal
// onto the shared Kafka producer, reusing the news pipeline's
// DomainEvent envelope and publisher rather than inventing a second
// event format.
package messaging

import (
	"context"

	newsdomain "github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
)

// Publisher is the event-bus surface the emitter needs, implemented
// by news/infrastructure/messaging.EventPublisher.
type Publisher interface {
	Publish(ctx context.Context, event *newsdomain.DomainEvent) error
}

// EventEmitter implements application.EventEmitter by publishing an
// experiment.autostop_warning DomainEvent.
type EventEmitter struct {
	publisher Publisher
}

// NewEventEmitter builds an EventEmitter over an existing Kafka-backed
// Publisher.
func NewEventEmitter(publisher Publisher) *EventEmitter {
	return &EventEmitter{publisher: publisher}
}

// EmitWarning publishes message as an experiment warning event. The
// experiment key is already embedded in message by the caller, so the
// event carries a generic aggregate id.
func (e *EventEmitter) EmitWarning(ctx context.Context, message string) error {
	return e.publisher.Publish(ctx, newsdomain.NewExperimentWarningEvent("autostop", message))
}
