package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventType identifies a domain event carried over Kafka or passed
// in-process between pipeline stages.
type EventType string

const (
	EventTypeNewsSaved      EventType = "news.saved"
	EventTypeNewsScored     EventType = "news.scored"
	EventTypeNewsEmbedded   EventType = "news.embedded"
	EventTypeNewsClustered  EventType = "news.clustered"
	EventTypeExperimentWarn EventType = "experiment.autostop_warning"
)

// DomainEvent is the envelope published to Kafka's news.saved topic
// and reused in-process for the embedding/clustering handoffs.
type DomainEvent struct {
	ID          string                 `json:"id"`
	Type        EventType              `json:"type"`
	AggregateID string                 `json:"aggregateId"`
	Data        map[string]interface{} `json:"data"`
	Timestamp   time.Time              `json:"timestamp"`
}

// NewDomainEvent stamps a fresh event ID and timestamp.
func NewDomainEvent(eventType EventType, aggregateID string, data map[string]interface{}) *DomainEvent {
	return &DomainEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		Data:        data,
		Timestamp:   time.Now().UTC(),
	}
}

// ToJSON serializes the event for the Kafka producer.
func (e *DomainEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON deserializes an event read off a Kafka claim.
func EventFromJSON(data []byte) (*DomainEvent, error) {
	var event DomainEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// NewNewsSavedEvent is emitted by the RSS Ingestor once a News row is
// committed, triggering the embedding pipeline.
func NewNewsSavedEvent(n *News) *DomainEvent {
	data := map[string]interface{}{
		"newsId": n.ID,
		"source": n.Source,
		"title":  n.Title,
		"lang":   n.Lang,
	}
	return NewDomainEvent(EventTypeNewsSaved, newsAggregateID(n.ID), data)
}

// NewNewsEmbeddedEvent is emitted once the embedding pipeline stores a
// NewsEmbedding, so the clustering batch's lookback window can pick it
// up without a full table scan.
func NewNewsEmbeddedEvent(e *NewsEmbedding) *DomainEvent {
	data := map[string]interface{}{
		"newsId":       e.NewsID,
		"modelVersion": e.ModelVersion,
		"dimension":    len(e.Vector),
	}
	return NewDomainEvent(EventTypeNewsEmbedded, newsAggregateID(e.NewsID), data)
}

// NewExperimentWarningEvent is emitted when the auto-stop monitor
// disables a degrading experiment variant.
func NewExperimentWarningEvent(experimentKey, message string) *DomainEvent {
	data := map[string]interface{}{
		"experimentKey": experimentKey,
		"message":       message,
	}
	return NewDomainEvent(EventTypeExperimentWarn, "experiment-"+experimentKey, data)
}

func newsAggregateID(id int64) string {
	return "news-" + strconv.FormatInt(id, 10)
}
