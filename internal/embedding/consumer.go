package embedding

import (
	"context"
	"fmt"

	"github.com/ChaneHaDa/stocks-news-agent-sub001/internal/news/domain"
	"github.com/ChaneHaDa/stocks-news-agent-sub001/pkg/kafka"
)

// KafkaHandler returns a kafka.MessageHandler that decodes a
// NewsSaved event and runs it through the Pipeline, wiring
// HandleNewsSaved to the NewsSaved topic's consumer group.
func (p *Pipeline) KafkaHandler() kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		event, err := domain.EventFromJSON(value)
		if err != nil {
			return fmt.Errorf("embedding: decode event: %w", err)
		}
		if event.Type != domain.EventTypeNewsSaved {
			return nil
		}

		newsID, ok := event.Data["newsId"].(float64)
		if !ok {
			return fmt.Errorf("embedding: event %s missing numeric newsId", event.ID)
		}
		return p.HandleNewsSaved(ctx, int64(newsID))
	}
}
