package kafka

import (
	"context"

	"github.com/IBM/sarama"
)

// MessageHandler processes one event payload. Returning an error
// leaves the offset uncommitted so the group rebalances the message
// to another consumer, matching the embedding pipeline's at-least-once
// contract: missed events are caught by a periodic backlog drain,
// not silently dropped.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Consumer consumes a topic as part of a named consumer group.
type Consumer interface {
	Consume(ctx context.Context, topics []string, handler MessageHandler) error
	Close() error
}

// ConsumerConfig configures the Sarama consumer group.
type ConsumerConfig struct {
	Brokers         []string
	ConsumerGroup   string
	AutoOffsetReset string // earliest, latest
}

// NewConsumer builds a consumer-group-backed Consumer.
func NewConsumer(cfg *ConsumerConfig) (Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	if cfg.AutoOffsetReset == "earliest" {
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &saramaConsumer{group: group}, nil
}

type saramaConsumer struct {
	group sarama.ConsumerGroup
}

// Consume joins the group and dispatches every message to handler
// until ctx is canceled. It blocks, so callers run it in a goroutine.
func (c *saramaConsumer) Consume(ctx context.Context, topics []string, handler MessageHandler) error {
	h := &groupHandler{handler: handler}
	for {
		if err := c.group.Consume(ctx, topics, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *saramaConsumer) Close() error {
	return c.group.Close()
}

// groupHandler adapts a MessageHandler to sarama.ConsumerGroupHandler.
type groupHandler struct {
	handler MessageHandler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handler(sess.Context(), msg.Key, msg.Value); err != nil {
			continue
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
