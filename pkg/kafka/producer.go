// Package kafka carries the NewsSaved domain event from the RSS
// ingestor to the embedding pipeline, decoupling "a story was saved"
// from "a story was embedded" the way the teacher's order/kitchen
// split decouples order placement from fulfillment.
package kafka

import (
	"github.com/IBM/sarama"
)

// Producer publishes domain events to a Kafka topic.
type Producer interface {
	PushToQueue(topic string, key string, message []byte) error
	Close() error
}

// ProducerConfig configures the Sarama sync producer.
type ProducerConfig struct {
	Brokers      []string
	RetryMax     int
	RequiredAcks string // none, local, all
}

// NewProducer builds a synchronous, idempotent-by-retry producer.
func NewProducer(cfg *ProducerConfig) (Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner

	switch cfg.RequiredAcks {
	case "none":
		saramaCfg.Producer.RequiredAcks = sarama.NoResponse
	case "local":
		saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	default:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	}
	saramaCfg.Producer.Retry.Max = cfg.RetryMax

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, err
	}

	return &saramaProducer{producer: producer}, nil
}

type saramaProducer struct {
	producer sarama.SyncProducer
}

// PushToQueue publishes message keyed by key (the news ID), so all
// events for one story land on the same partition and are consumed
// in order.
func (p *saramaProducer) PushToQueue(topic string, key string, message []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(message),
	}
	_, _, err := p.producer.SendMessage(msg)
	return err
}

func (p *saramaProducer) Close() error {
	return p.producer.Close()
}
