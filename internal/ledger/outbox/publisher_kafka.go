package outbox

import (
	"context"

	"sanad/internal/ledger/models"
)

// RecordProducer is the broker client the Kafka publisher writes through.
type RecordProducer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// KafkaPublisher keys records by aggregate id so one policy's events share a
// partition and stay ordered.
type KafkaPublisher struct {
	producer RecordProducer
	topic    string
}

func NewKafkaPublisher(producer RecordProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entry *models.OutboxEntry) error {
	return p.producer.Publish(ctx, p.topic, []byte(entry.AggregateID), entry.Payload, map[string]string{
		"event_id":       entry.ID.String(),
		"event_type":     entry.EventType,
		"aggregate_type": entry.AggregateType,
	})
}
