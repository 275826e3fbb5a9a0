package outbox

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanad/internal/ledger/models"
)

type recordingProducer struct {
	topic   string
	key     []byte
	value   []byte
	headers map[string]string
}

func (p *recordingProducer) Publish(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	p.topic, p.key, p.value, p.headers = topic, key, value, headers
	return nil
}

func TestKafkaPublisherKeysByAggregate(t *testing.T) {
	producer := &recordingProducer{}
	entry := &models.OutboxEntry{
		ID:            uuid.New(),
		AggregateType: "policy",
		AggregateID:   "0b8e6f8e-3c1d-4f43-9a53-8d1c7a3c0a11",
		EventType:     models.EventCertificateIssued,
		Payload:       []byte(`{"sanad_id":4000}`),
	}

	require.NoError(t, NewKafkaPublisher(producer, "sanad.certificates.issued").Publish(context.Background(), entry))

	assert.Equal(t, "sanad.certificates.issued", producer.topic)
	assert.Equal(t, entry.AggregateID, string(producer.key))
	assert.JSONEq(t, `{"sanad_id":4000}`, string(producer.value))
	assert.Equal(t, entry.ID.String(), producer.headers["event_id"])
	assert.Equal(t, models.EventCertificateIssued, producer.headers["event_type"])
}
