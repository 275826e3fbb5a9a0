package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventCertificateIssued is the outbox event type written on each issuance.
const EventCertificateIssued = "certificate_issued"

// OutboxEntry is an event waiting to be relayed to the message broker.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time
}

// CertificateIssuedEvent is the payload relayed for EventCertificateIssued.
type CertificateIssuedEvent struct {
	EventID     string       `json:"event_id"`
	EventType   string       `json:"event_type"`
	OccurredAt  time.Time    `json:"occurred_at"`
	RequestID   string       `json:"request_id,omitempty"`
	Certificate *Certificate `json:"certificate"`
}

// NewCertificateIssuedEntry builds the outbox row for a freshly issued certificate.
// The policy id is the aggregate so a partitioned topic keeps per-policy order.
func NewCertificateIssuedEntry(cert *Certificate, requestID string, now time.Time) (*OutboxEntry, error) {
	eventID := uuid.New()
	payload, err := json.Marshal(CertificateIssuedEvent{
		EventID:     eventID.String(),
		EventType:   EventCertificateIssued,
		OccurredAt:  now,
		RequestID:   requestID,
		Certificate: cert,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal certificate event: %w", err)
	}
	return &OutboxEntry{
		ID:            eventID,
		AggregateType: "policy",
		AggregateID:   cert.PolicyID.String(),
		EventType:     EventCertificateIssued,
		Payload:       payload,
		CreatedAt:     now,
	}, nil
}
