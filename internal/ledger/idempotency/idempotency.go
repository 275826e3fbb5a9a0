// Package idempotency lets clients retry certificate issuance safely. A
// request carrying an Idempotency-Key is executed once; retries with the same
// key and body replay the stored response.
package idempotency

import (
	"context"
	"errors"
	"time"
)

const (
	// HeaderKey is the request header carrying the client's key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks a response served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	// MaxKeyLength bounds accepted keys.
	MaxKeyLength = 255

	// pendingTTL bounds how long a crashed request can hold its key.
	pendingTTL = time.Minute
)

// ErrInFlight is returned by Reserve while another request holds the key.
var ErrInFlight = errors.New("idempotency key in flight")

// Record is a completed response kept for replay.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Store holds idempotency keys.
type Store interface {
	// Reserve claims key for a new request. It returns the stored record when
	// the key already completed, or ErrInFlight while it is still pending.
	// A nil record and nil error mean the caller owns the key.
	Reserve(ctx context.Context, key, fingerprint string) (*Record, error)
	// Complete stores the response for key until ttl elapses.
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}
