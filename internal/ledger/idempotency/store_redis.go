package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "sanad:idem:"

// entry is the stored JSON document. Pending entries have no record.
type entry struct {
	Pending     bool    `json:"pending"`
	Fingerprint string  `json:"fingerprint"`
	Record      *Record `json:"record,omitempty"`
}

// RedisStore keeps keys in Redis so every replica sees the same reservations.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Reserve uses SET NX so exactly one request wins a fresh key.
func (s *RedisStore) Reserve(ctx context.Context, key, fingerprint string) (*Record, error) {
	pending, err := json.Marshal(entry{Pending: true, Fingerprint: fingerprint})
	if err != nil {
		return nil, fmt.Errorf("marshal pending entry: %w", err)
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, pendingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// key expired between SETNX and GET
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode idempotency entry: %w", err)
	}
	if e.Pending || e.Record == nil {
		return nil, ErrInFlight
	}
	return e.Record, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error {
	raw, err := json.Marshal(entry{Fingerprint: rec.Fingerprint, Record: &rec})
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	return s.client.Set(ctx, keyPrefix+key, raw, ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
