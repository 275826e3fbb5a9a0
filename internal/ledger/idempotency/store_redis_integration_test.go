//go:build integration

package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"sanad/internal/ledger/idempotency"
	"sanad/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *idempotency.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = idempotency.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestReserveCompleteReplay() {
	ctx := context.Background()

	rec, err := s.store.Reserve(ctx, "k", "fp")
	s.Require().NoError(err)
	s.Nil(rec)

	_, err = s.store.Reserve(ctx, "k", "fp")
	s.ErrorIs(err, idempotency.ErrInFlight)

	s.Require().NoError(s.store.Complete(ctx, "k", idempotency.Record{
		Fingerprint: "fp", Status: 201, ContentType: "application/json", Body: []byte(`{"sanad_id":4000}`),
	}, time.Minute))

	rec, err = s.store.Reserve(ctx, "k", "fp")
	s.Require().NoError(err)
	s.Require().NotNil(rec)
	s.Equal(201, rec.Status)
	s.JSONEq(`{"sanad_id":4000}`, string(rec.Body))

	ttl, err := s.redis.Client.TTL(ctx, "sanad:idem:k").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 30*time.Second)
}

func (s *RedisStoreSuite) TestReleaseFreesKey() {
	ctx := context.Background()
	_, err := s.store.Reserve(ctx, "k", "fp")
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(ctx, "k"))

	rec, err := s.store.Reserve(ctx, "k", "fp")
	s.Require().NoError(err)
	s.Nil(rec)
}

func (s *RedisStoreSuite) TestConcurrentReserveHasOneWinner() {
	ctx := context.Background()
	const goroutines = 30
	var wg sync.WaitGroup
	var winners, inFlight atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.store.Reserve(ctx, "race", "fp")
			switch {
			case err == nil && rec == nil:
				winners.Add(1)
			case err != nil:
				inFlight.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), winners.Load())
	s.Equal(int32(goroutines-1), inFlight.Load())
}
