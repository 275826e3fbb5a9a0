package service

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"sanad/internal/ledger/store"
	"sanad/pkg/platform/sentinel"
)

// runInTx runs fn in a store transaction, retrying the whole transaction when
// the store reports lock contention. fn must be safe to re-run: it sees fresh
// state on every attempt. Any other failure is returned immediately.
func (s *Service) runInTx(ctx context.Context, op string, fn func(tx store.Store) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.retryBase
	policy.MaxInterval = 20 * s.retryBase
	policy.MaxElapsedTime = 0

	retries := s.maxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithMaxRetries(policy, uint64(retries))

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if attempt > 1 {
			if s.metrics != nil {
				s.metrics.IncrementTxRetries()
			}
			s.logger.DebugContext(ctx, "retrying ledger transaction", "op", op, "attempt", attempt)
		}
		err := s.ledger.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}
