// Package outbox relays certificate events written in the issuance
// transaction to the message broker. Delivery is at least once: an entry is
// marked processed only after the broker acknowledged it.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sanad/internal/ledger/metrics"
	"sanad/internal/ledger/models"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 100
)

// Store reads and acknowledges pending outbox entries.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers one entry to the broker.
type Publisher interface {
	Publish(ctx context.Context, entry *models.OutboxEntry) error
}

// Worker polls the outbox and publishes entries in insertion order.
type Worker struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		w.now = now
	}
}

func New(store Store, publisher Publisher, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	w := &Worker{
		store:     store,
		publisher: publisher,
		logger:    slog.Default(),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run relays on every tick until ctx is cancelled. Relay failures are logged
// and retried on the next tick.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "outbox relay started", "interval", w.interval, "batch_size", w.batchSize)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "outbox relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := w.RelayOnce(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.logger.WarnContext(ctx, "outbox relay failed", "error", err)
					}
					break
				}
				// a full batch means more may be waiting
				if n < w.batchSize {
					break
				}
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were delivered.
// It stops at the first publish failure so later events for the same policy
// are never delivered ahead of earlier ones.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	entries, err := w.store.FetchPending(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	published := make([]uuid.UUID, 0, len(entries))
	var publishErr error
	for _, e := range entries {
		if err := w.publisher.Publish(ctx, e); err != nil {
			if w.metrics != nil {
				w.metrics.IncrementOutboxFailures()
			}
			publishErr = err
			break
		}
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err := w.store.MarkProcessed(ctx, published, w.now()); err != nil {
			return 0, errors.Join(publishErr, err)
		}
		if w.metrics != nil {
			w.metrics.IncrementOutboxPublished(len(published))
		}
		w.logger.DebugContext(ctx, "outbox entries published", "count", len(published))
	}
	return len(published), publishErr
}
