package outbox

//go:generate mockgen -source=worker.go -destination=mocks/mocks.go -package=mocks Store,Publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sanad/internal/ledger/metrics"
	"sanad/internal/ledger/models"
	"sanad/internal/ledger/outbox/mocks"
)

// =============================================================================
// Outbox Worker Test Suite
// =============================================================================

type WorkerSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	mockStore     *mocks.MockStore
	mockPublisher *mocks.MockPublisher
	metrics       *metrics.Metrics
	worker        *Worker
	now           time.Time
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockStore(s.ctrl)
	s.mockPublisher = mocks.NewMockPublisher(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.worker, err = New(s.mockStore, s.mockPublisher,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithBatchSize(10),
		WithInterval(5*time.Millisecond),
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
}

func (s *WorkerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func entries(n int) []*models.OutboxEntry {
	out := make([]*models.OutboxEntry, n)
	for i := range out {
		out[i] = &models.OutboxEntry{ID: uuid.New(), EventType: models.EventCertificateIssued, AggregateID: "p"}
	}
	return out
}

func (s *WorkerSuite) TestNew() {
	s.Run("nil store", func() {
		_, err := New(nil, s.mockPublisher)
		s.ErrorContains(err, "outbox store is required")
	})
	s.Run("nil publisher", func() {
		_, err := New(s.mockStore, nil)
		s.ErrorContains(err, "publisher is required")
	})
	s.Run("non-positive options keep defaults", func() {
		w, err := New(s.mockStore, s.mockPublisher, WithBatchSize(0), WithInterval(-1))
		s.Require().NoError(err)
		s.Equal(defaultBatchSize, w.batchSize)
		s.Equal(defaultInterval, w.interval)
	})
}

// =============================================================================
// RelayOnce
// =============================================================================

func (s *WorkerSuite) TestRelayOnce() {
	ctx := context.Background()

	s.Run("publishes in order and marks processed", func() {
		batch := entries(3)
		gomock.InOrder(
			s.mockStore.EXPECT().FetchPending(gomock.Any(), 10).Return(batch, nil),
			s.mockPublisher.EXPECT().Publish(gomock.Any(), batch[0]).Return(nil),
			s.mockPublisher.EXPECT().Publish(gomock.Any(), batch[1]).Return(nil),
			s.mockPublisher.EXPECT().Publish(gomock.Any(), batch[2]).Return(nil),
			s.mockStore.EXPECT().MarkProcessed(gomock.Any(),
				[]uuid.UUID{batch[0].ID, batch[1].ID, batch[2].ID}, s.now).Return(nil),
		)

		n, err := s.worker.RelayOnce(ctx)
		s.Require().NoError(err)
		s.Equal(3, n)
		s.Equal(3.0, testutil.ToFloat64(s.metrics.OutboxPublished))
	})

	s.Run("stops at first failure and keeps the rest pending", func() {
		batch := entries(3)
		boom := errors.New("broker down")
		gomock.InOrder(
			s.mockStore.EXPECT().FetchPending(gomock.Any(), 10).Return(batch, nil),
			s.mockPublisher.EXPECT().Publish(gomock.Any(), batch[0]).Return(nil),
			s.mockPublisher.EXPECT().Publish(gomock.Any(), batch[1]).Return(boom),
			s.mockStore.EXPECT().MarkProcessed(gomock.Any(), []uuid.UUID{batch[0].ID}, s.now).Return(nil),
		)

		n, err := s.worker.RelayOnce(ctx)
		s.ErrorIs(err, boom)
		s.Equal(1, n)
		s.Equal(1.0, testutil.ToFloat64(s.metrics.OutboxFailures))
	})

	s.Run("nothing pending", func() {
		s.mockStore.EXPECT().FetchPending(gomock.Any(), 10).Return(nil, nil)
		n, err := s.worker.RelayOnce(ctx)
		s.NoError(err)
		s.Zero(n)
	})

	s.Run("fetch failure", func() {
		s.mockStore.EXPECT().FetchPending(gomock.Any(), 10).Return(nil, errors.New("db gone"))
		_, err := s.worker.RelayOnce(ctx)
		s.ErrorContains(err, "db gone")
	})
}

// =============================================================================
// Run
// =============================================================================

func (s *WorkerSuite) TestRunStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	batch := entries(1)
	published := make(chan struct{})

	s.mockStore.EXPECT().FetchPending(gomock.Any(), 10).Return(batch, nil)
	s.mockPublisher.EXPECT().Publish(gomock.Any(), batch[0]).DoAndReturn(func(context.Context, *models.OutboxEntry) error {
		close(published)
		return nil
	})
	s.mockStore.EXPECT().MarkProcessed(gomock.Any(), []uuid.UUID{batch[0].ID}, s.now).Return(nil)
	s.mockStore.EXPECT().FetchPending(gomock.Any(), 10).Return(nil, nil).AnyTimes()

	done := make(chan error, 1)
	go func() { done <- s.worker.Run(ctx) }()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		s.FailNow("worker never published")
	}
	cancel()

	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.FailNow("worker did not stop")
	}
}
