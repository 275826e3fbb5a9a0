// Package service implements the certificate ledger: companies, policies,
// sanad sequencing, duplicate cottage detection and certificate issuance.
//
// CertificateIssuer (IssueCertificate) is the only writer of policy balances
// and certificates. Every issuance runs in one store transaction covering the
// balance check, the decrement, identifier allocation and the certificate
// insert, so the ledger invariants hold under concurrent callers:
//
//   - remaining_value == total_value - sum(certificate.value) per policy
//   - remaining_value never goes negative
//   - sanad ids are unique, strictly increasing, and start at 4000
//   - company names are unique
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"sanad/internal/ledger/metrics"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
	"sanad/pkg/requestcontext"
)

const (
	defaultMaxRetries = 5
	tracerName        = "sanad/ledger"
)

// Service orchestrates the ledger over a transactional store.
type Service struct {
	ledger        store.Ledger
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	matchMode     MatchMode
	maxRetries    int
	retryBase     time.Duration
	eventsEnabled bool
	newPolicyID   func() id.PolicyID
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithDuplicateMatchMode selects the cottage duplicate heuristic.
func WithDuplicateMatchMode(mode MatchMode) Option {
	return func(s *Service) {
		s.matchMode = mode
	}
}

// WithMaxRetries bounds how often a transaction is retried after contention.
func WithMaxRetries(n int) Option {
	return func(s *Service) {
		s.maxRetries = n
	}
}

// WithRetryBase sets the first backoff interval between contention retries.
func WithRetryBase(d time.Duration) Option {
	return func(s *Service) {
		s.retryBase = d
	}
}

// WithEvents makes issuance append a certificate_issued outbox entry in the
// same transaction as the certificate.
func WithEvents(enabled bool) Option {
	return func(s *Service) {
		s.eventsEnabled = enabled
	}
}

// WithPolicyIDGenerator overrides policy id generation.
func WithPolicyIDGenerator(gen func() id.PolicyID) Option {
	return func(s *Service) {
		s.newPolicyID = gen
	}
}

// New constructs a Service.
func New(ledger store.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:      ledger,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		matchMode:   MatchSubstring,
		maxRetries:  defaultMaxRetries,
		retryBase:   10 * time.Millisecond,
		newPolicyID: id.NewPolicyID,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.matchMode != MatchSubstring {
		s.logger.Info("duplicate detection uses non-default match mode", "mode", s.matchMode)
	}
	return s
}

// translate maps store failures to coded errors. Coded errors pass through.
func translate(err error, msg string) error {
	if err == nil {
		return nil
	}
	var coded *dErrors.Error
	switch {
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger busy")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger operation timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}
