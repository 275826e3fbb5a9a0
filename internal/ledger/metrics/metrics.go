package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CertificatesIssued prometheus.Counter
	IssuanceRejected   *prometheus.CounterVec
	IssuanceDuration   prometheus.Histogram
	IssuedValue        prometheus.Counter
	TxRetries          prometheus.Counter
	DuplicateWarnings  prometheus.Counter
	OutboxPublished    prometheus.Counter
	OutboxFailures     prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CertificatesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "sanad_certificates_issued_total",
			Help: "Total number of certificates issued",
		}),
		IssuanceRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sanad_issuance_rejected_total",
			Help: "Issuance attempts rejected, by error code and the step that failed",
		}, []string{"reason", "step"}),
		IssuanceDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sanad_issuance_duration_seconds",
			Help:    "Latency of certificate issuance including retries",
			Buckets: prometheus.DefBuckets,
		}),
		IssuedValue: f.NewCounter(prometheus.CounterOpts{
			Name: "sanad_issued_value_total",
			Help: "Sum of certificate values issued",
		}),
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "sanad_tx_retries_total",
			Help: "Ledger transactions retried after lock contention",
		}),
		DuplicateWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "sanad_duplicate_warnings_total",
			Help: "Issuances that carried at least one duplicate cottage warning",
		}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "sanad_outbox_published_total",
			Help: "Outbox events published to the broker",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "sanad_outbox_failures_total",
			Help: "Outbox publish attempts that failed",
		}),
	}
}

func (m *Metrics) ObserveIssued(value int64, started time.Time) {
	m.CertificatesIssued.Inc()
	m.IssuedValue.Add(float64(value))
	m.IssuanceDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ObserveRejected(reason, step string) {
	m.IssuanceRejected.WithLabelValues(reason, step).Inc()
}

func (m *Metrics) IncrementTxRetries() {
	m.TxRetries.Inc()
}

func (m *Metrics) IncrementDuplicateWarnings() {
	m.DuplicateWarnings.Inc()
}

func (m *Metrics) IncrementOutboxPublished(n int) {
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxFailures() {
	m.OutboxFailures.Inc()
}
