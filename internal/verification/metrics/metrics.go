package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for record verification.
type Metrics struct {
	Verifications   *prometheus.CounterVec
	KeyFailures     prometheus.Counter
	LedgerCheckTime prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medvault_verifications_total",
			Help: "Completed verifications, labeled by outcome",
		}, []string{"outcome"}),
		KeyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_verification_invalid_key_total",
			Help: "Verifications refused because the key did not decrypt the record",
		}),
		LedgerCheckTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medvault_verification_ledger_check_seconds",
			Help:    "Duration of the ledger check inside a verification",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) ObserveOutcome(outcome string, ledgerTime time.Duration) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
	m.LedgerCheckTime.Observe(ledgerTime.Seconds())
}

func (m *Metrics) IncrementKeyFailure() {
	if m == nil {
		return
	}
	m.KeyFailures.Inc()
}
