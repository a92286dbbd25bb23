package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for record operations.
type Metrics struct {
	RecordsCreated  prometheus.Counter
	CreateFailures  *prometheus.CounterVec
	CreateLatency   prometheus.Histogram
	RecordsOpened   prometheus.Counter
	OpenKeyFailures prometheus.Counter
}

// New registers record collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecordsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_records_created_total",
			Help: "Records anchored and persisted",
		}),
		CreateFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medvault_records_create_failures_total",
			Help: "Aborted record creations, labeled by failing stage",
		}, []string{"stage"}),
		CreateLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medvault_records_create_duration_seconds",
			Help:    "End-to-end record creation latency including the ledger anchor",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RecordsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_records_opened_total",
			Help: "Records decrypted through the open endpoint",
		}),
		OpenKeyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_records_open_invalid_key_total",
			Help: "Open attempts with a key that did not decrypt the record",
		}),
	}
}

func (m *Metrics) IncrementCreated(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RecordsCreated.Inc()
	m.CreateLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementCreateFailure(stage string) {
	if m == nil {
		return
	}
	m.CreateFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncrementOpened() {
	if m == nil {
		return
	}
	m.RecordsOpened.Inc()
}

func (m *Metrics) IncrementOpenKeyFailure() {
	if m == nil {
		return
	}
	m.OpenKeyFailures.Inc()
}
