package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for ledger calls.
type Metrics struct {
	Calls        *prometheus.CounterVec
	CallLatency  *prometheus.HistogramVec
	CircuitState prometheus.Gauge
}

// NewMetrics registers ledger collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medvault_ledger_calls_total",
			Help: "Ledger calls, labeled by operation and outcome category",
		}, []string{"operation", "outcome"}),
		CallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medvault_ledger_call_duration_seconds",
			Help:    "Latency of ledger calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		CircuitState: f.NewGauge(prometheus.GaugeOpts{
			Name: "medvault_ledger_circuit_open",
			Help: "1 while the ledger circuit breaker is open",
		}),
	}
}

func (m *Metrics) observe(op, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(op, outcome).Inc()
	m.CallLatency.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) setCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitState.Set(1)
		return
	}
	m.CircuitState.Set(0)
}
