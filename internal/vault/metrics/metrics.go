package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for key operations.
type Metrics struct {
	KeysIssued    prometheus.Counter
	KeysReleased  prometheus.Counter
	KeysDiscarded prometheus.Counter
	Failures      *prometheus.CounterVec
}

// New registers vault collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		KeysIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_vault_keys_issued_total",
			Help: "Record keys generated at record creation",
		}),
		KeysReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_vault_keys_released_total",
			Help: "Record keys released to a grantee",
		}),
		KeysDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_vault_keys_discarded_total",
			Help: "Record keys removed after an aborted record creation",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medvault_vault_failures_total",
			Help: "Vault operation failures, labeled by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementIssued() {
	if m == nil {
		return
	}
	m.KeysIssued.Inc()
}

func (m *Metrics) IncrementReleased() {
	if m == nil {
		return
	}
	m.KeysReleased.Inc()
}

func (m *Metrics) IncrementDiscarded() {
	if m == nil {
		return
	}
	m.KeysDiscarded.Inc()
}

func (m *Metrics) IncrementFailure(operation string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(operation).Inc()
}
