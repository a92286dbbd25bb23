package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the access request workflow.
type Metrics struct {
	RequestsCreated    prometheus.Counter
	IdempotentReplays  prometheus.Counter
	Transitions        *prometheus.CounterVec
	KeysReleased       *prometheus.CounterVec
	ActiveRequests     prometheus.Gauge
	LockWaitDuration   prometheus.Histogram
	DecisionLatency    prometheus.Histogram
	RejectedOperations *prometheus.CounterVec
}

// New registers access collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_access_requests_created_total",
			Help: "Access requests entering the requested state",
		}),
		IdempotentReplays: f.NewCounter(prometheus.CounterOpts{
			Name: "medvault_access_idempotent_replays_total",
			Help: "Create calls answered from a stored Idempotency-Key",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medvault_access_transitions_total",
			Help: "Access request transitions, labeled by target state",
		}, []string{"to"}),
		KeysReleased: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medvault_access_keys_released_total",
			Help: "Record keys handed out, labeled by the relation that allowed it",
		}, []string{"reason"}),
		ActiveRequests: f.NewGauge(prometheus.GaugeOpts{
			Name: "medvault_access_requests_active",
			Help: "Access requests currently awaiting a decision in this process",
		}),
		LockWaitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medvault_access_shard_lock_wait_seconds",
			Help:    "Time spent waiting for the per-record shard lock",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		DecisionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medvault_access_decision_duration_seconds",
			Help:    "Time from request creation to the owner's decision",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		RejectedOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medvault_access_rejected_total",
			Help: "Access operations refused, labeled by operation and error code",
		}, []string{"operation", "code"}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.RequestsCreated.Inc()
	m.ActiveRequests.Inc()
}

func (m *Metrics) IncrementReplay() {
	if m == nil {
		return
	}
	m.IdempotentReplays.Inc()
}

// ObserveTransition counts a move out of requested. decisionAge is the
// request's age when it was decided.
func (m *Metrics) ObserveTransition(to string, decisionAge time.Duration) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
	m.ActiveRequests.Dec()
	if to != "withdrawn" {
		m.DecisionLatency.Observe(decisionAge.Seconds())
	}
}

func (m *Metrics) IncrementKeyReleased(reason string) {
	if m == nil {
		return
	}
	m.KeysReleased.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementRejected(operation, code string) {
	if m == nil {
		return
	}
	m.RejectedOperations.WithLabelValues(operation, code).Inc()
}
