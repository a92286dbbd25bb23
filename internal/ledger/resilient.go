package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medvault/internal/platform/tracer"
	"medvault/pkg/platform/circuit"
)

// ErrCircuitOpen is the underlying cause when Resilient fails fast.
var ErrCircuitOpen = errors.New("ledger circuit open")

// Resilient decorates a Client with a circuit breaker, metrics, tracing and
// logs. Only retryable failures count against the breaker: a rejected
// fingerprint says nothing about the node's health.
type Resilient struct {
	next    Client
	breaker *circuit.Breaker
	metrics *Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
}

// ResilientOption configures Resilient.
type ResilientOption func(*Resilient)

func WithBreaker(b *circuit.Breaker) ResilientOption {
	return func(r *Resilient) {
		if b != nil {
			r.breaker = b
		}
	}
}

func WithMetrics(m *Metrics) ResilientOption {
	return func(r *Resilient) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) ResilientOption {
	return func(r *Resilient) {
		if t != nil {
			r.tracer = t
		}
	}
}

func WithLogger(l *slog.Logger) ResilientOption {
	return func(r *Resilient) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResilient wraps next.
func NewResilient(next Client, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		next:    next,
		breaker: circuit.New("ledger"),
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Anchor implements Client.
func (r *Resilient) Anchor(ctx context.Context, fingerprint string) (ref string, err error) {
	const op = "anchor"
	ctx, span := r.tracer.Start(ctx, tracer.SpanLedgerAnchor,
		tracer.String(tracer.AttrFingerprint, tracer.ShortFingerprint(fingerprint)),
	)
	defer func() { span.End(err) }()

	if !r.breaker.Allow() {
		span.SetAttributes(tracer.Bool(tracer.AttrCircuitOpen, true))
		r.metrics.observe(op, "circuit_open", 0)
		return "", NewError(CategoryUnavailable, op, "failing fast", ErrCircuitOpen)
	}

	start := time.Now()
	ref, err = r.next.Anchor(ctx, fingerprint)
	r.record(ctx, op, err, time.Since(start))
	if err == nil {
		span.SetAttributes(tracer.String(tracer.AttrAnchorRef, ref))
	}
	return ref, err
}

// Check implements Client.
func (r *Resilient) Check(ctx context.Context, ref, fingerprint string) (res CheckResult, err error) {
	const op = "check"
	ctx, span := r.tracer.Start(ctx, tracer.SpanLedgerCheck,
		tracer.String(tracer.AttrAnchorRef, ref),
		tracer.String(tracer.AttrFingerprint, tracer.ShortFingerprint(fingerprint)),
	)
	defer func() { span.End(err) }()

	if !r.breaker.Allow() {
		span.SetAttributes(tracer.Bool(tracer.AttrCircuitOpen, true))
		r.metrics.observe(op, "circuit_open", 0)
		return CheckResult{}, NewError(CategoryUnavailable, op, "failing fast", ErrCircuitOpen)
	}

	start := time.Now()
	res, err = r.next.Check(ctx, ref, fingerprint)
	r.record(ctx, op, err, time.Since(start))
	return res, err
}

func (r *Resilient) record(ctx context.Context, op string, err error, elapsed time.Duration) {
	if err == nil || !IsRetryable(err) {
		outcome := "ok"
		if err != nil {
			outcome = string(CategoryOf(err))
		}
		r.metrics.observe(op, outcome, elapsed.Seconds())
		if _, change := r.breaker.RecordSuccess(); change.Closed {
			r.metrics.setCircuitOpen(false)
			r.logger.InfoContext(ctx, "ledger circuit closed", "circuit", r.breaker.Name())
		}
		return
	}

	r.metrics.observe(op, string(CategoryOf(err)), elapsed.Seconds())
	r.logger.WarnContext(ctx, "ledger call failed",
		"operation", op,
		"category", string(CategoryOf(err)),
		"error", err,
		"duration_ms", elapsed.Milliseconds(),
	)
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.metrics.setCircuitOpen(true)
		r.logger.ErrorContext(ctx, "ledger circuit opened", "circuit", r.breaker.Name())
	}
}

// Ready reports an error while the circuit is open, for readiness probes.
func (r *Resilient) Ready(context.Context) error {
	if r.breaker.IsOpen() {
		return ErrCircuitOpen
	}
	return nil
}

var _ Client = (*Resilient)(nil)
