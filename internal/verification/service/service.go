package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medvault/internal/ledger"
	"medvault/internal/platform/tracer"
	"medvault/internal/records"
	recordmodels "medvault/internal/records/models"
	"medvault/internal/verification/metrics"
	"medvault/internal/verification/models"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/platform/sentinel"
)

// RecordLookup loads records by ID. The record store satisfies it.
type RecordLookup interface {
	Get(ctx context.Context, recordID id.RecordID) (*recordmodels.Record, error)
}

const defaultTimeout = 5 * time.Second

// Service checks a record's decrypted content against its ledger anchor.
// Results are computed per call and never cached.
type Service struct {
	records RecordLookup
	ledger  ledger.Client
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Service)

// WithTimeout bounds each ledger check.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(recordLookup RecordLookup, ledgerClient ledger.Client, opts ...Option) *Service {
	s := &Service{
		records: recordLookup,
		ledger:  ledgerClient,
		tracer:  tracer.NewNoop(),
		logger:  slog.Default(),
		timeout: defaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify decrypts the record with key, fingerprints the plaintext and asks the
// ledger whether it matches the anchored fingerprint.
//
// Ledger trouble is reported as an indeterminate outcome, not an error.
// Errors are returned for unknown records, keys that do not decrypt the
// payload, and cancellation of ctx by the caller.
func (s *Service) Verify(ctx context.Context, caller id.Caller, recordID id.RecordID, key []byte) (result *models.Result, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanVerify,
		tracer.String(tracer.AttrRecordID, recordID.String()),
	)
	defer func() { span.End(err) }()

	if err := caller.Require(id.CapVerify); err != nil {
		return nil, err
	}
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}

	plaintext, err := records.Open(key, record.Payload)
	if err != nil {
		s.metrics.IncrementKeyFailure()
		return nil, dErrors.New(dErrors.CodeInvalidKey, "key does not decrypt this record")
	}
	_, fingerprint, err := records.DecodeDocument(plaintext)
	clear(plaintext)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record payload is corrupt")
	}
	span.SetAttributes(
		tracer.String(tracer.AttrAnchorRef, record.AnchorRef),
		tracer.String(tracer.AttrFingerprint, tracer.ShortFingerprint(fingerprint)),
	)

	checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := s.now()
	check, checkErr := s.ledger.Check(checkCtx, record.AnchorRef, fingerprint)
	elapsed := s.now().Sub(start)

	if checkErr != nil && ctx.Err() != nil {
		return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "verification cancelled")
	}

	result = &models.Result{
		RecordID:  recordID,
		CheckedAt: s.now().UTC(),
	}
	switch {
	case checkErr == nil && check.Match:
		result.Outcome = models.OutcomeValid
		result.Explanation = check.Explanation
	case checkErr == nil:
		result.Outcome = models.OutcomeInvalid
		result.Explanation = check.Explanation
	default:
		result.Outcome = models.OutcomeIndeterminate
		result.Retryable = ledger.IsRetryable(checkErr)
		result.Explanation = indeterminateExplanation(checkErr)
		s.logger.WarnContext(ctx, "ledger check failed",
			"record_id", recordID.String(),
			"category", string(ledger.CategoryOf(checkErr)),
			"retryable", result.Retryable,
			"error", checkErr,
		)
	}

	span.SetAttributes(tracer.String(tracer.AttrOutcome, string(result.Outcome)))
	s.metrics.ObserveOutcome(string(result.Outcome), elapsed)
	s.logger.InfoContext(ctx, "record verified",
		"record_id", recordID.String(),
		"outcome", string(result.Outcome),
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func indeterminateExplanation(err error) string {
	category := ledger.CategoryOf(err)
	switch category {
	case ledger.CategoryTimeout:
		return "ledger did not answer in time"
	case ledger.CategoryUnavailable, ledger.CategoryRateLimited:
		return fmt.Sprintf("ledger is %s; retry later", category)
	}
	return fmt.Sprintf("ledger could not check the anchor (%s)", category)
}
