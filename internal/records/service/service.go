package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medvault/internal/audit"
	"medvault/internal/ledger"
	"medvault/internal/records"
	"medvault/internal/records/metrics"
	"medvault/internal/records/models"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/detail"
	"medvault/pkg/platform/sentinel"
	"medvault/pkg/validation"
)

// Store persists encrypted records.
//
// Error Contract:
// - Put returns sentinel.ErrConflict for a duplicate record ID
// - Get returns sentinel.ErrNotFound for unknown IDs
// - List methods return an empty slice when nothing matches
type Store interface {
	Put(ctx context.Context, record *models.Record) error
	Get(ctx context.Context, recordID id.RecordID) (*models.Record, error)
	ListByOwner(ctx context.Context, ownerID id.SubjectID) ([]*models.Record, error)
	ListByCreatorAuthority(ctx context.Context, authorityID id.AuthorityID) ([]*models.Record, error)
}

// KeyIssuer is the slice of the key vault used at record creation.
type KeyIssuer interface {
	IssueForCreation(ctx context.Context, recordID id.RecordID) ([]byte, error)
	Discard(ctx context.Context, recordID id.RecordID) error
}

// Opened is a decrypted record.
type Opened struct {
	Record   *models.Record
	Document *records.Document
}

// Service creates and reads encrypted records.
type Service struct {
	store   Store
	keys    KeyIssuer
	ledger  ledger.Client
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	limits  detail.Limits
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDetailLimits bounds the detail trees accepted by Create.
func WithDetailLimits(l detail.Limits) Option {
	return func(s *Service) {
		s.limits = l
	}
}

func New(store Store, keys KeyIssuer, ledgerClient ledger.Client, opts ...Option) *Service {
	s := &Service{
		store:  store,
		keys:   keys,
		ledger: ledgerClient,
		logger: slog.Default(),
		limits: detail.Limits{
			MaxDepth:   validation.MaxDetailDepth,
			MaxEntries: validation.MaxDetailEntries,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a key, seals the document, anchors its fingerprint and only
// then persists the record. The ledger is called exactly once; if anything
// fails after the key was issued, the key is discarded.
func (s *Service) Create(ctx context.Context, caller id.Caller, ownerID id.SubjectID, data *detail.Map) (*models.Record, error) {
	if err := caller.Require(id.CapRecordCreate); err != nil {
		return nil, err
	}
	if caller.AuthorityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "creator has no issuing health authority")
	}
	if ownerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "owner_id is required")
	}
	if data == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "data is required")
	}
	if err := data.Check(s.limits); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	start := s.now()
	recordID := id.NewRecordID()
	createdAt := start.UTC()

	key, err := s.keys.IssueForCreation(ctx, recordID)
	if err != nil {
		s.metrics.IncrementCreateFailure("vault")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue record key")
	}

	doc := &records.Document{
		RecordID:          recordID.String(),
		PatientID:         ownerID.String(),
		CreatorID:         caller.SubjectID.String(),
		HealthAuthorityID: caller.AuthorityID.String(),
		CreatedAt:         createdAt,
		Data:              data,
	}
	plaintext, fingerprint, err := doc.Encode()
	if err != nil {
		clear(key)
		s.abort(ctx, recordID, "encode")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode record")
	}
	payload, err := records.Seal(key, plaintext)
	clear(key)
	if err != nil {
		s.abort(ctx, recordID, "encrypt")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt record")
	}

	anchorRef, err := s.ledger.Anchor(ctx, fingerprint)
	if err != nil {
		s.abort(ctx, recordID, "anchor")
		s.logger.WarnContext(ctx, "record anchor failed",
			"record_id", recordID.String(),
			"category", string(ledger.CategoryOf(err)),
			"error", err,
		)
		if ledger.IsRetryable(err) {
			return nil, &dErrors.Error{Code: dErrors.CodeIndeterminate, Message: "ledger unavailable, record not created", Err: err}
		}
		return nil, &dErrors.Error{Code: dErrors.CodeInternal, Message: "ledger rejected record anchor", Err: err}
	}

	record, err := models.NewRecord(recordID, ownerID, caller.SubjectID, caller.AuthorityID, createdAt, anchorRef, payload)
	if err != nil {
		s.abort(ctx, recordID, "model")
		return nil, err
	}
	if err := s.store.Put(ctx, record); err != nil {
		s.abort(ctx, recordID, "store")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save record")
	}

	s.metrics.IncrementCreated(s.now().Sub(start))
	s.emitAudit(ctx, audit.Event{
		Action:    models.AuditActionRecordCreated,
		ActorID:   caller.SubjectID.String(),
		SubjectID: ownerID.String(),
		RecordID:  recordID.String(),
	})
	s.logger.InfoContext(ctx, "record created",
		"record_id", recordID.String(),
		"owner_id", ownerID.String(),
		"anchor_ref", anchorRef,
	)
	return record, nil
}

// abort discards the key of a creation that will not complete. A failed
// discard leaves an orphan key, which is logged but never surfaced.
func (s *Service) abort(ctx context.Context, recordID id.RecordID, stage string) {
	s.metrics.IncrementCreateFailure(stage)
	if err := s.keys.Discard(context.WithoutCancel(ctx), recordID); err != nil {
		s.logger.ErrorContext(ctx, "failed to discard key of aborted record",
			"record_id", recordID.String(),
			"stage", stage,
			"error", err,
		)
	}
}

// Get returns record metadata and ciphertext. Owners, creators, doctors and
// the issuing authority may view a record; other patients may not.
func (s *Service) Get(ctx context.Context, caller id.Caller, recordID id.RecordID) (*models.Record, error) {
	if caller.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing caller identity")
	}
	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if !canView(caller, record) {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller may not view this record")
	}
	return record, nil
}

func canView(caller id.Caller, record *models.Record) bool {
	switch {
	case record.IsOwner(caller.SubjectID), record.IsCreator(caller.SubjectID):
		return true
	case caller.Role.Can(id.CapRecordRead):
		return true
	case caller.Role.Can(id.CapRecordListAuthority):
		return !caller.AuthorityID.IsNil() && caller.AuthorityID == record.AuthorityID
	}
	return false
}

// ListByOwner returns the caller's own records, newest first.
func (s *Service) ListByOwner(ctx context.Context, caller id.Caller) ([]*models.Record, error) {
	if err := caller.Require(id.CapRecordReadOwn); err != nil {
		return nil, err
	}
	out, err := s.store.ListByOwner(ctx, caller.SubjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}
	return out, nil
}

// ListByCreatorAuthority returns records issued under the caller's authority.
func (s *Service) ListByCreatorAuthority(ctx context.Context, caller id.Caller) ([]*models.Record, error) {
	if err := caller.Require(id.CapRecordListAuthority); err != nil {
		return nil, err
	}
	if caller.AuthorityID.IsNil() {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not bound to a health authority")
	}
	out, err := s.store.ListByCreatorAuthority(ctx, caller.AuthorityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}
	return out, nil
}

// Open decrypts a record the caller may view. A key that does not decrypt the
// payload is InvalidKey.
func (s *Service) Open(ctx context.Context, caller id.Caller, recordID id.RecordID, key []byte) (*Opened, error) {
	record, err := s.Get(ctx, caller, recordID)
	if err != nil {
		return nil, err
	}
	plaintext, err := records.Open(key, record.Payload)
	if err != nil {
		s.metrics.IncrementOpenKeyFailure()
		return nil, dErrors.New(dErrors.CodeInvalidKey, "key does not decrypt this record")
	}
	doc, _, err := records.DecodeDocument(plaintext)
	if err != nil {
		s.logger.ErrorContext(ctx, "decrypted record is not a valid document",
			"record_id", recordID.String(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record payload is corrupt")
	}

	s.metrics.IncrementOpened()
	s.emitAudit(ctx, audit.Event{
		Action:    models.AuditActionRecordOpened,
		ActorID:   caller.SubjectID.String(),
		SubjectID: record.OwnerID.String(),
		RecordID:  recordID.String(),
	})
	return &Opened{Record: record, Document: doc}, nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
		)
	}
}
