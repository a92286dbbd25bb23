package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medvault/internal/access/idempotency"
	"medvault/internal/access/metrics"
	"medvault/internal/access/models"
	"medvault/internal/audit"
	recordmodels "medvault/internal/records/models"
	"medvault/internal/vault"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/platform/sentinel"
	"medvault/pkg/validation"
)

// Store persists access requests.
//
// Error Contract:
// - Create returns sentinel.ErrConflict when the pair has an active request
// - Get returns sentinel.ErrNotFound for unknown IDs
// - Transition returns sentinel.ErrNotFound or sentinel.ErrInvalidState when
//   the request is not in the expected state
type Store interface {
	Create(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	Transition(ctx context.Context, requestID id.RequestID, from, to models.State, at time.Time) (*models.Request, error)
	HasGranted(ctx context.Context, requesterID id.SubjectID, recordID id.RecordID) (bool, error)
	ListByOwner(ctx context.Context, ownerID id.SubjectID, filter models.Filter) ([]*models.Request, error)
	ListByRequester(ctx context.Context, requesterID id.SubjectID, filter models.Filter) ([]*models.Request, error)
}

// RecordLookup resolves the record a request targets. The record store
// satisfies it.
type RecordLookup interface {
	Get(ctx context.Context, recordID id.RecordID) (*recordmodels.Record, error)
}

// KeyReleaser hands out record keys. It never checks authorization.
type KeyReleaser interface {
	Release(ctx context.Context, recordID id.RecordID, granteeID id.SubjectID) (*vault.KeyGrant, error)
}

// Decision is the outcome of an approval: the granted request and the key
// released for its requester. The HTTP handler withholds Grant from the
// approving owner; the requester fetches the key with RetrieveKey.
type Decision struct {
	Request *models.Request
	Grant   *vault.KeyGrant
}

// Service runs the access request state machine and is the only caller of
// KeyReleaser.
type Service struct {
	store   Store
	tx      StoreTx
	records RecordLookup
	keys    KeyReleaser
	idem    idempotency.Store
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithIdempotency replaces the default in-memory Idempotency-Key store.
func WithIdempotency(store idempotency.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.idem = store
		}
	}
}

func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = p
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

const defaultIdempotencyTTL = 24 * time.Hour

func New(store Store, records RecordLookup, keys KeyReleaser, opts ...Option) *Service {
	s := &Service{
		store:   store,
		records: records,
		keys:    keys,
		idem:    idempotency.NewInMemory(defaultIdempotencyTTL),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(store, s.metrics)
	}
	return s
}

// CreateRequest opens a request for the caller on recordID. A non-empty
// idempotencyKey makes retries return the request the first call created.
func (s *Service) CreateRequest(ctx context.Context, caller id.Caller, recordID id.RecordID, idempotencyKey string) (*models.Request, error) {
	if err := caller.Require(id.CapAccessRequest); err != nil {
		return nil, s.reject(ctx, "create", err)
	}
	var scopedKey string
	if idempotencyKey != "" {
		if err := validation.CheckStringLength("idempotency_key", idempotencyKey, validation.MaxIdempotencyKeyLength); err != nil {
			return nil, err
		}
		scopedKey = idempotency.Key(caller.SubjectID, recordID, idempotencyKey)
		if prior, ok := s.replay(ctx, s.store, scopedKey); ok {
			return prior, nil
		}
	}

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, s.reject(ctx, "create", err)
	}
	if record.IsOwner(caller.SubjectID) || record.IsCreator(caller.SubjectID) {
		return nil, s.reject(ctx, "create", dErrors.New(dErrors.CodeForbidden, "requester already holds a key for this record"))
	}

	var (
		created  *models.Request
		replayed bool
	)
	err = s.tx.RunInTx(ctx, recordID, func(ctx context.Context, store Store) error {
		granted, err := store.HasGranted(ctx, caller.SubjectID, recordID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check existing grants")
		}
		if granted {
			return dErrors.New(dErrors.CodeForbidden, "requester already holds a key for this record")
		}

		req, err := models.NewRequest(id.NewRequestID(), caller.SubjectID, recordID, record.OwnerID, s.now().UTC())
		if err != nil {
			return err
		}
		if err := store.Create(ctx, req); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				if prior, ok := s.replay(ctx, store, scopedKey); ok {
					created, replayed = prior, true
					return nil
				}
				return dErrors.New(dErrors.CodeConflict, "an access request for this record is already pending")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save access request")
		}
		created = req
		if scopedKey != "" {
			if _, err := s.idem.Remember(ctx, scopedKey, req.ID); err != nil {
				s.logger.WarnContext(ctx, "failed to remember idempotency key",
					"request_id", req.ID.String(),
					"error", err,
				)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, "create", asDomain(err, "failed to create access request"))
	}
	if replayed {
		return created, nil
	}

	s.metrics.IncrementCreated()
	s.emitAudit(ctx, audit.Event{
		Action:        models.AuditActionAccessRequested,
		ActorID:       caller.SubjectID.String(),
		SubjectID:     record.OwnerID.String(),
		RecordID:      recordID.String(),
		AccessRequest: created.ID.String(),
	})
	s.logger.InfoContext(ctx, "access requested",
		"access_request_id", created.ID.String(),
		"record_id", recordID.String(),
	)
	return created, nil
}

// replay returns the request stored under key. Lookup failures and dangling
// entries count as a miss.
func (s *Service) replay(ctx context.Context, store Store, key string) (*models.Request, bool) {
	if key == "" {
		return nil, false
	}
	requestID, ok, err := s.idem.Lookup(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "idempotency lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	req, err := store.Get(ctx, requestID)
	if err != nil {
		return nil, false
	}
	s.metrics.IncrementReplay()
	return req, true
}

// Approve grants the request and releases the record key for its requester.
// If the key cannot be released the request stays requested.
func (s *Service) Approve(ctx context.Context, caller id.Caller, requestID id.RequestID) (*Decision, error) {
	var grant *vault.KeyGrant
	updated, err := s.transition(ctx, "approve", caller, requestID, models.StateGranted, ownerOnly(caller),
		func(ctx context.Context, req *models.Request) error {
			g, err := s.keys.Release(ctx, req.RecordID, req.RequesterID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to release record key")
			}
			grant = g
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementKeyReleased(models.AuditReasonGrant)
	s.emitAudit(ctx, audit.Event{
		Action:        models.AuditActionAccessGranted,
		ActorID:       caller.SubjectID.String(),
		SubjectID:     updated.OwnerID.String(),
		RecordID:      updated.RecordID.String(),
		AccessRequest: updated.ID.String(),
		Decision:      models.AuditDecisionGranted,
	})
	s.emitAudit(ctx, audit.Event{
		Action:        models.AuditActionKeyReleased,
		ActorID:       updated.RequesterID.String(),
		SubjectID:     updated.OwnerID.String(),
		RecordID:      updated.RecordID.String(),
		AccessRequest: updated.ID.String(),
		Reason:        models.AuditReasonGrant,
	})
	return &Decision{Request: updated, Grant: grant}, nil
}

// Decline refuses the request. No key material is touched.
func (s *Service) Decline(ctx context.Context, caller id.Caller, requestID id.RequestID) (*models.Request, error) {
	updated, err := s.transition(ctx, "decline", caller, requestID, models.StateDeclined, ownerOnly(caller), nil)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.Event{
		Action:        models.AuditActionAccessDeclined,
		ActorID:       caller.SubjectID.String(),
		SubjectID:     updated.OwnerID.String(),
		RecordID:      updated.RecordID.String(),
		AccessRequest: updated.ID.String(),
		Decision:      models.AuditDecisionDeclined,
	})
	return updated, nil
}

// Withdraw lets the requester cancel a pending request.
func (s *Service) Withdraw(ctx context.Context, caller id.Caller, requestID id.RequestID) (*models.Request, error) {
	updated, err := s.transition(ctx, "withdraw", caller, requestID, models.StateWithdrawn, requesterOnly(caller), nil)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, audit.Event{
		Action:        models.AuditActionAccessWithdrawn,
		ActorID:       caller.SubjectID.String(),
		SubjectID:     updated.OwnerID.String(),
		RecordID:      updated.RecordID.String(),
		AccessRequest: updated.ID.String(),
	})
	return updated, nil
}

func ownerOnly(caller id.Caller) func(*models.Request) error {
	return func(req *models.Request) error {
		if req.OwnerID != caller.SubjectID || !caller.Role.Can(id.CapAccessDecide) {
			return dErrors.New(dErrors.CodeForbidden, "only the record owner may decide this request")
		}
		return nil
	}
}

func requesterOnly(caller id.Caller) func(*models.Request) error {
	return func(req *models.Request) error {
		if req.RequesterID != caller.SubjectID || !caller.Role.Can(id.CapAccessWithdraw) {
			return dErrors.New(dErrors.CodeForbidden, "only the requester may withdraw this request")
		}
		return nil
	}
}

// transition moves a requested request to `to` under the record's lock.
// Checks run in order: existence, authorization, current state. before runs
// after the checks and before the write; its failure aborts the transition.
func (s *Service) transition(
	ctx context.Context,
	op string,
	caller id.Caller,
	requestID id.RequestID,
	to models.State,
	authorize func(*models.Request) error,
	before func(ctx context.Context, req *models.Request) error,
) (*models.Request, error) {
	if caller.SubjectID.IsNil() {
		return nil, s.reject(ctx, op, dErrors.New(dErrors.CodeUnauthorized, "missing caller identity"))
	}
	current, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, s.reject(ctx, op, translate(err, "failed to load access request"))
	}

	var updated *models.Request
	err = s.tx.RunInTx(ctx, current.RecordID, func(ctx context.Context, store Store) error {
		req, err := store.Get(ctx, requestID)
		if err != nil {
			return translate(err, "failed to load access request")
		}
		if err := authorize(req); err != nil {
			return err
		}
		if req.State != models.StateRequested {
			return dErrors.New(dErrors.CodeInvalidState, "access request is already "+string(req.State))
		}
		if before != nil {
			if err := before(ctx, req); err != nil {
				return err
			}
		}
		updated, err = store.Transition(ctx, requestID, models.StateRequested, to, s.now().UTC())
		if err != nil {
			return translate(err, "failed to update access request")
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(ctx, op, asDomain(err, "failed to update access request"))
	}

	s.metrics.ObserveTransition(string(to), updated.DecidedAt.Sub(updated.CreatedAt))
	s.logger.InfoContext(ctx, "access request "+string(to),
		"access_request_id", requestID.String(),
		"record_id", updated.RecordID.String(),
	)
	return updated, nil
}

// ListForOwner returns requests targeting the caller's records.
func (s *Service) ListForOwner(ctx context.Context, caller id.Caller, filter models.Filter) ([]*models.Request, error) {
	if err := caller.Require(id.CapAccessListOwner); err != nil {
		return nil, err
	}
	out, err := s.store.ListByOwner(ctx, caller.SubjectID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access requests")
	}
	return out, nil
}

// ListForRequester returns requests the caller issued.
func (s *Service) ListForRequester(ctx context.Context, caller id.Caller, filter models.Filter) ([]*models.Request, error) {
	if err := caller.Require(id.CapAccessListRequester); err != nil {
		return nil, err
	}
	out, err := s.store.ListByRequester(ctx, caller.SubjectID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list access requests")
	}
	return out, nil
}

// RetrieveKey releases the record key to its owner, its creator, or a
// requester holding a granted request. Keys never change, so repeated calls
// return the same key.
func (s *Service) RetrieveKey(ctx context.Context, caller id.Caller, recordID id.RecordID) (*vault.KeyGrant, error) {
	if caller.SubjectID.IsNil() {
		return nil, s.reject(ctx, "retrieve_key", dErrors.New(dErrors.CodeUnauthorized, "missing caller identity"))
	}
	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, s.reject(ctx, "retrieve_key", err)
	}

	var reason string
	switch {
	case record.IsOwner(caller.SubjectID):
		reason = models.AuditReasonOwner
	case record.IsCreator(caller.SubjectID):
		reason = models.AuditReasonCreator
	default:
		granted, err := s.store.HasGranted(ctx, caller.SubjectID, recordID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check access")
		}
		if !granted {
			return nil, s.reject(ctx, "retrieve_key", dErrors.New(dErrors.CodeForbidden, "no granted access to this record"))
		}
		reason = models.AuditReasonGrant
	}

	grant, err := s.keys.Release(ctx, recordID, caller.SubjectID)
	if err != nil {
		return nil, s.reject(ctx, "retrieve_key", dErrors.Wrap(err, dErrors.CodeInternal, "failed to release record key"))
	}

	s.metrics.IncrementKeyReleased(reason)
	s.emitAudit(ctx, audit.Event{
		Action:    models.AuditActionKeyReleased,
		ActorID:   caller.SubjectID.String(),
		SubjectID: record.OwnerID.String(),
		RecordID:  recordID.String(),
		Reason:    reason,
	})
	return grant, nil
}

func (s *Service) loadRecord(ctx context.Context, recordID id.RecordID) (*recordmodels.Record, error) {
	record, err := s.records.Get(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	return record, nil
}

// translate maps store sentinels to domain errors.
func translate(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "access request not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "access request is no longer pending")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "an access request for this record is already pending")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// asDomain keeps domain errors intact and wraps anything else, such as a
// failed commit, as internal.
func asDomain(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) reject(ctx context.Context, op string, err error) error {
	var de *dErrors.Error
	code := string(dErrors.CodeInternal)
	if errors.As(err, &de) {
		code = string(de.Code)
	}
	s.metrics.IncrementRejected(op, code)
	s.logger.WarnContext(ctx, "access operation rejected",
		"operation", op,
		"code", code,
		"error", err,
	)
	return err
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
