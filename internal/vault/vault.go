// Package vault owns per-record symmetric keys. It issues a key when a record
// is created and releases it on request; deciding who may receive a key is
// the caller's job.
package vault

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"time"

	"medvault/internal/vault/metrics"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/platform/sentinel"
)

// Store persists wrapped keys.
//
// Error contract: Insert returns sentinel.ErrConflict when a key exists for the
// record; Get and Delete return sentinel.ErrNotFound for unknown records.
type Store interface {
	Insert(ctx context.Context, key *WrappedKey) error
	Get(ctx context.Context, recordID id.RecordID) (*WrappedKey, error)
	Delete(ctx context.Context, recordID id.RecordID) error
}

// Vault issues, releases and discards record keys.
type Vault struct {
	store   Store
	wrapper *Wrapper
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Vault.
type Option func(*Vault)

func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Vault) {
		v.metrics = m
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithClock overrides the grant timestamp source.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// New creates a Vault.
func New(store Store, wrapper *Wrapper, opts ...Option) *Vault {
	v := &Vault{
		store:   store,
		wrapper: wrapper,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// IssueForCreation generates, wraps and stores a fresh key for recordID and
// returns the plaintext key. A second call for the same record is a Conflict.
func (v *Vault) IssueForCreation(ctx context.Context, recordID id.RecordID) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		v.fail("issue")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate record key")
	}

	nonce, ciphertext, err := v.wrapper.Wrap(recordID, key)
	if err != nil {
		v.fail("issue")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to wrap record key")
	}

	err = v.store.Insert(ctx, &WrappedKey{
		RecordID:   recordID,
		Nonce:      nonce,
		Ciphertext: ciphertext,
		CreatedAt:  v.now(),
	})
	if err != nil {
		v.fail("issue")
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "a key already exists for this record")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store record key")
	}

	v.metrics.IncrementIssued()
	return key, nil
}

// Release unwraps the key for recordID and binds it to granteeID. It does not
// check authorization and is safe to repeat: keys never change.
func (v *Vault) Release(ctx context.Context, recordID id.RecordID, granteeID id.SubjectID) (*KeyGrant, error) {
	wrapped, err := v.store.Get(ctx, recordID)
	if err != nil {
		v.fail("release")
		if errors.Is(err, sentinel.ErrNotFound) {
			v.logger.ErrorContext(ctx, "record has no vault key",
				"record_id", recordID.String(),
			)
			return nil, dErrors.New(dErrors.CodeInternal, "record key missing")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record key")
	}

	key, err := v.wrapper.Unwrap(recordID, wrapped.Nonce, wrapped.Ciphertext)
	if err != nil {
		v.fail("release")
		v.logger.ErrorContext(ctx, "vault key failed to unwrap",
			"record_id", recordID.String(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record key unreadable")
	}

	v.metrics.IncrementReleased()
	return &KeyGrant{
		RecordID:  recordID,
		GranteeID: granteeID,
		Key:       key,
		GrantedAt: v.now(),
	}, nil
}

// Discard removes the key of a record whose creation was aborted. Missing keys
// are not an error.
func (v *Vault) Discard(ctx context.Context, recordID id.RecordID) error {
	err := v.store.Delete(ctx, recordID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		v.fail("discard")
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to discard record key")
	}
	if err == nil {
		v.metrics.IncrementDiscarded()
	}
	return nil
}

func (v *Vault) fail(op string) {
	v.metrics.IncrementFailure(op)
}
