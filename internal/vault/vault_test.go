package vault_test

//go:generate mockgen -source=vault.go -destination=mocks/mocks.go -package=mocks Store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medvault/internal/vault"
	vaultmetrics "medvault/internal/vault/metrics"
	"medvault/internal/vault/mocks"
	"medvault/internal/vault/store"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/platform/sentinel"
)

// VaultSuite covers the key lifecycle.
//
// Invariants:
//   - a record has at most one key; issuing twice is a Conflict
//   - Release never re-checks authorization and returns the same key every time
//   - a missing or unreadable key is an internal error, never NotFound
type VaultSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	wrapper  *vault.Wrapper
	metrics  *vaultmetrics.Metrics
	memStore *store.InMemoryStore
	vault    *vault.Vault
	now      time.Time
}

func TestVaultSuite(t *testing.T) {
	suite.Run(t, new(VaultSuite))
}

func (s *VaultSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	w, err := vault.NewWrapper(bytes.Repeat([]byte{0x11}, vault.KeySize))
	s.Require().NoError(err)
	s.wrapper = w
	s.metrics = vaultmetrics.New(prometheus.NewRegistry())
	s.memStore = store.New()
	s.now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.vault = s.newVault(s.memStore)
}

func (s *VaultSuite) newVault(st vault.Store) *vault.Vault {
	return vault.New(st, s.wrapper,
		vault.WithMetrics(s.metrics),
		vault.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		vault.WithClock(func() time.Time { return s.now }),
	)
}

// =============================================================================
// IssueForCreation
// =============================================================================

func (s *VaultSuite) TestIssueStoresOnlyWrappedKey() {
	recordID := id.NewRecordID()

	key, err := s.vault.IssueForCreation(s.ctx, recordID)
	s.Require().NoError(err)
	s.Len(key, vault.KeySize)

	stored, err := s.memStore.Get(s.ctx, recordID)
	s.Require().NoError(err)
	s.NotEqual(key, stored.Ciphertext)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.KeysIssued))
}

func (s *VaultSuite) TestIssueTwiceIsConflict() {
	recordID := id.NewRecordID()
	_, err := s.vault.IssueForCreation(s.ctx, recordID)
	s.Require().NoError(err)

	_, err = s.vault.IssueForCreation(s.ctx, recordID)

	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *VaultSuite) TestIssueStoreFailureIsInternal() {
	mockStore := mocks.NewMockStore(s.ctrl)
	mockStore.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err := s.newVault(mockStore).IssueForCreation(s.ctx, id.NewRecordID())

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

// =============================================================================
// Release
// =============================================================================

func (s *VaultSuite) TestReleaseReturnsIssuedKey() {
	recordID := id.NewRecordID()
	grantee := id.NewSubjectID()
	key, err := s.vault.IssueForCreation(s.ctx, recordID)
	s.Require().NoError(err)

	grant, err := s.vault.Release(s.ctx, recordID, grantee)

	s.Require().NoError(err)
	s.Equal(key, grant.Key)
	s.Equal(recordID, grant.RecordID)
	s.Equal(grantee, grant.GranteeID)
	s.Equal(s.now, grant.GrantedAt)
}

func (s *VaultSuite) TestConcurrentReleaseIsIdempotent() {
	recordID := id.NewRecordID()
	key, err := s.vault.IssueForCreation(s.ctx, recordID)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			grant, err := s.vault.Release(s.ctx, recordID, id.NewSubjectID())
			s.NoError(err)
			if grant != nil {
				s.Equal(key, grant.Key)
			}
		})
	}
	wg.Wait()
}

func (s *VaultSuite) TestReleaseMissingKeyIsInternal() {
	_, err := s.vault.Release(s.ctx, id.NewRecordID(), id.NewSubjectID())

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *VaultSuite) TestReleaseUnreadableKeyIsInternal() {
	recordID := id.NewRecordID()
	mockStore := mocks.NewMockStore(s.ctrl)
	mockStore.EXPECT().Get(gomock.Any(), recordID).Return(&vault.WrappedKey{
		RecordID:   recordID,
		Nonce:      make([]byte, 24),
		Ciphertext: []byte("garbage"),
	}, nil)

	_, err := s.newVault(mockStore).Release(s.ctx, recordID, id.NewSubjectID())

	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.ErrorIs(err, vault.ErrUnwrap)
}

// =============================================================================
// Discard
// =============================================================================

func (s *VaultSuite) TestDiscard() {
	recordID := id.NewRecordID()
	_, err := s.vault.IssueForCreation(s.ctx, recordID)
	s.Require().NoError(err)

	s.Require().NoError(s.vault.Discard(s.ctx, recordID))
	_, err = s.memStore.Get(s.ctx, recordID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.NoError(s.vault.Discard(s.ctx, recordID), "discarding twice is a no-op")
}
