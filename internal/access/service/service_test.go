package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medvault/internal/access/idempotency"
	"medvault/internal/access/metrics"
	"medvault/internal/access/models"
	"medvault/internal/access/service"
	"medvault/internal/access/service/mocks"
	accessstore "medvault/internal/access/store"
	"medvault/internal/audit"
	recordmodels "medvault/internal/records/models"
	recordstore "medvault/internal/records/store"
	"medvault/internal/vault"
	vaultstore "medvault/internal/vault/store"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/testutil"
)

// AccessServiceSuite covers the access request state machine.
//
// Invariants:
//   - at most one active request per (requester, record)
//   - a request leaves requested exactly once
//   - keys are released only to the owner, the creator, or a granted requester
type AccessServiceSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	records    *recordstore.InMemoryStore
	store      *accessstore.InMemoryStore
	vault      *vault.Vault
	auditStore *audit.InMemoryStore
	metrics    *metrics.Metrics
	service    *service.Service

	record    *recordmodels.Record
	owner     id.Caller
	creator   id.Caller
	requester id.Caller
}

func TestAccessServiceSuite(t *testing.T) {
	suite.Run(t, new(AccessServiceSuite))
}

func (s *AccessServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.records = recordstore.New()
	s.store = accessstore.New()
	s.auditStore = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())

	wrapper, err := vault.NewWrapper(bytes.Repeat([]byte{0x24}, vault.KeySize))
	s.Require().NoError(err)
	s.vault = vault.New(vaultstore.New(), wrapper)
	s.service = s.newService(s.vault)

	s.record = testutil.NewRecordBuilder().Build()
	s.Require().NoError(s.records.Put(s.ctx, s.record))
	_, err = s.vault.IssueForCreation(s.ctx, s.record.ID)
	s.Require().NoError(err)

	s.owner = testutil.Patient(testutil.TestIDs.Patient1)
	s.creator = testutil.Doctor(testutil.TestIDs.Doctor1, testutil.TestIDs.Authority1)
	s.requester = testutil.Doctor(testutil.TestIDs.Doctor2, testutil.TestIDs.Authority2)
}

func (s *AccessServiceSuite) newService(keys service.KeyReleaser) *service.Service {
	return service.New(s.store, s.records, keys,
		service.WithAuditor(audit.NewPublisher(s.auditStore)),
		service.WithMetrics(s.metrics),
		service.WithIdempotency(idempotency.NewInMemory(time.Hour)),
	)
}

func (s *AccessServiceSuite) request() *models.Request {
	req, err := s.service.CreateRequest(s.ctx, s.requester, s.record.ID, "")
	s.Require().NoError(err)
	return req
}

func (s *AccessServiceSuite) actions() []string {
	var out []string
	for _, e := range s.auditStore.All() {
		out = append(out, e.Action)
	}
	return out
}

func (s *AccessServiceSuite) TestCreateRequest() {
	req := s.request()

	s.Equal(models.StateRequested, req.State)
	s.Equal(s.requester.SubjectID, req.RequesterID)
	s.Equal(s.record.OwnerID, req.OwnerID)
	s.Nil(req.DecidedAt)
	s.Equal([]string{models.AuditActionAccessRequested}, s.actions())
	s.Equal(1.0, promtest.ToFloat64(s.metrics.RequestsCreated))
}

func (s *AccessServiceSuite) TestCreateRequestRejections() {
	s.request()

	tests := []struct {
		name     string
		caller   id.Caller
		recordID id.RecordID
		key      string
		code     dErrors.Code
	}{
		{"anonymous", id.Caller{Role: id.RoleDoctor}, s.record.ID, "", dErrors.CodeUnauthorized},
		{"patient lacks capability", s.owner, s.record.ID, "", dErrors.CodeForbidden},
		{"creator already holds key", s.creator, s.record.ID, "", dErrors.CodeForbidden},
		{"unknown record", s.requester, id.NewRecordID(), "", dErrors.CodeNotFound},
		{"pending request exists", s.requester, s.record.ID, "", dErrors.CodeConflict},
		{"idempotency key too long", s.requester, s.record.ID, strings.Repeat("k", 129), dErrors.CodeValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.service.CreateRequest(s.ctx, tt.caller, tt.recordID, tt.key)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	s.Equal(1.0, promtest.ToFloat64(s.metrics.RejectedOperations.WithLabelValues("create", string(dErrors.CodeConflict))))
}

func (s *AccessServiceSuite) TestCreateRequestIdempotent() {
	first, err := s.service.CreateRequest(s.ctx, s.requester, s.record.ID, "retry-1")
	s.Require().NoError(err)

	again, err := s.service.CreateRequest(s.ctx, s.requester, s.record.ID, "retry-1")
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.IdempotentReplays))

	_, err = s.service.CreateRequest(s.ctx, s.requester, s.record.ID, "retry-2")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Equal([]string{models.AuditActionAccessRequested}, s.actions())
}

func (s *AccessServiceSuite) TestConcurrentCreate() {
	s.Run("without idempotency key exactly one wins", func() {
		result := testutil.RunConcurrent(50, func(int) error {
			_, err := s.service.CreateRequest(s.ctx, s.requester, s.record.ID, "")
			return err
		})
		s.Equal(int32(1), result.Successes)
		s.Equal(int32(49), result.Conflicts)
		s.Zero(result.Errors)
	})

	s.Run("same idempotency key returns one request", func() {
		other := testutil.NewRecordBuilder().Build()
		s.Require().NoError(s.records.Put(s.ctx, other))

		var mu sync.Mutex
		seen := map[id.RequestID]struct{}{}
		result := testutil.RunConcurrent(50, func(int) error {
			req, err := s.service.CreateRequest(s.ctx, s.requester, other.ID, "same-key")
			if err != nil {
				return err
			}
			mu.Lock()
			seen[req.ID] = struct{}{}
			mu.Unlock()
			return nil
		})
		s.Equal(int32(50), result.Successes)
		s.Len(seen, 1)
	})
}

func (s *AccessServiceSuite) TestApprove() {
	req := s.request()

	decision, err := s.service.Approve(s.ctx, s.owner, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StateGranted, decision.Request.State)
	s.Require().NotNil(decision.Request.DecidedAt)
	s.Require().NotNil(decision.Grant)
	s.Equal(s.requester.SubjectID, decision.Grant.GranteeID)

	ownerKey, err := s.service.RetrieveKey(s.ctx, s.owner, s.record.ID)
	s.Require().NoError(err)
	s.Equal(ownerKey.Key, decision.Grant.Key)

	s.Equal([]string{
		models.AuditActionAccessRequested,
		models.AuditActionAccessGranted,
		models.AuditActionKeyReleased,
		models.AuditActionKeyReleased,
	}, s.actions())
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Transitions.WithLabelValues(string(models.StateGranted))))
}

func (s *AccessServiceSuite) TestApproveReleaseFailureKeepsRequestPending() {
	keys := mocks.NewMockKeyReleaser(s.ctrl)
	keys.EXPECT().Release(gomock.Any(), s.record.ID, s.requester.SubjectID).
		Return(nil, errors.New("vault unavailable"))
	svc := s.newService(keys)

	req := s.request()
	_, err := svc.Approve(s.ctx, s.owner, req.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.store.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StateRequested, stored.State)
	s.NotContains(s.actions(), models.AuditActionAccessGranted)
}

func (s *AccessServiceSuite) TestDecideAuthorization() {
	req := s.request()
	stranger := testutil.Patient(testutil.TestIDs.Patient2)

	s.Run("unknown request", func() {
		_, err := s.service.Approve(s.ctx, s.owner, id.NewRequestID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("anonymous", func() {
		_, err := s.service.Decline(s.ctx, id.Caller{Role: id.RolePatient}, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
	s.Run("another patient", func() {
		_, err := s.service.Approve(s.ctx, stranger, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("requester cannot approve", func() {
		_, err := s.service.Approve(s.ctx, s.requester, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("owner cannot withdraw", func() {
		_, err := s.service.Withdraw(s.ctx, s.owner, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("terminal states are final", func() {
		declined, err := s.service.Decline(s.ctx, s.owner, req.ID)
		s.Require().NoError(err)
		s.Equal(models.StateDeclined, declined.State)

		_, err = s.service.Approve(s.ctx, s.owner, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		_, err = s.service.Withdraw(s.ctx, s.requester, req.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *AccessServiceSuite) TestConcurrentDecisions() {
	req := s.request()

	result := testutil.RunConcurrent(50, func(idx int) error {
		switch idx % 3 {
		case 0:
			_, err := s.service.Approve(s.ctx, s.owner, req.ID)
			return err
		case 1:
			_, err := s.service.Decline(s.ctx, s.owner, req.ID)
			return err
		default:
			_, err := s.service.Withdraw(s.ctx, s.requester, req.ID)
			return err
		}
	})
	s.Equal(int32(1), result.Successes)
	s.Equal(int32(49), result.InvalidStates)
	s.Zero(result.Errors)

	stored, err := s.store.Get(s.ctx, req.ID)
	s.Require().NoError(err)
	s.True(stored.State.IsTerminal())
}

func (s *AccessServiceSuite) TestWithdrawAllowsNewRequest() {
	req := s.request()

	withdrawn, err := s.service.Withdraw(s.ctx, s.requester, req.ID)
	s.Require().NoError(err)
	s.Equal(models.StateWithdrawn, withdrawn.State)

	next := s.request()
	s.NotEqual(req.ID, next.ID)
}

func (s *AccessServiceSuite) TestGrantedRequesterCannotRequestAgain() {
	req := s.request()
	_, err := s.service.Approve(s.ctx, s.owner, req.ID)
	s.Require().NoError(err)

	_, err = s.service.CreateRequest(s.ctx, s.requester, s.record.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *AccessServiceSuite) TestRetrieveKey() {
	s.Run("owner and creator", func() {
		a, err := s.service.RetrieveKey(s.ctx, s.owner, s.record.ID)
		s.Require().NoError(err)
		b, err := s.service.RetrieveKey(s.ctx, s.creator, s.record.ID)
		s.Require().NoError(err)
		s.Equal(a.Key, b.Key)
		s.Len(a.Key, vault.KeySize)
	})
	s.Run("requester before decision", func() {
		s.request()
		_, err := s.service.RetrieveKey(s.ctx, s.requester, s.record.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("unknown record", func() {
		_, err := s.service.RetrieveKey(s.ctx, s.owner, id.NewRecordID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
	s.Run("anonymous", func() {
		_, err := s.service.RetrieveKey(s.ctx, id.Caller{}, s.record.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Equal(1.0, promtest.ToFloat64(s.metrics.KeysReleased.WithLabelValues(models.AuditReasonOwner)))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.KeysReleased.WithLabelValues(models.AuditReasonCreator)))
}

func (s *AccessServiceSuite) TestLists() {
	req := s.request()
	other := testutil.NewRecordBuilder().Build()
	s.Require().NoError(s.records.Put(s.ctx, other))
	second, err := s.service.CreateRequest(s.ctx, s.requester, other.ID, "")
	s.Require().NoError(err)
	_, err = s.service.Decline(s.ctx, s.owner, second.ID)
	s.Require().NoError(err)

	inbox, err := s.service.ListForOwner(s.ctx, s.owner, models.Filter{})
	s.Require().NoError(err)
	s.Len(inbox, 2)

	pending, err := s.service.ListForOwner(s.ctx, s.owner, models.Filter{State: models.StateRequested})
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(req.ID, pending[0].ID)

	outbox, err := s.service.ListForRequester(s.ctx, s.requester, models.Filter{State: models.StateDeclined})
	s.Require().NoError(err)
	s.Require().Len(outbox, 1)
	s.Equal(second.ID, outbox[0].ID)

	_, err = s.service.ListForOwner(s.ctx, s.requester, models.Filter{})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.ListForRequester(s.ctx, s.owner, models.Filter{})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
