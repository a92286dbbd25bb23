package service_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,KeyIssuer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medvault/internal/audit"
	"medvault/internal/ledger"
	ledgermocks "medvault/internal/ledger/mocks"
	"medvault/internal/records"
	"medvault/internal/records/metrics"
	"medvault/internal/records/models"
	"medvault/internal/records/service"
	"medvault/internal/records/service/mocks"
	recordstore "medvault/internal/records/store"
	"medvault/internal/vault"
	vaultstore "medvault/internal/vault/store"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/detail"
	"medvault/pkg/platform/sentinel"
)

// RecordServiceSuite covers record creation and reads.
//
// Invariants:
//   - the ledger is asked to anchor exactly once per created record
//   - nothing is persisted and the key is discarded when anchoring fails
//   - patients never see other patients' records
type RecordServiceSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	ledger     *ledgermocks.MockClient
	vault      *vault.Vault
	keyStore   *vaultstore.InMemoryStore
	store      *recordstore.InMemoryStore
	auditStore *audit.InMemoryStore
	metrics    *metrics.Metrics
	service    *service.Service

	authority id.AuthorityID
	doctor    id.Caller
	patient   id.Caller
}

func TestRecordServiceSuite(t *testing.T) {
	suite.Run(t, new(RecordServiceSuite))
}

func (s *RecordServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.ledger = ledgermocks.NewMockClient(s.ctrl)

	wrapper, err := vault.NewWrapper(bytes.Repeat([]byte{0x42}, vault.KeySize))
	s.Require().NoError(err)
	s.keyStore = vaultstore.New()
	s.vault = vault.New(s.keyStore, wrapper)
	s.store = recordstore.New()
	s.auditStore = audit.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = s.newService(s.store, s.vault)

	s.authority = id.NewAuthorityID()
	s.doctor = id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleDoctor, AuthorityID: s.authority}
	s.patient = id.Caller{SubjectID: id.NewSubjectID(), Role: id.RolePatient}
}

func (s *RecordServiceSuite) newService(store service.Store, keys service.KeyIssuer) *service.Service {
	return service.New(store, keys, s.ledger,
		service.WithAuditor(audit.NewPublisher(s.auditStore)),
		service.WithMetrics(s.metrics),
		service.WithClock(func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }),
	)
}

func sampleData() *detail.Map {
	return detail.NewMap().
		Set("diagnosis", detail.String("influenza")).
		Set("temperature", detail.Number("38.6"))
}

func (s *RecordServiceSuite) createRecord() (*models.Record, []byte) {
	s.ledger.EXPECT().Anchor(gomock.Any(), gomock.Any()).Return("ref-1", nil)
	rec, err := s.service.Create(s.ctx, s.doctor, s.patient.SubjectID, sampleData())
	s.Require().NoError(err)
	grant, err := s.vault.Release(s.ctx, rec.ID, s.doctor.SubjectID)
	s.Require().NoError(err)
	return rec, grant.Key
}

// =============================================================================
// Create
// =============================================================================

func (s *RecordServiceSuite) TestCreate() {
	s.Run("anchors the fingerprint of the sealed document once", func() {
		var anchored string
		s.ledger.EXPECT().Anchor(gomock.Any(), gomock.Any()).Times(1).
			DoAndReturn(func(_ context.Context, fp string) (string, error) {
				anchored = fp
				return "ref-42", nil
			})

		rec, err := s.service.Create(s.ctx, s.doctor, s.patient.SubjectID, sampleData())
		s.Require().NoError(err)
		s.Equal("ref-42", rec.AnchorRef)
		s.Equal(s.patient.SubjectID, rec.OwnerID)
		s.Equal(s.doctor.SubjectID, rec.CreatorID)
		s.Equal(s.authority, rec.AuthorityID)

		grant, err := s.vault.Release(s.ctx, rec.ID, s.doctor.SubjectID)
		s.Require().NoError(err)
		plaintext, err := records.Open(grant.Key, rec.Payload)
		s.Require().NoError(err)
		doc, fp, err := records.DecodeDocument(plaintext)
		s.Require().NoError(err)
		s.Equal(anchored, fp)
		s.Equal(rec.ID.String(), doc.RecordID)
		s.Equal([]string{"diagnosis", "temperature"}, doc.Data.Keys())

		stored, err := s.store.Get(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(rec.Payload, stored.Payload)

		events := s.auditStore.All()
		s.Require().NotEmpty(events)
		last := events[len(events)-1]
		s.Equal("record_created", last.Action)
		s.Equal(s.patient.SubjectID.String(), last.SubjectID)
		s.InDelta(1, testutil.ToFloat64(s.metrics.RecordsCreated), 0)
	})

	s.Run("patients cannot create records", func() {
		_, err := s.service.Create(s.ctx, s.patient, s.patient.SubjectID, sampleData())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("doctor without authority is forbidden", func() {
		orphan := id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleDoctor}
		_, err := s.service.Create(s.ctx, orphan, s.patient.SubjectID, sampleData())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("missing owner or data is a validation error", func() {
		_, err := s.service.Create(s.ctx, s.doctor, id.SubjectID{}, sampleData())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.Create(s.ctx, s.doctor, s.patient.SubjectID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("oversized detail tree is rejected before a key is issued", func() {
		svc := service.New(s.store, s.vault, s.ledger, service.WithDetailLimits(detail.Limits{MaxEntries: 1}))
		_, err := svc.Create(s.ctx, s.doctor, s.patient.SubjectID, sampleData())
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *RecordServiceSuite) TestCreateAnchorFailure() {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"unavailable ledger is indeterminate", ledger.NewError(ledger.CategoryUnavailable, "anchor", "connection refused", nil), dErrors.CodeIndeterminate},
		{"timeout is indeterminate", ledger.NewError(ledger.CategoryTimeout, "anchor", "deadline exceeded", context.DeadlineExceeded), dErrors.CodeIndeterminate},
		{"rejection is internal", ledger.NewError(ledger.CategoryRejected, "anchor", "duplicate", nil), dErrors.CodeInternal},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			keys := mocks.NewMockKeyIssuer(s.ctrl)
			store := mocks.NewMockStore(s.ctrl)
			svc := s.newService(store, keys)

			var issued id.RecordID
			keys.EXPECT().IssueForCreation(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, recordID id.RecordID) ([]byte, error) {
					issued = recordID
					return bytes.Repeat([]byte{1}, records.KeySize), nil
				})
			s.ledger.EXPECT().Anchor(gomock.Any(), gomock.Any()).Times(1).Return("", tc.err)
			keys.EXPECT().Discard(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, recordID id.RecordID) error {
					s.Equal(issued, recordID)
					return nil
				})
			store.EXPECT().Put(gomock.Any(), gomock.Any()).Times(0)

			_, err := svc.Create(s.ctx, s.doctor, s.patient.SubjectID, sampleData())
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
			s.Equal(tc.code == dErrors.CodeIndeterminate, dErrors.IsRetryable(err))
		})
	}

	s.Run("no key survives with the real vault", func() {
		s.ledger.EXPECT().Anchor(gomock.Any(), gomock.Any()).Return("", ledger.NewError(ledger.CategoryUnavailable, "anchor", "down", nil))
		_, err := s.service.Create(s.ctx, s.doctor, s.patient.SubjectID, sampleData())
		s.Require().Error(err)

		s.Equal(0, s.keyStore.Len())
		list, err := s.store.ListByOwner(s.ctx, s.patient.SubjectID)
		s.Require().NoError(err)
		s.Empty(list)
		s.InDelta(1, testutil.ToFloat64(s.metrics.CreateFailures.WithLabelValues("anchor")), 0)
	})
}

func (s *RecordServiceSuite) TestCreateStoreFailureDiscardsKey() {
	keys := mocks.NewMockKeyIssuer(s.ctrl)
	store := mocks.NewMockStore(s.ctrl)
	svc := s.newService(store, keys)

	keys.EXPECT().IssueForCreation(gomock.Any(), gomock.Any()).Return(bytes.Repeat([]byte{1}, records.KeySize), nil)
	s.ledger.EXPECT().Anchor(gomock.Any(), gomock.Any()).Return("ref-9", nil)
	store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	keys.EXPECT().Discard(gomock.Any(), gomock.Any()).Return(nil)

	_, err := svc.Create(s.ctx, s.doctor, s.patient.SubjectID, sampleData())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RecordServiceSuite) TestCreateVaultConflictSkipsLedger() {
	keys := mocks.NewMockKeyIssuer(s.ctrl)
	svc := s.newService(mocks.NewMockStore(s.ctrl), keys)

	keys.EXPECT().IssueForCreation(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeConflict, "a key already exists for this record"))
	s.ledger.EXPECT().Anchor(gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.Create(s.ctx, s.doctor, s.patient.SubjectID, sampleData())
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// =============================================================================
// Reads
// =============================================================================

func (s *RecordServiceSuite) TestGet() {
	rec, _ := s.createRecord()

	otherAuthority := id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleHealthAuthority, AuthorityID: id.NewAuthorityID()}
	cases := []struct {
		name   string
		caller id.Caller
		code   dErrors.Code
	}{
		{"owner", s.patient, ""},
		{"creator", s.doctor, ""},
		{"any doctor", id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleDoctor, AuthorityID: id.NewAuthorityID()}, ""},
		{"issuing authority", id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleHealthAuthority, AuthorityID: s.authority}, ""},
		{"other authority", otherAuthority, dErrors.CodeForbidden},
		{"other patient", id.Caller{SubjectID: id.NewSubjectID(), Role: id.RolePatient}, dErrors.CodeForbidden},
		{"anonymous", id.Caller{}, dErrors.CodeUnauthorized},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			got, err := s.service.Get(s.ctx, tc.caller, rec.ID)
			if tc.code == "" {
				s.Require().NoError(err)
				s.Equal(rec.ID, got.ID)
				return
			}
			s.True(dErrors.HasCode(err, tc.code), "got %v", err)
		})
	}

	s.Run("unknown record", func() {
		_, err := s.service.Get(s.ctx, s.doctor, id.NewRecordID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("store failure is internal", func() {
		store := mocks.NewMockStore(s.ctrl)
		store.EXPECT().Get(gomock.Any(), rec.ID).Return(nil, sentinel.ErrUnavailable)
		_, err := s.newService(store, s.vault).Get(s.ctx, s.doctor, rec.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *RecordServiceSuite) TestLists() {
	rec, _ := s.createRecord()

	s.Run("patient lists own records", func() {
		list, err := s.service.ListByOwner(s.ctx, s.patient)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(rec.ID, list[0].ID)
	})

	s.Run("doctor cannot list by owner", func() {
		_, err := s.service.ListByOwner(s.ctx, s.doctor)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("authority lists records issued under it", func() {
		authority := id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleHealthAuthority, AuthorityID: s.authority}
		list, err := s.service.ListByCreatorAuthority(s.ctx, authority)
		s.Require().NoError(err)
		s.Len(list, 1)

		other := id.Caller{SubjectID: id.NewSubjectID(), Role: id.RoleHealthAuthority, AuthorityID: id.NewAuthorityID()}
		list, err = s.service.ListByCreatorAuthority(s.ctx, other)
		s.Require().NoError(err)
		s.Empty(list)
	})

	s.Run("patient cannot list by authority", func() {
		_, err := s.service.ListByCreatorAuthority(s.ctx, s.patient)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *RecordServiceSuite) TestOpen() {
	rec, key := s.createRecord()

	s.Run("right key returns the detail tree", func() {
		opened, err := s.service.Open(s.ctx, s.patient, rec.ID, key)
		s.Require().NoError(err)
		v, ok := opened.Document.Data.Get("diagnosis")
		s.Require().True(ok)
		str, _ := v.AsString()
		s.Equal("influenza", str)
		s.InDelta(1, testutil.ToFloat64(s.metrics.RecordsOpened), 0)
	})

	s.Run("wrong key is InvalidKey", func() {
		_, err := s.service.Open(s.ctx, s.patient, rec.ID, bytes.Repeat([]byte{9}, records.KeySize))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidKey))
		s.InDelta(1, testutil.ToFloat64(s.metrics.OpenKeyFailures), 0)
	})

	s.Run("access checks run before decryption", func() {
		stranger := id.Caller{SubjectID: id.NewSubjectID(), Role: id.RolePatient}
		_, err := s.service.Open(s.ctx, stranger, rec.ID, key)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
