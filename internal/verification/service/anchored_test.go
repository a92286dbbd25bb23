package service_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	accessservice "medvault/internal/access/service"
	accessstore "medvault/internal/access/store"
	"medvault/internal/ledger"
	"medvault/internal/records"
	recordmodels "medvault/internal/records/models"
	recordsservice "medvault/internal/records/service"
	recordstore "medvault/internal/records/store"
	"medvault/internal/vault"
	vaultstore "medvault/internal/vault/store"
	"medvault/internal/verification/models"
	"medvault/internal/verification/service"
	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
	"medvault/pkg/detail"
	"medvault/pkg/testutil"
)

// alteredLookup serves records from an underlying store but swaps in a
// replacement payload for one record.
type alteredLookup struct {
	records  *recordstore.InMemoryStore
	recordID id.RecordID
	payload  []byte
}

func (l *alteredLookup) Get(ctx context.Context, recordID id.RecordID) (*recordmodels.Record, error) {
	record, err := l.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if recordID == l.recordID && l.payload != nil {
		record.Payload = l.payload
	}
	return record, nil
}

// AnchoredVerificationSuite runs verification against a real hash chain with
// records created, shared and re-sealed through the production services.
type AnchoredVerificationSuite struct {
	suite.Suite
	ctx     context.Context
	chain   *ledger.Chain
	records *recordstore.InMemoryStore
	lookup  *alteredLookup
	create  *recordsservice.Service
	access  *accessservice.Service
	verify  *service.Service

	owner     id.Caller
	creator   id.Caller
	requester id.Caller
	record    *recordmodels.Record
}

func TestAnchoredVerificationSuite(t *testing.T) {
	suite.Run(t, new(AnchoredVerificationSuite))
}

func (s *AnchoredVerificationSuite) SetupTest() {
	s.ctx = context.Background()

	chain, err := ledger.NewMemChain()
	s.Require().NoError(err)
	s.chain = chain

	wrapper, err := vault.NewWrapper(bytes.Repeat([]byte{0x31}, vault.KeySize))
	s.Require().NoError(err)
	keys := vault.New(vaultstore.New(), wrapper)

	s.records = recordstore.New()
	s.lookup = &alteredLookup{records: s.records}
	s.create = recordsservice.New(s.records, keys, s.chain)
	s.access = accessservice.New(accessstore.New(), s.records, keys)
	s.verify = service.New(s.lookup, s.chain)

	s.owner = testutil.Patient(testutil.TestIDs.Patient1)
	s.creator = testutil.Doctor(testutil.TestIDs.Doctor1, testutil.TestIDs.Authority1)
	s.requester = testutil.Doctor(testutil.TestIDs.Doctor2, testutil.TestIDs.Authority2)

	s.record, err = s.create.Create(s.ctx, s.creator, s.owner.SubjectID,
		detail.NewMap().
			Set("diagnosis", detail.String("asthma")).
			Set("peak_flow", detail.Number("420")))
	s.Require().NoError(err)
}

func (s *AnchoredVerificationSuite) TearDownTest() {
	s.NoError(s.chain.Close())
}

// grantedKey runs the request and approval flow and returns the key the
// requester retrieves afterwards.
func (s *AnchoredVerificationSuite) grantedKey() []byte {
	req, err := s.access.CreateRequest(s.ctx, s.requester, s.record.ID, "")
	s.Require().NoError(err)
	_, err = s.access.Approve(s.ctx, s.owner, req.ID)
	s.Require().NoError(err)

	grant, err := s.access.RetrieveKey(s.ctx, s.requester, s.record.ID)
	s.Require().NoError(err)
	s.Equal(s.requester.SubjectID, grant.GranteeID)
	return grant.Key
}

func (s *AnchoredVerificationSuite) TestGrantedRequesterVerifiesUntouchedRecord() {
	key := s.grantedKey()

	result, err := s.verify.Verify(s.ctx, s.requester, s.record.ID, key)
	s.Require().NoError(err)
	s.Equal(models.OutcomeValid, result.Outcome)
	s.False(result.Retryable)
	s.Contains(result.Explanation, "fingerprint matches")
}

func (s *AnchoredVerificationSuite) TestOwnerVerifiesUntouchedRecord() {
	grant, err := s.access.RetrieveKey(s.ctx, s.owner, s.record.ID)
	s.Require().NoError(err)

	result, err := s.verify.Verify(s.ctx, s.owner, s.record.ID, grant.Key)
	s.Require().NoError(err)
	s.Equal(models.OutcomeValid, result.Outcome)
}

func (s *AnchoredVerificationSuite) TestAlteredContentResealedWithSameKeyIsInvalid() {
	key := s.grantedKey()

	plaintext, err := records.Open(key, s.record.Payload)
	s.Require().NoError(err)
	doc, original, err := records.DecodeDocument(plaintext)
	s.Require().NoError(err)
	doc.Data.Set("diagnosis", detail.String("healthy"))
	altered, fingerprint, err := doc.Encode()
	s.Require().NoError(err)
	s.Require().NotEqual(original, fingerprint)

	s.lookup.recordID = s.record.ID
	s.lookup.payload, err = records.Seal(key, altered)
	s.Require().NoError(err)

	result, err := s.verify.Verify(s.ctx, s.requester, s.record.ID, key)
	s.Require().NoError(err)
	s.Equal(models.OutcomeInvalid, result.Outcome)
	s.False(result.Retryable)
	s.Contains(result.Explanation, "fingerprint mismatch")
	s.Contains(result.Explanation, original)
	s.Contains(result.Explanation, fingerprint)
}

func (s *AnchoredVerificationSuite) TestKeyOfAnotherRecordIsRejected() {
	other, err := s.create.Create(s.ctx, s.creator, s.owner.SubjectID,
		detail.NewMap().Set("diagnosis", detail.String("migraine")))
	s.Require().NoError(err)
	grant, err := s.access.RetrieveKey(s.ctx, s.owner, other.ID)
	s.Require().NoError(err)

	_, err = s.verify.Verify(s.ctx, s.owner, s.record.ID, grant.Key)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidKey))
}

func (s *AnchoredVerificationSuite) TestGrantIsFinal() {
	req, err := s.access.CreateRequest(s.ctx, s.requester, s.record.ID, "")
	s.Require().NoError(err)
	_, err = s.access.Approve(s.ctx, s.owner, req.ID)
	s.Require().NoError(err)

	_, err = s.access.CreateRequest(s.ctx, s.requester, s.record.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.access.Decline(s.ctx, s.owner, req.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}
