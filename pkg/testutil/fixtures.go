package testutil

import (
	"time"

	"github.com/google/uuid"

	accessmodels "medvault/internal/access/models"
	recordmodels "medvault/internal/records/models"
	id "medvault/pkg/domain"
)

// TestIDs provides fixed IDs for deterministic test data.
var TestIDs = struct {
	Patient1   id.SubjectID
	Patient2   id.SubjectID
	Doctor1    id.SubjectID
	Doctor2    id.SubjectID
	Authority1 id.AuthorityID
	Authority2 id.AuthorityID
}{
	Patient1:   id.SubjectID(uuid.MustParse("11111111-1111-1111-1111-111111111111")),
	Patient2:   id.SubjectID(uuid.MustParse("22222222-2222-2222-2222-222222222222")),
	Doctor1:    id.SubjectID(uuid.MustParse("dddd0000-0000-0000-0000-000000000001")),
	Doctor2:    id.SubjectID(uuid.MustParse("dddd0000-0000-0000-0000-000000000002")),
	Authority1: id.AuthorityID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000001")),
	Authority2: id.AuthorityID(uuid.MustParse("aaaa0000-0000-0000-0000-000000000002")),
}

// Patient returns a patient caller.
func Patient(subject id.SubjectID) id.Caller {
	return id.Caller{SubjectID: subject, Role: id.RolePatient}
}

// Doctor returns a doctor caller issuing under authority.
func Doctor(subject id.SubjectID, authority id.AuthorityID) id.Caller {
	return id.Caller{SubjectID: subject, Role: id.RoleDoctor, AuthorityID: authority}
}

// HealthAuthority returns a caller acting as the authority itself.
func HealthAuthority(authority id.AuthorityID) id.Caller {
	return id.Caller{SubjectID: id.SubjectID(authority), Role: id.RoleHealthAuthority, AuthorityID: authority}
}

// RecordBuilder provides a fluent interface for building test records.
type RecordBuilder struct {
	record *recordmodels.Record
}

// NewRecordBuilder creates a record owned by Patient1 and created by Doctor1.
func NewRecordBuilder() *RecordBuilder {
	return &RecordBuilder{
		record: &recordmodels.Record{
			ID:          id.NewRecordID(),
			OwnerID:     TestIDs.Patient1,
			CreatorID:   TestIDs.Doctor1,
			AuthorityID: TestIDs.Authority1,
			CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
			AnchorRef:   "ref-" + uuid.NewString(),
			Payload:     []byte{0x01, 0x02, 0x03},
		},
	}
}

func (b *RecordBuilder) WithID(recordID id.RecordID) *RecordBuilder {
	b.record.ID = recordID
	return b
}

func (b *RecordBuilder) WithOwner(ownerID id.SubjectID) *RecordBuilder {
	b.record.OwnerID = ownerID
	return b
}

func (b *RecordBuilder) WithCreator(creatorID id.SubjectID, authorityID id.AuthorityID) *RecordBuilder {
	b.record.CreatorID = creatorID
	b.record.AuthorityID = authorityID
	return b
}

func (b *RecordBuilder) WithPayload(payload []byte) *RecordBuilder {
	b.record.Payload = payload
	return b
}

func (b *RecordBuilder) Build() *recordmodels.Record {
	return b.record
}

// RequestBuilder provides a fluent interface for building access requests.
type RequestBuilder struct {
	request *accessmodels.Request
}

// NewRequestBuilder creates a requested access request from Doctor2 to a
// record of Patient1.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{
		request: &accessmodels.Request{
			ID:          id.NewRequestID(),
			RequesterID: TestIDs.Doctor2,
			RecordID:    id.NewRecordID(),
			OwnerID:     TestIDs.Patient1,
			State:       accessmodels.StateRequested,
			CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
		},
	}
}

func (b *RequestBuilder) WithRecord(record *recordmodels.Record) *RequestBuilder {
	b.request.RecordID = record.ID
	b.request.OwnerID = record.OwnerID
	return b
}

func (b *RequestBuilder) WithRequester(requesterID id.SubjectID) *RequestBuilder {
	b.request.RequesterID = requesterID
	return b
}

func (b *RequestBuilder) WithCreatedAt(t time.Time) *RequestBuilder {
	b.request.CreatedAt = t
	return b
}

func (b *RequestBuilder) Build() *accessmodels.Request {
	return b.request
}
