package models

import (
	"time"

	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
)

// Audit event actions
const (
	AuditActionRecordCreated = "record_created"
	AuditActionRecordOpened  = "record_opened"
)

// Record is an encrypted patient record. It is immutable once anchored:
// AnchorRef is set at creation and stores have no update path.
type Record struct {
	ID          id.RecordID
	OwnerID     id.SubjectID
	CreatorID   id.SubjectID
	AuthorityID id.AuthorityID
	CreatedAt   time.Time
	AnchorRef   string
	Payload     []byte
}

// NewRecord creates a Record with domain invariant checks.
func NewRecord(recordID id.RecordID, ownerID, creatorID id.SubjectID, authorityID id.AuthorityID, createdAt time.Time, anchorRef string, payload []byte) (*Record, error) {
	switch {
	case recordID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "record ID required")
	case ownerID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "owner ID required")
	case creatorID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "creator ID required")
	case authorityID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "authority ID required")
	case anchorRef == "":
		return nil, dErrors.New(dErrors.CodeInternal, "anchor reference required")
	case len(payload) == 0:
		return nil, dErrors.New(dErrors.CodeInternal, "payload required")
	}
	return &Record{
		ID:          recordID,
		OwnerID:     ownerID,
		CreatorID:   creatorID,
		AuthorityID: authorityID,
		CreatedAt:   createdAt,
		AnchorRef:   anchorRef,
		Payload:     payload,
	}, nil
}

// IsOwner and IsCreator are the two relations that imply key possession.
func (r *Record) IsOwner(subject id.SubjectID) bool   { return r.OwnerID == subject }
func (r *Record) IsCreator(subject id.SubjectID) bool { return r.CreatorID == subject }
