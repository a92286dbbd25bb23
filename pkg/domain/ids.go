// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "medvault/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a RecordID where a RequestID is expected.
type (
	SubjectID   uuid.UUID // patients, doctors and authorities share one subject namespace
	AuthorityID uuid.UUID
	RecordID    uuid.UUID
	RequestID   uuid.UUID
)

// Constructors for new entities.

func NewSubjectID() SubjectID     { return SubjectID(uuid.New()) }
func NewAuthorityID() AuthorityID { return AuthorityID(uuid.New()) }
func NewRecordID() RecordID       { return RecordID(uuid.New()) }
func NewRequestID() RequestID     { return RequestID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, token claims, CLI flags).

func ParseSubjectID(s string) (SubjectID, error) {
	id, err := parseUUID(s, "subject ID")
	return SubjectID(id), err
}

func ParseAuthorityID(s string) (AuthorityID, error) {
	id, err := parseUUID(s, "authority ID")
	return AuthorityID(id), err
}

func ParseRecordID(s string) (RecordID, error) {
	id, err := parseUUID(s, "record ID")
	return RecordID(id), err
}

func ParseRequestID(s string) (RequestID, error) {
	id, err := parseUUID(s, "request ID")
	return RequestID(id), err
}

// String methods - for logging and debugging.

func (id SubjectID) String() string   { return uuid.UUID(id).String() }
func (id AuthorityID) String() string { return uuid.UUID(id).String() }
func (id RecordID) String() string    { return uuid.UUID(id).String() }
func (id RequestID) String() string   { return uuid.UUID(id).String() }

// IsNil checks - used for service-layer validation.

func (id SubjectID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id AuthorityID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return id, nil
}
