package models

import (
	"time"

	id "medvault/pkg/domain"
	dErrors "medvault/pkg/domain-errors"
)

// Audit event actions
const (
	AuditActionAccessRequested = "access_requested"
	AuditActionAccessGranted   = "access_granted"
	AuditActionAccessDeclined  = "access_declined"
	AuditActionAccessWithdrawn = "access_withdrawn"
	AuditActionKeyReleased     = "key_released"
)

// Audit event decisions
const (
	AuditDecisionGranted  = "granted"
	AuditDecisionDeclined = "declined"
)

// Audit event reasons for key releases
const (
	AuditReasonOwner   = "owner"
	AuditReasonCreator = "creator"
	AuditReasonGrant   = "granted_request"
)

// State is the lifecycle position of an access request.
type State string

const (
	StateRequested State = "requested"
	StateGranted   State = "granted"
	StateDeclined  State = "declined"
	StateWithdrawn State = "withdrawn"
)

// ParseState validates a state filter from a query string.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown access request state: "+s)
	}
	return st, nil
}

func (s State) IsValid() bool {
	switch s {
	case StateRequested, StateGranted, StateDeclined, StateWithdrawn:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s State) IsTerminal() bool {
	return s == StateGranted || s == StateDeclined || s == StateWithdrawn
}

// CanTransitionTo reports whether s -> to is a legal move. Only requested
// requests move, and only into a terminal state.
func (s State) CanTransitionTo(to State) bool {
	return s == StateRequested && to.IsTerminal()
}

// Request is one requester's ask for the key of one record.
//
// Invariants:
//   - at most one request per (RequesterID, RecordID) is in StateRequested
//   - DecidedAt is set exactly when State is terminal
//   - OwnerID is copied from the record at creation and never changes
type Request struct {
	ID          id.RequestID
	RequesterID id.SubjectID
	RecordID    id.RecordID
	OwnerID     id.SubjectID
	State       State
	CreatedAt   time.Time
	DecidedAt   *time.Time
}

// NewRequest creates a request in StateRequested.
func NewRequest(requestID id.RequestID, requesterID id.SubjectID, recordID id.RecordID, ownerID id.SubjectID, createdAt time.Time) (*Request, error) {
	switch {
	case requestID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "request ID required")
	case requesterID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "requester ID required")
	case recordID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "record ID required")
	case ownerID.IsNil():
		return nil, dErrors.New(dErrors.CodeInternal, "owner ID required")
	case requesterID == ownerID:
		return nil, dErrors.New(dErrors.CodeInternal, "owner cannot request own record")
	case createdAt.IsZero():
		return nil, dErrors.New(dErrors.CodeInternal, "creation time required")
	}
	return &Request{
		ID:          requestID,
		RequesterID: requesterID,
		RecordID:    recordID,
		OwnerID:     ownerID,
		State:       StateRequested,
		CreatedAt:   createdAt,
	}, nil
}

// Filter narrows list queries. A zero Filter matches everything.
type Filter struct {
	State State
}

func (f Filter) Matches(r *Request) bool {
	return f.State == "" || r.State == f.State
}
