package audit

import (
	"context"
)

// Store is the queryable, append-only copy of the audit trail.
type Store interface {
	Append(ctx context.Context, event Event) error
	// ListBySubject returns events where subject is the actor or the data
	// subject, oldest first.
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Sink receives a copy of every persisted event. Sink failures never fail the
// emitting operation.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}
