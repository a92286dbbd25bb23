// Package idempotency remembers which access request an Idempotency-Key
// produced, so a retried create returns the original request.
package idempotency

import (
	"context"

	id "medvault/pkg/domain"
)

// Store maps scoped idempotency keys to request IDs for a limited time.
type Store interface {
	// Lookup returns the request ID stored under key, or ok=false when the key
	// is unknown or expired.
	Lookup(ctx context.Context, key string) (requestID id.RequestID, ok bool, err error)
	// Remember stores requestID under key unless the key is already taken and
	// returns whichever ID is stored afterwards.
	Remember(ctx context.Context, key string, requestID id.RequestID) (id.RequestID, error)
}

// Key scopes a client key to the requester and record, so two callers using
// the same header value never see each other's requests.
func Key(requester id.SubjectID, record id.RecordID, clientKey string) string {
	return requester.String() + ":" + record.String() + ":" + clientKey
}
