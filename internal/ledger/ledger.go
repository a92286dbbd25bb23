// Package ledger talks to the append-only anchoring ledger. Callers only see
// two operations: Anchor a fingerprint once at record creation and Check a
// fingerprint against an anchor reference later.
package ledger

import "context"

// Client is the contract every ledger backend satisfies. Both calls may be slow
// and never mutate local state.
type Client interface {
	// Anchor records fingerprint and returns its opaque anchor reference.
	Anchor(ctx context.Context, fingerprint string) (string, error)
	// Check compares fingerprint with what was anchored under ref. A definite
	// answer is never an error: mismatches come back with Match=false.
	Check(ctx context.Context, ref, fingerprint string) (CheckResult, error)
}

// CheckResult is the ledger's verdict. Explanation is surfaced to users verbatim.
type CheckResult struct {
	Match       bool   `json:"match"`
	Explanation string `json:"explanation"`
}
