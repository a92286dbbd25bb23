package models

import (
	"time"

	id "medvault/pkg/domain"
)

// Outcome is the verdict of one verification.
type Outcome string

const (
	OutcomeValid         Outcome = "valid"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeIndeterminate Outcome = "indeterminate"
)

// Result is computed per call and never stored.
type Result struct {
	RecordID    id.RecordID
	Outcome     Outcome
	Explanation string
	Retryable   bool
	CheckedAt   time.Time
}
