package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Category normalizes ledger failures so callers can decide on retries without
// looking at transport details.
type Category string

const (
	CategoryTimeout     Category = "timeout"
	CategoryUnavailable Category = "unavailable"
	CategoryRateLimited Category = "rate_limited"
	CategoryRejected    Category = "rejected"
	CategoryBadData     Category = "bad_data"
	CategoryInternal    Category = "internal"
)

// Error wraps ledger failures with a category.
type Error struct {
	Category   Category
	Op         string
	Message    string
	Underlying error
	Retryable  bool // set from Category: timeout, unavailable, rate_limited
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("ledger %s [%s]: %s: %v", e.Op, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("ledger %s [%s]: %s", e.Op, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a categorized ledger error.
func NewError(category Category, op, message string, underlying error) *Error {
	retryable := category == CategoryTimeout ||
		category == CategoryUnavailable ||
		category == CategoryRateLimited

	return &Error{
		Category:   category,
		Op:         op,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether err is a transient ledger failure. Bare context
// errors count as retryable too.
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Retryable
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// CategoryOf extracts the category, defaulting to internal.
func CategoryOf(err error) Category {
	var le *Error
	if errors.As(err, &le) {
		return le.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	return CategoryInternal
}

// fromContext classifies a failure that happened while ctx may have ended.
// It returns nil when ctx is still live.
func fromContext(ctx context.Context, op string, err error) *Error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return NewError(CategoryTimeout, op, "deadline exceeded", err)
	case context.Canceled:
		return NewError(CategoryUnavailable, op, "request cancelled", err)
	}
	return nil
}
