package validation

import (
	"fmt"

	dErrors "medvault/pkg/domain-errors"
)

const (
	// MaxBodySize caps request bodies (256 KB). Record details are the largest payload.
	MaxBodySize = 256 * 1024

	// MaxIdempotencyKeyLength bounds the Idempotency-Key header.
	MaxIdempotencyKeyLength = 128

	// MaxDetailDepth bounds nesting of record detail trees.
	MaxDetailDepth = 16

	// MaxDetailEntries bounds the total number of values in a detail tree.
	MaxDetailEntries = 4096
)

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}
