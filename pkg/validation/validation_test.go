package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medvault/pkg/domain-errors"
)

type sampleRequest struct {
	OwnerID string `json:"owner_id" validate:"required,uuid"`
	Status  string `json:"status" validate:"omitempty,oneof=requested granted"`
	Note    string `json:"note" validate:"omitempty,notblank,max=10"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     sampleRequest
		wantMsg string
	}{
		{"missing required", sampleRequest{}, "owner_id is required"},
		{"bad uuid", sampleRequest{OwnerID: "nope"}, "owner_id must be a valid uuid"},
		{"oneof", sampleRequest{OwnerID: "8c1f7f5e-3a9e-4a47-9d55-0f0c1d2e3f40", Status: "pending"}, "status must be one of [requested granted]"},
		{"blank", sampleRequest{OwnerID: "8c1f7f5e-3a9e-4a47-9d55-0f0c1d2e3f40", Note: "   "}, "note must not be blank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.req)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}

	t.Run("valid request", func(t *testing.T) {
		require.NoError(t, Validate(&sampleRequest{OwnerID: "8c1f7f5e-3a9e-4a47-9d55-0f0c1d2e3f40", Status: "granted"}))
	})
}

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "owner_id", toSnakeCase("OwnerID"))
	assert.Equal(t, "record_id", toSnakeCase("RecordId"))
	assert.Equal(t, "key", toSnakeCase("Key"))
}

func TestCheckStringLength(t *testing.T) {
	assert.NoError(t, CheckStringLength("key", "abc", 3))
	assert.True(t, dErrors.HasCode(CheckStringLength("key", "abcd", 3), dErrors.CodeValidation))
}
