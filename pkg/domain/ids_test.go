package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "medvault/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseRecordID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSubjectID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseRequestID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseAuthorityID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, AuthorityID(validUUID), id)
		assert.Equal(t, validUUID.String(), id.String())
	})
}

// TestRoleCapabilities pins the capability sets enforced at service boundaries.
func TestRoleCapabilities(t *testing.T) {
	t.Run("only patients decide on access", func(t *testing.T) {
		assert.True(t, RolePatient.Can(CapAccessDecide))
		assert.False(t, RoleDoctor.Can(CapAccessDecide))
		assert.False(t, RoleHealthAuthority.Can(CapAccessDecide))
	})

	t.Run("only doctors create records and request access", func(t *testing.T) {
		assert.True(t, RoleDoctor.Can(CapRecordCreate))
		assert.True(t, RoleDoctor.Can(CapAccessRequest))
		assert.False(t, RolePatient.Can(CapRecordCreate))
		assert.False(t, RolePatient.Can(CapAccessRequest))
	})

	t.Run("every role may verify", func(t *testing.T) {
		for _, r := range []Role{RolePatient, RoleDoctor, RoleHealthAuthority} {
			assert.True(t, r.Can(CapVerify), r)
		}
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		_, err := ParseRole("central_authority")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestCallerRequire(t *testing.T) {
	doctor := Caller{SubjectID: SubjectID(uuid.New()), Role: RoleDoctor}

	require.NoError(t, doctor.Require(CapAccessRequest))
	assert.True(t, dErrors.HasCode(doctor.Require(CapAccessDecide), dErrors.CodeForbidden))
	assert.True(t, dErrors.HasCode(Caller{Role: RoleDoctor}.Require(CapAccessRequest), dErrors.CodeUnauthorized))
}
