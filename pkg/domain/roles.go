package domain

import (
	"slices"

	dErrors "medvault/pkg/domain-errors"
)

// Role is the coarse account class resolved from an identity token.
type Role string

const (
	RolePatient         Role = "patient"
	RoleDoctor          Role = "doctor"
	RoleHealthAuthority Role = "health_authority"
)

// ParseRole validates a role string from a token claim or CLI flag.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleCapabilities[r]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
	}
	return r, nil
}

func (r Role) String() string { return string(r) }

// Capability names one operation a role may invoke at a service boundary.
type Capability string

const (
	CapRecordCreate        Capability = "record.create"
	CapRecordRead          Capability = "record.read"
	CapRecordReadOwn       Capability = "record.read_own"
	CapRecordListAuthority Capability = "record.list_authority"
	CapAccessRequest       Capability = "access.request"
	CapAccessWithdraw      Capability = "access.withdraw"
	CapAccessDecide        Capability = "access.decide"
	CapAccessListOwner     Capability = "access.list_owner"
	CapAccessListRequester Capability = "access.list_requester"
	CapVerify              Capability = "verify"
)

var roleCapabilities = map[Role][]Capability{
	RolePatient: {
		CapRecordReadOwn,
		CapAccessDecide,
		CapAccessListOwner,
		CapVerify,
	},
	RoleDoctor: {
		CapRecordCreate,
		CapRecordRead,
		CapRecordListAuthority,
		CapAccessRequest,
		CapAccessWithdraw,
		CapAccessListRequester,
		CapVerify,
	},
	RoleHealthAuthority: {
		CapRecordListAuthority,
		CapVerify,
	},
}

// Can reports whether the role grants the capability.
func (r Role) Can(c Capability) bool {
	return slices.Contains(roleCapabilities[r], c)
}

// Caller is an already-resolved identity. The core trusts it and never looks
// at tokens itself.
type Caller struct {
	SubjectID SubjectID
	Role      Role
	// AuthorityID is the issuing health authority for doctors, and the
	// authority's own ID for health_authority callers. Zero for patients.
	AuthorityID AuthorityID
}

// Require returns a Forbidden domain error when the caller's role lacks c.
func (c Caller) Require(capability Capability) error {
	if c.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing caller identity")
	}
	if !c.Role.Can(capability) {
		return dErrors.New(dErrors.CodeForbidden, "role "+string(c.Role)+" may not perform "+string(capability))
	}
	return nil
}
