package enums

import "fmt"

// ActorRole is the back-office role carried in access tokens.
type ActorRole string

const (
	ActorRoleAdmin    ActorRole = "admin"
	ActorRoleStaff    ActorRole = "staff"
	ActorRoleSupplier ActorRole = "supplier"
)

var validActorRoles = []ActorRole{
	ActorRoleAdmin,
	ActorRoleStaff,
	ActorRoleSupplier,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ActorRole.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsBackOffice reports whether the role may act on any supplier's ledger.
func (r ActorRole) IsBackOffice() bool {
	return r == ActorRoleAdmin || r == ActorRoleStaff
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}
