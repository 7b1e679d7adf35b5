package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID     uuid.UUID
	Role       enums.ActorRole
	SupplierID *uuid.UUID
	JTI        string
}

// AccessTokenClaims represents the typed JWT presented by callers.
type AccessTokenClaims struct {
	UserID     uuid.UUID       `json:"user_id"`
	Role       enums.ActorRole `json:"role"`
	SupplierID *uuid.UUID      `json:"supplier_id,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessSupplier reports whether the caller may read or act on supplierID.
// Back-office roles see every supplier; supplier users only their own.
func (c *AccessTokenClaims) CanAccessSupplier(supplierID uuid.UUID) bool {
	if c == nil {
		return false
	}
	if c.Role.IsBackOffice() {
		return true
	}
	return c.Role == enums.ActorRoleSupplier && c.SupplierID != nil && *c.SupplierID == supplierID
}
