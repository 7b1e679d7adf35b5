package controllers

import (
	"net/http"

	"github.com/angelmondragon/payout-ledger/api/middleware"
	"github.com/angelmondragon/payout-ledger/api/responses"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
)

type callerIdentity struct {
	UserID     string  `json:"userId"`
	Role       string  `json:"role"`
	SupplierID *string `json:"supplierId,omitempty"`
	BackOffice bool    `json:"backOffice"`
}

// WhoAmI reports the verified caller identity so clients can check which
// supplier a token is scoped to.
func WhoAmI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil {
			responses.WriteError(r.Context(), nil, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}
		identity := callerIdentity{
			UserID:     claims.UserID.String(),
			Role:       string(claims.Role),
			BackOffice: claims.Role.IsBackOffice(),
		}
		if claims.SupplierID != nil {
			id := claims.SupplierID.String()
			identity.SupplierID = &id
		}
		responses.WriteSuccess(w, identity)
	}
}
