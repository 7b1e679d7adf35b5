package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/api/responses"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

// RequireBackOffice admits only admin and staff callers.
func RequireBackOffice(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil || !claims.Role.IsBackOffice() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "back-office role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SupplierScope rejects callers that may not see the supplier named by the
// URL parameter. Malformed ids fall through to the controller's validation.
func SupplierScope(param string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			supplierID, err := uuid.Parse(chi.URLParam(r, param))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !ClaimsFromContext(r.Context()).CanAccessSupplier(supplierID) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "supplier is outside the caller's scope"))
				return
			}
			if logg != nil {
				r = r.WithContext(logg.WithSupplierID(r.Context(), supplierID.String()))
			}
			next.ServeHTTP(w, r)
		})
	}
}
