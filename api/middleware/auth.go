package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/payout-ledger/api/responses"
	pkgAuth "github.com/angelmondragon/payout-ledger/pkg/auth"
	"github.com/angelmondragon/payout-ledger/pkg/config"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

var errMissingCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")

// Auth requires a signed bearer token and stores its claims on the request
// context. Supplier-scoped tokens also tag the log context with the supplier.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				responses.WriteError(r.Context(), logg, w, errMissingCredentials)
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithClaims(r.Context(), claims)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.SupplierID != nil {
					ctx = logg.WithSupplierID(ctx, claims.SupplierID.String())
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any scheme casing. Other schemes
// and empty tokens are treated as missing.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
