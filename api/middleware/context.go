package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/payout-ledger/pkg/auth"
)

type claimsKey struct{}

// WithClaims stores verified token claims on ctx. A nil claims value leaves
// ctx anonymous.
func WithClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns the verified token claims, or nil for anonymous requests.
func ClaimsFromContext(ctx context.Context) *pkgAuth.AccessTokenClaims {
	if ctx == nil {
		return nil
	}
	claims, _ := ctx.Value(claimsKey{}).(*pkgAuth.AccessTokenClaims)
	return claims
}

func UserIDFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return string(claims.Role)
	}
	return ""
}
