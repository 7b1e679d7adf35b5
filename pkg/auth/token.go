package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/pkg/config"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// clockSkew tolerates small drift between the issuing auth service and this API.
const clockSkew = 30 * time.Second

var (
	signingMethod = jwt.SigningMethodHS256

	ErrMissingSecret = errors.New("jwt secret is required")
	ErrScope         = errors.New("token scope does not match role")
)

// validateScope enforces the ledger's access model: supplier tokens carry
// exactly one supplier id, back-office tokens carry none.
func validateScope(role enums.ActorRole, supplierID *uuid.UUID) error {
	switch {
	case !role.IsValid():
		return fmt.Errorf("invalid actor role %q", role)
	case role == enums.ActorRoleSupplier && (supplierID == nil || *supplierID == uuid.Nil):
		return fmt.Errorf("%w: supplier role requires supplier_id", ErrScope)
	case role.IsBackOffice() && supplierID != nil:
		return fmt.Errorf("%w: %s tokens are not supplier scoped", ErrScope, role)
	}
	return nil
}

// MintAccessToken signs payload with the configured secret. The ledger only
// verifies tokens in production; minting exists for local tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if err := validateScope(payload.Role, payload.SupplierID); err != nil {
		return "", err
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute
	claims := AccessTokenClaims{
		UserID:     payload.UserID,
		Role:       payload.Role,
		SupplierID: payload.SupplierID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then checks that
// the role and supplier scope agree.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}

	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil {
		return nil, errors.New("token has no user_id")
	}
	if err := validateScope(claims.Role, claims.SupplierID); err != nil {
		return nil, err
	}
	return claims, nil
}
