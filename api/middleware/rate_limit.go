package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/angelmondragon/payout-ledger/api/responses"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

// ActorRateLimit throttles a route per authenticated user, falling back to the
// client IP for anonymous callers. A non-positive limit disables it.
func ActorRateLimit(name string, limit int, window time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	if limit <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if userID := UserIDFromContext(r.Context()); userID != "" {
				return name + ":user:" + userID, nil
			}
			ip, err := httprate.KeyByIP(r)
			if err != nil {
				return "", err
			}
			return name + ":ip:" + ip, nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"policy":         name,
					"limit":          limit,
					"window_seconds": int(window.Seconds()),
				})
				logg.Warn(ctx, "rate_limit.blocked")
			}
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
		}),
	)
}
