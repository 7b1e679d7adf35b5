package middleware

import (
	"net/http"

	"github.com/unrolled/secure"

	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

// SecureHeaders applies the response hardening headers. TLS redirects are
// only enforced in production, where a proxy terminates TLS.
func SecureHeaders(production bool, logg *logger.Logger) func(http.Handler) http.Handler {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'",
		SSLRedirect:           production,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         !production,
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Process has already written the redirect or rejection on error.
			if err := sec.Process(w, r); err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "secure.blocked")
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
