package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/payout-ledger/api/controllers"
	ledgercontrollers "github.com/angelmondragon/payout-ledger/api/controllers/ledger"
	"github.com/angelmondragon/payout-ledger/api/middleware"
	"github.com/angelmondragon/payout-ledger/internal/ledger"
	"github.com/angelmondragon/payout-ledger/pkg/config"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

const payoutRatePolicy = "payout"

// NewRouter wires the ledger HTTP surface. redisP may be nil when the replay
// cache is disabled; gatherer may be nil to skip /metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	ledgerService ledger.Service,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.SecureHeaders(cfg.App.IsProd(), logg),
	)

	readiness := map[string]controllers.Pinger{"db": dbP, "redis": nil}
	if redisP != nil {
		readiness["redis"] = redisP
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Get("/ping", controllers.WhoAmI())

		r.Route("/ledger", func(r chi.Router) {
			scoped := middleware.SupplierScope("supplierId", logg)
			r.With(scoped).Get("/balance/{supplierId}", ledgercontrollers.Balance(ledgerService, logg))
			r.With(scoped).Get("/payouts/{supplierId}", ledgercontrollers.ListPayouts(ledgerService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireBackOffice(logg))
				r.With(
					scoped,
					middleware.ActorRateLimit(payoutRatePolicy, cfg.Ledger.PayoutRateLimit, cfg.Ledger.PayoutRateWindow, logg),
				).Post("/payout/{supplierId}", ledgercontrollers.InitiatePayout(ledgerService, logg))
				r.Post("/orders/{orderId}/eligible", ledgercontrollers.MarkOrderEligible(ledgerService, logg))
				r.Post("/line-items/reverse", ledgercontrollers.ReverseLineItem(ledgerService, logg))
				r.Post("/payouts/{payoutId}/reverse", ledgercontrollers.ReversePayout(ledgerService, logg))
			})
		})
	})

	return r
}
