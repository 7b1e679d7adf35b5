package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/payout-ledger/api"
	"github.com/angelmondragon/payout-ledger/api/controllers"
	"github.com/angelmondragon/payout-ledger/api/routes"
	"github.com/angelmondragon/payout-ledger/internal/ledger"
	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/internal/suppliers"
	"github.com/angelmondragon/payout-ledger/pkg/config"
	"github.com/angelmondragon/payout-ledger/pkg/db"
	"github.com/angelmondragon/payout-ledger/pkg/instance"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
	"github.com/angelmondragon/payout-ledger/pkg/metrics"
	"github.com/angelmondragon/payout-ledger/pkg/migrate"
	"github.com/angelmondragon/payout-ledger/pkg/outbox"
	"github.com/angelmondragon/payout-ledger/pkg/redis"
)

const serviceName = "ledger-api"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	// The replay cache only shortcuts lookups the payouts table can answer, so
	// a missing Redis degrades latency and never correctness.
	var (
		replayCache ledger.ReplayCache
		redisPinger controllers.Pinger
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable; payout replay cache disabled")
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logg.Error(context.Background(), "error closing redis", err)
				}
			}()
			replayCache, err = ledger.NewReplayCache(redisClient, cfg.Ledger.IdempotencyCacheTTL)
			if err != nil {
				logg.Error(ctx, "failed to create replay cache", err)
				os.Exit(1)
			}
			redisPinger = redisClient
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	conn := dbClient.DB()
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:                dbClient,
		LineItems:         lineitems.NewRepository(conn),
		Suppliers:         suppliers.NewRepository(conn),
		Payouts:           ledger.NewPayoutRepository(conn),
		Reversals:         ledger.NewReversalRepository(conn),
		Outbox:            outbox.NewService(outbox.NewRepository(conn), logg),
		Cache:             replayCache,
		Metrics:           metrics.NewLedgerMetrics(registry),
		Logger:            logg,
		MaxItemsPerPayout: cfg.Ledger.MaxItemsPerPayout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create ledger service", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(cfg, logg, dbClient, redisPinger, ledgerService, registry)
	server := api.NewServer(addr, handler)

	logg.Info(ctx, "starting api server")
	if err := api.Serve(ctx, server, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
