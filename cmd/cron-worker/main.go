package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/payout-ledger/internal/cron"
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

const serviceName = "ledger-cron-worker"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "%s: read .env: %v\n", serviceName, err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: load config: %v\n", serviceName, err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"instance": instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron.worker_exit", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron.worker_stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	lock, release, err := scheduleLock(ctx, cfg, logg)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	defer release()

	registry, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.ReconcileInterval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(ctx, "cron.worker_started")
	return service.Run(ctx)
}

// buildJobs assembles the reconciliation and outbox retention jobs.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		DB:                dbClient,
		LineItems:         lineitems.NewRepository(conn),
		Suppliers:         suppliers.NewRepository(conn),
		Payouts:           ledger.NewPayoutRepository(conn),
		Reversals:         ledger.NewReversalRepository(conn),
		Outbox:            outbox.NewService(outboxRepo, logg),
		Metrics:           metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
		Logger:            logg,
		MaxItemsPerPayout: cfg.Ledger.MaxItemsPerPayout,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	reconcile, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:      logg,
		Reconciler:  ledgerService,
		Concurrency: cfg.Cron.ReconcileConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outboxRepo,
		RetentionDays: cfg.Cron.OutboxRetentionDays,
		MinAttempts:   cfg.Cron.OutboxMinAttempts,
		BatchSize:     cfg.Cron.OutboxPruneBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(reconcile, retention)
}

// scheduleLock shares one schedule across workers through Redis. Without
// Redis the lock only guards this process.
func scheduleLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func(), error) {
	if !cfg.Redis.Enabled() {
		logg.Warn(ctx, "cron.lock_local")
		return cron.NewLocalLock(), func() {}, nil
	}
	client, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap redis: %w", err)
	}
	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(client, client.LockKey("cron:"+env), 0)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return lock, func() { closeWith(ctx, logg, "redis", client.Close) }, nil
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.WithoutCancel(ctx), "close "+what, err)
	}
}
