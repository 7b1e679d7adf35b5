package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/payout-ledger/pkg/config"
	"github.com/angelmondragon/payout-ledger/pkg/db"
	"github.com/angelmondragon/payout-ledger/pkg/instance"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
	"github.com/angelmondragon/payout-ledger/pkg/migrate"
	"github.com/angelmondragon/payout-ledger/pkg/outbox"
	"github.com/angelmondragon/payout-ledger/pkg/outbox/registry"
	"github.com/angelmondragon/payout-ledger/pkg/pubsub"
)

const serviceName = "ledger-outbox-publisher"

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
		"topic":    cfg.PubSub.LedgerTopic,
		"instance": instance.GetID(),
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox.publisher_exit", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "outbox.publisher_stopped")
}

// run owns every resource the relay needs and releases them when the relay
// returns.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	topics, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("bootstrap pubsub: %w", err)
	}
	defer closeWith(ctx, logg, "pubsub", topics.Close)

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	conn := dbClient.DB()
	relay, err := NewRelay(RelayParams{
		Outbox:     cfg.Outbox,
		Logger:     logg,
		DB:         dbClient,
		PubSub:     topics,
		Repository: outbox.NewRepository(conn),
		DLQ:        outbox.NewDLQRepository(conn),
		Registry:   events,
	})
	if err != nil {
		return fmt.Errorf("outbox relay: %w", err)
	}

	logg.Info(ctx, "outbox.publisher_started")
	return relay.Run(ctx)
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.WithoutCancel(ctx), "close "+what, err)
	}
}
