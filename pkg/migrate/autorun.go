package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/payout-ledger/pkg/config"
	"github.com/angelmondragon/payout-ledger/pkg/db"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

// MaybeRunDev applies the embedded migrations at startup when running in dev
// with LEDGER_AUTO_MIGRATE set. SQLite dev databases are left alone since
// the schema is postgres only.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.DB.Driver})
	if cfg.DB.IsSQLite() {
		logg.Warn(ctx, "migrate.skipped_sqlite")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	provider, err := NewProvider(sqlDB, "")
	if err != nil {
		return err
	}
	applied, err := Apply(ctx, provider, "up", "")
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(applied)), "migrate.dev_autorun_complete")
	return nil
}
