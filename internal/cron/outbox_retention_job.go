package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

const (
	defaultOutboxRetentionDays = 30
	defaultOutboxMinAttempts   = 10
	defaultOutboxPruneBatch    = 500
)

type txRunner interface {
	WithRetryingTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	PruneBatch(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error)
}

// OutboxRetentionJobParams configure the outbox pruning job.
type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxPruner
	RetentionDays int
	MinAttempts   int
	BatchSize     int // rows deleted per transaction
	Now           func() time.Time
}

// NewOutboxRetentionJob prunes relayed ledger events, and events parked after
// MinAttempts failed publishes, once they are older than RetentionDays.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultOutboxRetentionDays
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = defaultOutboxMinAttempts
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultOutboxPruneBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   retention,
		minAttempts: minAttempts,
		batch:       batch,
		now:         now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPruner
	retention   int
	minAttempts int
	batch       int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var total int64
	batches := 0
	for {
		var deleted int64
		err := j.db.WithRetryingTx(ctx, func(tx *gorm.DB) error {
			rows, err := j.repo.PruneBatch(ctx, tx, cutoff, j.minAttempts, j.batch)
			deleted = rows
			return err
		})
		if err != nil {
			return fmt.Errorf("prune outbox after %d rows: %w", total, err)
		}
		total += deleted
		batches++
		if deleted < int64(j.batch) || ctx.Err() != nil {
			break
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"min_attempts":   j.minAttempts,
		"batches":        batches,
		"rows_deleted":   total,
	}), "outbox.pruned")
	return ctx.Err()
}
