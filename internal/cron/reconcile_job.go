package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/payout-ledger/internal/ledger"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
)

const defaultReconcileConcurrency = 4

// ErrLedgerMismatch marks a reconciliation run that found drift.
var ErrLedgerMismatch = errors.New("ledger reconciliation mismatch")

// ReconcileJobParams configure the reconciliation job.
type ReconcileJobParams struct {
	Logger      *logger.Logger
	Reconciler  ledger.Reconciler
	Concurrency int
}

// NewReconcileJob checks every supplier's balance identity and payout totals,
// then the ledger-wide claim and ownership checks.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultReconcileConcurrency
	}
	return &reconcileJob{
		logg:        params.Logger,
		reconciler:  params.Reconciler,
		concurrency: concurrency,
	}, nil
}

type reconcileJob struct {
	logg        *logger.Logger
	reconciler  ledger.Reconciler
	concurrency int
}

func (j *reconcileJob) Name() string { return "ledger-reconcile" }

// Run returns ErrLedgerMismatch when any check fails. Per-supplier store
// failures do not stop the other suppliers and are returned combined.
func (j *reconcileJob) Run(ctx context.Context) error {
	targets, err := j.reconciler.ReconcileTargets(ctx)
	if err != nil {
		return fmt.Errorf("list reconcile targets: %w", err)
	}

	var (
		mu         sync.Mutex
		errs       error
		mismatches int
	)
	record := func(found []ledger.Mismatch, err error) {
		mu.Lock()
		defer mu.Unlock()
		mismatches += len(found)
		errs = multierr.Append(errs, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for _, supplierID := range targets {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			found, err := j.reconciler.ReconcileSupplier(gctx, supplierID)
			if err != nil {
				err = fmt.Errorf("supplier %s: %w", supplierID, err)
			}
			record(found, err)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}

	found, err := j.reconciler.ReconcileGlobal(ctx)
	if err != nil {
		err = fmt.Errorf("global checks: %w", err)
	}
	record(found, err)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"suppliers":  len(targets),
		"mismatches": mismatches,
		"failures":   len(multierr.Errors(errs)),
	}), "ledger.reconcile_complete")

	if mismatches > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: %d failed checks", ErrLedgerMismatch, mismatches))
	}
	return errs
}
