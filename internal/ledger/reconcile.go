package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	"github.com/angelmondragon/payout-ledger/pkg/metrics"
)

// Mismatch is one failed reconciliation check.
type Mismatch struct {
	Check      string
	SupplierID *uuid.UUID
	Detail     string
}

func (m Mismatch) String() string {
	if m.SupplierID == nil {
		return fmt.Sprintf("%s: %s", m.Check, m.Detail)
	}
	return fmt.Sprintf("%s[%s]: %s", m.Check, m.SupplierID, m.Detail)
}

// ReconcileTargets lists every supplier worth checking: the directory plus any
// supplier id that only appears on line items.
func (s *service) ReconcileTargets(ctx context.Context) ([]uuid.UUID, error) {
	known, err := s.suppliers.ListIDs(ctx)
	if err != nil {
		return nil, storeError(err, "list suppliers")
	}
	owners, err := s.lineItems.SupplierIDs(ctx)
	if err != nil {
		return nil, storeError(err, "list line item suppliers")
	}
	return unionIDs(known, owners), nil
}

// ReconcileSupplier checks the balance identity, payout totals and payout links
// for one supplier. All reads share one snapshot so payouts committing
// mid-check cannot surface as drift.
func (s *service) ReconcileSupplier(ctx context.Context, supplierID uuid.UUID) ([]Mismatch, error) {
	var (
		items    []models.LineItem
		active   int64
		detached int64
	)
	err := s.db.WithReadTx(ctx, func(tx *gorm.DB) error {
		var err error
		if items, err = s.lineItems.WithTx(tx).ListBySupplier(ctx, supplierID); err != nil {
			return storeError(err, "load line items")
		}
		if active, err = s.payouts.WithTx(tx).SumActiveBySupplier(ctx, supplierID); err != nil {
			return storeError(err, "sum payouts")
		}
		if detached, err = s.reversals.WithTx(tx).SumPaidReversalsInActivePayouts(ctx, supplierID); err != nil {
			return storeError(err, "sum reversals")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "reconcile supplier")
	}

	balance := summarize(supplierID, items)
	id := supplierID

	var mismatches []Mismatch
	if !balance.Reconciles() {
		mismatches = append(mismatches, Mismatch{
			Check:      metrics.CheckBalanceIdentity,
			SupplierID: &id,
			Detail: fmt.Sprintf("earned %d != paid %d + pending %d + reversed %d",
				balance.TotalEarnedCents, balance.TotalPaidCents, balance.PendingCents, balance.TotalReversedCents),
		})
	}

	for _, item := range items {
		if item.PaymentState == enums.PaymentStatePaid && item.PayoutID == nil {
			mismatches = append(mismatches, Mismatch{
				Check:      metrics.CheckPaidLinks,
				SupplierID: &id,
				Detail:     fmt.Sprintf("paid line item %s has no payout", item.ID),
			})
		}
	}

	if expected := active - detached; balance.TotalPaidCents != expected {
		mismatches = append(mismatches, Mismatch{
			Check:      metrics.CheckPayoutTotals,
			SupplierID: &id,
			Detail:     fmt.Sprintf("paid items %d != active payouts %d - reversed paid items %d", balance.TotalPaidCents, active, detached),
		})
	}

	s.recordMismatches(ctx, mismatches)
	return mismatches, nil
}

// ReconcileGlobal checks at-most-once payment and that every line item owner
// is a known supplier.
func (s *service) ReconcileGlobal(ctx context.Context) ([]Mismatch, error) {
	var duplicates, known, owners []uuid.UUID
	err := s.db.WithReadTx(ctx, func(tx *gorm.DB) error {
		var err error
		if duplicates, err = s.payouts.WithTx(tx).DuplicateClaims(ctx); err != nil {
			return storeError(err, "find duplicate claims")
		}
		if known, err = s.suppliers.WithTx(tx).ListIDs(ctx); err != nil {
			return storeError(err, "list suppliers")
		}
		if owners, err = s.lineItems.WithTx(tx).SupplierIDs(ctx); err != nil {
			return storeError(err, "list line item suppliers")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "reconcile ledger")
	}

	var mismatches []Mismatch
	for _, id := range duplicates {
		mismatches = append(mismatches, Mismatch{
			Check:  metrics.CheckDuplicateClaims,
			Detail: fmt.Sprintf("line item %s appears in more than one payout", id),
		})
	}

	directory := make(map[uuid.UUID]struct{}, len(known))
	for _, id := range known {
		directory[id] = struct{}{}
	}
	for _, owner := range owners {
		if _, ok := directory[owner]; ok {
			continue
		}
		id := owner
		mismatches = append(mismatches, Mismatch{
			Check:      metrics.CheckOrphanItems,
			SupplierID: &id,
			Detail:     "line items reference a supplier missing from the directory",
		})
	}

	s.recordMismatches(ctx, mismatches)
	return mismatches, nil
}

func (s *service) recordMismatches(ctx context.Context, mismatches []Mismatch) {
	for _, m := range mismatches {
		s.metrics.ReconciliationMismatch(m.Check)
		fields := map[string]any{"check": m.Check, "detail": m.Detail}
		if m.SupplierID != nil {
			fields["supplier_id"] = m.SupplierID.String()
		}
		s.logg.Warn(s.logg.WithFields(ctx, fields), "reconciliation mismatch")
	}
}

func unionIDs(lists ...[]uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
