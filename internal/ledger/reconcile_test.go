package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	"github.com/angelmondragon/payout-ledger/pkg/metrics"
)

func checksOf(mismatches []Mismatch) []string {
	out := make([]string, 0, len(mismatches))
	for _, m := range mismatches {
		out = append(out, m.Check)
	}
	return out
}

func TestReconcileCleanLedger(t *testing.T) {
	h := newHarness(t)
	a := h.pending(10)
	b := h.pending(20)
	h.pending(30)
	h.seed(5, enums.PaymentStateUnbilled)
	_, err := h.pay("k1", a, b)
	require.NoError(t, err)
	_, err = h.svc.ReverseLineItem(context.Background(), ReverseLineItemInput{Ref: refsOf(b)[0], Reason: "refund"})
	require.NoError(t, err)

	mismatches, err := h.svc.ReconcileSupplier(context.Background(), h.supplier.ID)
	require.NoError(t, err)
	require.Empty(t, mismatches)

	global, err := h.svc.ReconcileGlobal(context.Background())
	require.NoError(t, err)
	require.Empty(t, global)
	require.Zero(t, counterValue(t, h.registry, "ledger_reconciliation_mismatch_total"))
}

func TestReconcileDetectsPaidItemWithoutPayout(t *testing.T) {
	h := newHarness(t)
	item := h.pending(10)
	require.NoError(t, h.conn.Exec(
		"UPDATE order_line_items SET payment_state = ?, payout_id = NULL WHERE id = ?",
		enums.PaymentStatePaid, item.ID,
	).Error)

	mismatches, err := h.svc.ReconcileSupplier(context.Background(), h.supplier.ID)
	require.NoError(t, err)
	require.Equal(t, []string{metrics.CheckPaidLinks, metrics.CheckPayoutTotals}, checksOf(mismatches))
	require.Equal(t, h.supplier.ID, *mismatches[0].SupplierID)
	require.Contains(t, mismatches[0].String(), item.ID.String())
	require.Equal(t, float64(2), counterValue(t, h.registry, "ledger_reconciliation_mismatch_total"))
}

func TestReconcileDetectsPayoutTotalDrift(t *testing.T) {
	h := newHarness(t)
	item := h.pending(10)
	result, err := h.pay("k1", item)
	require.NoError(t, err)
	require.NoError(t, h.conn.Exec("UPDATE payouts SET amount_cents = 99 WHERE id = ?", result.PayoutID).Error)

	mismatches, err := h.svc.ReconcileSupplier(context.Background(), h.supplier.ID)
	require.NoError(t, err)
	require.Equal(t, []string{metrics.CheckPayoutTotals}, checksOf(mismatches))
}

func TestReconcileGlobalDetectsDuplicateClaims(t *testing.T) {
	h := newHarness(t)
	item := h.pending(10)
	_, err := h.pay("k1", item)
	require.NoError(t, err)

	// rebuild payout_items without its uniqueness guard to plant a second claim
	require.NoError(t, h.conn.Exec("ALTER TABLE payout_items RENAME TO payout_items_old").Error)
	require.NoError(t, h.conn.Exec(`CREATE TABLE payout_items (
		payout_id TEXT NOT NULL,
		line_item_id TEXT NOT NULL,
		order_id TEXT NOT NULL,
		total_cents INTEGER NOT NULL
	)`).Error)
	require.NoError(t, h.conn.Exec("INSERT INTO payout_items SELECT payout_id, line_item_id, order_id, total_cents FROM payout_items_old").Error)
	require.NoError(t, h.conn.Create(&models.PayoutItem{
		PayoutID:   uuid.New(),
		LineItemID: item.ID,
		OrderID:    item.OrderID,
		TotalCents: item.TotalCents,
	}).Error)

	mismatches, err := h.svc.ReconcileGlobal(context.Background())
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, metrics.CheckDuplicateClaims, mismatches[0].Check)
	require.Nil(t, mismatches[0].SupplierID)
	require.Contains(t, mismatches[0].Detail, item.ID.String())
}

func TestReconcileGlobalDetectsOrphanItems(t *testing.T) {
	h := newHarness(t)
	stranger := uuid.New()
	dbtest.SeedLineItem(t, h.conn, dbtest.LineItemSeed{SupplierID: stranger, TotalCents: 10})

	mismatches, err := h.svc.ReconcileGlobal(context.Background())
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	require.Equal(t, metrics.CheckOrphanItems, mismatches[0].Check)
	require.Equal(t, stranger, *mismatches[0].SupplierID)

	targets, err := h.svc.ReconcileTargets(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{h.supplier.ID, stranger}, targets)
}

func TestReconcileTargetsIncludesIdleSuppliers(t *testing.T) {
	h := newHarness(t)
	idle := dbtest.SeedSupplier(t, h.conn, enums.SupplierStatusSuspended)
	h.pending(10)

	targets, err := h.svc.ReconcileTargets(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{h.supplier.ID, idle.ID}, targets)

	mismatches, err := h.svc.ReconcileSupplier(context.Background(), idle.ID)
	require.NoError(t, err)
	require.Empty(t, mismatches)
}

// sumHookPayouts runs before once, just ahead of the first payout total read.
type sumHookPayouts struct {
	PayoutRepository
	before func()
	fired  *bool
}

func (r sumHookPayouts) WithTx(tx *gorm.DB) PayoutRepository {
	return sumHookPayouts{PayoutRepository: r.PayoutRepository.WithTx(tx), before: r.before, fired: r.fired}
}

func (r sumHookPayouts) SumActiveBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	if !*r.fired {
		*r.fired = true
		r.before()
	}
	return r.PayoutRepository.SumActiveBySupplier(ctx, supplierID)
}

func TestReconcileIgnoresPayoutCommittedMidCheck(t *testing.T) {
	var h *harness
	var items []models.LineItem
	var committed *PayoutResult
	fired := false

	h = newHarnessOn(t, dbtest.OpenWAL(t), withPayouts(func(inner PayoutRepository) PayoutRepository {
		return sumHookPayouts{PayoutRepository: inner, fired: &fired, before: func() {
			var err error
			committed, err = h.pay("mid-check", items...)
			require.NoError(t, err)
		}}
	}))
	items = []models.LineItem{h.pending(4), h.pending(6)}

	mismatches, err := h.svc.ReconcileSupplier(context.Background(), h.supplier.ID)
	require.NoError(t, err)
	require.True(t, fired)
	require.NotNil(t, committed)
	require.Empty(t, mismatches)
	require.Zero(t, counterValue(t, h.registry, "ledger_reconciliation_mismatch_total"))

	mismatches, err = h.svc.ReconcileSupplier(context.Background(), h.supplier.ID)
	require.NoError(t, err)
	require.Empty(t, mismatches)
	require.Equal(t, int64(10), h.balance().TotalPaidCents)
}
