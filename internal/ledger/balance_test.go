package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payout-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
)

func TestGetBalancePendingItems(t *testing.T) {
	h := newHarness(t)
	a := h.pending(10)
	b := h.pending(20)

	balance := h.balance()
	require.Equal(t, int64(30), balance.TotalEarnedCents)
	require.Zero(t, balance.TotalPaidCents)
	require.Equal(t, int64(30), balance.PendingCents)
	require.Len(t, balance.PendingItems, 2)

	ids := []uuid.UUID{balance.PendingItems[0].ItemID, balance.PendingItems[1].ItemID}
	require.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, ids)
	require.True(t, balance.Reconciles())
}

func TestGetBalancePartitionsEveryState(t *testing.T) {
	h := newHarness(t)
	h.seed(5, enums.PaymentStateUnbilled)
	h.seed(10, enums.PaymentStatePending)
	paid := h.pending(20)
	reversed := h.pending(40)

	_, err := h.pay("k-paid", paid)
	require.NoError(t, err)
	_, err = h.svc.ReverseLineItem(context.Background(), ReverseLineItemInput{
		Ref:    refsOf(reversed)[0],
		Reason: "cancelled after delivery",
	})
	require.NoError(t, err)

	balance := h.balance()
	require.Equal(t, int64(70), balance.TotalEarnedCents, "unbilled items are not earned yet")
	require.Equal(t, int64(20), balance.TotalPaidCents)
	require.Equal(t, int64(10), balance.PendingCents)
	require.Equal(t, int64(40), balance.TotalReversedCents)
	require.Len(t, balance.PendingItems, 1)
	require.True(t, balance.Reconciles())
}

func TestGetBalanceIgnoresOtherSuppliers(t *testing.T) {
	h := newHarness(t)
	other := dbtest.SeedSupplier(t, h.conn, enums.SupplierStatusApproved)
	dbtest.SeedLineItem(t, h.conn, dbtest.LineItemSeed{SupplierID: other.ID, TotalCents: 999})
	h.pending(1)

	require.Equal(t, int64(1), h.balance().TotalEarnedCents)
}

func TestGetBalanceUnknownSupplier(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.GetBalance(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "got %v", err)

	_, err = h.svc.GetBalance(context.Background(), uuid.Nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetBalanceEmptySupplier(t *testing.T) {
	h := newHarness(t)
	balance := h.balance()
	require.Zero(t, balance.TotalEarnedCents)
	require.NotNil(t, balance.PendingItems)
	require.Empty(t, balance.PendingItems)
	require.False(t, balance.AsOf.IsZero())
}
