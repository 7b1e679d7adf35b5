package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payout-ledger/pkg/pagination"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
)

func TestListPayoutsPaginatesNewestFirst(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, func(p *ServiceParams, _ *harness) {
		p.Now = func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}
	})

	var created []uuid.UUID
	for i := 0; i < 5; i++ {
		item := h.pending(int64(10 * (i + 1)))
		result, err := h.pay(uuid.NewString(), item)
		require.NoError(t, err)
		created = append(created, result.PayoutID)
	}

	first, err := h.svc.ListPayouts(context.Background(), h.supplier.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.Equal(t, created[4], first.Items[0].PayoutID)
	require.Equal(t, created[3], first.Items[1].PayoutID)
	require.Len(t, first.Items[0].ItemRefs, 1)
	require.NotEmpty(t, first.NextCursor)

	second, err := h.svc.ListPayouts(context.Background(), h.supplier.ID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{created[2], created[1]}, []uuid.UUID{second.Items[0].PayoutID, second.Items[1].PayoutID})

	third, err := h.svc.ListPayouts(context.Background(), h.supplier.ID, pagination.Params{Limit: 2, Cursor: second.NextCursor})
	require.NoError(t, err)
	require.Len(t, third.Items, 1)
	require.Equal(t, created[0], third.Items[0].PayoutID)
	require.Empty(t, third.NextCursor)
}

func TestListPayoutsErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.ListPayouts(context.Background(), h.supplier.ID, pagination.Params{Cursor: "%%%"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.ListPayouts(context.Background(), uuid.New(), pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	page, err := h.svc.ListPayouts(context.Background(), h.supplier.ID, pagination.Params{})
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Equal(t, pagination.DefaultLimit, page.Limit)
}
