package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/pagination"
)

// PayoutSummary is one historical payout as presented to callers.
type PayoutSummary struct {
	PayoutID       uuid.UUID
	SupplierID     uuid.UUID
	AmountCents    int64
	ItemCount      int
	IdempotencyKey string
	ItemRefs       []lineitems.ItemRef
	CreatedAt      time.Time
	ReversedAt     *time.Time
	ReversalReason *string
}

// ListPayouts pages through a supplier's payout history, newest first.
func (s *service) ListPayouts(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*pagination.Page[PayoutSummary], error) {
	if supplierID == uuid.Nil {
		return nil, validationError("supplier id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, validationError("invalid cursor: %v", err)
	}
	if _, err := s.findSupplier(ctx, supplierID); err != nil {
		return nil, err
	}

	rows, err := s.payouts.ListBySupplier(ctx, supplierID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, storeError(err, "list payouts")
	}

	summaries := make([]PayoutSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, summarizePayout(row))
	}
	page := pagination.BuildPage(summaries, params.Limit, func(p PayoutSummary) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.PayoutID}
	})
	return &page, nil
}

func summarizePayout(row models.Payout) PayoutSummary {
	refs := make([]lineitems.ItemRef, 0, len(row.Items))
	for _, item := range row.Items {
		refs = append(refs, lineitems.ItemRef{OrderID: item.OrderID, ItemID: item.LineItemID})
	}
	return PayoutSummary{
		PayoutID:       row.ID,
		SupplierID:     row.SupplierID,
		AmountCents:    row.AmountCents,
		ItemCount:      row.ItemCount,
		IdempotencyKey: row.IdempotencyKey,
		ItemRefs:       refs,
		CreatedAt:      row.CreatedAt,
		ReversedAt:     row.ReversedAt,
		ReversalReason: row.ReversalReason,
	}
}
