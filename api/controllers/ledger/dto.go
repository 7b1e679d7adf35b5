package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalledger "github.com/angelmondragon/payout-ledger/internal/ledger"
	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

type payoutRequest struct {
	ItemRefs       []lineitems.ItemRef `json:"itemRefs" validate:"required,min=1,dive"`
	IdempotencyKey string              `json:"idempotencyKey" validate:"max=255"`
}

type reverseLineItemRequest struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
	ItemID  uuid.UUID `json:"itemId" validate:"required"`
	Reason  string    `json:"reason" validate:"required,max=500"`
}

type reversePayoutRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type pendingItemResponse struct {
	OrderID    uuid.UUID `json:"orderId"`
	ItemID     uuid.UUID `json:"itemId"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	UnitPrice  string    `json:"unitPrice"`
	Total      string    `json:"total"`
	TotalCents int64     `json:"totalCents"`
	EligibleAt time.Time `json:"eligibleAt"`
}

type balanceResponse struct {
	SupplierID         uuid.UUID             `json:"supplierId"`
	TotalEarned        string                `json:"totalEarned"`
	TotalPaid          string                `json:"totalPaid"`
	PendingAmount      string                `json:"pendingAmount"`
	TotalReversed      string                `json:"totalReversed"`
	TotalEarnedCents   int64                 `json:"totalEarnedCents"`
	TotalPaidCents     int64                 `json:"totalPaidCents"`
	PendingAmountCents int64                 `json:"pendingAmountCents"`
	TotalReversedCents int64                 `json:"totalReversedCents"`
	PendingItems       []pendingItemResponse `json:"pendingItems"`
	AsOf               time.Time             `json:"asOf"`
}

type payoutResponse struct {
	PayoutID    uuid.UUID `json:"payoutId"`
	SupplierID  uuid.UUID `json:"supplierId"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amountCents"`
	ItemCount   int       `json:"itemCount"`
	Replayed    bool      `json:"replayed"`
	CreatedAt   time.Time `json:"createdAt"`
}

type payoutSummaryResponse struct {
	PayoutID       uuid.UUID           `json:"payoutId"`
	SupplierID     uuid.UUID           `json:"supplierId"`
	Amount         string              `json:"amount"`
	AmountCents    int64               `json:"amountCents"`
	ItemCount      int                 `json:"itemCount"`
	IdempotencyKey string              `json:"idempotencyKey"`
	ItemRefs       []lineitems.ItemRef `json:"itemRefs"`
	CreatedAt      time.Time           `json:"createdAt"`
	ReversedAt     *time.Time          `json:"reversedAt,omitempty"`
	ReversalReason *string             `json:"reversalReason,omitempty"`
}

type eligibilityResponse struct {
	OrderID      uuid.UUID `json:"orderId"`
	UpdatedItems int64     `json:"updatedItems"`
}

type lineItemReversalResponse struct {
	OrderID       uuid.UUID          `json:"orderId"`
	ItemID        uuid.UUID          `json:"itemId"`
	SupplierID    uuid.UUID          `json:"supplierId"`
	PreviousState enums.PaymentState `json:"previousState"`
	Amount        string             `json:"amount"`
	AmountCents   int64              `json:"amountCents"`
	PayoutID      *uuid.UUID         `json:"payoutId,omitempty"`
	ReversedAt    time.Time          `json:"reversedAt"`
}

type payoutReversalResponse struct {
	PayoutID      uuid.UUID           `json:"payoutId"`
	SupplierID    uuid.UUID           `json:"supplierId"`
	ReversedItems []lineitems.ItemRef `json:"reversedItems"`
	Amount        string              `json:"amount"`
	AmountCents   int64               `json:"amountCents"`
	ReversedAt    time.Time           `json:"reversedAt"`
}

// formatCents renders integer cents as a fixed two-decimal amount.
func formatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func toBalanceResponse(b *internalledger.Balance) balanceResponse {
	items := make([]pendingItemResponse, 0, len(b.PendingItems))
	for _, item := range b.PendingItems {
		items = append(items, pendingItemResponse{
			OrderID:    item.OrderID,
			ItemID:     item.ItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  formatCents(item.UnitPriceCents),
			Total:      formatCents(item.TotalCents),
			TotalCents: item.TotalCents,
			EligibleAt: item.EligibleAt,
		})
	}
	return balanceResponse{
		SupplierID:         b.SupplierID,
		TotalEarned:        formatCents(b.TotalEarnedCents),
		TotalPaid:          formatCents(b.TotalPaidCents),
		PendingAmount:      formatCents(b.PendingCents),
		TotalReversed:      formatCents(b.TotalReversedCents),
		TotalEarnedCents:   b.TotalEarnedCents,
		TotalPaidCents:     b.TotalPaidCents,
		PendingAmountCents: b.PendingCents,
		TotalReversedCents: b.TotalReversedCents,
		PendingItems:       items,
		AsOf:               b.AsOf,
	}
}

func toPayoutResponse(r *internalledger.PayoutResult) payoutResponse {
	return payoutResponse{
		PayoutID:    r.PayoutID,
		SupplierID:  r.SupplierID,
		Amount:      formatCents(r.AmountCents),
		AmountCents: r.AmountCents,
		ItemCount:   r.ItemCount,
		Replayed:    r.Replayed,
		CreatedAt:   r.CreatedAt,
	}
}

func toSummaryResponses(rows []internalledger.PayoutSummary) []payoutSummaryResponse {
	out := make([]payoutSummaryResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, payoutSummaryResponse{
			PayoutID:       row.PayoutID,
			SupplierID:     row.SupplierID,
			Amount:         formatCents(row.AmountCents),
			AmountCents:    row.AmountCents,
			ItemCount:      row.ItemCount,
			IdempotencyKey: row.IdempotencyKey,
			ItemRefs:       row.ItemRefs,
			CreatedAt:      row.CreatedAt,
			ReversedAt:     row.ReversedAt,
			ReversalReason: row.ReversalReason,
		})
	}
	return out
}
