package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// PendingItem is a line item currently waiting for a payout.
type PendingItem struct {
	OrderID        uuid.UUID `json:"orderId"`
	ItemID         uuid.UUID `json:"itemId"`
	Name           string    `json:"name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	TotalCents     int64     `json:"totalCents"`
	EligibleAt     time.Time `json:"eligibleAt"`
}

// Balance is a consistent snapshot of one supplier's ledger.
type Balance struct {
	SupplierID         uuid.UUID
	TotalEarnedCents   int64
	TotalPaidCents     int64
	PendingCents       int64
	TotalReversedCents int64
	PendingItems       []PendingItem
	AsOf               time.Time
}

// Reconciles reports whether earned == paid + pending + reversed.
func (b Balance) Reconciles() bool {
	return b.TotalEarnedCents == b.TotalPaidCents+b.PendingCents+b.TotalReversedCents
}

// GetBalance recomputes the supplier balance from a single read of its line items.
func (s *service) GetBalance(ctx context.Context, supplierID uuid.UUID) (*Balance, error) {
	if supplierID == uuid.Nil {
		return nil, validationError("supplier id is required")
	}
	if _, err := s.findSupplier(ctx, supplierID); err != nil {
		return nil, err
	}

	items, err := s.lineItems.ListBySupplier(ctx, supplierID)
	if err != nil {
		return nil, storeError(err, "load line items")
	}
	balance := summarize(supplierID, items)
	balance.AsOf = s.clock()
	return &balance, nil
}

func summarize(supplierID uuid.UUID, items []models.LineItem) Balance {
	balance := Balance{
		SupplierID:   supplierID,
		PendingItems: []PendingItem{},
	}
	for _, item := range items {
		if item.EligibleAt != nil {
			balance.TotalEarnedCents += item.TotalCents
		}
		switch item.PaymentState {
		case enums.PaymentStatePending:
			balance.PendingCents += item.TotalCents
			pending := PendingItem{
				OrderID:        item.OrderID,
				ItemID:         item.ID,
				Name:           item.Name,
				Quantity:       item.Quantity,
				UnitPriceCents: item.UnitPriceCents,
				TotalCents:     item.TotalCents,
			}
			if item.EligibleAt != nil {
				pending.EligibleAt = *item.EligibleAt
			}
			balance.PendingItems = append(balance.PendingItems, pending)
		case enums.PaymentStatePaid:
			balance.TotalPaidCents += item.TotalCents
		case enums.PaymentStateReversed:
			balance.TotalReversedCents += item.TotalCents
		}
	}
	return balance
}

func (s *service) findSupplier(ctx context.Context, supplierID uuid.UUID) (*models.Supplier, error) {
	supplier, err := s.suppliers.FindByID(ctx, supplierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundError("supplier %s not found", supplierID)
		}
		return nil, storeError(err, "load supplier")
	}
	return supplier, nil
}
