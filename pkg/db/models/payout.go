package models

import (
	"time"

	"github.com/google/uuid"
)

// Payout is an append-only batch covering a fixed set of line items. Only the
// reversal columns are written after creation.
type Payout struct {
	ID             uuid.UUID    `gorm:"column:id;type:uuid;primaryKey"`
	SupplierID     uuid.UUID    `gorm:"column:supplier_id;type:uuid;not null"`
	AmountCents    int64        `gorm:"column:amount_cents;not null"`
	ItemCount      int          `gorm:"column:item_count;not null"`
	IdempotencyKey string       `gorm:"column:idempotency_key;not null"`
	RequestHash    string       `gorm:"column:request_hash;not null"`
	CreatedBy      *uuid.UUID   `gorm:"column:created_by;type:uuid"`
	CreatedAt      time.Time    `gorm:"column:created_at;autoCreateTime"`
	ReversedAt     *time.Time   `gorm:"column:reversed_at"`
	ReversalReason *string      `gorm:"column:reversal_reason"`
	Items          []PayoutItem `gorm:"foreignKey:PayoutID;references:ID"`
}

// PayoutItem links a line item to the single payout that paid it.
type PayoutItem struct {
	PayoutID   uuid.UUID `gorm:"column:payout_id;type:uuid;primaryKey"`
	LineItemID uuid.UUID `gorm:"column:line_item_id;type:uuid;primaryKey"`
	OrderID    uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	TotalCents int64     `gorm:"column:total_cents;not null"`
}

// IsReversed reports whether the whole payout was reversed.
func (p Payout) IsReversed() bool {
	return p.ReversedAt != nil
}
