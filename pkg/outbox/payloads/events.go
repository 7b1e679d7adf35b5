package payloads

import (
	"time"

	"github.com/google/uuid"
)

// PayoutItemRef is one line item settled by a payout.
type PayoutItemRef struct {
	OrderID    uuid.UUID `json:"order_id"`
	LineItemID uuid.UUID `json:"line_item_id"`
	TotalCents int64     `json:"total_cents"`
}

// PayoutCreatedEvent is emitted once per committed payout.
type PayoutCreatedEvent struct {
	PayoutID       uuid.UUID       `json:"payout_id"`
	SupplierID     uuid.UUID       `json:"supplier_id"`
	AmountCents    int64           `json:"amount_cents"`
	ItemCount      int             `json:"item_count"`
	IdempotencyKey string          `json:"idempotency_key"`
	Items          []PayoutItemRef `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PayoutReversedEvent is emitted when an entire payout is reversed.
type PayoutReversedEvent struct {
	PayoutID    uuid.UUID   `json:"payout_id"`
	SupplierID  uuid.UUID   `json:"supplier_id"`
	AmountCents int64       `json:"amount_cents"`
	LineItemIDs []uuid.UUID `json:"line_item_ids"`
	Reason      string      `json:"reason"`
	ReversedAt  time.Time   `json:"reversed_at"`
}

// LineItemReversedEvent is emitted for each reversed line item.
type LineItemReversedEvent struct {
	LineItemID    uuid.UUID  `json:"line_item_id"`
	OrderID       uuid.UUID  `json:"order_id"`
	SupplierID    uuid.UUID  `json:"supplier_id"`
	PreviousState string     `json:"previous_state"`
	PayoutID      *uuid.UUID `json:"payout_id,omitempty"`
	TotalCents    int64      `json:"total_cents"`
	Reason        string     `json:"reason"`
	ReversedAt    time.Time  `json:"reversed_at"`
}

// SupplierScoped is implemented by every ledger event so relays can attach
// the owning supplier as a message attribute.
type SupplierScoped interface {
	Supplier() uuid.UUID
}

func (e *PayoutCreatedEvent) Supplier() uuid.UUID    { return e.SupplierID }
func (e *PayoutReversedEvent) Supplier() uuid.UUID   { return e.SupplierID }
func (e *LineItemReversedEvent) Supplier() uuid.UUID { return e.SupplierID }
