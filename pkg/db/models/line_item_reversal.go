package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// LineItemReversal is the compensating entry written for every reversal.
type LineItemReversal struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	LineItemID    uuid.UUID          `gorm:"column:line_item_id;type:uuid;not null"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	SupplierID    uuid.UUID          `gorm:"column:supplier_id;type:uuid;not null"`
	PreviousState enums.PaymentState `gorm:"column:previous_state;type:payment_state;not null"`
	AmountCents   int64              `gorm:"column:amount_cents;not null"`
	PayoutID      *uuid.UUID         `gorm:"column:payout_id;type:uuid"`
	Reason        string             `gorm:"column:reason;not null"`
	ActorUserID   *uuid.UUID         `gorm:"column:actor_user_id;type:uuid"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
}
