package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// LineItem is one supplier-attributable product entry within an order.
// TotalCents is frozen once EligibleAt is set; afterwards only PaymentState,
// PayoutID and Version change.
type LineItem struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null"`
	SupplierID     uuid.UUID          `gorm:"column:supplier_id;type:uuid;not null"`
	Name           string             `gorm:"column:name;not null"`
	Quantity       int                `gorm:"column:quantity;not null"`
	UnitPriceCents int64              `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64              `gorm:"column:total_cents;not null"`
	EligibleAt     *time.Time         `gorm:"column:eligible_at"`
	PaymentState   enums.PaymentState `gorm:"column:payment_state;type:payment_state;not null;default:'unbilled'"`
	PayoutID       *uuid.UUID         `gorm:"column:payout_id;type:uuid"`
	Version        int64              `gorm:"column:version;not null;default:0"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (LineItem) TableName() string {
	return "order_line_items"
}
