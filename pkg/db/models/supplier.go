package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// Supplier is the read-only directory entry the ledger validates payouts against.
type Supplier struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string               `gorm:"column:name;not null"`
	Status    enums.SupplierStatus `gorm:"column:status;type:supplier_status;not null;default:'pending_approval'"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// IsApproved reports whether payouts may be issued to the supplier.
func (s Supplier) IsApproved() bool {
	return s.Status == enums.SupplierStatusApproved
}
