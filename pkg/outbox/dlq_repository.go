package outbox

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/db/models"
)

// DLQRepository appends to outbox_dlq.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// Record stores entry in tx. The message is clipped to the outbox error
// limit and a missing id is generated.
func (r *DLQRepository) Record(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil && len(*entry.ErrorMessage) > models.MaxOutboxErrorLen {
		clipped := (*entry.ErrorMessage)[:models.MaxOutboxErrorLen]
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}
