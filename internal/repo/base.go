// Package repo holds what the ledger's gorm repositories share.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/pagination"
)

// Base is embedded by repositories. It carries either the pool handle or,
// after Bind, a transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// Bind returns a copy that runs on tx. A nil tx keeps the current handle.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the handle scoped to ctx so cancellation reaches the driver.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// NewestFirst orders by (created_at, id) descending and, given a cursor,
// continues strictly after it. Use with pagination.LimitWithBuffer.
func NewestFirst(cursor *pagination.Cursor, limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if cursor != nil {
			db = db.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
		return db.Order("created_at DESC").Order("id DESC").Limit(limit)
	}
}
