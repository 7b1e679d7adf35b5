package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/payout-ledger/pkg/db/models"
)

var errTxRequired = errors.New("outbox: transaction required")

// Repository reads and updates outbox_events. Writes that must commit with
// ledger state take the caller's transaction explicitly.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// pending selects unpublished rows that still have publish attempts left.
func pending(maxAttempts int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("published_at IS NULL AND attempt_count < ?", maxAttempts)
	}
}

// settled selects rows that will never be published again: relayed ones and
// ones parked at or beyond minAttempts.
func settled(minAttempts int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("published_at IS NOT NULL OR attempt_count >= ?", minAttempts)
	}
}

// LockPending locks up to limit pending rows in commit order. Rows another
// relay already holds are skipped, not waited on.
func (r *Repository) LockPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	var rows []models.OutboxEvent
	err := tx.Scopes(pending(maxAttempts)).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

// MarkPublished stamps a successful publish and counts the attempt.
func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{
		"published_at":  r.now().UTC(),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// RecordFailure counts a failed attempt and keeps the row pending.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    models.ClipError(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Park pins attempt_count at ceiling so LockPending never returns the row.
func (r *Repository) Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    models.ClipError(cause),
		"attempt_count": ceiling,
	})
}

// PruneBatch deletes at most limit settled rows created before cutoff and
// returns how many went. A nil tx runs on the repository's connection.
func (r *Repository) PruneBatch(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts, limit int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	tx = tx.WithContext(ctx)
	victims := settled(minAttempts)(tx.Model(&models.OutboxEvent{}).
		Select("id").
		Where("created_at < ?", cutoff)).
		Order("created_at ASC").
		Limit(limit)
	res := tx.Where("id IN (?)", victims).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
