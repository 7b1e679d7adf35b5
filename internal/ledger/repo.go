package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/internal/repo"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	"github.com/angelmondragon/payout-ledger/pkg/pagination"
)

// PayoutRepository persists the append-only payout history.
type PayoutRepository interface {
	WithTx(tx *gorm.DB) PayoutRepository
	Create(ctx context.Context, payout *models.Payout) error
	AddItems(ctx context.Context, items []models.PayoutItem) error
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Payout, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Payout, error)
	MarkReversed(ctx context.Context, id uuid.UUID, at time.Time, reason string) (bool, error)
	SumActiveBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error)
	DuplicateClaims(ctx context.Context) ([]uuid.UUID, error)
}

// ReversalRepository persists compensating entries for reversed line items.
type ReversalRepository interface {
	WithTx(tx *gorm.DB) ReversalRepository
	Create(ctx context.Context, reversal *models.LineItemReversal) error
	SumPaidReversalsInActivePayouts(ctx context.Context, supplierID uuid.UUID) (int64, error)
}

type payoutRepository struct {
	repo.Base
}

// NewPayoutRepository binds a GORM DB to payout history operations.
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &payoutRepository{Base: repo.NewBase(db)}
}

func (r *payoutRepository) WithTx(tx *gorm.DB) PayoutRepository {
	if tx == nil {
		return r
	}
	return &payoutRepository{Base: r.Bind(tx)}
}

// Create inserts the payout row only; items are added once every claim succeeded.
func (r *payoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	return r.DB(ctx).Omit("Items").Create(payout).Error
}

func (r *payoutRepository) AddItems(ctx context.Context, items []models.PayoutItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&items).Error
}

func (r *payoutRepository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.DB(ctx).
		Where("idempotency_key = ?", key).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *payoutRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	if err := r.DB(ctx).
		Preload("Items", orderItems).
		Where("id = ?", id).
		First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// ListBySupplier returns payouts newest first, starting after cursor.
func (r *payoutRepository) ListBySupplier(ctx context.Context, supplierID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Payout, error) {
	var payouts []models.Payout
	if err := r.DB(ctx).
		Preload("Items", orderItems).
		Where("supplier_id = ?", supplierID).
		Scopes(repo.NewestFirst(cursor, limit)).
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

// MarkReversed stamps the reversal columns. False means the payout was already reversed.
func (r *payoutRepository) MarkReversed(ctx context.Context, id uuid.UUID, at time.Time, reason string) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND reversed_at IS NULL", id).
		Updates(map[string]any{
			"reversed_at":     at,
			"reversal_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *payoutRepository) SumActiveBySupplier(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	var total int64
	err := r.DB(ctx).
		Model(&models.Payout{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("supplier_id = ? AND reversed_at IS NULL", supplierID).
		Scan(&total).Error
	return total, err
}

// DuplicateClaims lists line items referenced by more than one payout.
func (r *payoutRepository) DuplicateClaims(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.DB(ctx).
		Model(&models.PayoutItem{}).
		Select("line_item_id").
		Group("line_item_id").
		Having("COUNT(*) > 1").
		Order("line_item_id ASC").
		Pluck("line_item_id", &ids).Error
	return ids, err
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("line_item_id ASC")
}

type reversalRepository struct {
	repo.Base
}

// NewReversalRepository binds a GORM DB to reversal entries.
func NewReversalRepository(db *gorm.DB) ReversalRepository {
	return &reversalRepository{Base: repo.NewBase(db)}
}

func (r *reversalRepository) WithTx(tx *gorm.DB) ReversalRepository {
	if tx == nil {
		return r
	}
	return &reversalRepository{Base: r.Bind(tx)}
}

func (r *reversalRepository) Create(ctx context.Context, reversal *models.LineItemReversal) error {
	if reversal.ID == uuid.Nil {
		reversal.ID = uuid.New()
	}
	return r.DB(ctx).Create(reversal).Error
}

// SumPaidReversalsInActivePayouts sums reversals of paid items whose payout is
// still active. Those amounts left the paid total without reducing any payout.
func (r *reversalRepository) SumPaidReversalsInActivePayouts(ctx context.Context, supplierID uuid.UUID) (int64, error) {
	var total int64
	err := r.DB(ctx).
		Table("line_item_reversals AS r").
		Select("COALESCE(SUM(r.amount_cents), 0)").
		Joins("JOIN payouts AS p ON p.id = r.payout_id").
		Where("r.supplier_id = ? AND r.previous_state = ? AND p.reversed_at IS NULL", supplierID, enums.PaymentStatePaid).
		Scan(&total).Error
	return total, err
}
