package lineitems

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/internal/repo"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// Repository reads line items and applies the version-guarded state writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListBySupplier(ctx context.Context, supplierID uuid.UUID) ([]models.LineItem, error)
	FindByRefs(ctx context.Context, refs []ItemRef) ([]models.LineItem, error)
	FindByRef(ctx context.Context, ref ItemRef) (*models.LineItem, error)
	ClaimForPayout(ctx context.Context, claim Claim) (bool, error)
	Transition(ctx context.Context, input TransitionInput) (bool, error)
	MarkOrderEligible(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error)
	CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	ListPaidByPayout(ctx context.Context, payoutID uuid.UUID) ([]models.LineItem, error)
	SupplierIDs(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	repo.Base
}

// NewRepository binds a GORM DB to line item operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

// ListBySupplier reads every item of the supplier in one statement.
func (r *repository) ListBySupplier(ctx context.Context, supplierID uuid.UUID) ([]models.LineItem, error) {
	var items []models.LineItem
	if err := r.DB(ctx).
		Where("supplier_id = ?", supplierID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindByRefs loads the items whose (order_id, id) pair matches one of refs.
// Unknown refs are simply absent from the result.
func (r *repository) FindByRefs(ctx context.Context, refs []ItemRef) ([]models.LineItem, error) {
	if len(refs) == 0 {
		return []models.LineItem{}, nil
	}
	ids := make([]uuid.UUID, 0, len(refs))
	wanted := make(map[ItemRef]struct{}, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ItemID)
		wanted[ref] = struct{}{}
	}

	var rows []models.LineItem
	if err := r.DB(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]models.LineItem, 0, len(rows))
	for _, row := range rows {
		if _, ok := wanted[ItemRef{OrderID: row.OrderID, ItemID: row.ID}]; ok {
			items = append(items, row)
		}
	}
	return items, nil
}

func (r *repository) FindByRef(ctx context.Context, ref ItemRef) (*models.LineItem, error) {
	var item models.LineItem
	if err := r.DB(ctx).
		Where("id = ? AND order_id = ?", ref.ItemID, ref.OrderID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ClaimForPayout flips one item from pending to paid if its version still
// matches. It is the only code path that writes the paid state. A false result
// means another writer got there first.
func (r *repository) ClaimForPayout(ctx context.Context, claim Claim) (bool, error) {
	res := r.DB(ctx).
		Model(&models.LineItem{}).
		Where("id = ? AND order_id = ? AND supplier_id = ?", claim.Ref.ItemID, claim.Ref.OrderID, claim.SupplierID).
		Where("payment_state = ? AND version = ?", enums.PaymentStatePending, claim.Version).
		Updates(map[string]any{
			"payment_state": enums.PaymentStatePaid,
			"payout_id":     claim.PayoutID,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    claim.At,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Transition applies a guarded state change. Moving to pending stamps
// eligible_at; moving to reversed detaches the item from its payout.
func (r *repository) Transition(ctx context.Context, input TransitionInput) (bool, error) {
	if input.To == enums.PaymentStatePaid {
		return false, ErrPaidTransitionReserved
	}
	if !CanTransition(input.From, input.To) {
		return false, ErrIllegalTransition
	}

	updates := map[string]any{
		"payment_state": input.To,
		"version":       gorm.Expr("version + 1"),
		"updated_at":    input.At,
	}
	switch input.To {
	case enums.PaymentStatePending:
		updates["eligible_at"] = input.At
	case enums.PaymentStateReversed:
		updates["payout_id"] = nil
	}

	res := r.DB(ctx).
		Model(&models.LineItem{}).
		Where("id = ? AND order_id = ?", input.Ref.ItemID, input.Ref.OrderID).
		Where("payment_state = ? AND version = ?", input.From, input.Version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkOrderEligible moves every unbilled item of the order to pending.
func (r *repository) MarkOrderEligible(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.DB(ctx).
		Model(&models.LineItem{}).
		Where("order_id = ? AND payment_state = ?", orderID, enums.PaymentStateUnbilled).
		Updates(map[string]any{
			"payment_state": enums.PaymentStatePending,
			"eligible_at":   at,
			"version":       gorm.Expr("version + 1"),
			"updated_at":    at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CountByOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.LineItem{}).Where("order_id = ?", orderID).Count(&n).Error
	return n, err
}

func (r *repository) ListPaidByPayout(ctx context.Context, payoutID uuid.UUID) ([]models.LineItem, error) {
	var items []models.LineItem
	if err := r.DB(ctx).
		Where("payout_id = ? AND payment_state = ?", payoutID, enums.PaymentStatePaid).
		Order("id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// SupplierIDs lists every supplier that owns at least one line item.
func (r *repository) SupplierIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.DB(ctx).
		Model(&models.LineItem{}).
		Distinct("supplier_id").
		Order("supplier_id ASC").
		Pluck("supplier_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
