package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	"github.com/angelmondragon/payout-ledger/pkg/outbox"
	"github.com/angelmondragon/payout-ledger/pkg/outbox/payloads"
)

const (
	maxReasonLen = 500

	reversalKindLineItem = "line_item"
	reversalKindPayout   = "payout"
)

// EligibilityResult reports how many items of an order became payable.
type EligibilityResult struct {
	OrderID uuid.UUID
	Updated int64
}

// ReverseLineItemInput describes a refund or cancellation of one line item.
type ReverseLineItemInput struct {
	Ref    lineitems.ItemRef
	Reason string
	Actor  *Actor
}

// LineItemReversalResult is the compensating entry written for a reversal.
type LineItemReversalResult struct {
	Ref           lineitems.ItemRef
	SupplierID    uuid.UUID
	PreviousState enums.PaymentState
	AmountCents   int64
	PayoutID      *uuid.UUID
	ReversedAt    time.Time
}

// ReversePayoutInput describes a whole-payout reversal.
type ReversePayoutInput struct {
	PayoutID uuid.UUID
	Reason   string
	Actor    *Actor
}

// PayoutReversalResult lists the items a payout reversal moved to reversed.
type PayoutReversalResult struct {
	PayoutID      uuid.UUID
	SupplierID    uuid.UUID
	ReversedItems []lineitems.ItemRef
	AmountCents   int64
	ReversedAt    time.Time
}

// MarkOrderEligible makes every unbilled item of a delivered order payable.
// Items that are already eligible are left alone.
func (s *service) MarkOrderEligible(ctx context.Context, orderID uuid.UUID) (*EligibilityResult, error) {
	if orderID == uuid.Nil {
		return nil, validationError("order id is required")
	}
	updated, err := s.lineItems.MarkOrderEligible(ctx, orderID, s.clock())
	if err != nil {
		return nil, storeError(err, "mark order eligible")
	}
	if updated == 0 {
		count, err := s.lineItems.CountByOrder(ctx, orderID)
		if err != nil {
			return nil, storeError(err, "count order line items")
		}
		if count == 0 {
			return nil, notFoundError("order %s has no line items", orderID)
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":      orderID.String(),
		"updated_items": updated,
	})
	s.logg.Info(logCtx, "order marked eligible")
	return &EligibilityResult{OrderID: orderID, Updated: updated}, nil
}

// ReverseLineItem moves a pending or paid item to reversed and records the
// compensating entry. History is never deleted.
func (s *service) ReverseLineItem(ctx context.Context, input ReverseLineItemInput) (*LineItemReversalResult, error) {
	if input.Ref.OrderID == uuid.Nil || input.Ref.ItemID == uuid.Nil {
		return nil, validationError("orderId and itemId are required")
	}
	reason, err := normalizeReason(input.Reason)
	if err != nil {
		return nil, err
	}

	var result *LineItemReversalResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		item, err := s.lineItems.WithTx(tx).FindByRef(ctx, input.Ref)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("line item %s not found", input.Ref)
			}
			return err
		}
		result, err = s.reverseItem(ctx, tx, *item, reason, input.Actor)
		return err
	})
	if err != nil {
		return nil, storeError(err, "reverse line item")
	}

	s.metrics.Reversal(reversalKindLineItem)
	logCtx := s.logg.WithFields(s.logg.WithSupplierID(ctx, result.SupplierID.String()), map[string]any{
		"line_item_id":   input.Ref.ItemID.String(),
		"previous_state": result.PreviousState,
	})
	s.logg.Info(logCtx, "line item reversed")
	return result, nil
}

// ReversePayout reverses every item still paid by the payout and stamps the
// payout as reversed.
func (s *service) ReversePayout(ctx context.Context, input ReversePayoutInput) (*PayoutReversalResult, error) {
	if input.PayoutID == uuid.Nil {
		return nil, validationError("payout id is required")
	}
	reason, err := normalizeReason(input.Reason)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithPayoutID(ctx, input.PayoutID.String())

	var result *PayoutReversalResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payoutRepo := s.payouts.WithTx(tx)
		payout, err := payoutRepo.FindByID(ctx, input.PayoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("payout %s not found", input.PayoutID)
			}
			return err
		}
		if payout.IsReversed() {
			return conflictError(fmt.Sprintf("payout %s is already reversed", payout.ID), nil)
		}

		items, err := s.lineItems.WithTx(tx).ListPaidByPayout(ctx, payout.ID)
		if err != nil {
			return err
		}
		now := s.clock()
		result = &PayoutReversalResult{
			PayoutID:      payout.ID,
			SupplierID:    payout.SupplierID,
			ReversedItems: make([]lineitems.ItemRef, 0, len(items)),
			ReversedAt:    now,
		}
		lineItemIDs := make([]uuid.UUID, 0, len(items))
		for _, item := range items {
			reversed, err := s.reverseItem(ctx, tx, item, reason, input.Actor)
			if err != nil {
				return err
			}
			result.ReversedItems = append(result.ReversedItems, reversed.Ref)
			result.AmountCents += reversed.AmountCents
			lineItemIDs = append(lineItemIDs, item.ID)
		}

		marked, err := payoutRepo.MarkReversed(ctx, payout.ID, now, reason)
		if err != nil {
			return err
		}
		if !marked {
			return conflictError(fmt.Sprintf("payout %s is already reversed", payout.ID), nil)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutReversed,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         input.Actor.outboxRef(),
			OccurredAt:    now,
			Data: payloads.PayoutReversedEvent{
				PayoutID:    payout.ID,
				SupplierID:  payout.SupplierID,
				AmountCents: result.AmountCents,
				LineItemIDs: lineItemIDs,
				Reason:      reason,
				ReversedAt:  now,
			},
		})
	})
	if err != nil {
		return nil, storeError(err, "reverse payout")
	}

	s.metrics.Reversal(reversalKindPayout)
	logCtx := s.logg.WithFields(s.logg.WithSupplierID(ctx, result.SupplierID.String()), map[string]any{
		"reversed_items": len(result.ReversedItems),
		"amount_cents":   result.AmountCents,
	})
	s.logg.Info(logCtx, "payout reversed")
	return result, nil
}

// reverseItem applies the guarded transition, the compensating entry and the
// outbox event for one item inside tx.
func (s *service) reverseItem(ctx context.Context, tx *gorm.DB, item models.LineItem, reason string, actor *Actor) (*LineItemReversalResult, error) {
	ref := lineitems.ItemRef{OrderID: item.OrderID, ItemID: item.ID}
	if !lineitems.IsReversible(item.PaymentState) {
		return nil, conflictError(fmt.Sprintf("line item is %s and cannot be reversed", item.PaymentState), []lineitems.ItemRef{ref})
	}

	now := s.clock()
	ok, err := s.lineItems.WithTx(tx).Transition(ctx, lineitems.TransitionInput{
		Ref:     ref,
		From:    item.PaymentState,
		To:      enums.PaymentStateReversed,
		Version: item.Version,
		At:      now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conflictError("line item changed concurrently", []lineitems.ItemRef{ref})
	}

	reversal := &models.LineItemReversal{
		LineItemID:    item.ID,
		OrderID:       item.OrderID,
		SupplierID:    item.SupplierID,
		PreviousState: item.PaymentState,
		AmountCents:   item.TotalCents,
		PayoutID:      item.PayoutID,
		Reason:        reason,
		ActorUserID:   actor.userID(),
		CreatedAt:     now,
	}
	if err := s.reversals.WithTx(tx).Create(ctx, reversal); err != nil {
		return nil, err
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLineItemReversed,
		AggregateType: enums.AggregateLineItem,
		AggregateID:   item.ID,
		Actor:         actor.outboxRef(),
		OccurredAt:    now,
		Data: payloads.LineItemReversedEvent{
			LineItemID:    item.ID,
			OrderID:       item.OrderID,
			SupplierID:    item.SupplierID,
			PreviousState: string(item.PaymentState),
			PayoutID:      item.PayoutID,
			TotalCents:    item.TotalCents,
			Reason:        reason,
			ReversedAt:    now,
		},
	}); err != nil {
		return nil, err
	}

	return &LineItemReversalResult{
		Ref:           ref,
		SupplierID:    item.SupplierID,
		PreviousState: item.PaymentState,
		AmountCents:   item.TotalCents,
		PayoutID:      item.PayoutID,
		ReversedAt:    now,
	}, nil
}

func normalizeReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", validationError("reversal reason is required")
	}
	if len(reason) > maxReasonLen {
		return "", validationError("reversal reason must be at most %d characters", maxReasonLen)
	}
	return reason, nil
}
