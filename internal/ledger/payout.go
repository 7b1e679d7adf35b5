package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/pkg/db"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
	"github.com/angelmondragon/payout-ledger/pkg/outbox"
	"github.com/angelmondragon/payout-ledger/pkg/outbox/payloads"
)

const maxIdempotencyKeyLen = 255

// PayoutRequest asks for one payout covering ItemRefs.
type PayoutRequest struct {
	SupplierID     uuid.UUID
	ItemRefs       []lineitems.ItemRef
	IdempotencyKey string
	Actor          *Actor
}

// PayoutResult is the outcome of a payout request. Replayed is set when the
// answer came from the idempotency ledger instead of a new commit.
type PayoutResult struct {
	PayoutID    uuid.UUID
	SupplierID  uuid.UUID
	AmountCents int64
	ItemCount   int
	Replayed    bool
	CreatedAt   time.Time
}

// InitiatePayout pays every referenced pending item in one all-or-nothing
// transaction, or replays the earlier outcome for a known idempotency key.
func (s *service) InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	refs, err := s.validatePayoutRequest(req)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	hash := requestHash(req.SupplierID, refs)
	ctx = s.logg.WithSupplierID(ctx, req.SupplierID.String())
	ctx = s.logg.WithIdempotencyKey(ctx, key)

	replay, err := s.lookupReplay(ctx, key, hash)
	if err != nil {
		return nil, err
	}
	if replay != nil {
		s.metrics.PayoutReplayed()
		s.logg.Info(s.logg.WithPayoutID(ctx, replay.PayoutID.String()), "payout replayed")
		return replay, nil
	}

	supplier, err := s.findSupplier(ctx, req.SupplierID)
	if err != nil {
		return nil, err
	}
	if !supplier.IsApproved() {
		return nil, validationError("supplier %s is %s and cannot receive payouts", supplier.ID, supplier.Status)
	}

	items, err := s.payableItems(ctx, req.SupplierID, refs)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			// a retry of this request may have committed since the replay lookup
			return s.resolveCommitFailure(ctx, key, hash, err)
		}
		return nil, err
	}

	now := s.clock()
	payout := &models.Payout{
		ID:             uuid.New(),
		SupplierID:     req.SupplierID,
		ItemCount:      len(items),
		IdempotencyKey: key,
		RequestHash:    hash,
		CreatedBy:      req.Actor.userID(),
		CreatedAt:      now,
	}
	payoutItems := make([]models.PayoutItem, 0, len(items))
	eventItems := make([]payloads.PayoutItemRef, 0, len(items))
	for _, item := range items {
		payout.AmountCents += item.TotalCents
		payoutItems = append(payoutItems, models.PayoutItem{
			PayoutID:   payout.ID,
			LineItemID: item.ID,
			OrderID:    item.OrderID,
			TotalCents: item.TotalCents,
		})
		eventItems = append(eventItems, payloads.PayoutItemRef{
			OrderID:    item.OrderID,
			LineItemID: item.ID,
			TotalCents: item.TotalCents,
		})
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		payoutRepo := s.payouts.WithTx(tx)
		if err := payoutRepo.Create(ctx, payout); err != nil {
			return err
		}

		lineRepo := s.lineItems.WithTx(tx)
		var contended []lineitems.ItemRef
		for _, item := range items {
			ref := lineitems.ItemRef{OrderID: item.OrderID, ItemID: item.ID}
			claimed, err := lineRepo.ClaimForPayout(ctx, lineitems.Claim{
				Ref:        ref,
				SupplierID: req.SupplierID,
				Version:    item.Version,
				PayoutID:   payout.ID,
				At:         now,
			})
			if err != nil {
				return err
			}
			if !claimed {
				contended = append(contended, ref)
			}
		}
		if len(contended) > 0 {
			return conflictError("line items were claimed by a concurrent payout", contended)
		}

		if err := payoutRepo.AddItems(ctx, payoutItems); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCreated,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         req.Actor.outboxRef(),
			OccurredAt:    now,
			Data: payloads.PayoutCreatedEvent{
				PayoutID:       payout.ID,
				SupplierID:     payout.SupplierID,
				AmountCents:    payout.AmountCents,
				ItemCount:      payout.ItemCount,
				IdempotencyKey: key,
				Items:          eventItems,
				CreatedAt:      now,
			},
		})
	})
	if err != nil {
		return s.resolveCommitFailure(ctx, key, hash, err)
	}

	result := resultFromPayout(payout, false)
	s.remember(ctx, key, payout)
	s.metrics.PayoutCreated(payout.AmountCents)
	logCtx := s.logg.WithFields(s.logg.WithPayoutID(ctx, payout.ID.String()), map[string]any{
		"amount_cents": payout.AmountCents,
		"item_count":   payout.ItemCount,
	})
	s.logg.Info(logCtx, "payout created")
	return result, nil
}

// validatePayoutRequest checks the request shape and returns the refs sorted
// so claims always lock rows in the same order.
func (s *service) validatePayoutRequest(req PayoutRequest) ([]lineitems.ItemRef, error) {
	if req.SupplierID == uuid.Nil {
		return nil, validationError("supplier id is required")
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, validationError("idempotency key is required")
	}
	if len(key) > maxIdempotencyKeyLen {
		return nil, validationError("idempotency key must be at most %d characters", maxIdempotencyKeyLen)
	}
	if len(req.ItemRefs) == 0 {
		return nil, validationError("at least one item ref is required")
	}
	if len(req.ItemRefs) > s.maxItems {
		return nil, validationError("a payout may include at most %d items", s.maxItems)
	}

	seen := make(map[lineitems.ItemRef]struct{}, len(req.ItemRefs))
	var duplicates []lineitems.ItemRef
	for _, ref := range req.ItemRefs {
		if ref.OrderID == uuid.Nil || ref.ItemID == uuid.Nil {
			return nil, validationError("item refs require orderId and itemId")
		}
		if _, ok := seen[ref]; ok {
			duplicates = append(duplicates, ref)
			continue
		}
		seen[ref] = struct{}{}
	}
	if len(duplicates) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item refs must be unique").
			WithDetails(InvalidItemsDetails{InvalidItems: duplicates})
	}

	return sortRefs(req.ItemRefs), nil
}

// payableItems loads refs and enforces ownership and the pending state. The
// result follows the order of refs.
func (s *service) payableItems(ctx context.Context, supplierID uuid.UUID, refs []lineitems.ItemRef) ([]models.LineItem, error) {
	rows, err := s.lineItems.FindByRefs(ctx, refs)
	if err != nil {
		return nil, storeError(err, "load line items")
	}
	byRef := make(map[lineitems.ItemRef]models.LineItem, len(rows))
	for _, row := range rows {
		byRef[lineitems.ItemRef{OrderID: row.OrderID, ItemID: row.ID}] = row
	}

	var invalid, conflicting []lineitems.ItemRef
	items := make([]models.LineItem, 0, len(refs))
	for _, ref := range refs {
		item, ok := byRef[ref]
		if !ok || item.SupplierID != supplierID {
			invalid = append(invalid, ref)
			continue
		}
		if item.PaymentState != enums.PaymentStatePending {
			conflicting = append(conflicting, ref)
			continue
		}
		items = append(items, item)
	}
	if len(invalid) > 0 {
		return nil, invalidItemsError(invalid)
	}
	if len(conflicting) > 0 {
		return nil, conflictError("line items are not pending", conflicting)
	}
	return items, nil
}

// lookupReplay answers a known key from the cache or the durable ledger.
func (s *service) lookupReplay(ctx context.Context, key, hash string) (*PayoutResult, error) {
	if s.cache != nil {
		entry, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "replay cache read failed")
		case ok:
			if entry.RequestHash != hash {
				return nil, idempotencyError(key)
			}
			return &PayoutResult{
				PayoutID:    entry.PayoutID,
				SupplierID:  entry.SupplierID,
				AmountCents: entry.AmountCents,
				ItemCount:   entry.ItemCount,
				Replayed:    true,
				CreatedAt:   entry.CreatedAt,
			}, nil
		}
	}
	return s.replayFromLedger(ctx, key, hash)
}

func (s *service) replayFromLedger(ctx context.Context, key, hash string) (*PayoutResult, error) {
	payout, err := s.payouts.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError(err, "load idempotency ledger")
	}
	if payout.RequestHash != hash {
		return nil, idempotencyError(key)
	}
	s.remember(ctx, key, payout)
	return resultFromPayout(payout, true), nil
}

// resolveCommitFailure decides what a failed payout transaction means. A
// conflict or unique violation may be a concurrent request with the same key
// that committed first, in which case its outcome is replayed.
func (s *service) resolveCommitFailure(ctx context.Context, key, hash string, err error) (*PayoutResult, error) {
	conflict := pkgerrors.IsCode(err, pkgerrors.CodeConflict)
	if !conflict && !db.IsUniqueViolation(err, "") {
		s.logg.Error(ctx, "payout transaction failed", err)
		return nil, storeError(err, "commit payout")
	}

	replay, lookupErr := s.replayFromLedger(ctx, key, hash)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if replay != nil {
		s.metrics.PayoutReplayed()
		s.logg.Info(s.logg.WithPayoutID(ctx, replay.PayoutID.String()), "payout replayed after concurrent commit")
		return replay, nil
	}

	s.metrics.PayoutConflict()
	if conflict {
		return nil, err
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payout conflicted with a concurrent request")
}

func (s *service) remember(ctx context.Context, key string, payout *models.Payout) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, key, ReplayEntry{
		PayoutID:    payout.ID,
		SupplierID:  payout.SupplierID,
		AmountCents: payout.AmountCents,
		ItemCount:   payout.ItemCount,
		RequestHash: payout.RequestHash,
		CreatedAt:   payout.CreatedAt,
	}); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "replay cache write failed")
	}
}

func resultFromPayout(payout *models.Payout, replayed bool) *PayoutResult {
	return &PayoutResult{
		PayoutID:    payout.ID,
		SupplierID:  payout.SupplierID,
		AmountCents: payout.AmountCents,
		ItemCount:   payout.ItemCount,
		Replayed:    replayed,
		CreatedAt:   payout.CreatedAt,
	}
}

func sortRefs(refs []lineitems.ItemRef) []lineitems.ItemRef {
	sorted := make([]lineitems.ItemRef, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})
	return sorted
}

// requestHash fingerprints a payout request independent of ref order.
func requestHash(supplierID uuid.UUID, sortedRefs []lineitems.ItemRef) string {
	h := sha256.New()
	h.Write([]byte(supplierID.String()))
	for _, ref := range sortedRefs {
		h.Write([]byte{'|'})
		h.Write([]byte(ref.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}
