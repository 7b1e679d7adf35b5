package ledger

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/payout-ledger/api/middleware"
	"github.com/angelmondragon/payout-ledger/api/responses"
	"github.com/angelmondragon/payout-ledger/api/validators"
	internalledger "github.com/angelmondragon/payout-ledger/internal/ledger"
	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
	"github.com/angelmondragon/payout-ledger/pkg/pagination"
	"github.com/angelmondragon/payout-ledger/pkg/types"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
)

// Balance returns the supplier's derived balance and the items still payable.
func Balance(svc internalledger.BalanceCalculator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBalanceResponse(balance))
	}
}

// InitiatePayout pays a selected set of pending items. A replayed key answers
// with the original payout and the Idempotent-Replayed header.
func InitiatePayout(svc internalledger.PayoutProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body payoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key := strings.TrimSpace(body.IdempotencyKey)
		if key == "" {
			key = strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		}

		ctx := r.Context()
		if logg != nil && key != "" {
			ctx = logg.WithIdempotencyKey(ctx, key)
		}

		result, err := svc.InitiatePayout(ctx, internalledger.PayoutRequest{
			SupplierID:     supplierID,
			ItemRefs:       body.ItemRefs,
			IdempotencyKey: key,
			Actor:          actorFrom(r),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Replayed {
			w.Header().Set(replayedHeader, "true")
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPayoutResponse(result))
	}
}

// ListPayouts pages through the supplier's payout history, newest first.
func ListPayouts(svc internalledger.PayoutProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		supplierID, err := validators.ParseUUIDParam(r, "supplierId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPayouts(r.Context(), supplierID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, toSummaryResponses(page.Items), types.Meta{NextCursor: page.NextCursor, Limit: page.Limit})
	}
}

// MarkOrderEligible is called once an order is delivered.
func MarkOrderEligible(svc internalledger.Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.MarkOrderEligible(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, eligibilityResponse{OrderID: result.OrderID, UpdatedItems: result.Updated})
	}
}

// ReverseLineItem records a refund or cancellation of one item.
func ReverseLineItem(svc internalledger.Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		var body reverseLineItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReverseLineItem(r.Context(), internalledger.ReverseLineItemInput{
			Ref:    lineitems.ItemRef{OrderID: body.OrderID, ItemID: body.ItemID},
			Reason: body.Reason,
			Actor:  actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, lineItemReversalResponse{
			OrderID:       result.Ref.OrderID,
			ItemID:        result.Ref.ItemID,
			SupplierID:    result.SupplierID,
			PreviousState: result.PreviousState,
			Amount:        formatCents(result.AmountCents),
			AmountCents:   result.AmountCents,
			PayoutID:      result.PayoutID,
			ReversedAt:    result.ReversedAt,
		})
	}
}

// ReversePayout reverses every item still paid by a payout.
func ReversePayout(svc internalledger.Lifecycle, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body reversePayoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ReversePayout(r.Context(), internalledger.ReversePayoutInput{
			PayoutID: payoutID,
			Reason:   body.Reason,
			Actor:    actorFrom(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payoutReversalResponse{
			PayoutID:      result.PayoutID,
			SupplierID:    result.SupplierID,
			ReversedItems: result.ReversedItems,
			Amount:        formatCents(result.AmountCents),
			AmountCents:   result.AmountCents,
			ReversedAt:    result.ReversedAt,
		})
	}
}

func actorFrom(r *http.Request) *internalledger.Actor {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		return nil
	}
	return &internalledger.Actor{UserID: claims.UserID, Role: claims.Role}
}
