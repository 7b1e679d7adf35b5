package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payout-ledger/api/middleware"
	internalledger "github.com/angelmondragon/payout-ledger/internal/ledger"
	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	pkgAuth "github.com/angelmondragon/payout-ledger/pkg/auth"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/payout-ledger/pkg/errors"
	"github.com/angelmondragon/payout-ledger/pkg/pagination"
)

type stubLedger struct {
	balance  func(ctx context.Context, supplierID uuid.UUID) (*internalledger.Balance, error)
	initiate func(ctx context.Context, req internalledger.PayoutRequest) (*internalledger.PayoutResult, error)
	list     func(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*pagination.Page[internalledger.PayoutSummary], error)
	eligible func(ctx context.Context, orderID uuid.UUID) (*internalledger.EligibilityResult, error)
	reverse  func(ctx context.Context, input internalledger.ReverseLineItemInput) (*internalledger.LineItemReversalResult, error)
	payout   func(ctx context.Context, input internalledger.ReversePayoutInput) (*internalledger.PayoutReversalResult, error)
}

func (s *stubLedger) GetBalance(ctx context.Context, supplierID uuid.UUID) (*internalledger.Balance, error) {
	return s.balance(ctx, supplierID)
}

func (s *stubLedger) InitiatePayout(ctx context.Context, req internalledger.PayoutRequest) (*internalledger.PayoutResult, error) {
	return s.initiate(ctx, req)
}

func (s *stubLedger) ListPayouts(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*pagination.Page[internalledger.PayoutSummary], error) {
	return s.list(ctx, supplierID, params)
}

func (s *stubLedger) MarkOrderEligible(ctx context.Context, orderID uuid.UUID) (*internalledger.EligibilityResult, error) {
	return s.eligible(ctx, orderID)
}

func (s *stubLedger) ReverseLineItem(ctx context.Context, input internalledger.ReverseLineItemInput) (*internalledger.LineItemReversalResult, error) {
	return s.reverse(ctx, input)
}

func (s *stubLedger) ReversePayout(ctx context.Context, input internalledger.ReversePayoutInput) (*internalledger.PayoutReversalResult, error) {
	return s.payout(ctx, input)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, method, pattern, target, body string, handler http.HandlerFunc) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	router := chi.NewRouter()
	router.MethodFunc(method, pattern, handler)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithClaims(req.Context(), &pkgAuth.AccessTokenClaims{
		UserID: uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		Role:   enums.ActorRoleStaff,
	}))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	var env envelope
	if resp.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	}
	return resp, env
}

func TestBalanceRendersDecimalAmounts(t *testing.T) {
	supplierID := uuid.New()
	eligible := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stub := &stubLedger{balance: func(_ context.Context, id uuid.UUID) (*internalledger.Balance, error) {
		require.Equal(t, supplierID, id)
		return &internalledger.Balance{
			SupplierID:       id,
			TotalEarnedCents: 12345,
			TotalPaidCents:   10000,
			PendingCents:     2345,
			PendingItems: []internalledger.PendingItem{{
				OrderID: uuid.New(), ItemID: uuid.New(), Name: "widget", Quantity: 5,
				UnitPriceCents: 469, TotalCents: 2345, EligibleAt: eligible,
			}},
		}, nil
	}}

	resp, env := serve(t, http.MethodGet, "/balance/{supplierId}", "/balance/"+supplierID.String(), "", Balance(stub, nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body balanceResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	require.Equal(t, "123.45", body.TotalEarned)
	require.Equal(t, "100.00", body.TotalPaid)
	require.Equal(t, "23.45", body.PendingAmount)
	require.Equal(t, "0.00", body.TotalReversed)
	require.Len(t, body.PendingItems, 1)
	require.Equal(t, "4.69", body.PendingItems[0].UnitPrice)
	require.Equal(t, "23.45", body.PendingItems[0].Total)
}

func TestBalanceRejectsMalformedSupplier(t *testing.T) {
	resp, env := serve(t, http.MethodGet, "/balance/{supplierId}", "/balance/nope", "", Balance(&stubLedger{}, nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code)
}

func TestBalanceNotFound(t *testing.T) {
	stub := &stubLedger{balance: func(context.Context, uuid.UUID) (*internalledger.Balance, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
	}}
	resp, _ := serve(t, http.MethodGet, "/balance/{supplierId}", "/balance/"+uuid.NewString(), "", Balance(stub, nil))
	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestInitiatePayoutCreated(t *testing.T) {
	supplierID := uuid.New()
	orderID, itemID := uuid.New(), uuid.New()
	payoutID := uuid.New()
	var captured internalledger.PayoutRequest
	stub := &stubLedger{initiate: func(_ context.Context, req internalledger.PayoutRequest) (*internalledger.PayoutResult, error) {
		captured = req
		return &internalledger.PayoutResult{PayoutID: payoutID, SupplierID: supplierID, AmountCents: 1500, ItemCount: 1}, nil
	}}

	body := `{"itemRefs":[{"orderId":"` + orderID.String() + `","itemId":"` + itemID.String() + `"}],"idempotencyKey":"k1"}`
	resp, env := serve(t, http.MethodPost, "/payout/{supplierId}", "/payout/"+supplierID.String(), body, InitiatePayout(stub, nil))
	require.Equal(t, http.StatusCreated, resp.Code)
	require.Empty(t, resp.Header().Get(replayedHeader))

	var out payoutResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, payoutID, out.PayoutID)
	require.Equal(t, "15.00", out.Amount)

	require.Equal(t, supplierID, captured.SupplierID)
	require.Equal(t, "k1", captured.IdempotencyKey)
	require.Equal(t, []lineitems.ItemRef{{OrderID: orderID, ItemID: itemID}}, captured.ItemRefs)
	require.NotNil(t, captured.Actor)
	require.Equal(t, enums.ActorRoleStaff, captured.Actor.Role)
}

func TestInitiatePayoutReplayHeader(t *testing.T) {
	stub := &stubLedger{initiate: func(_ context.Context, req internalledger.PayoutRequest) (*internalledger.PayoutResult, error) {
		require.Equal(t, "from-header", req.IdempotencyKey)
		return &internalledger.PayoutResult{PayoutID: uuid.New(), AmountCents: 1, ItemCount: 1, Replayed: true}, nil
	}}

	router := chi.NewRouter()
	router.Post("/payout/{supplierId}", InitiatePayout(stub, nil))
	body := `{"itemRefs":[{"orderId":"` + uuid.NewString() + `","itemId":"` + uuid.NewString() + `"}]}`
	req := httptest.NewRequest(http.MethodPost, "/payout/"+uuid.NewString(), strings.NewReader(body))
	req.Header.Set(idempotencyKeyHeader, "from-header")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	require.Equal(t, "true", resp.Header().Get(replayedHeader))
}

func TestInitiatePayoutIdempotencyKeySource(t *testing.T) {
	refs := `"itemRefs":[{"orderId":"` + uuid.NewString() + `","itemId":"` + uuid.NewString() + `"}]`
	cases := map[string]struct {
		body   string
		header string
		want   string
	}{
		"header only":           {body: `{` + refs + `}`, header: " hdr-1 ", want: "hdr-1"},
		"body wins over header": {body: `{` + refs + `,"idempotencyKey":"body-1"}`, header: "hdr-1", want: "body-1"},
		"blank body key":        {body: `{` + refs + `,"idempotencyKey":"  "}`, header: "hdr-2", want: "hdr-2"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var captured internalledger.PayoutRequest
			stub := &stubLedger{initiate: func(_ context.Context, req internalledger.PayoutRequest) (*internalledger.PayoutResult, error) {
				captured = req
				return &internalledger.PayoutResult{PayoutID: uuid.New(), AmountCents: 1, ItemCount: 1}, nil
			}}

			router := chi.NewRouter()
			router.Post("/payout/{supplierId}", InitiatePayout(stub, nil))
			req := httptest.NewRequest(http.MethodPost, "/payout/"+uuid.NewString(), strings.NewReader(tc.body))
			req.Header.Set(idempotencyKeyHeader, tc.header)
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			require.Equal(t, http.StatusCreated, resp.Code)
			require.Equal(t, tc.want, captured.IdempotencyKey)
		})
	}
}

func TestInitiatePayoutConflictCarriesItems(t *testing.T) {
	ref := lineitems.ItemRef{OrderID: uuid.New(), ItemID: uuid.New()}
	stub := &stubLedger{initiate: func(context.Context, internalledger.PayoutRequest) (*internalledger.PayoutResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "line items are not pending").
			WithDetails(internalledger.ConflictDetails{ConflictingItems: []lineitems.ItemRef{ref}})
	}}

	body := `{"itemRefs":[{"orderId":"` + ref.OrderID.String() + `","itemId":"` + ref.ItemID.String() + `"}],"idempotencyKey":"k1"}`
	resp, env := serve(t, http.MethodPost, "/payout/{supplierId}", "/payout/"+uuid.NewString(), body, InitiatePayout(stub, nil))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, string(pkgerrors.CodeConflict), env.Error.Code)
	items, ok := env.Error.Details["conflictingItems"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	require.Equal(t, ref.ItemID.String(), items[0].(map[string]any)["itemId"])
}

func TestInitiatePayoutRejectsBadBodies(t *testing.T) {
	stub := &stubLedger{initiate: func(context.Context, internalledger.PayoutRequest) (*internalledger.PayoutResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	bodies := []string{
		`{`,
		`{"itemRefs":[],"idempotencyKey":"k1"}`,
		`{"itemRefs":[{"orderId":"nope","itemId":"nope"}],"idempotencyKey":"k1"}`,
		`{"itemRefs":[{"orderId":"` + uuid.Nil.String() + `","itemId":"` + uuid.NewString() + `"}],"idempotencyKey":"k1"}`,
		`{"itemRefs":[{"orderId":"` + uuid.NewString() + `","itemId":"` + uuid.NewString() + `"}],"idempotencyKey":"k1","amount":5}`,
	}
	for _, body := range bodies {
		resp, env := serve(t, http.MethodPost, "/payout/{supplierId}", "/payout/"+uuid.NewString(), body, InitiatePayout(stub, nil))
		require.Equal(t, http.StatusBadRequest, resp.Code, body)
		require.Equal(t, string(pkgerrors.CodeValidation), env.Error.Code, body)
	}
}

func TestInitiatePayoutDependencyFailure(t *testing.T) {
	stub := &stubLedger{initiate: func(context.Context, internalledger.PayoutRequest) (*internalledger.PayoutResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "commit payout")
	}}
	body := `{"itemRefs":[{"orderId":"` + uuid.NewString() + `","itemId":"` + uuid.NewString() + `"}],"idempotencyKey":"k1"}`
	resp, env := serve(t, http.MethodPost, "/payout/{supplierId}", "/payout/"+uuid.NewString(), body, InitiatePayout(stub, nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, "try again", env.Error.Message)
}

func TestListPayoutsPassesPagination(t *testing.T) {
	supplierID := uuid.New()
	stub := &stubLedger{list: func(_ context.Context, id uuid.UUID, params pagination.Params) (*pagination.Page[internalledger.PayoutSummary], error) {
		require.Equal(t, 10, params.Limit)
		require.Equal(t, "abc", params.Cursor)
		return &pagination.Page[internalledger.PayoutSummary]{
			Items:      []internalledger.PayoutSummary{{PayoutID: uuid.New(), SupplierID: id, AmountCents: 250, ItemCount: 1}},
			NextCursor: "next",
			Limit:      10,
		}, nil
	}}

	resp, env := serve(t, http.MethodGet, "/payouts/{supplierId}", "/payouts/"+supplierID.String()+"?limit=10&cursor=abc", "", ListPayouts(stub, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "next", env.Meta["nextCursor"])
	require.Equal(t, true, env.Meta["hasMore"])

	var rows []payoutSummaryResponse
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "2.50", rows[0].Amount)

	resp, _ = serve(t, http.MethodGet, "/payouts/{supplierId}", "/payouts/"+supplierID.String()+"?limit=0", "", ListPayouts(stub, nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMarkOrderEligible(t *testing.T) {
	orderID := uuid.New()
	stub := &stubLedger{eligible: func(_ context.Context, id uuid.UUID) (*internalledger.EligibilityResult, error) {
		return &internalledger.EligibilityResult{OrderID: id, Updated: 3}, nil
	}}
	resp, env := serve(t, http.MethodPost, "/orders/{orderId}/eligible", "/orders/"+orderID.String()+"/eligible", "", MarkOrderEligible(stub, nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var out eligibilityResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, int64(3), out.UpdatedItems)
}

func TestReverseLineItem(t *testing.T) {
	ref := lineitems.ItemRef{OrderID: uuid.New(), ItemID: uuid.New()}
	stub := &stubLedger{reverse: func(_ context.Context, input internalledger.ReverseLineItemInput) (*internalledger.LineItemReversalResult, error) {
		require.Equal(t, ref, input.Ref)
		require.Equal(t, "refund", input.Reason)
		return &internalledger.LineItemReversalResult{Ref: ref, PreviousState: enums.PaymentStatePaid, AmountCents: 700}, nil
	}}
	body := `{"orderId":"` + ref.OrderID.String() + `","itemId":"` + ref.ItemID.String() + `","reason":"refund"}`
	resp, env := serve(t, http.MethodPost, "/line-items/reverse", "/line-items/reverse", body, ReverseLineItem(stub, nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var out lineItemReversalResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, enums.PaymentStatePaid, out.PreviousState)
	require.Equal(t, "7.00", out.Amount)

	resp, _ = serve(t, http.MethodPost, "/line-items/reverse", "/line-items/reverse", `{"orderId":"`+ref.OrderID.String()+`","itemId":"`+ref.ItemID.String()+`"}`, ReverseLineItem(stub, nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestReversePayoutConflict(t *testing.T) {
	stub := &stubLedger{payout: func(context.Context, internalledger.ReversePayoutInput) (*internalledger.PayoutReversalResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payout is already reversed")
	}}
	resp, env := serve(t, http.MethodPost, "/payouts/{payoutId}/reverse", "/payouts/"+uuid.NewString()+"/reverse", `{"reason":"bank return"}`, ReversePayout(stub, nil))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, "payout is already reversed", env.Error.Message)
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{0: "0.00", 5: "0.05", 100: "1.00", 123456: "1234.56", -250: "-2.50"}
	for cents, want := range cases {
		require.Equal(t, want, formatCents(cents))
	}
}
