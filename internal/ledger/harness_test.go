package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/internal/suppliers"
	"github.com/angelmondragon/payout-ledger/pkg/db"
	"github.com/angelmondragon/payout-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	"github.com/angelmondragon/payout-ledger/pkg/metrics"
	"github.com/angelmondragon/payout-ledger/pkg/outbox"
	pkgredis "github.com/angelmondragon/payout-ledger/pkg/redis"
)

type harness struct {
	t        *testing.T
	conn     *gorm.DB
	client   *db.Client
	svc      Service
	registry *prometheus.Registry
	redis    *miniredis.Miniredis
	supplier models.Supplier
}

type harnessOption func(*ServiceParams, *harness)

func withCache() harnessOption {
	return func(p *ServiceParams, h *harness) {
		h.redis = miniredis.RunT(h.t)
		raw := goredis.NewClient(&goredis.Options{Addr: h.redis.Addr()})
		h.t.Cleanup(func() { _ = raw.Close() })
		cache, err := NewReplayCache(pkgredis.NewFromRedis(raw), time.Hour)
		require.NoError(h.t, err)
		p.Cache = cache
	}
}

func withTxRunner(wrap func(*db.Client) txRunner) harnessOption {
	return func(p *ServiceParams, h *harness) {
		p.DB = wrap(h.client)
	}
}

func withMaxItems(n int) harnessOption {
	return func(p *ServiceParams, _ *harness) {
		p.MaxItemsPerPayout = n
	}
}

func withPayouts(wrap func(PayoutRepository) PayoutRepository) harnessOption {
	return func(p *ServiceParams, _ *harness) {
		p.Payouts = wrap(p.Payouts)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	return newHarnessOn(t, dbtest.Open(t), opts...)
}

func newHarnessOn(t *testing.T, conn *gorm.DB, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		conn:     conn,
		client:   db.NewFromGorm(conn),
		registry: prometheus.NewRegistry(),
	}
	h.supplier = dbtest.SeedSupplier(t, conn, enums.SupplierStatusApproved)

	params := ServiceParams{
		DB:        h.client,
		LineItems: lineitems.NewRepository(conn),
		Suppliers: suppliers.NewRepository(conn),
		Payouts:   NewPayoutRepository(conn),
		Reversals: NewReversalRepository(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Metrics:   metrics.NewLedgerMetrics(h.registry),
	}
	for _, opt := range opts {
		opt(&params, h)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func (h *harness) seed(totalCents int64, state enums.PaymentState) models.LineItem {
	h.t.Helper()
	return dbtest.SeedLineItem(h.t, h.conn, dbtest.LineItemSeed{
		SupplierID: h.supplier.ID,
		TotalCents: totalCents,
		State:      state,
	})
}

func (h *harness) pending(totalCents int64) models.LineItem {
	h.t.Helper()
	return h.seed(totalCents, enums.PaymentStatePending)
}

func (h *harness) pay(key string, items ...models.LineItem) (*PayoutResult, error) {
	h.t.Helper()
	return h.svc.InitiatePayout(context.Background(), PayoutRequest{
		SupplierID:     h.supplier.ID,
		ItemRefs:       refsOf(items...),
		IdempotencyKey: key,
		Actor:          &Actor{UserID: uuid.New(), Role: enums.ActorRoleStaff},
	})
}

func (h *harness) balance() *Balance {
	h.t.Helper()
	b, err := h.svc.GetBalance(context.Background(), h.supplier.ID)
	require.NoError(h.t, err)
	return b
}

func (h *harness) state(item models.LineItem) models.LineItem {
	h.t.Helper()
	return dbtest.ReloadLineItem(h.t, h.conn, item.ID)
}

func (h *harness) count(table string) int64 {
	h.t.Helper()
	return dbtest.Count(h.t, h.conn, table)
}

func refsOf(items ...models.LineItem) []lineitems.ItemRef {
	refs := make([]lineitems.ItemRef, 0, len(items))
	for _, item := range items {
		refs = append(refs, lineitems.ItemRef{OrderID: item.OrderID, ItemID: item.ID})
	}
	return refs
}

// hookedTx runs before once ahead of the first transaction, simulating a
// competing request that commits between validation and the claim.
type hookedTx struct {
	inner  *db.Client
	before func()
	fired  bool
}

func (h *hookedTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if !h.fired && h.before != nil {
		h.fired = true
		h.before()
	}
	return h.inner.WithTx(ctx, fn)
}

func (h *hookedTx) WithReadTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return h.inner.WithReadTx(ctx, fn)
}
