package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/internal/suppliers"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
	"github.com/angelmondragon/payout-ledger/pkg/metrics"
	"github.com/angelmondragon/payout-ledger/pkg/outbox"
	"github.com/angelmondragon/payout-ledger/pkg/pagination"
)

// DefaultMaxItemsPerPayout bounds a payout batch when no limit is configured.
const DefaultMaxItemsPerPayout = 500

// BalanceCalculator derives supplier balances from line item state.
type BalanceCalculator interface {
	GetBalance(ctx context.Context, supplierID uuid.UUID) (*Balance, error)
}

// PayoutProcessor is the only writer of the paid state.
type PayoutProcessor interface {
	InitiatePayout(ctx context.Context, req PayoutRequest) (*PayoutResult, error)
	ListPayouts(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*pagination.Page[PayoutSummary], error)
}

// Lifecycle drives the non-payout transitions of line items and payouts.
type Lifecycle interface {
	MarkOrderEligible(ctx context.Context, orderID uuid.UUID) (*EligibilityResult, error)
	ReverseLineItem(ctx context.Context, input ReverseLineItemInput) (*LineItemReversalResult, error)
	ReversePayout(ctx context.Context, input ReversePayoutInput) (*PayoutReversalResult, error)
}

// Reconciler checks the ledger invariants.
type Reconciler interface {
	ReconcileTargets(ctx context.Context) ([]uuid.UUID, error)
	ReconcileSupplier(ctx context.Context, supplierID uuid.UUID) ([]Mismatch, error)
	ReconcileGlobal(ctx context.Context) ([]Mismatch, error)
}

// Service exposes every ledger operation.
type Service interface {
	BalanceCalculator
	PayoutProcessor
	Lifecycle
	Reconciler
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithReadTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Actor identifies the back-office user behind a write.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

func (a *Actor) userID() *uuid.UUID {
	if a == nil || a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

func (a *Actor) outboxRef() *outbox.ActorRef {
	if a == nil || a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// ServiceParams wires the ledger dependencies. Cache and Metrics are optional.
type ServiceParams struct {
	DB                txRunner
	LineItems         lineitems.Repository
	Suppliers         suppliers.Repository
	Payouts           PayoutRepository
	Reversals         ReversalRepository
	Outbox            outboxEmitter
	Cache             ReplayCache
	Metrics           *metrics.LedgerMetrics
	Logger            *logger.Logger
	MaxItemsPerPayout int
	Now               func() time.Time
}

type service struct {
	db        txRunner
	lineItems lineitems.Repository
	suppliers suppliers.Repository
	payouts   PayoutRepository
	reversals ReversalRepository
	outbox    outboxEmitter
	cache     ReplayCache
	metrics   *metrics.LedgerMetrics
	logg      *logger.Logger
	maxItems  int
	now       func() time.Time
}

// NewService builds the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.LineItems == nil {
		return nil, fmt.Errorf("line item repository required")
	}
	if params.Suppliers == nil {
		return nil, fmt.Errorf("supplier repository required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Reversals == nil {
		return nil, fmt.Errorf("reversal repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}

	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	maxItems := params.MaxItemsPerPayout
	if maxItems <= 0 {
		maxItems = DefaultMaxItemsPerPayout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		db:        params.DB,
		lineItems: params.LineItems,
		suppliers: params.Suppliers,
		payouts:   params.Payouts,
		reversals: params.Reversals,
		outbox:    params.Outbox,
		cache:     params.Cache,
		metrics:   params.Metrics,
		logg:      logg,
		maxItems:  maxItems,
		now:       now,
	}, nil
}

func (s *service) clock() time.Time {
	return s.now().UTC()
}
