package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payout-ledger/internal/lineitems"
	"github.com/angelmondragon/payout-ledger/internal/suppliers"
	"github.com/angelmondragon/payout-ledger/pkg/db"
	"github.com/angelmondragon/payout-ledger/pkg/db/dbtest"
	"github.com/angelmondragon/payout-ledger/pkg/outbox"
)

func TestNewServiceRequiresDependencies(t *testing.T) {
	conn := dbtest.Open(t)
	full := func() ServiceParams {
		return ServiceParams{
			DB:        db.NewFromGorm(conn),
			LineItems: lineitems.NewRepository(conn),
			Suppliers: suppliers.NewRepository(conn),
			Payouts:   NewPayoutRepository(conn),
			Reversals: NewReversalRepository(conn),
			Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		}
	}

	cases := map[string]func(*ServiceParams){
		"db":        func(p *ServiceParams) { p.DB = nil },
		"lineItems": func(p *ServiceParams) { p.LineItems = nil },
		"suppliers": func(p *ServiceParams) { p.Suppliers = nil },
		"payouts":   func(p *ServiceParams) { p.Payouts = nil },
		"reversals": func(p *ServiceParams) { p.Reversals = nil },
		"outbox":    func(p *ServiceParams) { p.Outbox = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			params := full()
			mutate(&params)
			_, err := NewService(params)
			require.Error(t, err)
		})
	}

	svc, err := NewService(full())
	require.NoError(t, err)
	require.NotNil(t, svc)
}
