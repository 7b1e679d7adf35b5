package lineitems

import (
	"testing"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

func TestCanTransition(t *testing.T) {
	states := []enums.PaymentState{
		enums.PaymentStateUnbilled,
		enums.PaymentStatePending,
		enums.PaymentStatePaid,
		enums.PaymentStateReversed,
	}
	allowed := map[[2]enums.PaymentState]bool{
		{enums.PaymentStateUnbilled, enums.PaymentStatePending}: true,
		{enums.PaymentStatePending, enums.PaymentStatePaid}:     true,
		{enums.PaymentStatePending, enums.PaymentStateReversed}: true,
		{enums.PaymentStatePaid, enums.PaymentStateReversed}:    true,
	}

	for _, from := range states {
		for _, to := range states {
			want := allowed[[2]enums.PaymentState{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestIsReversible(t *testing.T) {
	if !IsReversible(enums.PaymentStatePending) || !IsReversible(enums.PaymentStatePaid) {
		t.Fatal("pending and paid items must be reversible")
	}
	if IsReversible(enums.PaymentStateUnbilled) || IsReversible(enums.PaymentStateReversed) {
		t.Fatal("unbilled and reversed items must not be reversible")
	}
}
