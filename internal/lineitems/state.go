package lineitems

import (
	"errors"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

var (
	// ErrPaidTransitionReserved is returned when a generic transition targets paid.
	// Only ClaimForPayout may set that state.
	ErrPaidTransitionReserved = errors.New("paid state is reserved for payout claims")
	// ErrIllegalTransition is returned for any edge outside the state machine.
	ErrIllegalTransition = errors.New("illegal payment state transition")
)

var allowedTransitions = map[enums.PaymentState][]enums.PaymentState{
	enums.PaymentStateUnbilled: {enums.PaymentStatePending},
	enums.PaymentStatePending:  {enums.PaymentStatePaid, enums.PaymentStateReversed},
	enums.PaymentStatePaid:     {enums.PaymentStateReversed},
}

// CanTransition reports whether from -> to is an edge of the payment state machine.
func CanTransition(from, to enums.PaymentState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsReversible reports whether an item in state may be reversed.
func IsReversible(state enums.PaymentState) bool {
	return CanTransition(state, enums.PaymentStateReversed)
}
