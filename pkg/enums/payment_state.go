package enums

import "fmt"

// PaymentState tracks where a line item sits in the supplier payout lifecycle.
type PaymentState string

const (
	PaymentStateUnbilled PaymentState = "unbilled"
	PaymentStatePending  PaymentState = "pending"
	PaymentStatePaid     PaymentState = "paid"
	PaymentStateReversed PaymentState = "reversed"
)

var validPaymentStates = []PaymentState{
	PaymentStateUnbilled,
	PaymentStatePending,
	PaymentStatePaid,
	PaymentStateReversed,
}

// String implements fmt.Stringer.
func (p PaymentState) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentState.
func (p PaymentState) IsValid() bool {
	for _, candidate := range validPaymentStates {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentState converts raw input into a PaymentState.
func ParsePaymentState(value string) (PaymentState, error) {
	for _, candidate := range validPaymentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment state %q", value)
}
