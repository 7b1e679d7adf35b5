package lineitems

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// ItemRef is the (orderId, itemId) key of a line item.
type ItemRef struct {
	OrderID uuid.UUID `json:"orderId" validate:"required"`
	ItemID  uuid.UUID `json:"itemId" validate:"required"`
}

func (r ItemRef) String() string {
	return fmt.Sprintf("%s/%s", r.OrderID, r.ItemID)
}

// Claim is the conditional pending -> paid update issued by the payout processor.
type Claim struct {
	Ref        ItemRef
	SupplierID uuid.UUID
	Version    int64
	PayoutID   uuid.UUID
	At         time.Time
}

// TransitionInput describes a guarded state change outside the payout path.
type TransitionInput struct {
	Ref     ItemRef
	From    enums.PaymentState
	To      enums.PaymentState
	Version int64
	At      time.Time
}
