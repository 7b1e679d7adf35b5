package enums

import "fmt"

// OutboxAggregateType names the ledger entity an outbox event describes. It
// maps to aggregate_type_enum.
type OutboxAggregateType string

const (
	AggregatePayout   OutboxAggregateType = "payout"
	AggregateLineItem OutboxAggregateType = "line_item"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregatePayout || a == AggregateLineItem
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	if a := OutboxAggregateType(value); a.IsValid() {
		return a, nil
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to event_type_enum.
type OutboxEventType string

const (
	EventPayoutCreated    OutboxEventType = "payout_created"
	EventPayoutReversed   OutboxEventType = "payout_reversed"
	EventLineItemReversed OutboxEventType = "line_item_reversed"
)

// eventAggregates pairs every event type with the only aggregate it may be
// emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventPayoutCreated:    AggregatePayout,
	EventPayoutReversed:   AggregatePayout,
	EventLineItemReversed: AggregateLineItem,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e belongs to, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	if e := OutboxEventType(value); e.IsValid() {
		return e, nil
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
