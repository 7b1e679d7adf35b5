package enums

import "fmt"

// OutboxDLQErrorReason records why the relay gave up on an outbox row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means transient publish failures used up the
	// retry budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable means the row can never be published as
	// stored, e.g. an undecodable payload or an unrouted event type.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}

// Replayable reports whether re-enqueueing the row could succeed without
// changing it.
func (r OutboxDLQErrorReason) Replayable() bool {
	return r == OutboxDLQReasonMaxAttempts
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	if r := OutboxDLQErrorReason(value); r.IsValid() {
		return r, nil
	}
	return "", fmt.Errorf("invalid dlq error reason %q", value)
}
