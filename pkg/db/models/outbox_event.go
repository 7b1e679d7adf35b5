package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/payout-ledger/pkg/enums"
)

// MaxOutboxErrorLen bounds the publish error text kept on outbox and dlq rows.
const MaxOutboxErrorLen = 1024

// OutboxEvent is a ledger event committed alongside the state change that
// produced it. Payload holds the versioned envelope the relay publishes.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt   *time.Time                `gorm:"column:published_at"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError     *string                   `gorm:"column:last_error"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

func (e OutboxEvent) Published() bool {
	return e.PublishedAt != nil
}

// DeadLetter builds the dlq row recording why e was abandoned.
func (e OutboxEvent) DeadLetter(reason enums.OutboxDLQErrorReason, cause error, at time.Time) OutboxDLQ {
	return OutboxDLQ{
		ID:            uuid.New(),
		EventID:       e.ID,
		EventType:     e.EventType,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		Payload:       e.Payload,
		ErrorReason:   reason,
		ErrorMessage:  ClipError(cause),
		AttemptCount:  e.AttemptCount,
		FailedAt:      at.UTC(),
	}
}

// ClipError renders err for storage, cut to MaxOutboxErrorLen bytes. A nil
// error yields nil.
func ClipError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > MaxOutboxErrorLen {
		msg = msg[:MaxOutboxErrorLen]
	}
	return &msg
}
