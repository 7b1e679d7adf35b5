package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/payout-ledger/pkg/config"
	"github.com/angelmondragon/payout-ledger/pkg/db/models"
	"github.com/angelmondragon/payout-ledger/pkg/enums"
	"github.com/angelmondragon/payout-ledger/pkg/logger"
	"github.com/angelmondragon/payout-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/payout-ledger/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	LockPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type dlqRepository interface {
	Record(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// outcome is what happened to one outbox row during a batch.
type outcome string

const (
	outcomePublished  outcome = "published"
	outcomeRetry      outcome = "retry"
	outcomeDeadLetter outcome = "dead_lettered"
)

// RelayParams wire the ledger event relay.
type RelayParams struct {
	Outbox           config.OutboxConfig
	Logger           *logger.Logger
	DB               txRunner
	PubSub           topicSource
	Repository       outboxRepository
	DLQ              dlqRepository
	Registry         eventResolver
	PublisherFactory func(topic string) publisher
	Now              func() time.Time
}

// Relay moves committed ledger events from outbox_events to Pub/Sub. Rows
// are locked per batch so several relays can run side by side.
type Relay struct {
	logg         *logger.Logger
	db           txRunner
	pubsub       topicSource
	repo         outboxRepository
	dlq          dlqRepository
	registry     eventResolver
	publishers   map[string]publisher
	newPublisher func(topic string) publisher
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

// NewRelay validates params and applies outbox defaults.
func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return wrapGCPPublisher(params.PubSub.Publisher(topic))
		}
	}
	batch := params.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := params.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Relay{
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repository,
		dlq:          params.DLQ,
		registry:     params.Registry,
		publishers:   map[string]publisher{},
		newPublisher: factory,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: poll,
		now:          now,
	}, nil
}

// Run polls until ctx ends. Empty polls sleep for the poll interval; failed
// batches back off exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	backoff := r.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox.relay_stopped")
			return err
		}

		processed, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			backoff = nextBackoff(backoff, r.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
		case processed > 0:
			backoff = r.pollInterval
		default:
			backoff = r.pollInterval
			if err := sleep(ctx, withJitter(r.pollInterval)); err != nil {
				return err
			}
		}
	}
}

// relayBatch handles one locked batch and reports how many rows it touched.
func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	var processed int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.LockPending(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, event := range events {
			if _, err := r.relayEvent(ctx, tx, event); err != nil {
				return err
			}
			processed++
		}
		return nil
	})
	return processed, err
}

// relayEvent publishes one row and records the outcome in the same
// transaction. The returned error is only for bookkeeping failures.
func (r *Relay) relayEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	fields := eventFields(event)
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	if err := r.publish(ctx, event, resolved); err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
		}
		attempt := event.AttemptCount + 1
		fields["attempt_count"] = attempt
		if attempt >= r.maxAttempts {
			return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
				fmt.Errorf("max publish attempts reached: %w", err), fields)
		}
		fields["error"] = err.Error()
		r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.publish_failed")
		if markErr := r.repo.RecordFailure(tx, event.ID, err); markErr != nil {
			return "", fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return outcomeRetry, nil
	}

	if err := r.repo.MarkPublished(tx, event.ID); err != nil {
		return "", fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	r.logg.Info(r.logg.WithFields(ctx, fields), "outbox.published")
	return outcomePublished, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) (outcome, error) {
	fields["error_reason"] = reason
	fields["replayable"] = reason.Replayable()
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox.dead_lettered")

	if err := r.dlq.Record(tx, event.DeadLetter(reason, cause, r.now())); err != nil {
		return "", fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.repo.Park(tx, event.ID, cause, r.maxAttempts); err != nil {
		return "", fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return outcomeDeadLetter, nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publisherFor(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	if scoped, ok := resolved.Payload.(payloads.SupplierScoped); ok && scoped.Supplier() != uuid.Nil {
		attrs["supplier_id"] = scoped.Supplier().String()
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{Data: event.Payload, Attributes: attrs})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned no result for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (r *Relay) publisherFor(topic string) publisher {
	if pub, ok := r.publishers[topic]; ok {
		return pub
	}
	pub := r.newPublisher(topic)
	if pub != nil {
		r.publishers[topic] = pub
	}
	return pub
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func wrapGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
