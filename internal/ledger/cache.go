package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgredis "github.com/angelmondragon/payout-ledger/pkg/redis"
)

const replayScope = "payout"

// ReplayEntry is the cached answer for an idempotency key.
type ReplayEntry struct {
	PayoutID    uuid.UUID `json:"payoutId"`
	SupplierID  uuid.UUID `json:"supplierId"`
	AmountCents int64     `json:"amountCents"`
	ItemCount   int       `json:"itemCount"`
	RequestHash string    `json:"requestHash"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReplayCache is a fast path in front of the durable idempotency ledger. It
// never decides an outcome on its own: a miss always falls through to postgres.
type ReplayCache interface {
	Get(ctx context.Context, key string) (*ReplayEntry, bool, error)
	Put(ctx context.Context, key string, entry ReplayEntry) error
}

type redisReplayCache struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
}

// NewReplayCache stores replay entries in redis for ttl.
func NewReplayCache(store pkgredis.IdempotencyStore, ttl time.Duration) (ReplayCache, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("replay cache ttl must be positive")
	}
	return &redisReplayCache{store: store, ttl: ttl}, nil
}

func (c *redisReplayCache) Get(ctx context.Context, key string) (*ReplayEntry, bool, error) {
	raw, err := c.store.Get(ctx, c.store.IdempotencyKey(replayScope, key))
	if err != nil {
		if pkgredis.IsMiss(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var entry ReplayEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, false, fmt.Errorf("decode replay entry: %w", err)
	}
	return &entry, true, nil
}

func (c *redisReplayCache) Put(ctx context.Context, key string, entry ReplayEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.store.IdempotencyKey(replayScope, key), string(payload), c.ttl)
}
