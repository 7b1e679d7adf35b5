package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/payout-ledger/pkg/config"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return NewFromRedis(raw), mr
}

func TestSetNXAndGet(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	ok, err := client.SetNX(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	value, err := client.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "first", value)

	mr.FastForward(2 * time.Minute)
	_, err = client.Get(ctx, "k")
	require.True(t, IsMiss(err), "expected miss after ttl, got %v", err)
}

func TestDelRemovesKeys(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)

	require.NoError(t, client.Set(ctx, "a", "1", 0))
	require.NoError(t, client.Set(ctx, "b", "2", 0))
	require.NoError(t, client.Del(ctx, "a", "b"))

	_, err := client.Get(ctx, "a")
	require.True(t, IsMiss(err))
}

func TestNew_ConnectsWithAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{Address: mr.Addr(), PoolSize: 2}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()))
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{}, nil)
	require.Error(t, err)
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	require.Equal(t, "ledger:idempotency:payout:k1", client.IdempotencyKey("payout", "k1"))
	require.Equal(t, "ledger:idempotency:payout", client.IdempotencyKey("payout", " "))
	require.Equal(t, "ledger:lock:cron", client.LockKey("cron"))
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	require.ErrorIs(t, client.Ping(context.Background()), errNotInitialized)
	_, err := client.Get(context.Background(), "k")
	require.ErrorIs(t, err, errNotInitialized)
}

func TestCompareAndDeleteOnlyRemovesMatchingValue(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	require.NoError(t, client.Set(ctx, "lock", "owner-a", time.Minute))

	deleted, err := client.CompareAndDelete(ctx, "lock", "owner-b")
	require.NoError(t, err)
	require.False(t, deleted)
	require.True(t, mr.Exists("lock"))

	deleted, err = client.CompareAndDelete(ctx, "lock", "owner-a")
	require.NoError(t, err)
	require.True(t, deleted)
	require.False(t, mr.Exists("lock"))

	deleted, err = client.CompareAndDelete(ctx, "lock", "owner-a")
	require.NoError(t, err)
	require.False(t, deleted)
}
