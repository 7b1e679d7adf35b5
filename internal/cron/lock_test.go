package cron

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgredis "github.com/angelmondragon/payout-ledger/pkg/redis"
)

func newRedisLockPair(t *testing.T) (*RedisLock, *RedisLock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	client := pkgredis.NewFromRedis(raw)

	first, err := NewRedisLock(client, client.LockKey("cron:test"), time.Minute)
	require.NoError(t, err)
	second, err := NewRedisLock(client, client.LockKey("cron:test"), time.Minute)
	require.NoError(t, err)
	return first, second, mr
}

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	first, second, _ := newRedisLockPair(t)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, second.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok, "non-owner release must not free the lock")

	require.NoError(t, first.Release(ctx))
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisLockReleaseAfterExpiryLeavesNewOwner(t *testing.T) {
	ctx := context.Background()
	first, second, mr := newRedisLockPair(t)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, first.Release(ctx))
	require.True(t, mr.Exists("ledger:lock:cron:test"))
}

func TestNewRedisLockValidation(t *testing.T) {
	_, err := NewRedisLock(nil, "k", 0)
	require.Error(t, err)

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	_, err = NewRedisLock(pkgredis.NewFromRedis(raw), "", 0)
	require.Error(t, err)

	lock, err := NewRedisLock(pkgredis.NewFromRedis(raw), "k", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLockTTL, lock.ttl)
}

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	ok, _ := lock.Acquire(ctx)
	require.True(t, ok)
	ok, _ = lock.Acquire(ctx)
	require.False(t, ok)

	require.NoError(t, lock.Release(ctx))
	require.NoError(t, lock.Release(ctx))
	ok, _ = lock.Acquire(ctx)
	require.True(t, ok)
}
