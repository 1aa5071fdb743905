package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	_, client := newRedis(t)
	bucket := NewTokenBucket(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "k", 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i)
	}

	res, err := bucket.Allow(ctx, "k", 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Positive(t, res.RetryAfter)
}

func TestTokenBucketValidation(t *testing.T) {
	var nilBucket *TokenBucket
	_, err := nilBucket.Allow(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, client := newRedis(t)
	_, err = NewTokenBucket(client).Allow(context.Background(), "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestJoinRequestLimiter(t *testing.T) {
	_, client := newRedis(t)
	cfg := config.Config{JoinRequestRate: 0.001, JoinRequestBurst: 1}
	limiter := NewJoinRequestLimiter(cfg, client)
	require.True(t, limiter.Enabled())

	ok, _, err := limiter.Allow(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, wait, err := limiter.Allow(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))

	ok, _, err = limiter.Allow(context.Background(), "u3")
	require.NoError(t, err)
	assert.True(t, ok, "buckets are per requester")
}

func TestJoinRequestLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewJoinRequestLimiter(config.Config{JoinRequestRate: 1, JoinRequestBurst: 1}, nil))

	var limiter *JoinRequestLimiter
	ok, _, err := limiter.Allow(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerWithLock(t *testing.T) {
	srv, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "seed", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	called := false
	err = locker.WithLock(ctx, "seed", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, called)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, srv.Exists("seed"))

	err = locker.WithLock(ctx, "seed", time.Minute, func(context.Context) error {
		called = true
		assert.True(t, srv.Exists("seed"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.False(t, srv.Exists("seed"))
}

func TestExpiredLeaseKeepsNewHolder(t *testing.T) {
	srv, client := newRedis(t)
	locker := NewLocker(client)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "seed", time.Second)
	require.NoError(t, err)
	srv.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "seed", time.Minute)
	require.NoError(t, err)
	require.NoError(t, stale.Release(ctx))
	assert.True(t, srv.Exists("seed"), "stale release must not drop the new lease")
	require.NoError(t, fresh.Release(ctx))
	assert.False(t, srv.Exists("seed"))
}

func TestTokenBucketRemaining(t *testing.T) {
	_, client := newRedis(t)
	res, err := NewTokenBucket(client).Allow(context.Background(), "r", 1, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestNilLockerGrants(t *testing.T) {
	var locker *Locker
	called := false
	err := locker.WithLock(context.Background(), "seed", time.Minute, func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
