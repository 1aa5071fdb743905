package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lease never frees somebody else's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var ErrLockHeld = errors.New("lock held by another process")

// Locker hands out expiring single-key leases in redis. A nil Locker grants
// every lease, which is what a single replica without redis wants.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is a held lock. Release is a no-op on a nil Lease.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes key for ttl or fails with ErrLockHeld.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l == nil {
		return nil, nil
	}
	if key == "" || ttl <= 0 {
		return nil, errors.New("lock needs a key and a positive ttl")
	}
	lease := &Lease{client: l.client, key: key, token: uuid.NewString()}
	won, err := l.client.SetNX(ctx, key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrLockHeld
	}
	return lease, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// WithLock runs fn under key. The lease is released even when ctx is
// already cancelled.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()
	return fn(ctx)
}
