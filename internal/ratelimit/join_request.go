package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nexusguard/internal/config"
)

const keyJoinRequest = "joinrequest:submit:%s"

// JoinRequestLimiter throttles join-request submissions per requester. A nil
// limiter allows everything.
type JoinRequestLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewJoinRequestLimiter(cfg config.Config, client *redis.Client) *JoinRequestLimiter {
	if client == nil || cfg.JoinRequestRate <= 0 || cfg.JoinRequestBurst <= 0 {
		return nil
	}
	return &JoinRequestLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.JoinRequestRate,
		burst:  cfg.JoinRequestBurst,
	}
}

func (l *JoinRequestLimiter) Enabled() bool {
	return l != nil
}

// Allow reports whether requesterID may submit now and, if not, how long
// to wait.
func (l *JoinRequestLimiter) Allow(ctx context.Context, requesterID string) (bool, time.Duration, error) {
	if !l.Enabled() {
		return true, 0, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyJoinRequest, strings.TrimSpace(requesterID)), l.rate, l.burst)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed, res.RetryAfter, nil
}
