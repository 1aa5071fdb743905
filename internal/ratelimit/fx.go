package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nexusguard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewClient),
	fx.Provide(NewLocker),
	fx.Provide(NewJoinRequestLimiter),
)

// NewClient opens the shared redis client, or returns nil when REDIS_ADDR is
// unset.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *redis.Client {
	if !cfg.RedisEnabled() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			log.Info("closing redis client")
			return client.Close()
		},
	})
	return client
}
