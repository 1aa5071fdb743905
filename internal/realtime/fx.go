package realtime

import (
	"context"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/nexusguard/internal/config"
	"github.com/smallbiznis/nexusguard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("realtime",
	fx.Provide(NewBroker),
	fx.Provide(func(b Broker) Publisher { return b }),
	fx.Provide(NewRepositoryLoader),
	fx.Provide(NewWatcher),
)

// NewBroker selects the broker named by REALTIME_BROKER.
func NewBroker(lc fx.Lifecycle, cfg config.Config, client *redis.Client, log *zap.Logger) (Broker, error) {
	var (
		broker Broker
		err    error
	)
	switch cfg.RealtimeBroker {
	case config.BrokerRedis:
		if client == nil {
			return nil, errors.New("realtime broker redis requires REDIS_ADDR")
		}
		broker = NewRedisBroker(client, log)
	case config.BrokerPostgres:
		broker, err = NewPostgresBroker(db.DSN(cfg.DB()), log)
		if err != nil {
			return nil, fmt.Errorf("start postgres broker: %w", err)
		}
	default:
		broker = NewMemoryBroker()
	}

	log.Info("realtime broker ready", zap.String("broker", cfg.RealtimeBroker))
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return broker.Close()
		},
	})
	return broker, nil
}
