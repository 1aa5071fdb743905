package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker shares events between replicas through Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	log    *zap.Logger
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func NewRedisBroker(client *redis.Client, log *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, log: log.Named("realtime.redis")}
}

func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.Channel) == "" {
		return ErrInvalidChannel
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, event.Channel, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, ErrInvalidChannel
	}
	pubsub := b.client.Subscribe(ctx, channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		ch:     make(chan Event, DefaultSubscriberBuffer),
		done:   make(chan struct{}),
	}
	go sub.pump(b.log)
	return sub, nil
}

func (s *redisSubscription) pump(log *zap.Logger) {
	defer close(s.ch)
	messages := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case s.ch <- event:
			default:
			}
		}
	}
}

func (s *redisSubscription) Events() <-chan Event {
	return s.ch
}

func (s *redisSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}

// Close is a no-op; the client is shared and closed by its owner.
func (b *RedisBroker) Close() error {
	return nil
}
