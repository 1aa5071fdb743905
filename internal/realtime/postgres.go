package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresBroker delivers events with LISTEN/NOTIFY. Channel names are used
// verbatim as notification channels.
type PostgresBroker struct {
	db       *sql.DB
	listener *pq.Listener
	log      *zap.Logger
	id       string

	mu          sync.RWMutex
	subscribers map[string]map[uint64]chan Event
	nextID      uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type postgresEnvelope struct {
	Event    Event  `json:"event"`
	SenderID string `json:"sender_id"`
}

type postgresSubscription struct {
	broker  *PostgresBroker
	channel string
	id      uint64
	ch      chan Event
	once    sync.Once
}

func NewPostgresBroker(dsn string, log *zap.Logger) (*PostgresBroker, error) {
	log = log.Named("realtime.postgres")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open notify connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping notify connection: %w", err)
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	b := &PostgresBroker{
		db:          db,
		listener:    listener,
		log:         log,
		id:          uuid.NewString(),
		subscribers: make(map[string]map[uint64]chan Event),
		ctx:         ctx,
		cancel:      cancel,
	}
	b.wg.Add(1)
	go b.run()
	return b, nil
}

func (b *PostgresBroker) Publish(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.Channel) == "" {
		return ErrInvalidChannel
	}
	payload, err := json.Marshal(postgresEnvelope{Event: event, SenderID: b.id})
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", event.Channel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", event.Channel, err)
	}
	return nil
}

func (b *PostgresBroker) Subscribe(_ context.Context, channel string) (Subscription, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, ErrInvalidChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return nil, ErrBrokerClosed
	}
	subs, ok := b.subscribers[channel]
	if !ok {
		if err := b.listener.Listen(channel); err != nil && err != pq.ErrChannelAlreadyOpen {
			return nil, fmt.Errorf("listen %s: %w", channel, err)
		}
		subs = make(map[uint64]chan Event)
		b.subscribers[channel] = subs
	}
	id := b.nextID
	b.nextID++
	ch := make(chan Event, DefaultSubscriberBuffer)
	subs[id] = ch
	return &postgresSubscription{broker: b, channel: channel, id: id, ch: ch}, nil
}

func (b *PostgresBroker) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case notification := <-b.listener.Notify:
			// nil after a reconnect; state is reloaded by subscribers on the
			// next event anyway.
			if notification != nil {
				b.dispatch(notification)
			}
		case <-time.After(90 * time.Second):
			if err := b.listener.Ping(); err != nil {
				b.log.Warn("listener ping failed", zap.Error(err))
			}
		}
	}
}

func (b *PostgresBroker) dispatch(notification *pq.Notification) {
	var envelope postgresEnvelope
	if err := json.Unmarshal([]byte(notification.Extra), &envelope); err != nil {
		b.log.Warn("dropping malformed notification", zap.String("channel", notification.Channel), zap.Error(err))
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers[notification.Channel] {
		select {
		case ch <- envelope.Event:
		default:
			b.log.Debug("subscriber full, event dropped", zap.String("channel", notification.Channel))
		}
	}
}

func (b *PostgresBroker) unsubscribe(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[channel]
	if !ok {
		return
	}
	if ch, ok := subs[id]; ok {
		delete(subs, id)
		close(ch)
	}
	if len(subs) == 0 {
		delete(b.subscribers, channel)
		if err := b.listener.Unlisten(channel); err != nil {
			b.log.Debug("unlisten failed", zap.String("channel", channel), zap.Error(err))
		}
	}
}

func (b *PostgresBroker) Close() error {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	for channel, subs := range b.subscribers {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(b.subscribers, channel)
	}
	b.mu.Unlock()

	if err := b.listener.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return b.db.Close()
}

func (s *postgresSubscription) Events() <-chan Event {
	return s.ch
}

func (s *postgresSubscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s.channel, s.id)
	})
}
