package realtime

import (
	"context"
	"strings"
	"sync"
)

// MemoryBroker fans events out to in-process subscribers. Slow subscribers
// miss events instead of blocking publishers.
type MemoryBroker struct {
	mu               sync.RWMutex
	streams          map[string]*stream
	subscriberBuffer int
	closed           bool
}

type stream struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	nextID uint64
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	id      uint64
	ch      chan Event
	once    sync.Once
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		streams:          make(map[string]*stream),
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	channel := strings.TrimSpace(event.Channel)
	if channel == "" {
		return ErrInvalidChannel
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBrokerClosed
	}
	current := b.streams[channel]
	b.mu.RUnlock()
	if current == nil {
		return nil
	}

	current.mu.Lock()
	defer current.mu.Unlock()
	for _, ch := range current.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (Subscription, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, ErrInvalidChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	current := b.streams[channel]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		b.streams[channel] = current
	}

	current.mu.Lock()
	id := current.nextID
	current.nextID++
	ch := make(chan Event, b.subscriberBuffer)
	current.subs[id] = ch
	current.mu.Unlock()

	return &memorySubscription{broker: b, channel: channel, id: id, ch: ch}, nil
}

func (b *MemoryBroker) unsubscribe(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current := b.streams[channel]
	if current == nil {
		return
	}

	current.mu.Lock()
	if ch, ok := current.subs[id]; ok {
		delete(current.subs, id)
		close(ch)
	}
	empty := len(current.subs) == 0
	current.mu.Unlock()
	if empty {
		delete(b.streams, channel)
	}
}

// Close ends every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, current := range b.streams {
		current.mu.Lock()
		for id, ch := range current.subs {
			delete(current.subs, id)
			close(ch)
		}
		current.mu.Unlock()
		delete(b.streams, channel)
	}
	return nil
}

func (s *memorySubscription) Events() <-chan Event {
	return s.ch
}

func (s *memorySubscription) Close() {
	s.once.Do(func() {
		s.broker.unsubscribe(s.channel, s.id)
	})
}
