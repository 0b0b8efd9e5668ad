package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

// DefaultBufferSize is the per-subscriber queue size used when the
// configured size is not positive.
const DefaultBufferSize = 256

// Subscription is a registered observer of the event stream.
type Subscription struct {
	id      string
	filter  map[types.EventType]struct{} // empty means all types
	ch      chan types.Event
	dropped atomic.Int64
	closed  atomic.Bool
}

// Events returns the channel on which subscribed events are delivered. The
// channel is closed when the subscription is cancelled or the bus shuts down.
func (s *Subscription) Events() <-chan types.Event {
	return s.ch
}

// Dropped returns the number of events dropped because the subscriber's
// queue was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Subscription) wants(t types.EventType) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[t]
	return ok
}

// Bus fans lifecycle events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
	closed bool
	logger *zap.Logger
}

// NewBus creates an event bus with the given per-subscriber buffer size.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		logger: logger.With(zap.String("component", "event_bus")),
	}
}

// Subscribe registers an observer. With no event types given, the observer
// receives every event; otherwise only the listed types.
func (b *Bus) Subscribe(eventTypes ...types.EventType) *Subscription {
	sub := &Subscription{
		id: uuid.New().String(),
		ch: make(chan types.Event, b.buffer),
	}
	if len(eventTypes) > 0 {
		sub.filter = make(map[types.EventType]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		sub.closed.Store(true)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	if sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

// Publish delivers the event to every interested subscriber without
// blocking. The timestamp is filled in when unset.
func (b *Bus) Publish(evt types.Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.wants(evt.Type) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			sub.dropped.Add(1)
			b.logger.Debug("subscriber queue full, event dropped",
				zap.String("event_type", string(evt.Type)),
				zap.String("subscription_id", sub.id),
			)
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
}
