package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// DropHandler is notified when a subscriber's queue overflowed and an event
// had to be dropped for it, so the caller can surface it as a metric or a
// "your feed has gaps" warning rather than let it pass silently.
type DropHandler func(subscriberID uint64, seq uint64, kind Kind)

// Bus is a bounded, multi-subscriber, non-blocking event fan-out. A slow
// subscriber never back-pressures the publisher: once its queue is full,
// further events are dropped for that subscriber and reported via
// DropHandler, never blocking Publish.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[uint64]*subscriber
	nextID      uint64
	seq         atomic.Uint64
	queueCap    int
	onDrop      DropHandler
}

type subscriber struct {
	id uint64
	ch chan Event
}

// NewBus creates a bus whose subscriber queues hold queueCap events each.
// onDrop may be nil.
func NewBus(queueCap int, onDrop DropHandler) *Bus {
	return &Bus{
		subscribers: make(map[uint64]*subscriber),
		queueCap:    queueCap,
		onDrop:      onDrop,
	}
}

// Subscribe registers a new subscriber and returns its ID plus a read-only
// channel of events published from this point on.
func (b *Bus) Subscribe() (id uint64, events <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id = b.nextID
	sub := &subscriber{id: id, ch: make(chan Event, b.queueCap)}
	b.subscribers[id] = sub
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// Publish assigns the next sequence number and fans the event out to every
// current subscriber without blocking.
func (b *Bus) Publish(kind Kind, payload interface{}) Event {
	evt := Event{
		Seq:       b.seq.Add(1),
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- evt:
		default:
			if b.onDrop != nil {
				b.onDrop(sub.id, evt.Seq, evt.Kind)
			}
		}
	}
	return evt
}

// SubscriberCount reports how many subscribers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes and closes every subscriber channel. The bus must not
// be published to after Close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
}
