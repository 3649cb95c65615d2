package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jetkvm/keymerge/internal/events"
)

var (
	ErrBusClosed          = errors.New("eventbus: bus is closed")
	ErrSubscriberExists   = errors.New("eventbus: subscriber already exists")
	ErrSubscriberNotFound = errors.New("eventbus: subscriber not found")
	ErrNilChannel         = errors.New("eventbus: nil channel provided")
)

// SubscriberStats counts deliveries to one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// Stats is a bus-wide snapshot.
type Stats struct {
	Published   uint64
	Subscribers map[string]SubscriberStats
}

type subscriber struct {
	ch      chan<- events.Event
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus fans events out to subscriber channels. Publish never blocks: a
// subscriber whose channel is full loses the event and the drop is counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	published   atomic.Uint64
	closed      bool
}

func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers ch under id.
func (b *Bus) Subscribe(id string, ch chan<- events.Event) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes a subscriber. Its channel is left open.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	return nil
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.published.Add(1)

	for _, s := range b.subscribers {
		select {
		case s.ch <- ev:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, s := range b.subscribers {
		st.Subscribers[id] = SubscriberStats{Sent: s.sent.Load(), Dropped: s.dropped.Load()}
	}
	return st
}

// Close stops delivery. Later Publish calls are ignored and Subscribe fails.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.subscribers = nil
}
