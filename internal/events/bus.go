package events

import (
	"sync"
	"time"
)

// Bus is a lightweight pub/sub broker using channels. Publishing never
// blocks: a subscriber that cannot keep up loses events rather than
// stalling the strategy cycle that emitted them.
type Bus struct {
	mu   sync.RWMutex
	subs map[Event][]chan Payload
	all  []chan Payload
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan Payload)}
}

// Subscribe registers a listener for one event type and returns the channel
// and an unsubscribe function.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan Payload, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Payload, buffer)
	b.subs[e] = append(b.subs[e], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[e]
		for i, c := range subs {
			if c == ch {
				close(c)
				b.subs[e] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// SubscribeAll registers a listener for every event type, used by the
// websocket stream.
func (b *Bus) SubscribeAll(buffer int) (<-chan Payload, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Payload, buffer)
	b.all = append(b.all, ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, c := range b.all {
			if c == ch {
				close(c)
				b.all = append(b.all[:i], b.all[i+1:]...)
				break
			}
		}
	}

	return ch, unsub
}

// Publish stamps the payload and fans it out to subscribers without blocking.
func (b *Bus) Publish(e Event, p Payload) {
	p.Type = e
	if p.Time.IsZero() {
		p.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- p:
		default:
			// drop if subscriber is slow; keep broker non-blocking
		}
	}
	for _, ch := range b.all {
		select {
		case ch <- p:
		default:
		}
	}
}
