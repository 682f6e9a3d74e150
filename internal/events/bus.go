package events

import (
	"context"
	"sync"
)

const busBuffer = 16

// Bus is an in-process Publisher and Subscriber for a single server
// running without Redis.
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[*busSubscription]struct{}
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[*busSubscription]struct{})}
}

// Publish hands event to every subscriber of the session. A subscriber whose
// buffer is full misses the event.
func (b *Bus) Publish(_ context.Context, sessionID string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[sessionID] {
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscription for the session.
func (b *Bus) Subscribe(_ context.Context, sessionID string) (Subscription, error) {
	sub := &busSubscription{bus: b, sessionID: sessionID, events: make(chan Event, busBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*busSubscription]struct{})
	}
	b.subs[sessionID][sub] = struct{}{}
	return sub, nil
}

func (b *Bus) remove(sub *busSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.events)
	if len(set) == 0 {
		delete(b.subs, sub.sessionID)
	}
}

type busSubscription struct {
	bus       *Bus
	sessionID string
	events    chan Event
}

func (s *busSubscription) Events() <-chan Event {
	return s.events
}

func (s *busSubscription) Close() error {
	s.bus.remove(s)
	return nil
}
