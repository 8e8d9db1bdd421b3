// Package bus implements the in-process publish/subscribe hub that
// decouples producers (camera readers, detectors, the backpressure
// monitor) from consumers (the packager, logging sinks) without either
// side knowing about the other.
package bus

import (
	"sync"

	"github.com/home-river/OAK-sub001/internal/errs"
	"github.com/home-river/OAK-sub001/internal/logging"
)

// EventType identifies the kind of payload an event carries.
type EventType string

const (
	EventRawFrame        EventType = "raw_frame"
	EventProcessedData   EventType = "processed_data"
	EventBackpressure    EventType = "backpressure"
)

// Handler receives a published payload. Handlers run synchronously on the
// publisher's goroutine and must not block or panic.
type Handler func(payload any)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a thread-safe, in-process event bus. The zero value is not usable;
// construct with New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]*subscription
	nextID uint64
	log    *logging.Logger
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[EventType][]*subscription), log: logging.Default().With("bus")}
}

// Subscribe registers handler for events of the given type and returns an
// unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, handler: handler}
	b.subs[eventType] = append(b.subs[eventType], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish dispatches payload to every handler currently subscribed to
// eventType. The handler slice is cloned under the lock and released
// before dispatch, so a handler that subscribes or unsubscribes does not
// deadlock and never observes a half-updated subscriber set. A handler that
// panics is caught and logged so the remaining handlers still run; a bad
// subscriber must not be able to take down every other one sharing the bus.
func (b *Bus) Publish(eventType EventType, payload any) {
	b.mu.RLock()
	subs := b.subs[eventType]
	cloned := make([]*subscription, len(subs))
	copy(cloned, subs)
	b.mu.RUnlock()

	for _, s := range cloned {
		b.dispatch(eventType, s, payload)
	}
}

func (b *Bus) dispatch(eventType EventType, s *subscription, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			err := errs.New("Bus.Publish", errs.CodeHandler, "subscriber panicked")
			b.log.Error(err.Error(), "eventType", eventType, "subscriberID", s.id, "recover", rec)
		}
	}()
	s.handler(payload)
}

// SubscriberCount reports how many handlers are currently registered for
// eventType, for tests and diagnostics.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType])
}
