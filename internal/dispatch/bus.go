package dispatch

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Bus fans events out to subscribers synchronously. A panicking subscriber
// is recovered and logged so it cannot block delivery to the others or
// stall the reader loop.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]func(Event)
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bus{
		logger: logger,
		subs:   make(map[uuid.UUID]func(Event)),
	}
}

// Subscribe registers a handler for all events and returns its
// unsubscribe function. Unsubscribing twice is a no-op.
func (b *Bus) Subscribe(handler func(Event)) func() {
	id := uuid.New()

	b.mu.Lock()
	b.subs[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev to every subscriber in turn.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ev, h)
	}
}

// deliver invokes one handler, isolating panics.
func (b *Bus) deliver(ev Event, handler func(Event)) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", ev.Name(),
				"panic", r,
			)
		}
	}()

	handler(ev)
}

// Len returns the current subscriber count.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
