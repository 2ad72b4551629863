// Package events provides in-process pub/sub for status-change events.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"noren/internal/model"
)

// StatusChange is broadcast whenever the resolved status actually changes.
type StatusChange struct {
	ID        string
	Status    model.ResolvedStatus
	Timestamp time.Time
	Manual    bool
}

// Handler reacts to a status change. Handlers run synchronously and their
// errors are ignored; delivery is fire-and-forget.
type Handler func(StatusChange)

// Bus fans a status change out to any number of listeners.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all future changes.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish notifies all subscribers. The event id and timestamp are filled
// in if the caller left them empty.
func (b *Bus) Publish(ev StatusChange) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(ev)
	}
}
