// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

import (
	"sync"

	"github.com/google/uuid"
)

// EventStub is the server's per-session table mapping event name to an
// ordered list of registered HandlerKeys, per spec §4.4's add_/remove_
// event-accessor handling. Guarded by a reader-writer lock: readers fire
// the event, writers add/remove subscribers, matching the concurrency
// model in spec §5.
type EventStub struct {
	mu       sync.RWMutex
	handlers map[string][]uuid.UUID
}

func NewEventStub() *EventStub {
	return &EventStub{handlers: make(map[string][]uuid.UUID)}
}

// Subscribe registers key under eventName, preserving registration order.
func (e *EventStub) Subscribe(eventName string, key uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[eventName] = append(e.handlers[eventName], key)
}

// Unsubscribe removes key from eventName's subscriber list.
func (e *EventStub) Unsubscribe(eventName string, key uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[eventName]
	for i, k := range list {
		if k == key {
			e.handlers[eventName] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Subscribers returns a copy of eventName's subscriber keys in
// registration order, for firing.
func (e *EventStub) Subscribers(eventName string) []uuid.UUID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.handlers[eventName]
	out := make([]uuid.UUID, len(list))
	copy(out, list)
	return out
}
