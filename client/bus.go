package client

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw JSON payload of one event.
type Handler func(payload json.RawMessage)

// Bus is the local pub/sub that fans one inbound frame out to independent
// consumers (cache updater, desktop notification, sound, badge). Dispatch is
// synchronous and in subscription order; handlers must not block and
// self-schedule any slow work.
type Bus struct {
	mu   sync.Mutex
	next int
	subs map[string][]subscription
}

type subscription struct {
	id int
	fn Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string][]subscription)}
}

// Subscribe registers a handler and returns its unsubscribe func. Holding on
// to the unsubscribe handle and calling it on teardown is what keeps
// reconnect cycles from leaking subscribers.
func (b *Bus) Subscribe(event string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.subs[event] = append(b.subs[event], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[event]
		for i, s := range list {
			if s.id == id {
				b.subs[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Publish invokes every current subscriber for event, in subscription order,
// then returns. The subscriber list is snapshotted first so a handler may
// unsubscribe (itself or others) mid-dispatch.
func (b *Bus) Publish(event string, payload json.RawMessage) {
	b.mu.Lock()
	list := make([]subscription, len(b.subs[event]))
	copy(list, b.subs[event])
	b.mu.Unlock()

	for _, s := range list {
		s.fn(payload)
	}
}
