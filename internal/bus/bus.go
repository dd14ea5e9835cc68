// Package bus is an in-process event fanout keyed by session. Subscribers
// observe analysis progress over buffered channels; a slow subscriber loses
// events rather than blocking the analysis pipeline.
package bus

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Event is one progress notification for a session.
type Event struct {
	Name       string         `json:"event"`
	SessionKey string         `json:"session_key"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Bus fans events out to per-session subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers for events on one session key. The returned cancel
// function must be called exactly once; it closes the channel.
func (b *Bus) Subscribe(sessionKey string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[sessionKey]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[sessionKey] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[sessionKey]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, sessionKey)
			}
		}
		b.mu.Unlock()
		close(ch)
	}
	return ch, cancel
}

// Broadcast delivers an event to every subscriber of its session. Delivery
// is best-effort: a full subscriber channel drops the event.
func (b *Bus) Broadcast(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[ev.SessionKey] {
		select {
		case ch <- ev:
		default:
			slog.Debug("Dropping event for slow subscriber",
				"event", ev.Name, "session_key", ev.SessionKey)
		}
	}
}

// SubscriberCount reports how many subscribers a session currently has.
func (b *Bus) SubscriberCount(sessionKey string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionKey])
}
