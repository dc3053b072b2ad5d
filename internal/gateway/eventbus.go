package gateway

import (
	"sync"
	"time"
)

// Event is the JSON-serialisable envelope broadcast to WebSocket clients on
// every link notification.
type Event struct {
	Kind      string    `json:"kind"` // connected | disconnected | reconnected
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriber holds a buffered channel for one WebSocket connection.
type subscriber struct {
	ch chan Event
}

// EventBus fans link events out to all registered subscribers. Publish
// never blocks: it runs inside the poll loop, so slow consumers are skipped
// (they can catch up via the REST history endpoint).
type EventBus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewEventBus constructs a ready EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*subscriber]struct{})}
}

// Subscribe registers a new client. The returned unsubscribe function must
// be called when the client disconnects (it closes the channel).
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, 16)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
		close(s.ch)
	}
	return s.ch, unsub
}

// Publish sends an Event to all current subscribers.
func (b *EventBus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			// Slow consumer – drop silently.
		}
	}
}

// Len returns the current subscriber count (useful for metrics/tests).
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
