// Package events implements the in-process notification bus that keeps UI
// surfaces in sync with queue and replay state.
package events

import (
	"sync"

	"github.com/tildaslashalef/driftq/internal/loggy"
)

// Topic names a class of events
type Topic string

const (
	// TopicQueueUpdated fires after every queue mutation: enqueue, coalesce,
	// removal, retry bookkeeping, cancel, discard.
	TopicQueueUpdated Topic = "queue-updated"

	// TopicSyncStarted fires when a replay run begins
	TopicSyncStarted Topic = "sync-started"

	// TopicSyncCompleted fires when a replay run finishes, with its summary
	TopicSyncCompleted Topic = "sync-completed"

	// TopicStoreWarning fires when queue persistence degrades to memory-only
	TopicStoreWarning Topic = "store-warning"

	// TopicConnectivityChanged fires on offline/online edges
	TopicConnectivityChanged Topic = "connectivity-changed"
)

// Event is a published notification
type Event struct {
	Topic   Topic
	Payload any
}

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine, so they must not block.
type Handler func(Event)

// Bus is a synchronous publish/subscribe hub
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic]map[int]Handler
	logger *loggy.Logger
}

// NewBus creates an empty bus
func NewBus(logger *loggy.Logger) *Bus {
	return &Bus{
		subs:   make(map[Topic]map[int]Handler),
		logger: logger,
	}
}

// Subscribe registers a handler for a topic and returns a function that
// removes it. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(topic Topic, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]Handler)
	}
	b.subs[topic][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish delivers an event to every subscriber of its topic before
// returning. Handlers registered or removed during delivery take effect on
// the next publish.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	b.logger.Debug("Publishing event", "topic", string(topic), "subscribers", len(handlers))

	evt := Event{Topic: topic, Payload: payload}
	for _, h := range handlers {
		h(evt)
	}
}
