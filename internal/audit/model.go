// Package audit records queue lifecycle events so users can answer "what
// happened to my change" after the fact.
package audit

import (
	"time"

	"github.com/tildaslashalef/driftq/internal/mutation"
	"github.com/tildaslashalef/driftq/internal/ulid"
)

// Event names a queue lifecycle moment worth keeping a record of
type Event string

const (
	// EventEnqueued records a mutation entering the queue
	EventEnqueued Event = "enqueued"

	// EventCoalesced records a mutation dropped because a later delete made
	// it unnecessary
	EventCoalesced Event = "coalesced"

	// EventReplayed records a mutation accepted by the backend
	EventReplayed Event = "replayed"

	// EventFailed records a failed replay attempt, transient or terminal
	EventFailed Event = "failed"

	// EventCancelled records a user-initiated cancel of a pending mutation
	EventCancelled Event = "cancelled"

	// EventDiscarded records a user-initiated discard of a terminally
	// failed mutation
	EventDiscarded Event = "discarded"

	// EventRetried records a user-initiated reset of a terminally failed
	// mutation back to pending
	EventRetried Event = "retried"

	// EventRunCompleted records a finished sync run. The mutation fields
	// are empty and the detail carries the run summary.
	EventRunCompleted Event = "run-completed"
)

// Entry is one persisted audit record
type Entry struct {
	ID         string
	MutationID string
	Resource   string
	Operation  string
	EntityKey  string
	Event      Event
	Detail     string
	Client     string
	CreatedAt  time.Time
}

// NewEntry builds an entry for a mutation lifecycle event
func NewEntry(m *mutation.Mutation, event Event, detail string) *Entry {
	return &Entry{
		ID:         ulid.AuditID(),
		MutationID: m.ID,
		Resource:   m.Resource,
		Operation:  string(m.Op),
		EntityKey:  m.EntityKey,
		Event:      event,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewRunEntry builds an entry for a run-level event with no mutation
func NewRunEntry(event Event, detail string) *Entry {
	return &Entry{
		ID:        ulid.AuditID(),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}
