package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tildaslashalef/driftq/internal/audit"
	"github.com/tildaslashalef/driftq/internal/cache"
	"github.com/tildaslashalef/driftq/internal/config"
	"github.com/tildaslashalef/driftq/internal/events"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
	"github.com/tildaslashalef/driftq/internal/ulid"
)

var (
	// ErrMutationNotFound is returned when no queued mutation has the given ID
	ErrMutationNotFound = errors.New("mutation not found in queue")

	// ErrMutationInFlight is returned when a mutation cannot be changed
	// because a sync run is currently replaying it
	ErrMutationInFlight = errors.New("mutation is currently being replayed")
)

// Service owns the in-memory queue and keeps it write-through with the
// durable store. All mutations of queue state go through it so every change
// lands on the event bus.
//
// Store failures never propagate to callers: the first write failure flips
// the session into memory-only mode, reported once as a store warning. The
// optimistic view stays intact, it just won't survive a restart until the
// store is healthy again.
type Service struct {
	mu         sync.Mutex
	items      []*mutation.Mutation
	inFlight   string
	degraded   bool
	maxRetries int

	store    Store
	cache    *cache.Store
	bus      *events.Bus
	recorder audit.Recorder
	logger   *loggy.Logger
}

// NewService loads the persisted queue and returns a ready service. A
// corrupt store is reported as a warning and treated as empty; an
// unavailable store puts the session in memory-only mode from the start.
func NewService(ctx context.Context, store Store, cacheStore *cache.Store, bus *events.Bus, recorder audit.Recorder, cfg config.QueueConfig, logger *loggy.Logger) *Service {
	s := &Service{
		items:      []*mutation.Mutation{},
		maxRetries: cfg.MaxRetries,
		store:      store,
		cache:      cacheStore,
		bus:        bus,
		recorder:   recorder,
		logger:     logger,
	}

	items, err := store.Load(ctx)
	switch {
	case err == nil:
		s.items = items
	case errors.Is(err, ErrCorruptState):
		// The key is still writable, the next append overwrites it
		logger.Warn("Persisted queue is corrupt, starting empty", "error", err)
		bus.Publish(events.TopicStoreWarning, fmt.Sprintf("persisted queue was corrupt and has been reset: %v", err))
	default:
		logger.Warn("Queue store unavailable, running memory-only", "error", err)
		s.degraded = true
		bus.Publish(events.TopicStoreWarning, fmt.Sprintf("queue store unavailable, changes will not survive a restart: %v", err))
	}

	return s
}

// MaxRetries returns the transient-failure budget per mutation
func (s *Service) MaxRetries() int {
	return s.maxRetries
}

// Degraded reports whether the session has fallen back to memory-only
func (s *Service) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Enqueue accepts a mutation intent: it patches the local cache
// optimistically, applies the create/delete coalescing rule and persists
// the mutation at the queue tail. It performs no network I/O and cannot
// fail for store reasons.
//
// The returned mutation is nil when a delete coalesced away a still-pending
// create, in which case nothing was enqueued and the entity has no queued
// work left.
func (s *Service) Enqueue(ctx context.Context, resource string, op mutation.Operation, payload json.RawMessage) (*mutation.Mutation, error) {
	entityKey, payload, err := resolveEntityKey(op, payload)
	if err != nil {
		return nil, err
	}

	m := mutation.New(resource, op, entityKey, payload)
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The user sees their change before anything touches the network
	if err := s.cache.PatchOptimistic(resource, op, entityKey, m.ID, payload); err != nil {
		return nil, err
	}

	if op == mutation.OpDelete && s.coalesceDelete(ctx, m) {
		return nil, nil
	}

	s.items = append(s.items, m)

	if !s.degraded {
		if _, err := s.store.Append(ctx, m); err != nil {
			s.degrade(err)
		}
	}

	s.recorder.RecordMutation(ctx, m, audit.EventEnqueued, m.Description())
	s.publishQueueUpdated()

	s.logger.Debug("Enqueued mutation", "id", m.ID, "resource", resource, "op", string(op), "entity", entityKey)
	return m.Clone(), nil
}

// coalesceDelete drops every pending item for the delete's entity when its
// create has not been replayed yet. The server never needed to see a record
// that was created and deleted entirely offline. Returns true when the
// delete itself should not be enqueued. Callers must hold the lock.
func (s *Service) coalesceDelete(ctx context.Context, del *mutation.Mutation) bool {
	pendingCreate := false
	for _, item := range s.items {
		if item.Resource == del.Resource && item.EntityKey == del.EntityKey &&
			item.Op == mutation.OpCreate && item.Eligible() && item.ID != s.inFlight {
			pendingCreate = true
			break
		}
	}

	if !pendingCreate {
		return false
	}

	kept := s.items[:0]
	for _, item := range s.items {
		if item.Resource == del.Resource && item.EntityKey == del.EntityKey && item.ID != s.inFlight {
			s.recorder.RecordMutation(ctx, item, audit.EventCoalesced,
				fmt.Sprintf("dropped by %s", del.Description()))
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept

	s.replaceStore(ctx)

	// The entity was created and destroyed entirely offline; nothing in its
	// patch journal can ever be reverted or reconciled now
	s.cache.Invalidate(del.Resource, del.EntityKey)

	s.publishQueueUpdated()

	s.logger.Debug("Coalesced delete against pending create",
		"resource", del.Resource, "entity", del.EntityKey)
	return true
}

// Items returns a snapshot of the whole queue in FIFO order
func (s *Service) Items() []*mutation.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.items)
}

// Pending returns a snapshot of the items eligible for automatic runs,
// in FIFO order
func (s *Service) Pending() []*mutation.Mutation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*mutation.Mutation
	for _, item := range s.items {
		if item.Eligible() {
			out = append(out, item.Clone())
		}
	}
	return out
}

// Get returns a snapshot of one queued mutation
func (s *Service) Get(id string) (*mutation.Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(id)
	if item == nil {
		return nil, ErrMutationNotFound
	}
	return item.Clone(), nil
}

// Cancel removes a pending or terminally failed mutation and reverts its
// optimistic cache patch. A mutation currently being replayed cannot be
// cancelled; its in-flight call may already have been accepted server-side.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(id)
	if item == nil {
		return ErrMutationNotFound
	}
	if id == s.inFlight {
		return ErrMutationInFlight
	}

	kept := s.items[:0]
	for _, it := range s.items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	s.items = kept

	if !s.degraded {
		if err := s.store.Remove(ctx, id); err != nil {
			s.degrade(err)
		}
	}

	s.cache.Revert(item.Resource, item.EntityKey, item.ID)

	event := audit.EventCancelled
	if item.Status == mutation.StatusFailed {
		event = audit.EventDiscarded
	}
	s.recorder.RecordMutation(ctx, item, event, item.Description())
	s.publishQueueUpdated()

	s.logger.Debug("Cancelled mutation", "id", id, "resource", item.Resource)
	return nil
}

// Retry resets a terminally failed mutation back to pending with a fresh
// retry budget, making it eligible for the next run
func (s *Service) Retry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(id)
	if item == nil {
		return ErrMutationNotFound
	}
	if !item.Terminal() {
		return fmt.Errorf("mutation %s is not terminally failed", id)
	}

	item.Status = mutation.StatusPending
	item.RetryCount = 0
	item.LastError = ""
	item.FailureKind = ""
	item.NextAttemptAt = time.Time{}
	item.UpdatedAt = time.Now().UTC()

	s.updateStore(ctx, item)
	s.recorder.RecordMutation(ctx, item, audit.EventRetried, item.Description())
	s.publishQueueUpdated()

	s.logger.Debug("Reset mutation for retry", "id", id)
	return nil
}

// BeginAttempt marks a mutation as in flight so cancel and coalescing leave
// it alone while the backend call is outstanding
func (s *Service) BeginAttempt(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.find(id) == nil {
		return ErrMutationNotFound
	}
	s.inFlight = id
	return nil
}

// EndAttempt clears the in-flight marker
func (s *Service) EndAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = ""
}

// MarkSucceeded removes a mutation whose replay the backend confirmed
func (s *Service) MarkSucceeded(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(id)
	if item == nil {
		return ErrMutationNotFound
	}

	kept := s.items[:0]
	for _, it := range s.items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	s.items = kept

	if !s.degraded {
		if err := s.store.Remove(ctx, id); err != nil {
			s.degrade(err)
		}
	}

	s.recorder.RecordMutation(ctx, item, audit.EventReplayed, item.Description())
	s.publishQueueUpdated()
	return nil
}

// RecordFailure attaches a failed replay attempt to a mutation. Transient
// failures increment the retry count and leave the mutation pending until
// the budget runs out; every other kind is terminal immediately.
// nextAttempt delays the mutation's next automatic attempt and may be zero.
// The updated snapshot is returned.
func (s *Service) RecordFailure(ctx context.Context, id string, kind mutation.FailureKind, cause error, nextAttempt time.Time) (*mutation.Mutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.find(id)
	if item == nil {
		return nil, ErrMutationNotFound
	}

	item.LastError = cause.Error()
	item.FailureKind = kind
	item.UpdatedAt = time.Now().UTC()
	item.NextAttemptAt = time.Time{}

	switch {
	case kind.Terminal():
		item.Status = mutation.StatusFailed

	default:
		item.RetryCount++
		if item.RetryCount >= s.maxRetries {
			item.Status = mutation.StatusFailed
			item.FailureKind = mutation.FailureExhausted
		} else {
			item.NextAttemptAt = nextAttempt
		}
	}

	s.updateStore(ctx, item)
	s.recorder.RecordMutation(ctx, item, audit.EventFailed,
		fmt.Sprintf("%s: %s", item.FailureKind, item.LastError))
	s.publishQueueUpdated()

	s.logger.Debug("Recorded replay failure",
		"id", id, "kind", string(item.FailureKind), "retries", item.RetryCount, "terminal", item.Terminal())
	return item.Clone(), nil
}

// find returns the live item with the given ID. Callers must hold the lock.
func (s *Service) find(id string) *mutation.Mutation {
	for _, item := range s.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// updateStore mirrors an in-place item change to the durable store.
// Callers must hold the lock.
func (s *Service) updateStore(ctx context.Context, item *mutation.Mutation) {
	if s.degraded {
		return
	}
	if err := s.store.Update(ctx, item); err != nil {
		s.degrade(err)
	}
}

// replaceStore mirrors a bulk rewrite to the durable store. Callers must
// hold the lock.
func (s *Service) replaceStore(ctx context.Context) {
	if s.degraded {
		return
	}
	if err := s.store.Replace(ctx, s.items); err != nil {
		s.degrade(err)
	}
}

// degrade flips the session into memory-only mode and reports it once.
// Callers must hold the lock.
func (s *Service) degrade(err error) {
	s.degraded = true
	s.logger.Warn("Queue store write failed, session is memory-only from here on", "error", err)
	s.bus.Publish(events.TopicStoreWarning,
		fmt.Sprintf("queue store write failed, changes will not survive a restart: %v", err))
}

// publishQueueUpdated emits the current snapshot. Callers must hold the
// lock; the bus delivers synchronously so observers see the queue exactly
// as this change left it.
func (s *Service) publishQueueUpdated() {
	s.bus.Publish(events.TopicQueueUpdated, cloneAll(s.items))
}

// resolveEntityKey extracts the logical entity identity from the payload.
// Creates without an id get a client-generated one injected so later
// updates and deletes of the optimistic record can reference it.
func resolveEntityKey(op mutation.Operation, payload json.RawMessage) (string, json.RawMessage, error) {
	if id, ok := mutation.PayloadID(payload); ok {
		return id, payload, nil
	}

	if op != mutation.OpCreate {
		return "", nil, fmt.Errorf("%s payload must carry the target entity id", op)
	}

	id := ulid.EntityID()
	payload, err := mutation.WithPayloadID(payload, id)
	if err != nil {
		return "", nil, err
	}
	return id, payload, nil
}
