// Package cache holds the client's local view of resource records. The
// queue patches it optimistically at enqueue time and the syncer reconciles
// it with authoritative server records after replay.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
)

// patchEntry records one applied optimistic patch together with the entity
// state it replaced, keyed by the mutation that caused it. Reverting a
// mutation restores its prior state and replays the entries behind it.
type patchEntry struct {
	mutationID string
	op         mutation.Operation
	payload    json.RawMessage
	prior      json.RawMessage
	existed    bool
}

// Store is an in-memory record cache keyed by resource and entity key
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]json.RawMessage
	journal map[string]map[string][]patchEntry
	logger  *loggy.Logger
}

// NewStore creates an empty cache
func NewStore(logger *loggy.Logger) *Store {
	return &Store{
		records: make(map[string]map[string]json.RawMessage),
		journal: make(map[string]map[string][]patchEntry),
		logger:  logger,
	}
}

// Set stores a record
func (s *Store) Set(resource, key string, record json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(resource, key, record)
}

// Get returns a copy of a cached record
func (s *Store) Get(resource, key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[resource][key]
	if !ok {
		return nil, false
	}

	out := make(json.RawMessage, len(record))
	copy(out, record)
	return out, true
}

// Invalidate drops a record and its patch journal
func (s *Store) Invalidate(resource, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[resource], key)
	delete(s.journal[resource], key)
}

// Keys returns the cached entity keys for a resource
func (s *Store) Keys(resource string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.records[resource]))
	for k := range s.records[resource] {
		keys = append(keys, k)
	}
	return keys
}

// PatchOptimistic applies a mutation's effect to the cached view before the
// mutation is persisted or replayed. The patch is journaled under the
// mutation's ID so Revert can undo exactly this mutation later.
func (s *Store) PatchOptimistic(resource string, op mutation.Operation, key, mutationID string, payload json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := patchEntry{mutationID: mutationID, op: op}
	if len(payload) > 0 {
		entry.payload = make(json.RawMessage, len(payload))
		copy(entry.payload, payload)
	}
	if record, ok := s.records[resource][key]; ok {
		entry.existed = true
		entry.prior = make(json.RawMessage, len(record))
		copy(entry.prior, record)
	}

	if err := s.apply(resource, key, op, payload); err != nil {
		return fmt.Errorf("patching %s/%s: %w", resource, key, err)
	}

	if s.journal[resource] == nil {
		s.journal[resource] = make(map[string][]patchEntry)
	}
	s.journal[resource][key] = append(s.journal[resource][key], entry)

	s.logger.Debug("Applied optimistic patch", "resource", resource, "key", key, "op", string(op), "mutation", mutationID)
	return nil
}

// Revert undoes the optimistic patch journaled for one mutation. Patches
// applied after it are replayed on top, so cancelling a mid-queue mutation
// leaves the effects of still-queued mutations intact.
func (s *Store) Revert(resource, key, mutationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stack := s.journal[resource][key]
	idx := -1
	for i, e := range stack {
		if e.mutationID == mutationID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.logger.Warn("No journal entry to revert", "resource", resource, "key", key, "mutation", mutationID)
		return
	}

	// Rewind to the state the reverted patch replaced
	if stack[idx].existed {
		s.set(resource, key, stack[idx].prior)
	} else {
		delete(s.records[resource], key)
	}

	// Replay the later patches on top, re-journaling their prior state
	// against the rewound view
	for i := idx + 1; i < len(stack); i++ {
		record, existed := s.records[resource][key]
		stack[i].existed = existed
		stack[i].prior = nil
		if existed {
			stack[i].prior = make(json.RawMessage, len(record))
			copy(stack[i].prior, record)
		}

		if err := s.apply(resource, key, stack[i].op, stack[i].payload); err != nil {
			s.logger.Warn("Could not replay patch during revert",
				"resource", resource, "key", key, "mutation", stack[i].mutationID, "error", err)
		}
	}

	s.journal[resource][key] = append(stack[:idx], stack[idx+1:]...)

	s.logger.Debug("Reverted optimistic patch", "resource", resource, "key", key, "mutation", mutationID)
}

// Reconcile replaces the cached record with the server's authoritative
// state after a successful replay and clears the patch journal for it
func (s *Store) Reconcile(resource string, record mutation.ServerRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(record.Data) == 0 {
		// Server confirmed a deletion
		delete(s.records[resource], record.ID)
	} else {
		s.set(resource, record.ID, record.Data)
	}

	// Server state is authoritative now, optimistic history is obsolete
	delete(s.journal[resource], record.ID)

	s.logger.Debug("Reconciled record", "resource", resource, "key", record.ID)
}

// apply mutates the cached view for one operation. Callers must hold the
// write lock.
func (s *Store) apply(resource, key string, op mutation.Operation, payload json.RawMessage) error {
	switch op {
	case mutation.OpCreate:
		s.set(resource, key, payload)

	case mutation.OpUpdate:
		merged, err := mergeRecords(s.records[resource][key], payload)
		if err != nil {
			return err
		}
		s.set(resource, key, merged)

	case mutation.OpDelete:
		delete(s.records[resource], key)

	default:
		return fmt.Errorf("unknown operation: %q", op)
	}
	return nil
}

// set stores a defensive copy. Callers must hold the write lock.
func (s *Store) set(resource, key string, record json.RawMessage) {
	if s.records[resource] == nil {
		s.records[resource] = make(map[string]json.RawMessage)
	}

	stored := make(json.RawMessage, len(record))
	copy(stored, record)
	s.records[resource][key] = stored
}

// mergeRecords overlays patch fields onto an existing JSON object. A patch
// against a missing record becomes the record itself.
func mergeRecords(existing, patch json.RawMessage) (json.RawMessage, error) {
	if len(existing) == 0 {
		out := make(json.RawMessage, len(patch))
		copy(out, patch)
		return out, nil
	}

	base := make(map[string]json.RawMessage)
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, fmt.Errorf("cached record is not a JSON object: %w", err)
	}

	overlay := make(map[string]json.RawMessage)
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, fmt.Errorf("patch is not a JSON object: %w", err)
	}

	for k, v := range overlay {
		base[k] = v
	}

	return json.Marshal(base)
}
