// Package mutation defines the queued mutation model shared by the queue,
// syncer and cache packages.
package mutation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tildaslashalef/driftq/internal/ulid"
)

// SchemaVersion identifies the persisted envelope layout. Bump it when the
// serialized mutation shape changes.
const SchemaVersion = 1

// Operation is the kind of change a mutation applies to an entity
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// IsValid returns true for a known operation
func (op Operation) IsValid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Status is the replay state of a queued mutation
type Status string

const (
	// StatusPending marks a mutation eligible for the next automatic run
	StatusPending Status = "pending"

	// StatusFailed marks a terminally failed mutation. It stays queued for
	// inspection but is excluded from automatic runs until the user retries
	// or discards it.
	StatusFailed Status = "failed"
)

// FailureKind classifies why a mutation failed
type FailureKind string

const (
	// FailureTransient covers network errors, timeouts and 5xx responses.
	// Transient failures are retried up to the configured cap.
	FailureTransient FailureKind = "transient"

	// FailureValidation covers 4xx rejections. Retrying an unchanged
	// payload cannot succeed, so these are terminal immediately.
	FailureValidation FailureKind = "validation"

	// FailureConflict covers version conflicts (409). Terminal immediately.
	FailureConflict FailureKind = "conflict"

	// FailureExhausted marks a transient failure that ran out of retries.
	FailureExhausted FailureKind = "exhausted"
)

// Terminal reports whether this failure kind removes the mutation from
// automatic runs
func (k FailureKind) Terminal() bool {
	switch k {
	case FailureValidation, FailureConflict, FailureExhausted:
		return true
	}
	return false
}

// Mutation is a single queued change awaiting replay against the backend
type Mutation struct {
	ID            string          `json:"id"`
	Resource      string          `json:"resource"`
	Op            Operation       `json:"op"`
	EntityKey     string          `json:"entity_key"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        Status          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
	FailureKind   FailureKind     `json:"failure_kind,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
}

// New creates a pending mutation with a fresh ID and timestamps
func New(resource string, op Operation, entityKey string, payload json.RawMessage) *Mutation {
	now := time.Now().UTC()
	return &Mutation{
		ID:        ulid.MutationID(),
		Resource:  resource,
		Op:        op,
		EntityKey: entityKey,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the mutation is well-formed enough to enqueue
func (m *Mutation) Validate() error {
	if m.Resource == "" {
		return fmt.Errorf("mutation resource cannot be empty")
	}

	if !m.Op.IsValid() {
		return fmt.Errorf("unknown mutation operation: %q", m.Op)
	}

	if m.EntityKey == "" {
		return fmt.Errorf("mutation entity key cannot be empty")
	}

	if m.Op != OpDelete && len(m.Payload) == 0 {
		return fmt.Errorf("%s mutation requires a payload", m.Op)
	}

	return nil
}

// Terminal reports whether this mutation is terminally failed
func (m *Mutation) Terminal() bool {
	return m.Status == StatusFailed && m.FailureKind.Terminal()
}

// Eligible reports whether this mutation participates in automatic runs
func (m *Mutation) Eligible() bool {
	return m.Status == StatusPending
}

// Description returns a short human-readable label, e.g. "update note/n-42"
func (m *Mutation) Description() string {
	return fmt.Sprintf("%s %s/%s", m.Op, m.Resource, m.EntityKey)
}

// Clone returns a deep copy. Payload bytes are copied so callers cannot
// alias the queue's internal state.
func (m *Mutation) Clone() *Mutation {
	clone := *m
	if m.Payload != nil {
		clone.Payload = make(json.RawMessage, len(m.Payload))
		copy(clone.Payload, m.Payload)
	}
	return &clone
}

// PayloadID extracts the "id" field from a JSON payload, if present
func PayloadID(payload json.RawMessage) (string, bool) {
	if len(payload) == 0 {
		return "", false
	}

	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", false
	}

	return probe.ID, probe.ID != ""
}

// WithPayloadID returns a copy of the payload with its "id" field set
func WithPayloadID(payload json.RawMessage, id string) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, fmt.Errorf("payload is not a JSON object: %w", err)
		}
	}

	encoded, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	fields["id"] = encoded

	return json.Marshal(fields)
}

// ServerRecord is the backend's authoritative view of an entity after a
// mutation is accepted
type ServerRecord struct {
	ID        string          `json:"id"`
	Resource  string          `json:"resource"`
	Data      json.RawMessage `json:"data,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Envelope is the persisted queue snapshot: a schema version tag plus the
// ordered mutation list
type Envelope struct {
	SchemaVersion int         `json:"schema_version"`
	Items         []*Mutation `json:"items"`
}

// NewEnvelope wraps mutations in a current-version envelope
func NewEnvelope(items []*Mutation) *Envelope {
	if items == nil {
		items = []*Mutation{}
	}
	return &Envelope{
		SchemaVersion: SchemaVersion,
		Items:         items,
	}
}
