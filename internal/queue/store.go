// Package queue implements the durable offline mutation queue: a FIFO of
// pending mutations persisted as a single namespaced JSON envelope.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
)

var (
	// ErrCorruptState is returned when the persisted queue cannot be decoded
	ErrCorruptState = errors.New("persisted queue state is corrupt")
)

// Store persists the ordered mutation list between sessions
type Store interface {
	// Load returns the persisted queue in FIFO order. A missing key yields
	// an empty queue.
	Load(ctx context.Context) ([]*mutation.Mutation, error)

	// Append adds a mutation to the tail and returns the updated list
	Append(ctx context.Context, m *mutation.Mutation) ([]*mutation.Mutation, error)

	// Remove drops a mutation by ID. Removing an absent ID is a no-op.
	Remove(ctx context.Context, id string) error

	// Update replaces the stored mutation with the same ID. Updating an
	// absent ID is a no-op.
	Update(ctx context.Context, m *mutation.Mutation) error

	// Replace overwrites the whole queue with the given items
	Replace(ctx context.Context, items []*mutation.Mutation) error
}

// SQLStore keeps the queue as one JSON envelope in the queue_state table,
// under the key queue:<namespace>
type SQLStore struct {
	db        *sql.DB
	namespace string
	logger    *loggy.Logger
}

// NewSQLStore creates a store for the given namespace
func NewSQLStore(db *sql.DB, namespace string, logger *loggy.Logger) *SQLStore {
	return &SQLStore{
		db:        db,
		namespace: namespace,
		logger:    logger,
	}
}

// Key returns the namespaced key the queue is stored under
func (s *SQLStore) Key() string {
	return "queue:" + s.namespace
}

// Load returns the persisted queue in FIFO order
func (s *SQLStore) Load(ctx context.Context) ([]*mutation.Mutation, error) {
	items, err := s.load(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Append adds a mutation to the tail and returns the updated list
func (s *SQLStore) Append(ctx context.Context, m *mutation.Mutation) ([]*mutation.Mutation, error) {
	var items []*mutation.Mutation

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		items, _, err = s.loadForWrite(ctx, tx)
		if err != nil {
			return err
		}

		items = append(items, m)
		return s.save(ctx, tx, items)
	})
	if err != nil {
		return nil, err
	}

	return items, nil
}

// Remove drops a mutation by ID, preserving the order of the rest
func (s *SQLStore) Remove(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		items, corrupt, err := s.loadForWrite(ctx, tx)
		if err != nil {
			return err
		}

		kept := items[:0]
		for _, item := range items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}

		if len(kept) == len(items) && !corrupt {
			// Absent ID, nothing to persist
			return nil
		}

		return s.save(ctx, tx, kept)
	})
}

// Update replaces the stored mutation with the same ID
func (s *SQLStore) Update(ctx context.Context, m *mutation.Mutation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		items, corrupt, err := s.loadForWrite(ctx, tx)
		if err != nil {
			return err
		}

		found := false
		for i, item := range items {
			if item.ID == m.ID {
				items[i] = m
				found = true
				break
			}
		}

		if !found && !corrupt {
			// Absent ID, nothing to persist
			return nil
		}

		return s.save(ctx, tx, items)
	})
}

// Replace overwrites the whole queue
func (s *SQLStore) Replace(ctx context.Context, items []*mutation.Mutation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.save(ctx, tx, items)
	})
}

// querier abstracts *sql.DB and *sql.Tx for reads
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// load reads and decodes the envelope
func (s *SQLStore) load(ctx context.Context, q querier) ([]*mutation.Mutation, error) {
	query, args, err := squirrel.Select("payload").
		From("queue_state").
		Where(squirrel.Eq{"key": s.Key()}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building load query: %w", err)
	}

	var payload string
	err = q.QueryRowContext(ctx, query, args...).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return []*mutation.Mutation{}, nil
		}
		return nil, fmt.Errorf("executing load query: %w", err)
	}

	var env mutation.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	if env.SchemaVersion != mutation.SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", ErrCorruptState, env.SchemaVersion)
	}

	if env.Items == nil {
		env.Items = []*mutation.Mutation{}
	}

	return env.Items, nil
}

// loadForWrite reads the envelope for a read-modify-write cycle. A corrupt
// envelope is treated as an empty queue so the write that follows replaces
// it, mirroring Load's treat-as-empty recovery instead of wedging every
// write for the rest of the session.
func (s *SQLStore) loadForWrite(ctx context.Context, q querier) ([]*mutation.Mutation, bool, error) {
	items, err := s.load(ctx, q)
	if err == nil {
		return items, false, nil
	}
	if errors.Is(err, ErrCorruptState) {
		s.logger.Warn("Persisted queue is corrupt, replacing it on this write", "key", s.Key(), "error", err)
		return []*mutation.Mutation{}, true, nil
	}
	return nil, false, err
}

// save encodes and upserts the envelope
func (s *SQLStore) save(ctx context.Context, tx *sql.Tx, items []*mutation.Mutation) error {
	payload, err := json.Marshal(mutation.NewEnvelope(items))
	if err != nil {
		return fmt.Errorf("encoding queue envelope: %w", err)
	}

	now := time.Now().UTC()

	var exists int
	query, args, err := squirrel.Select("COUNT(1)").
		From("queue_state").
		Where(squirrel.Eq{"key": s.Key()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building existence query: %w", err)
	}

	if err := tx.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return fmt.Errorf("checking for existing queue state: %w", err)
	}

	if exists == 0 {
		query, args, err = squirrel.Insert("queue_state").
			Columns("key", "payload", "updated_at").
			Values(s.Key(), string(payload), now).
			ToSql()
	} else {
		query, args, err = squirrel.Update("queue_state").
			Set("payload", string(payload)).
			Set("updated_at", now).
			Where(squirrel.Eq{"key": s.Key()}).
			ToSql()
	}
	if err != nil {
		return fmt.Errorf("building save query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing save query: %w", err)
	}

	return nil
}

// withTx runs fn inside a transaction
func (s *SQLStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	return tx.Commit()
}

// txQuerier adapts *sql.Tx to the querier interface
var _ querier = (*sql.Tx)(nil)
var _ querier = (*sql.DB)(nil)

// MemoryStore is an in-memory Store for tests and memory-only sessions
type MemoryStore struct {
	items []*mutation.Mutation
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: []*mutation.Mutation{}}
}

// Load returns the stored queue
func (s *MemoryStore) Load(ctx context.Context) ([]*mutation.Mutation, error) {
	return cloneAll(s.items), nil
}

// Append adds a mutation to the tail
func (s *MemoryStore) Append(ctx context.Context, m *mutation.Mutation) ([]*mutation.Mutation, error) {
	s.items = append(s.items, m.Clone())
	return cloneAll(s.items), nil
}

// Remove drops a mutation by ID
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	kept := s.items[:0]
	for _, item := range s.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	s.items = kept
	return nil
}

// Update replaces the stored mutation with the same ID
func (s *MemoryStore) Update(ctx context.Context, m *mutation.Mutation) error {
	for i, item := range s.items {
		if item.ID == m.ID {
			s.items[i] = m.Clone()
			break
		}
	}
	return nil
}

// Replace overwrites the whole queue
func (s *MemoryStore) Replace(ctx context.Context, items []*mutation.Mutation) error {
	s.items = cloneAll(items)
	return nil
}

func cloneAll(items []*mutation.Mutation) []*mutation.Mutation {
	out := make([]*mutation.Mutation, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}
