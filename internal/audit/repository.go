package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/tildaslashalef/driftq/internal/loggy"
)

// Repository defines operations for persisting audit entries
type Repository interface {
	// Insert persists one entry
	Insert(ctx context.Context, entry *Entry) error

	// List returns the most recent entries, newest first
	List(ctx context.Context, limit int) ([]*Entry, error)

	// ListByMutation returns every entry for one mutation, oldest first
	ListByMutation(ctx context.Context, mutationID string) ([]*Entry, error)
}

// SQLRepository implements Repository using a SQL database
type SQLRepository struct {
	db     *sql.DB
	logger *loggy.Logger
}

// NewSQLRepository creates a new SQL audit repository
func NewSQLRepository(db *sql.DB, logger *loggy.Logger) Repository {
	return &SQLRepository{
		db:     db,
		logger: logger,
	}
}

// Insert persists one entry
func (r *SQLRepository) Insert(ctx context.Context, entry *Entry) error {
	q := squirrel.Insert("audit_logs").
		Columns("id", "mutation_id", "resource", "operation", "entity_key", "event", "detail", "client", "created_at").
		Values(entry.ID, entry.MutationID, entry.Resource, entry.Operation, entry.EntityKey,
			string(entry.Event), entry.Detail, entry.Client, entry.CreatedAt)

	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("building insert audit query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("executing insert audit query: %w", err)
	}

	return nil
}

// List returns the most recent entries, newest first
func (r *SQLRepository) List(ctx context.Context, limit int) ([]*Entry, error) {
	q := squirrel.Select("id", "mutation_id", "resource", "operation", "entity_key", "event", "detail", "client", "created_at").
		From("audit_logs").
		OrderBy("created_at DESC", "id DESC")

	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	return r.queryEntries(ctx, q)
}

// ListByMutation returns every entry for one mutation, oldest first
func (r *SQLRepository) ListByMutation(ctx context.Context, mutationID string) ([]*Entry, error) {
	q := squirrel.Select("id", "mutation_id", "resource", "operation", "entity_key", "event", "detail", "client", "created_at").
		From("audit_logs").
		Where(squirrel.Eq{"mutation_id": mutationID}).
		OrderBy("created_at ASC", "id ASC")

	return r.queryEntries(ctx, q)
}

// queryEntries executes a select and scans the rows into entries
func (r *SQLRepository) queryEntries(ctx context.Context, q squirrel.SelectBuilder) ([]*Entry, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing audit query: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var event string
		err := rows.Scan(&entry.ID, &entry.MutationID, &entry.Resource, &entry.Operation,
			&entry.EntityKey, &event, &entry.Detail, &entry.Client, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		entry.Event = Event(event)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}

	return entries, nil
}
