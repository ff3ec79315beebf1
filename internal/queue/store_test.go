package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
)

// newSQLiteStore opens a throwaway in-memory database with the queue_state
// table for tests that need real transaction and upsert behavior
func newSQLiteStore(t *testing.T) (*SQLStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err, "Failed to open in-memory database")
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE queue_state (
		key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	require.NoError(t, err)

	return NewSQLStore(db, "pilot-records", loggy.NewNoopLogger()), db
}

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create mock database")
	t.Cleanup(func() { db.Close() })

	return NewSQLStore(db, "pilot-records", loggy.NewNoopLogger()), mock
}

func TestSQLStoreKey(t *testing.T) {
	store, _ := newMockStore(t)
	assert.Equal(t, "queue:pilot-records", store.Key())
}

func TestSQLStoreLoadEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT payload FROM queue_state").
		WithArgs(store.Key()).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	items, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoadRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)

	m := mutation.New("pilots", mutation.OpUpdate, "P1", json.RawMessage(`{"id":"P1","status":"active"}`))
	m.RetryCount = 2
	m.LastError = "connection refused"
	m.FailureKind = mutation.FailureTransient

	envelope, err := json.Marshal(mutation.NewEnvelope([]*mutation.Mutation{m}))
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM queue_state").
		WithArgs(store.Key()).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(envelope)))

	items, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	// Every field survives the serialize/deserialize round trip
	assert.Equal(t, m.ID, items[0].ID)
	assert.Equal(t, m.EntityKey, items[0].EntityKey)
	assert.Equal(t, 2, items[0].RetryCount)
	assert.Equal(t, "connection refused", items[0].LastError)
	assert.Equal(t, mutation.FailureTransient, items[0].FailureKind)
	assert.JSONEq(t, string(m.Payload), string(items[0].Payload))
	assert.True(t, m.CreatedAt.Equal(items[0].CreatedAt))
}

func TestSQLStoreLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "{{{"},
		{name: "newer schema version", payload: `{"schema_version":99,"items":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)

			mock.ExpectQuery("SELECT payload FROM queue_state").
				WithArgs(store.Key()).
				WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(tt.payload))

			_, err := store.Load(context.Background())
			assert.ErrorIs(t, err, ErrCorruptState)
		})
	}
}

func TestSQLStoreAppendInsertsEnvelope(t *testing.T) {
	store, mock := newMockStore(t)

	m := mutation.New("pilots", mutation.OpCreate, "P1", json.RawMessage(`{"id":"P1"}`))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT payload FROM queue_state").
		WithArgs(store.Key()).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))
	mock.ExpectQuery("SELECT COUNT").
		WithArgs(store.Key()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO queue_state").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items, err := store.Append(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, m.ID, items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreRemoveAbsentIsNoop(t *testing.T) {
	store, mock := newMockStore(t)

	m := mutation.New("pilots", mutation.OpCreate, "P1", json.RawMessage(`{"id":"P1"}`))
	envelope, err := json.Marshal(mutation.NewEnvelope([]*mutation.Mutation{m}))
	require.NoError(t, err)

	// No UPDATE is issued when the ID is not in the envelope
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT payload FROM queue_state").
		WithArgs(store.Key()).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(envelope)))
	mock.ExpectCommit()

	require.NoError(t, store.Remove(context.Background(), "mut-absent"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreAppendReplacesCorruptEnvelope(t *testing.T) {
	store, db := newSQLiteStore(t)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO queue_state (key, payload, updated_at) VALUES (?, ?, ?)`,
		store.Key(), "{not json", time.Now().UTC())
	require.NoError(t, err)

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, ErrCorruptState)

	// The first append must overwrite the corrupt envelope, not fail on it
	m := mutation.New("pilots", mutation.OpCreate, "P1", json.RawMessage(`{"id":"P1"}`))
	items, err := store.Append(ctx, m)
	require.NoError(t, err)
	require.Len(t, items, 1)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, m.ID, loaded[0].ID, "appended mutation must be durable again")
}

func TestSQLStoreUpdateReplacesCorruptEnvelope(t *testing.T) {
	store, db := newSQLiteStore(t)
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO queue_state (key, payload, updated_at) VALUES (?, ?, ?)`,
		store.Key(), `{"schema_version":99,"items":[]}`, time.Now().UTC())
	require.NoError(t, err)

	// The updated ID is gone with the corrupt envelope, but the write must
	// still reset the key to a readable empty queue
	m := mutation.New("pilots", mutation.OpUpdate, "P1", json.RawMessage(`{"id":"P1"}`))
	require.NoError(t, store.Update(ctx, m))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLStoreRoundTripOnDisk(t *testing.T) {
	store, _ := newSQLiteStore(t)
	ctx := context.Background()

	first := mutation.New("pilots", mutation.OpCreate, "P1", json.RawMessage(`{"id":"P1"}`))
	second := mutation.New("pilots", mutation.OpUpdate, "P2", json.RawMessage(`{"id":"P2","status":"active"}`))

	_, err := store.Append(ctx, first)
	require.NoError(t, err)
	_, err = store.Append(ctx, second)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, first.ID))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, second.ID, loaded[0].ID)
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	m := mutation.New("pilots", mutation.OpCreate, "P1", json.RawMessage(`{"id":"P1"}`))
	_, err := store.Append(ctx, m)
	require.NoError(t, err)

	// Mutating the loaded snapshot must not leak into the store
	items, err := store.Load(ctx)
	require.NoError(t, err)
	items[0].RetryCount = 99

	again, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, again[0].RetryCount)
}
