package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tildaslashalef/driftq/internal/loggy"
	"github.com/tildaslashalef/driftq/internal/mutation"
)

func newTestStore() *Store {
	return NewStore(loggy.NewNoopLogger())
}

func getRecord(t *testing.T, s *Store, resource, key string) map[string]any {
	t.Helper()

	raw, ok := s.Get(resource, key)
	require.True(t, ok, "expected %s/%s to be cached", resource, key)

	var record map[string]any
	require.NoError(t, json.Unmarshal(raw, &record))
	return record
}

func TestSetGet(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1","title":"hello"}`))

	record := getRecord(t, s, "note", "n-1")
	assert.Equal(t, "hello", record["title"])

	// Get returns a copy, mutating it must not touch the cache
	raw, _ := s.Get("note", "n-1")
	raw[2] = 'x'
	record = getRecord(t, s, "note", "n-1")
	assert.Equal(t, "n-1", record["id"])

	_, ok := s.Get("note", "missing")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1"}`))
	s.Invalidate("note", "n-1")

	_, ok := s.Get("note", "n-1")
	assert.False(t, ok)

	// Invalidating an absent key is a no-op
	s.Invalidate("note", "n-1")
}

func TestPatchOptimisticCreate(t *testing.T) {
	s := newTestStore()

	err := s.PatchOptimistic("note", mutation.OpCreate, "n-1", "mut-1", json.RawMessage(`{"id":"n-1","title":"draft"}`))
	require.NoError(t, err)

	record := getRecord(t, s, "note", "n-1")
	assert.Equal(t, "draft", record["title"])
}

func TestPatchOptimisticUpdateMerges(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1","title":"old","body":"text"}`))

	err := s.PatchOptimistic("note", mutation.OpUpdate, "n-1", "mut-1", json.RawMessage(`{"title":"new"}`))
	require.NoError(t, err)

	record := getRecord(t, s, "note", "n-1")
	assert.Equal(t, "new", record["title"])
	assert.Equal(t, "text", record["body"], "unpatched fields must survive the merge")
}

func TestPatchOptimisticUpdateMissingRecord(t *testing.T) {
	s := newTestStore()

	// An update against an uncached entity stores the patch as the record
	err := s.PatchOptimistic("note", mutation.OpUpdate, "n-1", "mut-1", json.RawMessage(`{"title":"new"}`))
	require.NoError(t, err)

	record := getRecord(t, s, "note", "n-1")
	assert.Equal(t, "new", record["title"])
}

func TestPatchOptimisticDelete(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1"}`))

	err := s.PatchOptimistic("note", mutation.OpDelete, "n-1", "mut-1", nil)
	require.NoError(t, err)

	_, ok := s.Get("note", "n-1")
	assert.False(t, ok, "deleted record must disappear from the cached view")
}

func TestPatchOptimisticBadPatch(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1"}`))

	err := s.PatchOptimistic("note", mutation.OpUpdate, "n-1", "mut-1", json.RawMessage(`[not an object]`))
	require.Error(t, err)

	// Failed patch leaves no journal entry behind
	s.Revert("note", "n-1", "mut-1")
	record := getRecord(t, s, "note", "n-1")
	assert.Equal(t, "n-1", record["id"])
}

func TestRevertRestoresPreviousState(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1","title":"original"}`))

	require.NoError(t, s.PatchOptimistic("note", mutation.OpUpdate, "n-1", "mut-1", json.RawMessage(`{"title":"patched"}`)))
	assert.Equal(t, "patched", getRecord(t, s, "note", "n-1")["title"])

	s.Revert("note", "n-1", "mut-1")
	assert.Equal(t, "original", getRecord(t, s, "note", "n-1")["title"])
}

func TestRevertRestoresAbsence(t *testing.T) {
	s := newTestStore()

	// Optimistic create on a previously unknown entity
	require.NoError(t, s.PatchOptimistic("note", mutation.OpCreate, "n-1", "mut-1", json.RawMessage(`{"id":"n-1"}`)))

	s.Revert("note", "n-1", "mut-1")

	_, ok := s.Get("note", "n-1")
	assert.False(t, ok, "reverting a create must remove the record")
}

func TestRevertNewestFirst(t *testing.T) {
	s := newTestStore()

	require.NoError(t, s.PatchOptimistic("note", mutation.OpCreate, "n-1", "mut-1", json.RawMessage(`{"id":"n-1","v":1}`)))
	require.NoError(t, s.PatchOptimistic("note", mutation.OpUpdate, "n-1", "mut-2", json.RawMessage(`{"v":2}`)))
	require.NoError(t, s.PatchOptimistic("note", mutation.OpUpdate, "n-1", "mut-3", json.RawMessage(`{"v":3}`)))

	assert.Equal(t, float64(3), getRecord(t, s, "note", "n-1")["v"])

	s.Revert("note", "n-1", "mut-3")
	assert.Equal(t, float64(2), getRecord(t, s, "note", "n-1")["v"])

	s.Revert("note", "n-1", "mut-2")
	assert.Equal(t, float64(1), getRecord(t, s, "note", "n-1")["v"])

	s.Revert("note", "n-1", "mut-1")
	_, ok := s.Get("note", "n-1")
	assert.False(t, ok)
}

func TestRevertMidQueueKeepsLaterPatches(t *testing.T) {
	s := newTestStore()

	s.Set("pilots", "p-1", json.RawMessage(`{"status":"grounded","note":"none"}`))

	require.NoError(t, s.PatchOptimistic("pilots", mutation.OpUpdate, "p-1", "mut-a", json.RawMessage(`{"status":"active"}`)))
	require.NoError(t, s.PatchOptimistic("pilots", mutation.OpUpdate, "p-1", "mut-b", json.RawMessage(`{"note":"late"}`)))

	// Reverting the older patch must not disturb the newer one
	s.Revert("pilots", "p-1", "mut-a")

	record := getRecord(t, s, "pilots", "p-1")
	assert.Equal(t, "grounded", record["status"], "the reverted update's effect must be gone")
	assert.Equal(t, "late", record["note"], "the still-journaled update's effect must survive")

	// The remaining entry now rewinds against the corrected base
	s.Revert("pilots", "p-1", "mut-b")
	record = getRecord(t, s, "pilots", "p-1")
	assert.Equal(t, "grounded", record["status"])
	assert.Equal(t, "none", record["note"])
}

func TestRevertMidQueueCreateThenUpdates(t *testing.T) {
	s := newTestStore()

	require.NoError(t, s.PatchOptimistic("pilots", mutation.OpCreate, "p-1", "mut-a", json.RawMessage(`{"id":"p-1","rank":"fo"}`)))
	require.NoError(t, s.PatchOptimistic("pilots", mutation.OpUpdate, "p-1", "mut-b", json.RawMessage(`{"rank":"capt"}`)))

	// Reverting the create rewinds to absence, the update replays as the record
	s.Revert("pilots", "p-1", "mut-a")

	record := getRecord(t, s, "pilots", "p-1")
	assert.Equal(t, "capt", record["rank"])

	s.Revert("pilots", "p-1", "mut-b")
	_, ok := s.Get("pilots", "p-1")
	assert.False(t, ok)
}

func TestRevertUnknownMutation(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1"}`))

	// No patch happened, revert must leave the record alone
	s.Revert("note", "n-1", "mut-ghost")

	_, ok := s.Get("note", "n-1")
	assert.True(t, ok)
}

func TestReconcileAppliesServerState(t *testing.T) {
	s := newTestStore()

	require.NoError(t, s.PatchOptimistic("note", mutation.OpCreate, "n-1", "mut-1", json.RawMessage(`{"id":"n-1","title":"local"}`)))

	s.Reconcile("note", mutation.ServerRecord{
		ID:        "n-1",
		Resource:  "note",
		Data:      json.RawMessage(`{"id":"n-1","title":"server","rev":7}`),
		UpdatedAt: time.Now().UTC(),
	})

	record := getRecord(t, s, "note", "n-1")
	assert.Equal(t, "server", record["title"])
	assert.Equal(t, float64(7), record["rev"])

	// Server state is authoritative, the optimistic journal is gone
	s.Revert("note", "n-1", "mut-1")
	assert.Equal(t, "server", getRecord(t, s, "note", "n-1")["title"])
}

func TestReconcileDeletion(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{"id":"n-1"}`))

	s.Reconcile("note", mutation.ServerRecord{ID: "n-1", Resource: "note"})

	_, ok := s.Get("note", "n-1")
	assert.False(t, ok)
}

func TestKeys(t *testing.T) {
	s := newTestStore()

	s.Set("note", "n-1", json.RawMessage(`{}`))
	s.Set("note", "n-2", json.RawMessage(`{}`))
	s.Set("task", "t-1", json.RawMessage(`{}`))

	assert.ElementsMatch(t, []string{"n-1", "n-2"}, s.Keys("note"))
	assert.ElementsMatch(t, []string{"t-1"}, s.Keys("task"))
	assert.Empty(t, s.Keys("unknown"))
}
