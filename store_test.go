package nyarudb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Voskan/nyarudb/internal/planner"
)

type testUser struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
	C    string `json:"c,omitempty"`
}

func TestInsertFetchNoPartition(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Insert(context.Background(), "Users", testUser{ID: 1, Name: "Test"}, ""))

	got, err := Fetch[testUser](context.Background(), store, "Users")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Test", got[0].Name)

	count, err := store.Count("Users")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBulkInsertPartitionedPruning(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)

	require.NoError(t, store.SetPartitionKey("Users", "c"))

	docs := []any{
		testUser{ID: 1, C: "A"},
		testUser{ID: 2, C: "B"},
		testUser{ID: 3, C: "A"},
	}
	require.NoError(t, store.BulkInsert(context.Background(), "Users", docs, ""))

	aCount, err := shardDocumentCount(filepath.Join(root, "Users", "A.nyaru.meta.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, aCount)

	bCount, err := shardDocumentCount(filepath.Join(root, "Users", "B.nyaru.meta.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, bCount)
}

func shardDocumentCount(metaPath string) (int, error) {
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return 0, err
	}
	var meta struct {
		DocumentCount int `json:"documentCount"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return 0, err
	}
	return meta.DocumentCount, nil
}

func TestIndexOnlyQuery(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	people := []testUser{{ID: 1, Name: "Alice", Age: 30}, {ID: 2, Name: "Bob", Age: 25}, {ID: 3, Name: "Alice", Age: 40}}
	for _, p := range people {
		require.NoError(t, store.Insert(context.Background(), "People", p, "name"))
	}

	plan, err := store.Explain("People", []planner.Predicate{{Field: "name", Op: planner.Equal, Value: "Alice"}})
	require.NoError(t, err)
	assert.Equal(t, planner.IndexOnly, plan.Strategy)

	got, err := Query[testUser](context.Background(), store, "People", plan.Predicates)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "Alice", p.Name)
	}
}

func TestRangeQuery(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	ages := []int{30, 25, 35, 40, 45}
	for i, age := range ages {
		require.NoError(t, store.Insert(context.Background(), "People", testUser{ID: i, Age: age}, ""))
	}

	preds := []planner.Predicate{{Field: "age", Op: planner.Between, Lo: 30.0, Hi: 40.0}}
	got, err := Query[testUser](context.Background(), store, "People", preds)
	require.NoError(t, err)

	gotAges := make([]int, 0, len(got))
	for _, p := range got {
		gotAges = append(gotAges, p.Age)
	}
	assert.ElementsMatch(t, []int{30, 35, 40}, gotAges)
}

func TestUpdateMissingFails(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = store.getOrCreateCollection("People")
	require.NoError(t, err)

	err = store.Update(context.Background(), "People",
		planner.Predicate{Field: "id", Op: planner.Equal, Value: 1.0}, testUser{ID: 1}, "")
	var notFound *UpdateDocumentNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestReopenLoadsExistingShards(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), "Users", testUser{ID: 1, Name: "Test"}, ""))
	require.NoError(t, store.Close())

	reopened, err := Open(root)
	require.NoError(t, err)
	got, err := Fetch[testUser](context.Background(), reopened, "Users")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestReopenPreservesIndexedQuery(t *testing.T) {
	root := t.TempDir()
	store, err := Open(root)
	require.NoError(t, err)

	people := []testUser{{ID: 1, Name: "Alice", Age: 30}, {ID: 2, Name: "Bob", Age: 25}}
	for _, p := range people {
		require.NoError(t, store.Insert(context.Background(), "People", p, "name"))
	}
	require.NoError(t, store.Close())

	reopened, err := Open(root)
	require.NoError(t, err)

	plan, err := reopened.Explain("People", []planner.Predicate{{Field: "name", Op: planner.Equal, Value: "Alice"}})
	require.NoError(t, err)
	assert.Equal(t, planner.IndexOnly, plan.Strategy)

	got, err := Query[testUser](context.Background(), reopened, "People", plan.Predicates)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alice", got[0].Name)

	direct, err := FetchFromIndex[testUser](reopened, "People", "name", "Bob")
	require.NoError(t, err)
	require.Len(t, direct, 1)
	assert.Equal(t, "Bob", direct[0].Name)
}

func TestRepartitionPreservesDocuments(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	docs := []any{
		testUser{ID: 1, C: "A"},
		testUser{ID: 2, C: "B"},
		testUser{ID: 3, C: "A"},
	}
	require.NoError(t, store.BulkInsert(context.Background(), "Users", docs, ""))

	require.NoError(t, store.Repartition(context.Background(), "Users", "c"))

	got, err := Fetch[testUser](context.Background(), store, "Users")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	withA, err := Query[testUser](context.Background(), store, "Users",
		[]planner.Predicate{{Field: "c", Op: planner.Equal, Value: "A"}})
	require.NoError(t, err)
	assert.Len(t, withA, 2)
}

type partialDoc struct {
	ID    int    `json:"id"`
	Maybe string `json:"maybe,omitempty"`
}

// TestRepartitionFailureResyncsLiveStore forces doRepartition to fail partway
// (one document lacks the new partition field) and asserts the same *Store,
// without reopening, still serves every original document afterwards — the
// in-memory shard registry must be resynced from the restored files, not
// just the files themselves.
func TestRepartitionFailureResyncsLiveStore(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	docs := []any{
		partialDoc{ID: 1, Maybe: "x"},
		partialDoc{ID: 2}, // no "maybe" field: forces a grouping failure
	}
	require.NoError(t, store.BulkInsert(context.Background(), "Things", docs, ""))

	err = store.Repartition(context.Background(), "Things", "maybe")
	require.Error(t, err)

	got, err := Fetch[partialDoc](context.Background(), store, "Things")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	require.NoError(t, store.Insert(context.Background(), "Things", partialDoc{ID: 3, Maybe: "y"}, ""))
	got, err = Fetch[partialDoc](context.Background(), store, "Things")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
