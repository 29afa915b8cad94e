package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInsertSearch(t *testing.T) {
	m := NewManager(t.TempDir())
	m.CreateIndex("name", 2)
	m.CreateIndex("name", 2) // idempotent

	m.Insert("name", "Alice", []byte(`{"id":1,"name":"Alice"}`))
	m.Insert("name", "Alice", []byte(`{"id":3,"name":"Alice"}`))
	m.Insert("name", "Bob", []byte(`{"id":2,"name":"Bob"}`))

	got := m.Search("name", "Alice")
	assert.Len(t, got, 2)

	assert.Empty(t, m.Search("age", "30")) // unindexed field

	metrics := m.Metrics()["name"]
	assert.Equal(t, uint64(4), metrics.AccessCount)
	assert.Equal(t, uint64(2), metrics.ValueDistribution["Alice"])
}

func TestInsertOnUnknownFieldIsNoop(t *testing.T) {
	m := NewManager(t.TempDir())
	m.Insert("missing", "k", []byte("v")) // must not panic
	assert.Empty(t, m.List())
}

func TestUpsertExtractsFieldFromDocument(t *testing.T) {
	m := NewManager(t.TempDir())
	doc := []byte(`{"id":1,"category":"A"}`)

	require.NoError(t, m.Upsert("category", doc))
	assert.Equal(t, [][]byte{doc}, m.Search("category", "A"))
}

func TestPersistLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.CreateIndex("name", 2)
	m.Insert("name", "Alice", []byte("a1"))
	m.Insert("name", "Bob", []byte("b1"))

	require.NoError(t, m.Persist())

	loaded := NewManager(dir)
	require.NoError(t, loaded.Load([]string{"name"}, 2))

	assert.Equal(t, m.Search("name", "Alice"), loaded.Search("name", "Alice"))
	assert.Equal(t, m.Counts(), loaded.Counts())
}

func TestDropRemovesIndex(t *testing.T) {
	m := NewManager(t.TempDir())
	m.CreateIndex("name", 2)
	m.Insert("name", "Alice", []byte("a1"))
	m.Drop("name")
	assert.Empty(t, m.List())
	assert.Empty(t, m.Search("name", "Alice"))
}
