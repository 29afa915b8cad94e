package stats

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Voskan/nyarudb/internal/codec"
	"github.com/Voskan/nyarudb/internal/index"
	"github.com/Voskan/nyarudb/internal/shard"
)

func TestCollectionStats(t *testing.T) {
	dir := t.TempDir()
	mgr, err := shard.NewManager(dir, shard.WithCompression(codec.None))
	require.NoError(t, err)

	a, err := mgr.CreateShard("A")
	require.NoError(t, err)
	require.NoError(t, shard.SaveDocuments(a, []json.RawMessage{[]byte(`{"id":1}`), []byte(`{"id":2}`)}))

	b, err := mgr.CreateShard("B")
	require.NoError(t, err)
	require.NoError(t, shard.SaveDocuments(b, []json.RawMessage{[]byte(`{"id":3}`)}))

	stat, err := CollectionStats("Users", mgr.AllShards(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, stat.ShardCount)
	assert.Equal(t, 3, stat.DocumentCount)
	assert.Positive(t, stat.ByteSize)

	global := GlobalStats(map[string]CollectionStat{"Users": stat})
	assert.Equal(t, 1, global.Collections)
	assert.Equal(t, 3, global.Documents)
}

func TestIndexStats(t *testing.T) {
	mgr := index.NewManager(t.TempDir())
	mgr.CreateIndex("name", 2)
	mgr.Insert("name", "Alice", []byte("a1"))
	mgr.Insert("name", "Alice", []byte("a2"))
	mgr.Insert("name", "Bob", []byte("b1"))

	idxStats := IndexStats(mgr)
	stat := idxStats["name"]
	assert.Equal(t, 3, stat.TotalEntries)
	assert.Equal(t, 2, stat.DistinctKeys)
	assert.Equal(t, uint64(2), stat.Histogram["Alice"])

	assert.Equal(t, 3, stat.EstimateRange("A", "Z")) // both "Alice" and "Bob" fall lexicographically within [A, Z]

	stat.Histogram = nil
	assert.Equal(t, 1, stat.EstimateRange("A", "Z")) // empty histogram falls back to max(1, TotalEntries/4) = max(1, 0)
}

func TestTrackerRecordsRanges(t *testing.T) {
	tracker := NewTracker()
	docs := [][]byte{
		[]byte(`{"id":1,"age":30}`),
		[]byte(`{"id":2,"age":45}`),
		[]byte(`{"id":3,"age":25}`),
	}
	tracker.RecordShard("A", docs, []string{"age", "missing"})

	ranges := tracker.Ranges()
	assert.Equal(t, Range{Min: "25", Max: "45"}, ranges["A"]["age"])
	_, ok := ranges["A"]["missing"]
	assert.False(t, ok)

	tracker.Forget("A")
	assert.Empty(t, tracker.Ranges())
}