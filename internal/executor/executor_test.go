package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Voskan/nyarudb/internal/codec"
	"github.com/Voskan/nyarudb/internal/index"
	"github.com/Voskan/nyarudb/internal/planner"
	"github.com/Voskan/nyarudb/internal/shard"
	"github.com/Voskan/nyarudb/internal/stats"
)

type person struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func seedShard(t *testing.T, mgr *shard.Manager, id string, people []person) *shard.Shard {
	t.Helper()
	s, err := mgr.CreateShard(id)
	require.NoError(t, err)
	require.NoError(t, shard.SaveDocuments(s, people))
	return s
}

func drain[T any](t *testing.T, it *Iterator[T]) []T {
	t.Helper()
	var out []T
	for {
		d, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, d)
	}
	return out
}

func TestExecuteFullScan(t *testing.T) {
	dir := t.TempDir()
	mgr, err := shard.NewManager(dir, shard.WithCompression(codec.None))
	require.NoError(t, err)
	seedShard(t, mgr, "default", []person{{1, "Alice", 30}, {2, "Bob", 25}})

	plan := planner.Plan("people", []planner.Predicate{{Field: "name", Op: planner.Equal, Value: "Bob"}}, nil, nil, nil)
	assert.Equal(t, planner.FullScan, plan.Strategy)

	it, err := Execute[person](context.Background(), plan, mgr.AllShards(), index.NewManager(dir), nil)
	require.NoError(t, err)
	got := drain(t, it)

	require.Len(t, got, 1)
	assert.Equal(t, "Bob", got[0].Name)
}

func TestExecuteIndexOnlySinglePredicate(t *testing.T) {
	dir := t.TempDir()
	mgr, err := shard.NewManager(dir, shard.WithCompression(codec.None))
	require.NoError(t, err)
	seedShard(t, mgr, "default", []person{{1, "Alice", 30}, {2, "Bob", 25}, {3, "Alice", 40}})

	idxMgr := index.NewManager(dir)
	idxMgr.CreateIndex("name", 2)
	for _, p := range []person{{1, "Alice", 30}, {2, "Bob", 25}, {3, "Alice", 40}} {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		idxMgr.Insert("name", p.Name, raw)
	}

	idxStats := map[string]stats.IndexStat{
		"name": {TotalEntries: 1000, DistinctKeys: 50, Histogram: map[string]uint64{"Alice": 2, "Bob": 1}},
	}
	plan := planner.Plan("people", []planner.Predicate{{Field: "name", Op: planner.Equal, Value: "Alice"}},
		[]string{"name"}, idxStats, []stats.ShardStat{{DocumentCount: 1000}})
	require.Equal(t, planner.IndexOnly, plan.Strategy)

	it, err := Execute[person](context.Background(), plan, mgr.AllShards(), idxMgr, nil)
	require.NoError(t, err)
	got := drain(t, it)

	require.Len(t, got, 2)
	for _, p := range got {
		assert.Equal(t, "Alice", p.Name)
	}
}

func TestExecuteUnindexedBetweenFullScan(t *testing.T) {
	dir := t.TempDir()
	mgr, err := shard.NewManager(dir, shard.WithCompression(codec.None))
	require.NoError(t, err)
	seedShard(t, mgr, "default", []person{
		{1, "Alice", 30}, {2, "Bob", 25}, {3, "Carol", 35}, {4, "Dave", 40}, {5, "Eve", 45},
	})

	preds := []planner.Predicate{{Field: "age", Op: planner.Between, Lo: 30.0, Hi: 40.0}}
	plan := planner.Plan("people", preds, nil, nil, []stats.ShardStat{{DocumentCount: 5}})
	assert.Equal(t, planner.FullScan, plan.Strategy) // no index registered, still correct result via full scan

	it, err := Execute[person](context.Background(), plan, mgr.AllShards(), index.NewManager(dir), nil)
	require.NoError(t, err)
	got := drain(t, it)

	ages := make([]int, 0, len(got))
	for _, p := range got {
		ages = append(ages, p.Age)
	}
	assert.ElementsMatch(t, []int{30, 35, 40}, ages)
}
