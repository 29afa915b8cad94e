package shard

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Voskan/nyarudb/internal/codec"
)

func TestManagerCreateGetShard(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), WithCompression(codec.Gzip))
	require.NoError(t, err)

	s, err := mgr.CreateShard("A")
	require.NoError(t, err)
	assert.Equal(t, "A", s.ID())

	_, err = mgr.CreateShard("A")
	require.Error(t, err)
	var exists *AlreadyExistsError
	assert.ErrorAs(t, err, &exists)

	got, err := mgr.GetShard("A")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = mgr.GetShard("missing")
	require.Error(t, err)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestManagerReopenLoadsExistingShards(t *testing.T) {
	dir := t.TempDir()

	mgr, err := NewManager(dir)
	require.NoError(t, err)
	s, err := mgr.CreateShard("A")
	require.NoError(t, err)
	require.NoError(t, AppendDocument(s, testDoc{ID: 1}))

	reopened, err := NewManager(dir)
	require.NoError(t, err)

	got, err := reopened.GetShard("A")
	require.NoError(t, err)
	docs, err := LoadDocuments[testDoc](got)
	require.NoError(t, err)
	assert.Equal(t, []testDoc{{ID: 1}}, docs)
}

func TestManagerGetOrCreateConcurrentCallersCollapse(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	shards := make([]*Shard, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := mgr.GetOrCreateShard("hot")
			require.NoError(t, err)
			shards[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, shards[0], shards[i])
	}
}

func TestCleanupEmptyShards(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	require.NoError(t, err)

	empty, err := mgr.CreateShard("empty")
	require.NoError(t, err)
	nonEmpty, err := mgr.CreateShard("full")
	require.NoError(t, err)
	require.NoError(t, AppendDocument(nonEmpty, testDoc{ID: 1}))

	require.NoError(t, mgr.CleanupEmptyShards())

	_, err = mgr.GetShard("empty")
	assert.Error(t, err)
	_, err = mgr.GetShard("full")
	assert.NoError(t, err)
	_ = empty
}

func TestLoadShardsUsesActualExtension(t *testing.T) {
	dir := t.TempDir()

	// Shard written directly to disk under a non-default extension.
	s, err := Create("legacy", filepath.Join(dir, "legacy.dat"), codec.None, ProtectionNone)
	require.NoError(t, err)
	require.NoError(t, AppendDocument(s, testDoc{ID: 7}))

	mgr, err := NewManager(dir)
	require.NoError(t, err)

	got, err := mgr.GetShard("legacy")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "legacy.dat"), got.Path())
}

func TestAutoMergeConsolidatesSmallShards(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir)
	require.NoError(t, err)

	for _, id := range []string{"a", "b", "c"} {
		s, err := mgr.CreateShard(id)
		require.NoError(t, err)
		raw, _ := json.Marshal(testDoc{ID: 1, Name: id})
		require.NoError(t, AppendDocument(s, json.RawMessage(raw)))
		time.Sleep(time.Millisecond)
	}

	mgr.mergeTick(100)

	info := mgr.AllShardInfo()
	assert.Len(t, info, 1)
	assert.Equal(t, 3, info[0].Metadata.DocumentCount)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mgr.RunAutoMerge(ctx, time.Millisecond, 100)
}
