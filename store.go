// Package nyarudb implements an embedded, single-process document store:
// named collections are partitioned into compressed on-disk shards, indexed
// by optional B-tree secondary indexes, and queried through a cost-based
// planner and executor.
//
// © 2025 nyarudb authors. MIT License.
package nyarudb

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Voskan/nyarudb/internal/codec"
	"github.com/Voskan/nyarudb/internal/planner"
	"github.com/Voskan/nyarudb/internal/shard"
	"github.com/Voskan/nyarudb/internal/stats"
)

// Store is the top-level handle on a root directory of collections. All of
// its methods are safe for concurrent use; structural changes (collection
// creation/drop) are serialized by mu, while per-collection mutations
// delegate down to the collection's own shard manager, index manager and
// tracker, each their own serialization domain.
type Store struct {
	mu          sync.RWMutex
	root        string
	collections map[string]*collectionHandle

	logger         *zap.Logger
	registry       *prometheus.Registry
	compression    codec.Method
	protection     shard.Protection
	mergeInterval  time.Duration
	mergeThreshold int
}

// Open opens (or creates) a store rooted at root, loading every existing
// collection subdirectory it finds — the reopen-and-load fix applies
// transitively here since each collection's shard.NewManager always loads
// its pre-existing shards.
func Open(root string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &IoError{Op: "create root " + root, Err: err}
	}

	s := &Store{
		root:        root,
		collections: make(map[string]*collectionHandle),
		logger:      zap.NewNop(),
		compression: codec.None,
		protection:  shard.ProtectionNone,
	}
	for _, opt := range opts {
		opt(s)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &IoError{Op: "read root " + root, Err: err}
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		h, err := s.openCollection(entry.Name())
		if err != nil {
			return nil, err
		}
		s.collections[entry.Name()] = h
	}

	return s, nil
}

// getOrCreateCollection returns the handle for name, creating it (and its
// on-disk directory) if it does not yet exist — "inserting into a
// non-existent collection creates it".
func (s *Store) getOrCreateCollection(name string) (*collectionHandle, error) {
	s.mu.RLock()
	if h, ok := s.collections[name]; ok {
		s.mu.RUnlock()
		return h, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.collections[name]; ok {
		return h, nil
	}

	h, err := s.openCollection(name)
	if err != nil {
		return nil, err
	}
	s.collections[name] = h
	return h, nil
}

// getCollection returns the handle for name without creating it, failing
// with *CollectionNotFoundError if it does not exist.
func (s *Store) getCollection(name string) (*collectionHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.collections[name]
	if !ok {
		return nil, &CollectionNotFoundError{Collection: name}
	}
	return h, nil
}

// ListCollections returns every collection name currently known to the
// store, sorted.
func (s *Store) ListCollections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.collections))
	for name := range s.collections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the total document count across every shard of collection.
// A non-existent collection is reported as zero documents, matching
// "fetching from a non-existent collection yields empty".
func (s *Store) Count(collection string) (int, error) {
	h, err := s.getCollection(collection)
	if err != nil {
		return 0, nil
	}

	total := 0
	for _, info := range h.shards.AllShardInfo() {
		total += info.Metadata.DocumentCount
	}
	return total, nil
}

// Drop removes collection entirely: every shard, index and the collection
// directory itself, and stops its auto-merge task.
func (s *Store) Drop(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.collections[collection]
	if !ok {
		return nil
	}
	h.close()

	if err := h.shards.RemoveAllShards(); err != nil {
		return &IoError{Op: "remove shards for " + collection, Err: err}
	}
	if err := os.RemoveAll(h.dir); err != nil && !os.IsNotExist(err) {
		return &IoError{Op: "remove collection dir " + h.dir, Err: err}
	}
	delete(s.collections, collection)
	return nil
}

// SetPartitionKey configures collection's partition field for subsequent
// inserts. It does not move existing documents between shards — call
// Repartition to do that.
func (s *Store) SetPartitionKey(collection, field string) error {
	h, err := s.getOrCreateCollection(collection)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.cfg.PartitionField = field
	err = h.writeConfig()
	h.mu.Unlock()
	if err != nil {
		return &IoError{Op: "persist partition key for " + collection, Err: err}
	}
	return nil
}

// CleanupEmptyShards deletes every zero-document shard (and its side-car)
// from collection.
func (s *Store) CleanupEmptyShards(collection string) error {
	h, err := s.getCollection(collection)
	if err != nil {
		return err
	}
	if err := h.shards.CleanupEmptyShards(); err != nil {
		return &IoError{Op: "cleanup empty shards for " + collection, Err: err}
	}
	return nil
}

// Close stops every collection's background auto-merge task, releasing
// them cooperatively. It does not block for in-flight ticks to finish.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range s.collections {
		h.close()
	}
	return nil
}

// Stats surfaces the stats engine's (C7) collection, global and index
// statistics for every collection currently known to the store.
func (s *Store) Stats() (stats.GlobalStat, map[string]stats.CollectionStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perCollection := make(map[string]stats.CollectionStat, len(s.collections))
	for name, h := range s.collections {
		ranges := h.tracker.Ranges()
		stat, err := stats.CollectionStats(name, h.shards.AllShards(), ranges)
		if err != nil {
			return stats.GlobalStat{}, nil, fmt.Errorf("nyarudb: stats for %q: %w", name, err)
		}
		perCollection[name] = stat
	}
	return stats.GlobalStats(perCollection), perCollection, nil
}

// Explain returns the plan the query engine would choose for preds against
// collection, without executing it — useful for tests and tooling that want
// to assert on the planner's strategy choice.
func (s *Store) Explain(collection string, preds []planner.Predicate) (planner.Plan, error) {
	h, err := s.getCollection(collection)
	if err != nil {
		return planner.Plan{}, err
	}
	return h.plan(preds), nil
}

func (h *collectionHandle) plan(preds []planner.Predicate) planner.Plan {
	indexFields := h.indexedFields()
	idxStats := stats.IndexStats(h.indexes)

	ranges := h.tracker.Ranges()
	shardInfos := h.shards.AllShardInfo()
	shardStats := make([]stats.ShardStat, len(shardInfos))
	for i, info := range shardInfos {
		shardStats[i] = stats.ShardStat{
			ID:            info.ID,
			DocumentCount: info.Metadata.DocumentCount,
			FieldRanges:   ranges[info.ID],
		}
	}

	return planner.Plan(h.name, preds, indexFields, idxStats, shardStats)
}

// repartitionBackupDir returns the hard-link backup directory Repartition
// uses to make the operation all-or-nothing.
func repartitionBackupDir(dir string) string {
	return filepath.Join(filepath.Dir(dir), ".repartition-backup-"+filepath.Base(dir))
}
