package nyarudb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Voskan/nyarudb/internal/codec"
	"github.com/Voskan/nyarudb/internal/docfield"
	"github.com/Voskan/nyarudb/internal/index"
	"github.com/Voskan/nyarudb/internal/shard"
	"github.com/Voskan/nyarudb/internal/stats"
)

// configFileName is the per-collection side-car that records the knobs a
// reopened Store needs to reconstruct the same shard manager and index
// manager: partition field, indexed fields and their minimum degree,
// compression method and protection tag. None of C3-C6 persist this
// themselves, so the façade owns it.
const configFileName = ".nyarudb.json"

type indexConfig struct {
	Field     string `json:"field"`
	MinDegree int    `json:"minDegree"`
}

type collectionConfig struct {
	PartitionField string        `json:"partitionField"`
	Indexes        []indexConfig `json:"indexes"`
	Compression    string        `json:"compression"`
	Protection     uint8         `json:"protection"`
}

// collectionHandle owns everything needed to serve one collection: its
// shard manager (C4), its index manager (C6), and the in-memory field-range
// tracker (C7) that feeds the planner's shard pruning.
type collectionHandle struct {
	mu sync.RWMutex

	name string
	dir  string
	cfg  collectionConfig

	shards  *shard.Manager
	indexes *index.Manager
	tracker *stats.Tracker

	cancelMerge context.CancelFunc
}

func (s *Store) openCollection(name string) (*collectionHandle, error) {
	dir := filepath.Join(s.root, name)

	cfg := collectionConfig{Compression: s.compression.String(), Protection: uint8(s.protection)}
	if raw, err := os.ReadFile(filepath.Join(dir, configFileName)); err == nil {
		if jsonErr := json.Unmarshal(raw, &cfg); jsonErr != nil {
			s.logger.Warn("nyarudb: corrupt collection config, using defaults",
				zap.String("collection", name), zap.Error(jsonErr))
			cfg = collectionConfig{Compression: s.compression.String(), Protection: uint8(s.protection)}
		}
	}

	shardMgr, err := newShardManager(dir, cfg, s.compression, s.logger)
	if err != nil {
		return nil, &ShardManagerCreationFailedError{Collection: name, Err: err}
	}

	idxOpts := []index.Option{index.WithLogger(s.logger)}
	if s.registry != nil {
		idxOpts = append(idxOpts, index.WithMetricsSink(index.NewPrometheusSink(s.registry)))
	}
	idxMgr := index.NewManager(dir, idxOpts...)

	indexFields := make([]string, 0, len(cfg.Indexes))
	minDegree := index.DefaultMinDegree
	for _, ic := range cfg.Indexes {
		indexFields = append(indexFields, ic.Field)
		if ic.MinDegree >= 2 {
			minDegree = ic.MinDegree
		}
	}
	if len(indexFields) > 0 {
		if err := idxMgr.Load(indexFields, minDegree); err != nil {
			s.logger.Warn("nyarudb: failed to load persisted indexes, continuing empty",
				zap.String("collection", name), zap.Error(err))
		}
	}

	h := &collectionHandle{
		name:    name,
		dir:     dir,
		cfg:     cfg,
		shards:  shardMgr,
		indexes: idxMgr,
		tracker: stats.NewTracker(),
	}
	h.rebuildRanges(indexFields)

	if s.mergeInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelMerge = cancel
		go shardMgr.RunAutoMerge(ctx, s.mergeInterval, s.mergeThreshold)
	}

	return h, nil
}

// newShardManager constructs a shard manager for dir from a collection's
// persisted config, falling back to fallbackCompression if cfg.Compression
// doesn't parse. Shared by openCollection and Repartition's post-restore
// resync, both of which need to (re)build the same manager from the same
// on-disk state.
func newShardManager(dir string, cfg collectionConfig, fallbackCompression codec.Method, logger *zap.Logger) (*shard.Manager, error) {
	compression, err := codec.Parse(cfg.Compression)
	if err != nil {
		compression = fallbackCompression
	}
	return shard.NewManager(dir,
		shard.WithCompression(compression),
		shard.WithProtection(shard.Protection(cfg.Protection)),
		shard.WithManagerLogger(logger),
	)
}

// rebuildRanges repopulates the tracker's per-shard field ranges from the
// shards already on disk. Ranges are an in-memory cache (see
// internal/stats.Tracker's doc comment); a reopened store starts pruning
// disabled only until this runs, not until the next write.
func (h *collectionHandle) rebuildRanges(fields []string) {
	if len(fields) == 0 {
		return
	}
	for _, s := range h.shards.AllShards() {
		docs, err := shard.LoadDocuments[json.RawMessage](s)
		if err != nil {
			continue
		}
		raw := make([][]byte, len(docs))
		for i, d := range docs {
			raw[i] = d
		}
		h.tracker.RecordShard(s.ID(), raw, fields)
	}
}

func (h *collectionHandle) writeConfig() error {
	raw, err := json.Marshal(h.cfg)
	if err != nil {
		return fmt.Errorf("nyarudb: marshal collection config: %w", err)
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("nyarudb: create collection dir %s: %w", h.dir, err)
	}
	if err := os.WriteFile(filepath.Join(h.dir, configFileName), raw, 0o644); err != nil {
		return fmt.Errorf("nyarudb: write collection config: %w", err)
	}
	return nil
}

func (h *collectionHandle) indexedFields() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.cfg.Indexes))
	for _, ic := range h.cfg.Indexes {
		out = append(out, ic.Field)
	}
	sort.Strings(out)
	return out
}

func (h *collectionHandle) ensureIndex(field string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ic := range h.cfg.Indexes {
		if ic.Field == field {
			return nil
		}
	}
	h.indexes.CreateIndex(field, index.DefaultMinDegree)
	h.cfg.Indexes = append(h.cfg.Indexes, indexConfig{Field: field, MinDegree: index.DefaultMinDegree})
	return h.writeConfig()
}

// reloadFromDisk re-reads the collection's config side-car and replaces h's
// shard manager with a freshly constructed one that reloads whatever is
// currently on disk. Used after Repartition restores a collection's files
// from its backup on failure: the in-memory shard registry and config were
// left pointing at the (now reverted) in-progress repartition, and must be
// resynced with what restoreDir actually put back on disk.
func (h *collectionHandle) reloadFromDisk(fallbackCompression codec.Method, logger *zap.Logger) error {
	cfg := collectionConfig{Compression: fallbackCompression.String()}
	if raw, err := os.ReadFile(filepath.Join(h.dir, configFileName)); err == nil {
		if jsonErr := json.Unmarshal(raw, &cfg); jsonErr != nil {
			return fmt.Errorf("nyarudb: reload collection config: %w", jsonErr)
		}
	}

	shardMgr, err := newShardManager(h.dir, cfg, fallbackCompression, logger)
	if err != nil {
		return fmt.Errorf("nyarudb: reload shard manager: %w", err)
	}

	indexFields := make([]string, 0, len(cfg.Indexes))
	for _, ic := range cfg.Indexes {
		indexFields = append(indexFields, ic.Field)
	}

	h.mu.Lock()
	h.cfg = cfg
	h.shards = shardMgr
	h.mu.Unlock()

	h.rebuildRanges(indexFields)
	return nil
}

func (h *collectionHandle) close() {
	if h.cancelMerge != nil {
		h.cancelMerge()
	}
	if err := h.indexes.Persist(); err != nil {
		h.indexes.Logger().Warn("nyarudb: failed to persist indexes on close",
			zap.String("collection", h.name), zap.Error(err))
	}
}

// shardIDFor extracts the partition id a document belongs to: the
// canonicalized value of the configured partition field, or "default" when
// no partition field is configured.
func shardIDFor(encoded []byte, partitionField string) (string, error) {
	if partitionField == "" {
		return "default", nil
	}
	return docfield.Extract(encoded, partitionField, docfield.RolePartition)
}
