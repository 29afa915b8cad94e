package shard

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Voskan/nyarudb/internal/codec"
)

// DefaultExtension is the extension nyarudb uses for newly created shard
// files. Manager.loadShards never assumes this extension for files it
// discovers on disk — see its doc comment — so a collection directory
// carried over from a differently configured extension still loads.
const DefaultExtension = ".nyaru"

// Manager is the per-collection registry of shards: creation, lookup,
// enumeration, disk loading and background small-shard merging (C4).
type Manager struct {
	mu  sync.RWMutex
	dir string

	shards map[string]*Shard

	compression codec.Method
	protection  Protection
	extension   string
	logger      *zap.Logger

	creating singleflight.Group
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithCompression sets the compression method used for shards created by
// this manager.
func WithCompression(m codec.Method) ManagerOption {
	return func(mgr *Manager) { mgr.compression = m }
}

// WithProtection sets the file-protection tag applied to shards created by
// this manager.
func WithProtection(p Protection) ManagerOption {
	return func(mgr *Manager) { mgr.protection = p }
}

// WithManagerLogger installs a logger used for recovered-error and
// auto-merge diagnostics.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(mgr *Manager) {
		if l != nil {
			mgr.logger = l
		}
	}
}

// NewManager creates a shard manager rooted at dir (one directory per
// collection) and immediately loads any shards already present — this is
// the fix for the reopen defect named in spec §7/§9: a manager is never
// handed back without first registering pre-existing shards.
func NewManager(dir string, opts ...ManagerOption) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("shard manager: create %s: %w", dir, err)
	}

	mgr := &Manager{
		dir:         dir,
		shards:      make(map[string]*Shard),
		compression: codec.None,
		protection:  ProtectionNone,
		extension:   DefaultExtension,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(mgr)
	}

	if err := mgr.loadShards(); err != nil {
		return nil, err
	}
	return mgr, nil
}

// loadShards populates the registry from mgr.dir. Every regular file that is
// not a side-car (*.meta.json), an index file (*.idx) or a temp artifact
// (dotfile) is registered as a shard keyed by its base name with its actual
// on-disk extension — not DefaultExtension — so collections whose shard
// files were written under a different configured extension still load.
func (mgr *Manager) loadShards() error {
	entries, err := os.ReadDir(mgr.dir)
	if err != nil {
		return fmt.Errorf("shard manager: read %s: %w", mgr.dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, ".meta.json") || strings.HasSuffix(name, ".idx") {
			continue
		}

		ext := filepath.Ext(name)
		id := strings.TrimSuffix(name, ext)
		path := filepath.Join(mgr.dir, name)

		s, err := Open(id, path, mgr.compression, mgr.protection, WithLogger(mgr.logger))
		if err != nil {
			return fmt.Errorf("shard manager: open %s: %w", path, err)
		}
		mgr.shards[id] = s
	}
	return nil
}

func (mgr *Manager) pathFor(id string) string {
	return filepath.Join(mgr.dir, id+mgr.extension)
}

// CreateShard creates a new, empty shard for id. It fails with
// *AlreadyExistsError if id is already registered.
func (mgr *Manager) CreateShard(id string) (*Shard, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if _, ok := mgr.shards[id]; ok {
		return nil, &AlreadyExistsError{ID: id}
	}

	s, err := Create(id, mgr.pathFor(id), mgr.compression, mgr.protection, WithLogger(mgr.logger))
	if err != nil {
		return nil, err
	}
	mgr.shards[id] = s
	return s, nil
}

// GetOrCreateShard returns the existing shard for id, or creates it.
// Concurrent callers racing to create the same id are collapsed onto a
// single creation via singleflight, matching the teacher's loader
// de-duplication pattern.
func (mgr *Manager) GetOrCreateShard(id string) (*Shard, error) {
	mgr.mu.RLock()
	if s, ok := mgr.shards[id]; ok {
		mgr.mu.RUnlock()
		return s, nil
	}
	mgr.mu.RUnlock()

	v, err, _ := mgr.creating.Do(id, func() (any, error) {
		mgr.mu.Lock()
		defer mgr.mu.Unlock()

		if s, ok := mgr.shards[id]; ok {
			return s, nil
		}
		s, err := Create(id, mgr.pathFor(id), mgr.compression, mgr.protection, WithLogger(mgr.logger))
		if err != nil {
			return nil, err
		}
		mgr.shards[id] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Shard), nil
}

// GetShard returns the shard registered under id, failing with
// *NotFoundError if none exists.
func (mgr *Manager) GetShard(id string) (*Shard, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	s, ok := mgr.shards[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return s, nil
}

// AllShards returns every registered shard, in no particular order.
func (mgr *Manager) AllShards() []*Shard {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	out := make([]*Shard, 0, len(mgr.shards))
	for _, s := range mgr.shards {
		out = append(out, s)
	}
	return out
}

// AllShardInfo returns a snapshot of every registered shard's identity and
// metadata, sorted by id for deterministic iteration.
func (mgr *Manager) AllShardInfo() []Info {
	shards := mgr.AllShards()
	out := make([]Info, 0, len(shards))
	for _, s := range shards {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveAllShards deletes every shard file and side-car and clears the
// registry.
func (mgr *Manager) RemoveAllShards() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	for id, s := range mgr.shards {
		if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("shard manager: remove %s: %w", s.Path(), err)
		}
		if err := os.Remove(s.metaPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("shard manager: remove %s: %w", s.metaPath, err)
		}
		delete(mgr.shards, id)
	}
	return nil
}

// CleanupEmptyShards deletes the file and side-car of every shard whose
// document count is zero and removes it from the registry.
func (mgr *Manager) CleanupEmptyShards() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	for id, s := range mgr.shards {
		if s.Metadata().DocumentCount != 0 {
			continue
		}
		if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("shard manager: remove %s: %w", s.Path(), err)
		}
		if err := os.Remove(s.metaPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("shard manager: remove %s: %w", s.metaPath, err)
		}
		delete(mgr.shards, id)
	}
	return nil
}

// Dir returns the collection directory this manager is rooted at.
func (mgr *Manager) Dir() string { return mgr.dir }
