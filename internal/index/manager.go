// Package index implements the per-collection registry of named B-tree
// secondary indexes (C6): creation, insert/search/upsert routed through the
// underlying btree.Tree, access metrics, and whole-manager persistence.
//
// © 2025 nyarudb authors. MIT License.
package index

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/nyarudb/internal/btree"
	"github.com/Voskan/nyarudb/internal/docfield"
)

// DefaultMinDegree is used by CreateIndex when no explicit degree is given.
const DefaultMinDegree = 2

// Manager is the per-collection registry of named B-tree indexes.
type Manager struct {
	mu   sync.RWMutex
	dir  string
	tree map[string]*btree.Tree[string]

	metrics map[string]*Metrics
	sink    metricsSink
	logger  *zap.Logger
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger installs a logger used for no-op-insert warnings.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetricsSink installs a metrics sink (Prometheus-backed or no-op); see
// metrics.go.
func WithMetricsSink(s metricsSink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sink = s
		}
	}
}

// NewManager creates an index manager rooted at dir (used for persisted
// <field>.idx files).
func NewManager(dir string, opts ...Option) *Manager {
	m := &Manager{
		dir:     dir,
		tree:    make(map[string]*btree.Tree[string]),
		metrics: make(map[string]*Metrics),
		sink:    noopMetrics{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateIndex registers field as an indexed field with the given minimum
// degree. Idempotent: calling it again for an already-registered field is a
// no-op.
func (m *Manager) CreateIndex(field string, minDegree int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tree[field]; ok {
		return
	}
	if minDegree < 2 {
		minDegree = DefaultMinDegree
	}
	m.tree[field] = btree.New[string](minDegree)
	m.metrics[field] = newMetrics()
}

// Insert routes key/payload to field's B-tree and updates its access
// metrics. If field has no index, this is a no-op and a warning is logged
// (spec §4.6).
func (m *Manager) Insert(field, key string, payload []byte) {
	m.mu.RLock()
	tr, ok := m.tree[field]
	metrics := m.metrics[field]
	m.mu.RUnlock()

	if !ok {
		m.logger.Warn("index: insert on unknown field, ignoring", zap.String("field", field))
		return
	}

	tr.Insert(key, payload)
	metrics.recordAccess(key)
	m.sink.incAccess(field)
}

// Search returns the payloads stored under key in field's index, updating
// its access count and last-access time (the value histogram only counts
// inserted keys). Returns an empty slice if field has no index.
func (m *Manager) Search(field, key string) [][]byte {
	m.mu.RLock()
	tr, ok := m.tree[field]
	metrics := m.metrics[field]
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	metrics.accessCount.Add(1)
	metrics.lastAccess.Store(time.Now().UnixNano())
	m.sink.incAccess(field)

	vals, _ := tr.Search(key)
	return vals
}

// Upsert ensures field is indexed, extracts field's value from encoded via
// docfield (role = index) and inserts encoded under that key.
func (m *Manager) Upsert(field string, encoded []byte) error {
	m.CreateIndex(field, DefaultMinDegree)

	key, err := docfield.Extract(encoded, field, docfield.RoleIndex)
	if err != nil {
		return err
	}
	m.Insert(field, key, encoded)
	return nil
}

// List returns the names of every indexed field, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.tree))
	for f := range m.tree {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Drop removes field's index entirely.
func (m *Manager) Drop(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tree, field)
	delete(m.metrics, field)
}

// Counts returns the total payload count per indexed field.
func (m *Manager) Counts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int, len(m.tree))
	for field, tr := range m.tree {
		out[field] = tr.TotalCount()
	}
	return out
}

// Tree exposes the underlying B-tree for field (used by the planner/
// executor for direct in-order access); ok is false if field is not
// indexed.
func (m *Manager) Tree(field string) (*btree.Tree[string], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.tree[field]
	return tr, ok
}

// Logger returns the manager's configured logger, for callers that need to
// report errors from operations (like Persist) that Manager itself cannot
// usefully fail on.
func (m *Manager) Logger() *zap.Logger {
	return m.logger
}

// Persist writes every indexed field's B-tree to <dir>/<field>.idx.
func (m *Manager) Persist() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for field, tr := range m.tree {
		if err := tr.Persist(filepath.Join(m.dir, field+".idx")); err != nil {
			return fmt.Errorf("index: persist %s: %w", field, err)
		}
	}
	return nil
}

// Load restores every field listed in fields from <dir>/<field>.idx,
// creating the index first if it is not already registered.
func (m *Manager) Load(fields []string, minDegree int) error {
	for _, field := range fields {
		m.CreateIndex(field, minDegree)

		m.mu.RLock()
		tr := m.tree[field]
		m.mu.RUnlock()

		path := filepath.Join(m.dir, field+".idx")
		if err := tr.Load(path); err != nil {
			return fmt.Errorf("index: load %s: %w", field, err)
		}
	}
	return nil
}
