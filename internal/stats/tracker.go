package stats

import (
	"sync"

	"github.com/Voskan/nyarudb/internal/docfield"
	"github.com/Voskan/nyarudb/internal/scalar"
)

// Tracker maintains the per-shard field ranges the planner uses for shard
// pruning (spec §9's Open Question: the reference never populates these;
// nyarudb resolves it by populating them opportunistically on every write —
// see DESIGN.md). Ranges are an in-memory, best-effort cache: they are
// rebuilt from scratch the next time RecordShard runs for a shard, and the
// façade calls RecordShard for every existing shard of an indexed
// collection when it opens that collection, so a restart does not leave
// pruning disabled. A shard with no recorded range is never pruned.
type Tracker struct {
	mu     sync.RWMutex
	ranges map[string]map[string]Range // shardID -> field -> range
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{ranges: make(map[string]map[string]Range)}
}

// RecordShard recomputes shardID's field ranges from its current document
// set, limited to fields. Each document's encoded form is re-extracted via
// docfield so ranges use the same canonicalization as index keys and
// predicate operands.
func (t *Tracker) RecordShard(shardID string, encodedDocs [][]byte, fields []string) {
	ranges := make(map[string]Range, len(fields))

	for _, field := range fields {
		var r Range
		first := true
		for _, doc := range encodedDocs {
			v, err := docfield.Extract(doc, field, docfield.RoleIndex)
			if err != nil {
				continue // field absent from this document; skip it for ranging
			}
			if first {
				r = Range{Min: v, Max: v}
				first = false
				continue
			}
			r.Min = scalar.Min(r.Min, v)
			r.Max = scalar.Max(r.Max, v)
		}
		if !first {
			ranges[field] = r
		}
	}

	t.mu.Lock()
	t.ranges[shardID] = ranges
	t.mu.Unlock()
}

// Forget drops shardID's tracked ranges. Repartition calls it for every
// shard it clears; auto-merge does not call it.
func (t *Tracker) Forget(shardID string) {
	t.mu.Lock()
	delete(t.ranges, shardID)
	t.mu.Unlock()
}

// Ranges returns a copy of every shard's tracked field ranges, keyed by
// shard id.
func (t *Tracker) Ranges() map[string]map[string]Range {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]map[string]Range, len(t.ranges))
	for id, fields := range t.ranges {
		copied := make(map[string]Range, len(fields))
		for f, r := range fields {
			copied[f] = r
		}
		out[id] = copied
	}
	return out
}
