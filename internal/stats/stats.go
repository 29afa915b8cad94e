// Package stats computes the per-collection and global statistics feeding
// the query planner (C7): shard counts, document counts, byte sizes, index
// statistics, and per-shard field ranges used for shard pruning.
//
// © 2025 nyarudb authors. MIT License.
package stats

import (
	"os"

	"github.com/Voskan/nyarudb/internal/index"
	"github.com/Voskan/nyarudb/internal/scalar"
	"github.com/Voskan/nyarudb/internal/shard"
)

// Range is an inclusive [Min, Max] bound over one field's canonicalized
// scalar values within a shard.
type Range struct {
	Min string
	Max string
}

// ShardStat is the per-shard statistic the planner consults for pruning.
type ShardStat struct {
	ID            string
	DocumentCount int
	FieldRanges   map[string]Range
}

// CollectionStat summarizes one collection.
type CollectionStat struct {
	Name          string
	ShardCount    int
	DocumentCount int
	ByteSize      int64
	Shards        []ShardStat
}

// GlobalStat summarizes every collection in a store.
type GlobalStat struct {
	Collections int
	Documents   int
	Bytes       int64
}

// IndexStat is the per-field index statistic the planner consults for cost
// estimation.
type IndexStat struct {
	TotalEntries int
	DistinctKeys int
	Histogram    map[string]uint64
}

// EstimateRange returns a rough cost for a range(lo, hi) predicate: when the
// histogram is non-empty it sums matching buckets; otherwise it falls back
// to the spec-documented heuristic of TotalEntries/4.
func (s IndexStat) EstimateRange(lo, hi string) int {
	if len(s.Histogram) == 0 {
		return max(1, s.TotalEntries/4)
	}
	total := 0
	for k, freq := range s.Histogram {
		if scalar.Compare(k, lo) >= 0 && scalar.Compare(k, hi) <= 0 {
			total += int(freq)
		}
	}
	return max(1, total)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CollectionStats sums shard metadata and stats each shard file's on-disk
// byte size.
func CollectionStats(name string, shards []*shard.Shard, ranges map[string]map[string]Range) (CollectionStat, error) {
	stat := CollectionStat{Name: name, ShardCount: len(shards)}

	for _, s := range shards {
		info, err := os.Stat(s.Path())
		var size int64
		if err == nil {
			size = info.Size()
		}

		meta := s.Metadata()
		stat.DocumentCount += meta.DocumentCount
		stat.ByteSize += size
		stat.Shards = append(stat.Shards, ShardStat{
			ID:            s.ID(),
			DocumentCount: meta.DocumentCount,
			FieldRanges:   ranges[s.ID()],
		})
	}
	return stat, nil
}

// GlobalStats sums collection stats over every collection in a store.
func GlobalStats(collections map[string]CollectionStat) GlobalStat {
	var g GlobalStat
	g.Collections = len(collections)
	for _, c := range collections {
		g.Documents += c.DocumentCount
		g.Bytes += c.ByteSize
	}
	return g
}

// IndexStats builds an IndexStat per field tracked by an index manager,
// using the tree's distinct-key/total-count and the access metrics'
// value-frequency histogram.
func IndexStats(mgr *index.Manager) map[string]IndexStat {
	counts := mgr.Counts()
	metrics := mgr.Metrics()

	out := make(map[string]IndexStat, len(counts))
	for field, total := range counts {
		distinct := 0
		if tr, ok := mgr.Tree(field); ok {
			distinct = tr.DistinctKeys()
		}
		out[field] = IndexStat{
			TotalEntries: total,
			DistinctKeys: distinct,
			Histogram:    metrics[field].ValueDistribution,
		}
	}
	return out
}
