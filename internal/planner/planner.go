// Package planner implements the cost-based query planner (C8): given a
// predicate list, the set of available indexes and their statistics, and
// per-shard field ranges, it chooses among a full scan, an index-only plan
// and a hybrid plan, and computes which shards can be skipped entirely.
//
// © 2025 nyarudb authors. MIT License.
package planner

import (
	"github.com/Voskan/nyarudb/internal/docfield"
	"github.com/Voskan/nyarudb/internal/scalar"
	"github.com/Voskan/nyarudb/internal/stats"
)

// Operator enumerates the predicate operators the planner and executor
// understand.
type Operator uint8

const (
	Equal Operator = iota
	NotEqual
	LessThan
	LessOrEqual
	GreaterThan
	GreaterOrEqual
	Between
	Range
	In
	Contains
	StartsWith
	EndsWith
	Exists
	NotExists
)

// Predicate is one query condition over a single field. Value/Lo/Hi/Values
// are populated according to Op: Value for Equal/NotEqual/comparison/string
// operators, Lo/Hi for Between/Range, Values for In. Exists/NotExists use
// none of them.
type Predicate struct {
	Field  string
	Op     Operator
	Value  any
	Lo     any
	Hi     any
	Values []any
}

// Strategy is the chosen execution strategy for a Plan.
type Strategy uint8

const (
	FullScan Strategy = iota
	IndexOnly
	Hybrid
)

func (s Strategy) String() string {
	switch s {
	case FullScan:
		return "full_scan"
	case IndexOnly:
		return "index_only"
	case Hybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Plan is the planner's output: the strategy to execute, the predicates to
// apply, the field the chosen index (if any) is built on, and the cost
// accounting that produced the decision.
type Plan struct {
	Collection    string
	Predicates    []Predicate
	EstimatedDocs int
	ShardsToSkip  int
	UsedIndex     *string
	Strategy      Strategy
}

// Plan chooses an execution strategy for preds against collection, using
// indexNames to know which fields are indexed, idxStats for per-field index
// cost statistics, and shardStats for shard pruning. It computes a
// per-predicate cost for every indexed field, picks the minimum cost (ties
// broken by first field encountered), counts shards pruned via per-field
// range overlap, and sets estimated_docs. The strategy is index_only when
// the cheapest predicate is an Equal costing < 100; otherwise full_scan when
// that cost is at least half the total shard document count; otherwise
// hybrid. A non-Equal cheapest predicate never yields index_only, since the
// executor's index-only path answers Equal lookups only.
func Plan(collection string, preds []Predicate, indexNames []string, idxStats map[string]stats.IndexStat, shardStats []stats.ShardStat) Plan {
	indexed := make(map[string]bool, len(indexNames))
	for _, f := range indexNames {
		indexed[f] = true
	}

	bestCost := -1
	var bestField string
	var bestOp Operator
	var bestFound bool

	for _, p := range preds {
		if !indexed[p.Field] {
			continue
		}
		stat, ok := idxStats[p.Field]
		if !ok {
			continue
		}

		cost := predicateCost(p, stat)
		if !bestFound || cost < bestCost {
			bestCost = cost
			bestField = p.Field
			bestOp = p.Op
			bestFound = true
		}
	}

	shardsToSkip := countSkippedShards(preds, shardStats)

	totalDocs := 0
	for _, s := range shardStats {
		totalDocs += s.DocumentCount
	}

	plan := Plan{
		Collection:   collection,
		Predicates:   preds,
		ShardsToSkip: shardsToSkip,
	}

	if !bestFound {
		plan.EstimatedDocs = totalDocs
		plan.Strategy = FullScan
		return plan
	}

	plan.EstimatedDocs = bestCost
	plan.UsedIndex = &bestField

	switch {
	case bestCost < 100 && bestOp == Equal:
		plan.Strategy = IndexOnly
	case bestCost >= totalDocs/2:
		plan.Strategy = FullScan
	default:
		plan.Strategy = Hybrid
	}
	return plan
}

// predicateCost implements rule 1: equal(v) costs
// max(1,distinct)/max(1,histogram[v] or 1); range/between cost
// stat.EstimateRange(lo,hi); every other operator costs stat.TotalEntries.
func predicateCost(p Predicate, stat stats.IndexStat) int {
	switch p.Op {
	case Equal:
		freq := stat.Histogram[canonical(p.Value)]
		if freq == 0 {
			freq = 1
		}
		distinct := stat.DistinctKeys
		if distinct < 1 {
			distinct = 1
		}
		return max(1, distinct) / int(freq)
	case Between, Range:
		return stat.EstimateRange(canonical(p.Lo), canonical(p.Hi))
	default:
		return stat.TotalEntries
	}
}

// countSkippedShards implements rule 3: a shard is skipped when it fails
// matchesAny for every predicate with a known field range.
func countSkippedShards(preds []Predicate, shardStats []stats.ShardStat) int {
	skipped := 0
	for _, s := range shardStats {
		if !matchesAny(preds, s.FieldRanges) {
			skipped++
		}
	}
	return skipped
}

// Matches exposes matchesAny for the executor's hybrid path, which must
// re-derive the same surviving-shard set the planner counted when it
// computed ShardsToSkip.
func Matches(preds []Predicate, ranges map[string]stats.Range) bool {
	return matchesAny(preds, ranges)
}

// matchesAny reports whether shard is a candidate for preds: true unless at
// least one predicate has a known field range that provably excludes the
// shard. Predicates over fields with no tracked range, or operators this
// function does not model (in/contains/starts_with/ends_with/exists/
// not_exists), never exclude a shard — pruning is conservative by design.
func matchesAny(preds []Predicate, ranges map[string]stats.Range) bool {
	for _, p := range preds {
		r, ok := ranges[p.Field]
		if !ok {
			continue
		}

		switch p.Op {
		case Equal:
			v := canonical(p.Value)
			if scalar.Compare(v, r.Min) < 0 || scalar.Compare(v, r.Max) > 0 {
				return false
			}
		case Between, Range:
			lo, hi := canonical(p.Lo), canonical(p.Hi)
			if scalar.Compare(hi, r.Min) < 0 || scalar.Compare(lo, r.Max) > 0 {
				return false
			}
		case LessThan, LessOrEqual:
			if scalar.Compare(canonical(p.Value), r.Min) < 0 {
				return false
			}
		case GreaterThan, GreaterOrEqual:
			if scalar.Compare(canonical(p.Value), r.Max) > 0 {
				return false
			}
		}
	}
	return true
}

// canonical renders a predicate operand the same way documents are
// canonicalized, so index histograms, field ranges and query operands all
// compare on equal footing.
func canonical(v any) string {
	return docfield.Canonicalize(v)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
