// Package executor runs a planner.Plan against a collection's shards and
// indexes (C9): index-only lookups, hybrid shard-load-then-filter, and
// lazy full scans.
//
// © 2025 nyarudb authors. MIT License.
package executor

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/Voskan/nyarudb/internal/docfield"
	"github.com/Voskan/nyarudb/internal/index"
	"github.com/Voskan/nyarudb/internal/planner"
	"github.com/Voskan/nyarudb/internal/scalar"
	"github.com/Voskan/nyarudb/internal/shard"
	"github.com/Voskan/nyarudb/internal/stats"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Iterator yields a query's result documents one at a time. index_only and
// hybrid plans materialize their (already cost-bounded) result set up
// front; full_scan streams one shard at a time so memory stays bounded
// regardless of collection size.
type Iterator[T any] struct {
	materialized []T
	pos          int

	shards    []*shard.Shard
	shardIdx  int
	cur       *shard.Iterator[T]
	preds     []planner.Predicate
	streaming bool
}

// Next returns the next result document, or ok == false once the result set
// is exhausted.
func (it *Iterator[T]) Next(ctx context.Context) (doc T, ok bool, err error) {
	if !it.streaming {
		if it.pos >= len(it.materialized) {
			return doc, false, nil
		}
		doc = it.materialized[it.pos]
		it.pos++
		return doc, true, nil
	}

	for {
		select {
		case <-ctx.Done():
			return doc, false, ctx.Err()
		default:
		}

		if it.cur == nil {
			if it.shardIdx >= len(it.shards) {
				return doc, false, nil
			}
			iter, err := shard.LoadDocumentsLazy[T](it.shards[it.shardIdx])
			if err != nil {
				return doc, false, err
			}
			it.cur = iter
			it.shardIdx++
		}

		d, more, err := it.cur.Next(ctx)
		if err != nil {
			return doc, false, err
		}
		if !more {
			it.cur.Close()
			it.cur = nil
			continue
		}
		if MatchesPredicates(d, it.preds) {
			return d, true, nil
		}
	}
}

// Close releases any shard iterator the executor is holding mid-scan. Safe
// to call multiple times.
func (it *Iterator[T]) Close() {
	if it.cur != nil {
		it.cur.Close()
		it.cur = nil
	}
}

// Execute runs plan and returns an Iterator over its result documents.
// shards is every shard currently registered for the collection; idxMgr is
// its index manager; ranges is the stats tracker's per-shard field ranges,
// used to re-derive the hybrid path's surviving shard set.
func Execute[T any](ctx context.Context, plan planner.Plan, shards []*shard.Shard, idxMgr *index.Manager, ranges map[string]stats.Range) (*Iterator[T], error) {
	switch plan.Strategy {
	case planner.IndexOnly:
		return executeIndexOnly[T](plan, idxMgr)
	case planner.Hybrid:
		return executeHybrid[T](ctx, plan, shards, ranges)
	default:
		return &Iterator[T]{shards: shards, preds: plan.Predicates, streaming: true}, nil
	}
}

// executeIndexOnly looks up every Equal predicate over the chosen index
// field, decodes the matching payloads, and keeps only those that satisfy
// the full predicate list (so extra predicates over other fields still
// narrow the result, preserving the index-path/full-scan equivalence
// invariant). A single Equal predicate short-circuits to one direct B-tree
// lookup, preserving B-tree order; multiple Equal predicates over the same
// field run concurrently via errgroup, one goroutine per lookup.
func executeIndexOnly[T any](plan planner.Plan, idxMgr *index.Manager) (*Iterator[T], error) {
	if plan.UsedIndex == nil {
		return &Iterator[T]{}, nil
	}
	field := *plan.UsedIndex

	var equals []planner.Predicate
	for _, p := range plan.Predicates {
		if p.Field == field && p.Op == planner.Equal {
			equals = append(equals, p)
		}
	}
	if len(equals) == 0 {
		return &Iterator[T]{}, nil
	}

	if len(equals) == 1 {
		payloads := idxMgr.Search(field, docfield.Canonicalize(equals[0].Value))
		docs, err := decodeFiltered[T](payloads, plan.Predicates)
		if err != nil {
			return nil, err
		}
		return &Iterator[T]{materialized: docs}, nil
	}

	results := make([][][]byte, len(equals))
	g := new(errgroup.Group)
	for i, p := range equals {
		i, p := i, p
		g.Go(func() error {
			results[i] = idxMgr.Search(field, docfield.Canonicalize(p.Value))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all [][]byte
	for _, r := range results {
		all = append(all, r...)
	}
	docs, err := decodeFiltered[T](all, plan.Predicates)
	if err != nil {
		return nil, err
	}
	return &Iterator[T]{materialized: docs}, nil
}

// executeHybrid re-derives the shards that survive pruning, loads them in
// parallel (bounded by errgroup's implicit one-goroutine-per-shard fan-out),
// and filters every loaded document against the full predicate list.
func executeHybrid[T any](ctx context.Context, plan planner.Plan, shards []*shard.Shard, ranges map[string]stats.Range) (*Iterator[T], error) {
	var survivors []*shard.Shard
	for _, s := range shards {
		if s.Metadata().DocumentCount == 0 {
			continue
		}
		if !planner.Matches(plan.Predicates, ranges[s.ID()]) {
			continue
		}
		survivors = append(survivors, s)
	}

	loaded := make([][]T, len(survivors))
	g, _ := errgroup.WithContext(ctx)
	for i, s := range survivors {
		i, s := i, s
		g.Go(func() error {
			docs, err := shard.LoadDocuments[T](s)
			if err != nil {
				return fmt.Errorf("executor: load shard %s: %w", s.ID(), err)
			}
			loaded[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []T
	for _, docs := range loaded {
		for _, d := range docs {
			if MatchesPredicates(d, plan.Predicates) {
				out = append(out, d)
			}
		}
	}
	return &Iterator[T]{materialized: out}, nil
}

// decodeFiltered decodes each payload as T, keeping only those matching
// every predicate in preds.
func decodeFiltered[T any](payloads [][]byte, preds []planner.Predicate) ([]T, error) {
	var out []T
	for _, raw := range payloads {
		if !MatchesPredicates(raw, preds) {
			continue
		}
		var doc T
		if err := jsonAPI.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("executor: decode payload: %w", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// MatchesPredicates decodes raw once and evaluates every predicate against
// it; any T is accepted because encoding/json and json-iterator marshal
// struct fields identically regardless of concrete type.
func MatchesPredicates(raw any, preds []planner.Predicate) bool {
	var encoded []byte
	switch v := raw.(type) {
	case []byte:
		encoded = v
	default:
		b, err := jsonAPI.Marshal(v)
		if err != nil {
			return false
		}
		encoded = b
	}

	doc, err := docfield.Decode(encoded)
	if err != nil {
		return false
	}
	for _, p := range preds {
		if !evaluate(doc, p) {
			return false
		}
	}
	return true
}

// evaluate implements the predicate semantics: numeric-if-both-parse-as-
// number comparison else lexicographic string comparison, inclusive
// between/range, substring operators over the canonical string form, and
// exists/not_exists via map key presence.
func evaluate(doc map[string]any, pred planner.Predicate) bool {
	v, present := doc[pred.Field]

	switch pred.Op {
	case planner.Exists:
		return present
	case planner.NotExists:
		return !present
	}
	if !present {
		return false
	}
	val := docfield.Canonicalize(v)

	switch pred.Op {
	case planner.Equal:
		return scalar.Compare(val, docfield.Canonicalize(pred.Value)) == 0
	case planner.NotEqual:
		return scalar.Compare(val, docfield.Canonicalize(pred.Value)) != 0
	case planner.LessThan:
		return scalar.Compare(val, docfield.Canonicalize(pred.Value)) < 0
	case planner.LessOrEqual:
		return scalar.Compare(val, docfield.Canonicalize(pred.Value)) <= 0
	case planner.GreaterThan:
		return scalar.Compare(val, docfield.Canonicalize(pred.Value)) > 0
	case planner.GreaterOrEqual:
		return scalar.Compare(val, docfield.Canonicalize(pred.Value)) >= 0
	case planner.Between, planner.Range:
		lo, hi := docfield.Canonicalize(pred.Lo), docfield.Canonicalize(pred.Hi)
		return scalar.Compare(val, lo) >= 0 && scalar.Compare(val, hi) <= 0
	case planner.In:
		for _, want := range pred.Values {
			if scalar.Compare(val, docfield.Canonicalize(want)) == 0 {
				return true
			}
		}
		return false
	case planner.Contains:
		return strings.Contains(val, docfield.Canonicalize(pred.Value))
	case planner.StartsWith:
		return strings.HasPrefix(val, docfield.Canonicalize(pred.Value))
	case planner.EndsWith:
		return strings.HasSuffix(val, docfield.Canonicalize(pred.Value))
	default:
		return false
	}
}
