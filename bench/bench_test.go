// Package bench provides reproducible micro-benchmarks for nyarudb.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// We measure:
//  1. Insert        — single-document write-only workload
//  2. BulkInsert    — batched write workload across partitions
//  3. QueryIndexOnly — an Equal lookup over an indexed field
//  4. QueryFullScan  — a predicate over a field with no index
//
// NOTE: Unit tests live elsewhere; this file is only for performance.
//
// © 2025 nyarudb authors. MIT License.
package bench

import (
	"context"
	"testing"

	"github.com/Voskan/nyarudb"
	"github.com/Voskan/nyarudb/internal/planner"
)

type record struct {
	ID     int    `json:"id"`
	Region string `json:"region"`
	Value  int    `json:"value"`
}

const seedDocs = 1 << 14 // 16384 documents for warm-up datasets

func newBenchStore(b *testing.B) *nyarudb.Store {
	b.Helper()
	store, err := nyarudb.Open(b.TempDir())
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	b.Cleanup(func() { _ = store.Close() })
	return store
}

func regionFor(i int) string {
	return []string{"eu", "us", "apac"}[i%3]
}

func BenchmarkInsert(b *testing.B) {
	store := newBenchStore(b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := record{ID: i, Region: regionFor(i), Value: i}
		if err := store.Insert(context.Background(), "records", rec, ""); err != nil {
			b.Fatalf("insert: %v", err)
		}
	}
}

func BenchmarkBulkInsert(b *testing.B) {
	store := newBenchStore(b)
	require := func(err error) {
		if err != nil {
			b.Fatalf("bulk insert: %v", err)
		}
	}
	require(store.SetPartitionKey("records", "region"))

	batch := make([]any, 256)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j := range batch {
			idx := i*len(batch) + j
			batch[j] = record{ID: idx, Region: regionFor(idx), Value: idx}
		}
		require(store.BulkInsert(context.Background(), "records", batch, ""))
	}
}

func BenchmarkQueryIndexOnly(b *testing.B) {
	store := newBenchStore(b)
	ctx := context.Background()
	for i := 0; i < seedDocs; i++ {
		rec := record{ID: i, Region: regionFor(i), Value: i}
		if err := store.Insert(ctx, "records", rec, "region"); err != nil {
			b.Fatalf("seed insert: %v", err)
		}
	}

	preds := []planner.Predicate{{Field: "region", Op: planner.Equal, Value: "eu"}}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := nyarudb.Query[record](ctx, store, "records", preds); err != nil {
			b.Fatalf("query: %v", err)
		}
	}
}

func BenchmarkQueryFullScan(b *testing.B) {
	store := newBenchStore(b)
	ctx := context.Background()
	for i := 0; i < seedDocs; i++ {
		rec := record{ID: i, Region: regionFor(i), Value: i}
		if err := store.Insert(ctx, "records", rec, ""); err != nil {
			b.Fatalf("seed insert: %v", err)
		}
	}

	preds := []planner.Predicate{{Field: "value", Op: planner.GreaterThan, Value: float64(seedDocs / 2)}}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := nyarudb.Query[record](ctx, store, "records", preds); err != nil {
			b.Fatalf("query: %v", err)
		}
	}
}
