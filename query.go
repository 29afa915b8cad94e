package nyarudb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	jsoniter "github.com/json-iterator/go"

	"github.com/Voskan/nyarudb/internal/docfield"
	"github.com/Voskan/nyarudb/internal/executor"
	"github.com/Voskan/nyarudb/internal/planner"
	"github.com/Voskan/nyarudb/internal/shard"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Fetch loads every document in collection, decoded as T. Shards are loaded
// in parallel and the results concatenated; a non-existent collection
// yields an empty, non-nil slice.
func Fetch[T any](ctx context.Context, s *Store, collection string) ([]T, error) {
	h, err := s.getCollection(collection)
	if err != nil {
		return []T{}, nil
	}

	shards := h.shards.AllShards()
	loaded := make([][]T, len(shards))

	g, _ := errgroup.WithContext(ctx)
	for i, sh := range shards {
		i, sh := i, sh
		g.Go(func() error {
			docs, err := shard.LoadDocuments[T](sh)
			if err != nil {
				return &IoError{Op: "load shard " + sh.ID(), Err: err}
			}
			loaded[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := []T{}
	for _, docs := range loaded {
		out = append(out, docs...)
	}
	return out, nil
}

// FetchLazy returns a streaming iterator over every document in collection,
// one shard at a time, so memory use stays bounded regardless of collection
// size.
func FetchLazy[T any](ctx context.Context, s *Store, collection string) (*executor.Iterator[T], error) {
	h, err := s.getCollection(collection)
	if err != nil {
		return &executor.Iterator[T]{}, nil
	}
	plan := planner.Plan(collection, nil, nil, nil, nil)
	return executor.Execute[T](ctx, plan, h.shards.AllShards(), h.indexes, nil)
}

// FetchFromIndex looks up every document field's index entry equal to
// value, decoded as T.
func FetchFromIndex[T any](s *Store, collection, field string, value any) ([]T, error) {
	h, err := s.getCollection(collection)
	if err != nil {
		return []T{}, nil
	}

	payloads := h.indexes.Search(field, docfield.Canonicalize(value))
	out := make([]T, 0, len(payloads))
	for _, raw := range payloads {
		var doc T
		if err := jsonAPI.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("nyarudb: decode indexed document: %w", err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// Query plans and executes preds against collection, returning every
// matching document decoded as T. This is the façade's wiring point for the
// planner (C8) and executor (C9): Explain exposes the same plan without
// running it.
func Query[T any](ctx context.Context, s *Store, collection string, preds []planner.Predicate) ([]T, error) {
	h, err := s.getCollection(collection)
	if err != nil {
		return []T{}, nil
	}

	plan := h.plan(preds)
	it, err := executor.Execute[T](ctx, plan, h.shards.AllShards(), h.indexes, h.tracker.Ranges())
	if err != nil {
		return nil, err
	}
	defer it.Close()

	out := []T{}
	for {
		doc, ok, err := it.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, doc)
	}
	return out, nil
}

// Repartition re-groups every document in collection by newField's
// extracted value, replacing the collection's shard set. It is
// all-or-nothing: existing shards are hard-linked (or copied, on a
// cross-device root) into a backup directory first; a per-document grouping
// failure restores the collection from the backup and removes it, leaving
// the collection exactly as it was before the call.
func (s *Store) Repartition(ctx context.Context, collection, newField string) error {
	h, err := s.getCollection(collection)
	if err != nil {
		return err
	}

	backupDir := repartitionBackupDir(h.dir)
	if err := snapshotDir(h.dir, backupDir); err != nil {
		return &IoError{Op: "snapshot " + h.dir, Err: err}
	}

	if err := h.doRepartition(ctx, newField); err != nil {
		if restoreErr := restoreDir(h.dir, backupDir); restoreErr != nil {
			return &IoError{Op: "restore " + h.dir + " after failed repartition", Err: restoreErr}
		}
		// doRepartition may have already cleared h.shards (and, if it got far
		// enough, mutated h.cfg) before failing; restoreDir only fixes the
		// files on disk, so the live in-memory handle must be rebuilt from
		// what was actually restored.
		if reloadErr := h.reloadFromDisk(s.compression, s.logger); reloadErr != nil {
			return &IoError{Op: "resync " + h.dir + " after restored repartition", Err: reloadErr}
		}
		return err
	}

	if err := os.RemoveAll(backupDir); err != nil {
		return &IoError{Op: "remove backup " + backupDir, Err: err}
	}
	return nil
}

func (h *collectionHandle) doRepartition(ctx context.Context, newField string) error {
	groups := make(map[string][]json.RawMessage)
	for _, sh := range h.shards.AllShards() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		docs, err := shard.LoadDocuments[json.RawMessage](sh)
		if err != nil {
			return &IoError{Op: "load shard " + sh.ID(), Err: err}
		}
		for _, d := range docs {
			id, err := docfield.Extract(d, newField, docfield.RolePartition)
			if err != nil {
				return err
			}
			groups[id] = append(groups[id], d)
		}
	}

	for _, sh := range h.shards.AllShards() {
		h.tracker.Forget(sh.ID())
	}
	if err := h.shards.RemoveAllShards(); err != nil {
		return &IoError{Op: "clear shards for repartition", Err: err}
	}

	h.mu.Lock()
	h.cfg.PartitionField = newField
	configErr := h.writeConfig()
	h.mu.Unlock()
	if configErr != nil {
		return &IoError{Op: "persist repartitioned config", Err: configErr}
	}

	for id, docs := range groups {
		sh, err := h.shards.GetOrCreateShard(id)
		if err != nil {
			return err
		}
		if err := shard.SaveDocuments(sh, docs); err != nil {
			return &IoError{Op: "save repartitioned shard " + id, Err: err}
		}
		h.refreshRanges(sh)
	}
	return nil
}

// snapshotDir hard-links every regular file from src into a fresh dst,
// falling back to a byte copy when the two directories are not on the same
// device (hard links cannot cross filesystems).
func snapshotDir(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if err := os.Link(srcPath, dstPath); err != nil {
			if copyErr := copyFile(srcPath, dstPath); copyErr != nil {
				return copyErr
			}
		}
	}
	return nil
}

// restoreDir replaces dir's contents with backupDir's and removes backupDir.
func restoreDir(dir, backupDir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.Rename(backupDir, dir); err != nil {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
