package nyarudb

import (
	"context"
	"encoding/json"

	"golang.org/x/sync/errgroup"

	"github.com/Voskan/nyarudb/internal/executor"
	"github.com/Voskan/nyarudb/internal/planner"
	"github.com/Voskan/nyarudb/internal/shard"
)

func encodeDoc(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, &InvalidDocumentError{Reason: err.Error()}
	}
	return raw, nil
}

// Insert encodes doc, routes it to the shard its partition field selects
// (or the "default" shard when the collection has no partition field), and
// appends it. If indexField is non-empty, doc is also upserted into that
// field's index, creating the index first if necessary. Inserting into a
// non-existent collection creates it.
func (s *Store) Insert(ctx context.Context, collection string, doc any, indexField string) error {
	h, err := s.getOrCreateCollection(collection)
	if err != nil {
		return err
	}

	encoded, err := encodeDoc(doc)
	if err != nil {
		return err
	}

	id, err := shardIDFor(encoded, h.cfg.PartitionField)
	if err != nil {
		return err
	}

	sh, err := h.shards.GetOrCreateShard(id)
	if err != nil {
		return err
	}

	if err := shard.AppendDocument(sh, json.RawMessage(encoded)); err != nil {
		return &IoError{Op: "append document to shard " + id, Err: err}
	}

	if indexField != "" {
		if err := h.ensureIndex(indexField); err != nil {
			return err
		}
		if err := h.indexes.Upsert(indexField, encoded); err != nil {
			return err
		}
		if err := h.indexes.Persist(); err != nil {
			return &IoError{Op: "persist index " + indexField, Err: err}
		}
	}

	h.refreshRanges(sh)
	return nil
}

// BulkInsert groups docs by partition field, appends each group to its
// shard in one write, and optionally upserts every document into
// indexField's index. It honors ctx cancellation between shard groups.
func (s *Store) BulkInsert(ctx context.Context, collection string, docs []any, indexField string) error {
	h, err := s.getOrCreateCollection(collection)
	if err != nil {
		return err
	}

	groups := make(map[string][]json.RawMessage)
	for _, doc := range docs {
		encoded, err := encodeDoc(doc)
		if err != nil {
			return err
		}
		id, err := shardIDFor(encoded, h.cfg.PartitionField)
		if err != nil {
			return err
		}
		groups[id] = append(groups[id], json.RawMessage(encoded))
	}

	if indexField != "" {
		if err := h.ensureIndex(indexField); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for id, batch := range groups {
		id, batch := id, batch
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			sh, err := h.shards.GetOrCreateShard(id)
			if err != nil {
				return err
			}
			existing, err := shard.LoadDocuments[json.RawMessage](sh)
			if err != nil {
				return &IoError{Op: "load shard " + id, Err: err}
			}
			merged := append(existing, batch...)
			if err := shard.SaveDocuments(sh, merged); err != nil {
				return &IoError{Op: "save shard " + id, Err: err}
			}

			if indexField != "" {
				for _, raw := range batch {
					if err := h.indexes.Upsert(indexField, raw); err != nil {
						return err
					}
				}
			}

			h.refreshRanges(sh)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if indexField != "" {
		if err := h.indexes.Persist(); err != nil {
			return &IoError{Op: "persist index " + indexField, Err: err}
		}
	}
	return nil
}

// refreshRanges recomputes sh's tracked field ranges from its current
// contents, over every field this collection indexes.
func (h *collectionHandle) refreshRanges(sh *shard.Shard) {
	fields := h.indexedFields()
	if len(fields) == 0 {
		return
	}
	docs, err := shard.LoadDocuments[json.RawMessage](sh)
	if err != nil {
		return
	}
	raw := make([][]byte, len(docs))
	for i, d := range docs {
		raw[i] = d
	}
	h.tracker.RecordShard(sh.ID(), raw, fields)
}

// Update scans every shard for the first document matching pred and
// replaces it with newDoc, re-upserting indexField's index entry if set. A
// given shard contributes at most one updated document ("first match within
// the shard" — see DESIGN.md). Fails with *UpdateDocumentNotFoundError if no
// shard has a match.
func (s *Store) Update(ctx context.Context, collection string, pred planner.Predicate, newDoc any, indexField string) error {
	h, err := s.getCollection(collection)
	if err != nil {
		return err
	}

	encodedNew, err := encodeDoc(newDoc)
	if err != nil {
		return err
	}

	found := false
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

		idx := -1
		for i, d := range docs {
			if executor.MatchesPredicates([]byte(d), []planner.Predicate{pred}) {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		docs[idx] = json.RawMessage(encodedNew)
		if err := shard.SaveDocuments(sh, docs); err != nil {
			return &IoError{Op: "save shard " + sh.ID(), Err: err}
		}
		if indexField != "" {
			if err := h.ensureIndex(indexField); err != nil {
				return err
			}
			if err := h.indexes.Upsert(indexField, encodedNew); err != nil {
				return err
			}
			if err := h.indexes.Persist(); err != nil {
				return &IoError{Op: "persist index " + indexField, Err: err}
			}
		}
		h.refreshRanges(sh)
		found = true
	}

	if !found {
		return &UpdateDocumentNotFoundError{Collection: collection}
	}
	return nil
}

// Delete removes every document matching pred from collection, rewriting
// each affected shard with its surviving documents.
func (s *Store) Delete(ctx context.Context, collection string, pred planner.Predicate) error {
	h, err := s.getCollection(collection)
	if err != nil {
		return err
	}

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

		survivors := make([]json.RawMessage, 0, len(docs))
		changed := false
		for _, d := range docs {
			if executor.MatchesPredicates([]byte(d), []planner.Predicate{pred}) {
				changed = true
				continue
			}
			survivors = append(survivors, d)
		}
		if !changed {
			continue
		}

		if err := shard.SaveDocuments(sh, survivors); err != nil {
			return &IoError{Op: "save shard " + sh.ID(), Err: err}
		}
		h.refreshRanges(sh)
	}
	return nil
}
