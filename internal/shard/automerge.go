package shard

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMergeInterval and DefaultMergeThreshold are the fixed defaults
// named in spec §4.4; both are configurable via RunAutoMerge's parameters.
const (
	DefaultMergeInterval  = 60 * time.Second
	DefaultMergeThreshold = 100
)

// RunAutoMerge runs the background small-shard consolidation loop until ctx
// is cancelled. Each tick: shards with DocumentCount < threshold are sorted
// by CreatedAt; if fewer than two qualify, the tick is a no-op. Otherwise
// the oldest becomes the primary and every other candidate's documents are
// appended into it, after which the candidate's file and side-car are
// removed. A failure on one candidate is logged and that candidate is
// skipped — merge never aborts the whole tick, and never propagates to the
// caller (it runs in its own goroutine).
func (mgr *Manager) RunAutoMerge(ctx context.Context, interval time.Duration, threshold int) {
	if interval <= 0 {
		interval = DefaultMergeInterval
	}
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.mergeTick(threshold)
		}
	}
}

func (mgr *Manager) mergeTick(threshold int) {
	runID := uuid.NewString()
	logger := mgr.logger.With(zap.String("merge_run", runID))

	candidates := mgr.mergeCandidates(threshold)
	if len(candidates) < 2 {
		return
	}

	primary := candidates[0]
	for _, secondary := range candidates[1:] {
		if err := mgr.mergeInto(primary, secondary); err != nil {
			logger.Warn("auto-merge: skipping candidate",
				zap.String("primary", primary.ID()),
				zap.String("secondary", secondary.ID()),
				zap.Error(err))
			continue
		}

		mgr.mu.Lock()
		delete(mgr.shards, secondary.ID())
		mgr.mu.Unlock()

		logger.Debug("auto-merge: merged shard",
			zap.String("primary", primary.ID()),
			zap.String("secondary", secondary.ID()))
	}
}

// mergeCandidates returns shards with DocumentCount < threshold, sorted by
// CreatedAt ascending (oldest first).
func (mgr *Manager) mergeCandidates(threshold int) []*Shard {
	all := mgr.AllShards()
	out := make([]*Shard, 0, len(all))
	for _, s := range all {
		if s.Metadata().DocumentCount < threshold {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata().CreatedAt.Before(out[j].Metadata().CreatedAt)
	})
	return out
}

// mergeInto appends secondary's documents into primary and removes
// secondary's on-disk artifacts. Each shard operation only ever holds one
// shard's own mutex at a time, so merging never risks a cross-shard
// deadlock against concurrent user writes.
func (mgr *Manager) mergeInto(primary, secondary *Shard) error {
	secondaryDocs, err := LoadDocuments[json.RawMessage](secondary)
	if err != nil {
		return err
	}

	primaryDocs, err := LoadDocuments[json.RawMessage](primary)
	if err != nil {
		return err
	}

	merged := append(primaryDocs, secondaryDocs...)
	if err := SaveDocuments(primary, merged); err != nil {
		return err
	}

	if err := os.Remove(secondary.Path()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(secondary.metaPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
