// -----------------------------------------------------------------------
// SyncDetector - diffs the upstream admissions catalog against the local
// catalog and emits the set of seeds needing (re)processing.
// -----------------------------------------------------------------------

package sync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nyushi/internal/interfaces"
	"github.com/ternarybob/nyushi/internal/models"
)

// urlHash mirrors the Catalog's own md5-based url_hash so GetChangedSourceIDs
// is comparing against the same hash function on both sides.
func urlHash(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Detector implements interfaces.SyncDetector: New ∪ Changed ∪ (Failed if
// requested), deduplicated by URL (an earlier set's entry wins; within a set,
// the lowest source_id), recording one sync_log row per run.
type Detector struct {
	logger   arbor.ILogger
	upstream interfaces.UpstreamCatalog
	catalog  interfaces.Catalog
}

// NewDetector builds a SyncDetector over the upstream read-only catalog and
// the local Catalog.
func NewDetector(logger arbor.ILogger, upstream interfaces.UpstreamCatalog, catalog interfaces.Catalog) *Detector {
	return &Detector{logger: logger, upstream: upstream, catalog: catalog}
}

var _ interfaces.SyncDetector = (*Detector)(nil)

// Detect mirrors original_source/sync/incremental_sync.py's
// run_detection + get_pending_links: pull every upstream seed, diff against
// the local catalog's known source IDs for "new", diff URL hashes for
// "changed", and pull already-failed tasks when requested, then merge and
// dedupe by URL.
func (d *Detector) Detect(ctx context.Context, opts interfaces.DetectOptions) ([]*models.Seed, error) {
	allSeeds, err := d.upstream.ListSeeds(ctx, opts.KindFilter)
	if err != nil {
		return nil, fmt.Errorf("sync: list upstream seeds: %w", err)
	}

	byID := make(map[int64]*models.Seed, len(allSeeds))
	for _, s := range allSeeds {
		byID[s.SourceID] = s
	}

	existingIDs, err := d.catalog.GetAllTaskSourceIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: list known task source ids: %w", err)
	}

	newSeeds := make([]*models.Seed, 0)
	for _, s := range allSeeds {
		if _, ok := existingIDs[s.SourceID]; !ok {
			newSeeds = append(newSeeds, s)
		}
	}

	var changedSeeds []*models.Seed
	if opts.IncludeChanged {
		urlHashes := make(map[int64]string, len(allSeeds))
		for _, s := range allSeeds {
			urlHashes[s.SourceID] = urlHash(s.URL)
		}
		changedIDs, err := d.catalog.GetChangedSourceIDs(ctx, urlHashes)
		if err != nil {
			return nil, fmt.Errorf("sync: list changed source ids: %w", err)
		}
		for _, id := range changedIDs {
			if s, ok := byID[id]; ok {
				changedSeeds = append(changedSeeds, s)
			}
		}
	}

	var failedSeeds []*models.Seed
	if opts.IncludeFailed {
		limit := opts.BatchSize
		if limit <= 0 {
			limit = 1000
		}
		failedTasks, err := d.catalog.ListTasksByStatus(ctx, models.TaskStatusFailed, limit)
		if err != nil {
			return nil, fmt.Errorf("sync: list failed tasks: %w", err)
		}
		for _, t := range failedTasks {
			if s, ok := byID[t.SourceID]; ok {
				failedSeeds = append(failedSeeds, s)
			}
		}
	}

	// Before a retry, wipe the existing task row for changed/failed entries
	// so upsert_task starts the source_id clean rather than layering a new
	// crawl on top of stale nodes/files from the previous attempt.
	for _, s := range changedSeeds {
		if err := d.deleteExistingTask(ctx, s.SourceID); err != nil {
			d.logger.Warn().Err(err).Int64("source_id", s.SourceID).Msg("failed to wipe changed task before retry")
		}
	}
	for _, s := range failedSeeds {
		if err := d.deleteExistingTask(ctx, s.SourceID); err != nil {
			d.logger.Warn().Err(err).Int64("source_id", s.SourceID).Msg("failed to wipe failed task before retry")
		}
	}

	pending := mergeDedupeByURL(newSeeds, changedSeeds, failedSeeds)

	if err := d.catalog.AppendSyncLog(ctx, &models.SyncLog{
		SourceCount:  len(allSeeds),
		NewCount:     len(newSeeds),
		ChangedCount: len(changedSeeds),
		Kind:         "incremental",
	}); err != nil {
		d.logger.Warn().Err(err).Msg("failed to append sync log, continuing")
	}

	if opts.BatchSize > 0 && len(pending) > opts.BatchSize {
		pending = pending[:opts.BatchSize]
	}

	d.logger.Info().
		Int("source_total", len(allSeeds)).
		Int("new", len(newSeeds)).
		Int("changed", len(changedSeeds)).
		Int("failed_retry", len(failedSeeds)).
		Int("pending", len(pending)).
		Msg("sync detection complete")

	return pending, nil
}

// deleteExistingTask looks up the current task row for sourceID, if any,
// and cascades its deletion so the upcoming upsert_task starts clean.
func (d *Detector) deleteExistingTask(ctx context.Context, sourceID int64) error {
	task, err := d.catalog.GetTaskBySourceID(ctx, sourceID)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}
	return d.catalog.DeleteTaskCascade(ctx, task.TaskID)
}

// mergeDedupeByURL concatenates the three seed sets in new/changed/failed
// priority order and keeps only the first occurrence of each URL. A URL in
// two sets keeps the earlier set's seed whatever its source_id; within one
// set each list is source-id ordered, so the lowest source_id wins there.
func mergeDedupeByURL(sets ...[]*models.Seed) []*models.Seed {
	seen := make(map[string]bool)
	var merged []*models.Seed

	for _, set := range sets {
		for _, s := range set {
			if seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			merged = append(merged, s)
		}
	}

	return merged
}
