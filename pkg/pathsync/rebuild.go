package pathsync

import (
	"context"
	"fmt"
)

// RebuildOptions scope a bulk rebuild. Filter is an opaque, type-defined
// expression handed to the registered enumerator; empty means all entities.
type RebuildOptions struct {
	Filter    string
	BatchSize int
}

// RebuildResult summarizes one bulk rebuild pass.
type RebuildResult struct {
	Synced  int // entities whose path phase ran
	Changed int // entities that activated a new path version
	Failed  int // entities whose sync failed (conflicts included)
}

// Rebuild re-runs the path phase for every entity of a type, in bounded
// batches, bypassing the slug and cascade phases. Safe to call liberally:
// entities whose path is already current are untouched. Per-entity failures
// (for example a path conflict left behind by a suppressed cascade against a
// since-claimed path) are counted, logged, and skipped.
func (e *Engine) Rebuild(ctx context.Context, entityType string, opts RebuildOptions) (RebuildResult, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = e.cfg.RebuildBatchSize
	}

	var result RebuildResult
	for offset := 0; ; offset += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := e.registry.Enumerate(ctx, entityType, opts.Filter, offset, batchSize)
		if err != nil {
			return result, fmt.Errorf("rebuild %q: %w", entityType, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, ent := range batch {
			if ent == nil {
				continue
			}
			result.Synced++
			ev, err := e.SyncPath(ctx, ent)
			if err != nil {
				result.Failed++
				e.logger.Warn("rebuild sync failed",
					"entity", ent.EntityRef().String(), "error", err)
				continue
			}
			if ev != nil {
				result.Changed++
			}
		}

		if len(batch) < batchSize {
			break
		}
	}

	e.logger.Info("rebuild finished", "entityType", entityType,
		"synced", result.Synced, "changed", result.Changed, "failed", result.Failed)
	return result, nil
}
