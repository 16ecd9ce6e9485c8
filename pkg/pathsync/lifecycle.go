package pathsync

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/solaius/pathkeeper/pkg/entity"
	"github.com/solaius/pathkeeper/pkg/pathdb"
)

// SoftDelete retires the entity's slug row and its active path row in one
// transaction. Retired path versions stay behind for redirect resolution.
// Subscribers see a removal event (empty NewPath) so cached outcomes for
// the vacated path don't outlive it.
func (e *Engine) SoftDelete(ctx context.Context, ref entity.Ref) error {
	active, err := e.paths.WithTx(e.db.WithContext(ctx)).GetActive(ref.Type, ref.ID)
	if err != nil {
		return err
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.slugs.WithTx(tx).SoftDelete(ref.Type, ref.ID); err != nil {
			return err
		}
		return e.paths.WithTx(tx).RetireActive(ref.Type, ref.ID)
	})
	if err != nil {
		return err
	}
	if active != nil {
		e.notifier.Publish(ChangeEvent{Ref: ref, OldPath: &active.FullPath, Version: active.Version})
	}
	return nil
}

// Restore re-activates a soft-deleted entity: the slug row is conflict-checked
// against active rows that may have claimed the (type, slug, group) in the
// interim, restored, and then the path phase re-runs in full, which re-checks
// path conflicts and recreates the current version.
func (e *Engine) Restore(ctx context.Context, ent entity.PathBuilder) (*ChangeEvent, error) {
	ref := ent.EntityRef()

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slugs := e.slugs.WithTx(tx)

		record, err := slugs.Get(ref.Type, ref.ID)
		if err != nil {
			return err
		}
		if record == nil {
			return nil
		}

		if record.Slug != "" {
			conflict, err := slugs.HasActiveConflict(ref.Type, record.Slug, record.Group, ref.ID)
			if err != nil {
				return err
			}
			if conflict {
				return fmt.Errorf("restore %s: slug %q: %w", ref, record.Slug, ErrSlugConflict)
			}
		}

		if err := slugs.Restore(ref.Type, ref.ID); err != nil {
			if pathdb.IsUniqueViolation(err) {
				return fmt.Errorf("restore %s: slug %q: %w", ref, record.Slug, ErrSlugConflict)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Path sync runs after the restore transaction committed, mirroring the
	// normal save cycle. It throws ErrPathConflict if another entity took
	// over the path while this one was deleted.
	return e.SyncPath(ctx, ent)
}

// Purge permanently removes every slug and path row for the entity, all
// versions included. Destructive and irreversible; no conflict checks. As
// with SoftDelete, a removal event is published when an active path existed.
func (e *Engine) Purge(ctx context.Context, ref entity.Ref) error {
	active, err := e.paths.WithTx(e.db.WithContext(ctx)).GetActive(ref.Type, ref.ID)
	if err != nil {
		return err
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := e.slugs.WithTx(tx).Purge(ref.Type, ref.ID); err != nil {
			return err
		}
		return e.paths.WithTx(tx).Purge(ref.Type, ref.ID)
	})
	if err != nil {
		return err
	}
	if active != nil {
		e.notifier.Publish(ChangeEvent{Ref: ref, OldPath: &active.FullPath, Version: active.Version})
	}
	return nil
}

// History returns the entity's path versions, oldest first, optionally
// including retired versions, or ErrNotFound when the entity has none.
func (e *Engine) History(ctx context.Context, ref entity.Ref, includeRetired bool) ([]pathdb.PathRecord, error) {
	records, err := e.paths.WithTx(e.db.WithContext(ctx)).GetHistory(ref.Type, ref.ID, includeRetired)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("history for %s: %w", ref, ErrNotFound)
	}
	return records, nil
}
