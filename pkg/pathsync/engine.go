// Package pathsync implements the versioned URL/slug synchronization engine:
// it keeps one current slug per entity, versions the computed full path,
// cascades recomputation to dependents, and keeps both stores consistent
// across soft-delete, restore, and permanent delete.
package pathsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"

	"github.com/solaius/pathkeeper/pkg/entity"
	"github.com/solaius/pathkeeper/pkg/pathdb"
	"github.com/solaius/pathkeeper/pkg/slugify"
)

// Options controls one Sync call. Slug and Group carry the raw caller input;
// nil means "not supplied". An explicit empty Group clears the group.
// DisableCascade suppresses dependent recomputation for this call only;
// a later rebuild restores consistency.
type Options struct {
	Slug           *string
	Group          *string
	DisableCascade bool
}

// Engine orchestrates slug upserts, path version-and-swap, and cascades.
// All state lives in the stores; the engine itself is safe for concurrent
// use and holds no per-call state.
type Engine struct {
	db       *gorm.DB
	slugs    *pathdb.SlugStore
	paths    *pathdb.PathStore
	registry *entity.Registry
	notifier *Notifier
	cfg      *EngineConfig
	logger   *slog.Logger
}

// NewEngine creates an engine over the given database handle and registry.
func NewEngine(db *gorm.DB, registry *entity.Registry, cfg *EngineConfig, logger *slog.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:       db,
		slugs:    pathdb.NewSlugStore(db),
		paths:    pathdb.NewPathStore(db),
		registry: registry,
		notifier: NewNotifier(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Notifier exposes the engine's change-event fan-out for subscription.
func (e *Engine) Notifier() *Notifier { return e.notifier }

// Registry returns the entity registry the engine was built with.
func (e *Engine) Registry() *entity.Registry { return e.registry }

// SlugStore returns the engine's slug store.
func (e *Engine) SlugStore() *pathdb.SlugStore { return e.slugs }

// PathStore returns the engine's path store.
func (e *Engine) PathStore() *pathdb.PathStore { return e.paths }

// Sync runs the full save-triggered cycle for one entity: slug phase, path
// phase, cascade phase. It is called after the entity's own row has been
// committed, so it never reads uncommitted state. The returned event is nil
// when no new path version was activated.
func (e *Engine) Sync(ctx context.Context, ent entity.PathBuilder, opts Options) (*ChangeEvent, error) {
	ref := ent.EntityRef()

	slugChanged, err := e.syncSlug(ctx, ent, opts)
	if err != nil {
		return nil, err
	}

	ev, err := e.SyncPath(ctx, ent)
	if err != nil {
		return nil, err
	}

	if slugChanged && !opts.DisableCascade {
		if err := e.cascade(ctx, ent); err != nil {
			// The ancestor's change is committed; cascade failures surface
			// without unwinding it.
			return ev, fmt.Errorf("cascade from %s: %w", ref, err)
		}
	}

	return ev, nil
}

// syncSlug normalizes the supplied slug and group, detects whether either
// differs from the stored record, conflict-checks, and upserts. Reports
// whether a slug or group change was persisted.
func (e *Engine) syncSlug(ctx context.Context, ent entity.PathBuilder, opts Options) (bool, error) {
	if opts.Slug == nil && opts.Group == nil {
		return false, nil
	}

	ref := ent.EntityRef()
	group := resolveGroup(opts.Group, ent)

	current, err := e.slugs.Get(ref.Type, ref.ID)
	if err != nil {
		return false, err
	}

	slug := ""
	if opts.Slug != nil {
		slug = slugify.Make(*opts.Slug)
	}
	if slug == "" {
		// Empty after normalization means no slug supplied; keep whatever
		// is stored and skip uniqueness checks for it.
		if current == nil {
			return false, nil
		}
		slug = current.Slug
	}

	if current != nil && current.State == pathdb.StateActive &&
		current.Slug == slug && groupEqual(current.Group, group) {
		return false, nil
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slugs := e.slugs.WithTx(tx)
		if slug != "" {
			conflict, err := slugs.HasActiveConflict(ref.Type, slug, group, ref.ID)
			if err != nil {
				return err
			}
			if conflict {
				return fmt.Errorf("slug %q for %s: %w", slug, ref, ErrSlugConflict)
			}
		}
		if err := slugs.Upsert(ref.Type, ref.ID, slug, group); err != nil {
			if pathdb.IsUniqueViolation(err) {
				return fmt.Errorf("slug %q for %s: %w", slug, ref, ErrSlugConflict)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// SyncPath runs the path phase only: compute the entity's current path and,
// if it differs from the active record, version-and-swap inside a single
// transaction. Used directly by restore and bulk rebuild, which bypass the
// slug and cascade phases.
func (e *Engine) SyncPath(ctx context.Context, ent entity.PathBuilder) (*ChangeEvent, error) {
	ref := ent.EntityRef()

	newPath, err := ent.ComputePath()
	if err != nil {
		return nil, fmt.Errorf("compute path for %s: %w", ref, err)
	}
	if newPath == "" {
		// The entity cannot produce a path yet (no slug saved).
		return nil, nil
	}
	if len(newPath) > e.cfg.MaxPathLength {
		return nil, fmt.Errorf("path for %s (%d bytes): %w", ref, len(newPath), ErrPathTooLong)
	}

	group, err := e.recordGroup(ent)
	if err != nil {
		return nil, err
	}

	var ev *ChangeEvent
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paths := e.paths.WithTx(tx)

		active, err := paths.GetActive(ref.Type, ref.ID)
		if err != nil {
			return err
		}

		if active != nil && active.FullPath == newPath {
			// Same path, possibly a group-only correction. No version bump,
			// no conflict check, no event.
			if !groupEqual(active.Group, group) {
				return paths.UpdateActiveGroup(ref.Type, ref.ID, group)
			}
			return nil
		}

		owner, err := paths.FindActiveByPath(newPath)
		if err != nil {
			return err
		}
		if owner != nil && (owner.EntityType != ref.Type || owner.EntityID != ref.ID) {
			return fmt.Errorf("path %q for %s: held by %s/%s: %w",
				newPath, ref, owner.EntityType, owner.EntityID, ErrPathConflict)
		}

		// Purge must precede insertion so a reused path never leaves
		// retired duplicates behind.
		if err := paths.PurgeRetiredDuplicates(newPath); err != nil {
			return err
		}

		var oldPath *string
		if active != nil {
			oldPath = &active.FullPath
			if err := paths.RetireActive(ref.Type, ref.ID); err != nil {
				return err
			}
		}

		maxVersion, err := paths.MaxVersion(ref.Type, ref.ID)
		if err != nil {
			return err
		}

		record, err := paths.CreateVersion(ref.Type, ref.ID, newPath, group, maxVersion+1)
		if err != nil {
			// A concurrent writer can win the path between the conflict
			// check and the insert; the partial unique index rejects the
			// loser here.
			if pathdb.IsUniqueViolation(err) {
				return fmt.Errorf("path %q for %s: %w", newPath, ref, ErrPathConflict)
			}
			return err
		}

		ev = &ChangeEvent{Ref: ref, OldPath: oldPath, NewPath: newPath, Version: record.Version}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ev != nil {
		e.logger.Debug("path version activated",
			"entity", ref.String(), "path", ev.NewPath, "version", ev.Version)
		e.notifier.Publish(*ev)
	}
	return ev, nil
}

// cascade recomputes every dependent's path, one transaction per dependent,
// sequentially. A failing dependent is logged and reported but never stops
// the rest of the set.
func (e *Engine) cascade(ctx context.Context, ent entity.PathBuilder) error {
	lister, ok := ent.(entity.DependentLister)
	if !ok {
		return nil
	}

	dependents, err := lister.ListDependents(ctx)
	if err != nil {
		return fmt.Errorf("list dependents: %w", err)
	}

	seen := mapset.NewThreadUnsafeSet[entity.Ref]()
	var errs []error
	for _, dep := range dependents {
		if dep == nil || !seen.Add(dep.EntityRef()) {
			continue
		}
		if _, err := e.SyncPath(ctx, dep); err != nil {
			e.logger.Warn("cascade sync failed",
				"entity", dep.EntityRef().String(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ActivePathOrFail returns the entity's active path record, or ErrNotFound.
func (e *Engine) ActivePathOrFail(entityType, entityID string) (*pathdb.PathRecord, error) {
	record, err := e.paths.GetActive(entityType, entityID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("active path for %s/%s: %w", entityType, entityID, ErrNotFound)
	}
	return record, nil
}

// recordGroup resolves the group value mirrored onto path records: the
// stored slug record's group when one exists, the entity's default group
// otherwise.
func (e *Engine) recordGroup(ent entity.PathBuilder) (*string, error) {
	ref := ent.EntityRef()
	record, err := e.slugs.Get(ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record.Group, nil
	}
	return resolveGroup(nil, ent), nil
}

// resolveGroup applies the effective-group chain: explicit caller value,
// then the entity's own default hook, then none. An explicit empty string
// clears the group.
func resolveGroup(explicit *string, ent entity.Entity) *string {
	if explicit != nil {
		if *explicit == "" {
			return nil
		}
		return explicit
	}
	if gd, ok := ent.(entity.GroupDefaulter); ok {
		return gd.DefaultGroup()
	}
	return nil
}

func groupEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
