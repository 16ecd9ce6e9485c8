// Package resolve implements the inbound read path: mapping a requested URL
// path to its live owner, or to the current canonical path of whatever used
// to live there, so stale links keep working as permanent redirects.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/solaius/pathkeeper/pkg/entity"
	"github.com/solaius/pathkeeper/pkg/pathdb"
	"github.com/solaius/pathkeeper/pkg/pathsync"
)

// Kind is the outcome variant of a resolution.
type Kind string

const (
	KindFound    Kind = "found"
	KindRedirect Kind = "redirect"
	KindNotFound Kind = "not_found"
)

// Resolution is the single outcome of one Resolve call. Record and Entity
// are set for Found; RedirectTo for Redirect.
type Resolution struct {
	Kind       Kind
	Record     *pathdb.PathRecord
	Entity     entity.PathBuilder
	RedirectTo string
}

// Resolver answers inbound path lookups against the path store.
type Resolver struct {
	paths    *pathdb.PathStore
	registry *entity.Registry
	cache    *outcomeCache
	cfg      *ResolverConfig
	logger   *slog.Logger
}

// NewResolver creates a resolver over the given path store and registry.
func NewResolver(paths *pathdb.PathStore, registry *entity.Registry, cfg *ResolverConfig, logger *slog.Logger) *Resolver {
	if cfg == nil {
		cfg = DefaultResolverConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		paths:    paths,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.CacheEnabled {
		r.cache = newOutcomeCache(cfg.CacheSize, cfg.CacheTTL)
	}
	return r
}

// HandleChange invalidates cached outcomes after any path change, removals
// included. Subscribe it to the engine's notifier.
func (r *Resolver) HandleChange(pathsync.ChangeEvent) {
	if r.cache != nil {
		r.cache.InvalidateAll()
	}
}

// Resolve maps a raw request path to exactly one outcome. Over-long input is
// rejected before any lookup. A dangling owner reference degrades to
// NotFound; a retired path whose owner has no current path likewise.
func (r *Resolver) Resolve(ctx context.Context, rawPath string) (Resolution, error) {
	if len(rawPath) > r.cfg.MaxPathLength {
		return Resolution{}, fmt.Errorf("request path (%d bytes): %w", len(rawPath), pathsync.ErrPathTooLong)
	}

	normalized := strings.Trim(strings.TrimSpace(rawPath), "/")
	if normalized == "" {
		return Resolution{Kind: KindNotFound}, nil
	}

	candidates := []string{normalized}
	if r.cfg.ProbeSlashVariants {
		// Legacy rows recorded before normalization may carry padding.
		candidates = append(candidates, "/"+normalized, normalized+"/")
	}

	// Active owner first.
	for _, candidate := range candidates {
		record, err := r.paths.FindActiveByPath(candidate)
		if err != nil {
			return Resolution{}, err
		}
		if record == nil {
			continue
		}
		ent, err := r.registry.Load(ctx, entity.Ref{Type: record.EntityType, ID: record.EntityID})
		if err != nil {
			return Resolution{}, err
		}
		if ent == nil {
			r.logger.Warn("active path has dangling owner",
				"path", candidate, "entityType", record.EntityType, "entityId", record.EntityID)
			return Resolution{Kind: KindNotFound}, nil
		}
		return Resolution{Kind: KindFound, Record: record, Entity: ent}, nil
	}

	if r.cache != nil {
		if outcome, ok := r.cache.Get(normalized); ok {
			return Resolution{Kind: outcome.Kind, RedirectTo: outcome.RedirectTo}, nil
		}
	}

	// Fall back to the most recent retired record and its owner's current
	// canonical path.
	resolution, err := r.resolveRetired(normalized, candidates)
	if err != nil {
		return Resolution{}, err
	}
	if r.cache != nil {
		r.cache.Set(normalized, cachedOutcome{Kind: resolution.Kind, RedirectTo: resolution.RedirectTo})
	}
	return resolution, nil
}

func (r *Resolver) resolveRetired(normalized string, candidates []string) (Resolution, error) {
	for _, candidate := range candidates {
		retired, err := r.paths.FindMostRecentRetiredByPath(candidate)
		if err != nil {
			return Resolution{}, err
		}
		if retired == nil {
			continue
		}
		current, err := r.paths.GetActive(retired.EntityType, retired.EntityID)
		if err != nil {
			return Resolution{}, err
		}
		if current == nil || current.FullPath == normalized {
			return Resolution{Kind: KindNotFound}, nil
		}
		return Resolution{Kind: KindRedirect, RedirectTo: current.FullPath}, nil
	}
	return Resolution{Kind: KindNotFound}, nil
}
