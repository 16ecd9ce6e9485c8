// Package entity defines the polymorphic entity references and capability
// interfaces that connect consuming domain types to the path engine. Domain
// types implement the capabilities explicitly; the engine never reflects.
package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotRegistered is returned when a Ref names an entity type that was never
// registered.
var ErrNotRegistered = errors.New("entity type not registered")

// ErrContractViolation is returned when an entity type is registered without
// implementing the PathBuilder capability. This is a programming error and
// callers are expected to treat it as fatal at startup.
var ErrContractViolation = errors.New("entity type does not implement PathBuilder")

// Ref identifies one entity of one registered type. IDs are opaque strings;
// domains using numeric or UUID keys format them on the way in.
type Ref struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (r Ref) String() string {
	return r.Type + "/" + r.ID
}

// Entity is anything that can own a canonical path.
type Entity interface {
	EntityRef() Ref
}

// PathBuilder is the required capability: a pure, deterministic computation
// of the entity's full canonical path from its own slug and its ancestors'
// slugs. No leading or trailing slash, no query string.
type PathBuilder interface {
	Entity
	ComputePath() (string, error)
}

// DependentLister is an optional capability. Entities whose path feeds into
// other entities' paths report those dependents here, flattened to the full
// transitive set. Enumerations may be expensive; the engine calls this once
// per detected slug change.
type DependentLister interface {
	ListDependents(ctx context.Context) ([]PathBuilder, error)
}

// GroupDefaulter is an optional capability supplying the entity's default
// uniqueness group when the caller does not pass one explicitly.
type GroupDefaulter interface {
	DefaultGroup() *string
}

// Loader materializes a registered type's entity by ID. A nil entity with a
// nil error means the row no longer exists.
type Loader func(ctx context.Context, id string) (PathBuilder, error)

// Enumerator lists entities of a type in stable batches for bulk rebuilds.
// filter is an opaque, type-defined expression ("" means all). Returning a
// short batch signals the end of the scan.
type Enumerator func(ctx context.Context, filter string, offset, limit int) ([]PathBuilder, error)

// Registry maps type discriminators to loaders and enumerators. Registration
// happens once at startup; lookups are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	loaders     map[string]Loader
	enumerators map[string]Enumerator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		loaders:     make(map[string]Loader),
		enumerators: make(map[string]Enumerator),
	}
}

// Register wires an entity type into the engine. prototype is a throwaway
// instance used to verify the type's capabilities eagerly: a type without
// PathBuilder fails here, at boot, rather than on the first save. Duplicate
// registration is an error.
func (r *Registry) Register(entityType string, prototype Entity, loader Loader) error {
	if entityType == "" {
		return fmt.Errorf("register entity type: empty discriminator")
	}
	if loader == nil {
		return fmt.Errorf("register entity type %q: nil loader", entityType)
	}
	if _, ok := prototype.(PathBuilder); !ok {
		return fmt.Errorf("register entity type %q: %w", entityType, ErrContractViolation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loaders[entityType]; exists {
		return fmt.Errorf("register entity type %q: already registered", entityType)
	}
	r.loaders[entityType] = loader
	return nil
}

// RegisterEnumerator attaches a bulk enumerator to an already registered
// type. Types without one cannot be bulk-rebuilt.
func (r *Registry) RegisterEnumerator(entityType string, enum Enumerator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.loaders[entityType]; !exists {
		return fmt.Errorf("register enumerator for %q: %w", entityType, ErrNotRegistered)
	}
	r.enumerators[entityType] = enum
	return nil
}

// Load resolves a Ref to a live entity. A nil entity with nil error means
// the reference is dangling.
func (r *Registry) Load(ctx context.Context, ref Ref) (PathBuilder, error) {
	r.mu.RLock()
	loader, ok := r.loaders[ref.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("load %s: %w", ref, ErrNotRegistered)
	}
	return loader(ctx, ref.ID)
}

// Enumerate lists a batch of entities of the given type for bulk rebuilds.
func (r *Registry) Enumerate(ctx context.Context, entityType, filter string, offset, limit int) ([]PathBuilder, error) {
	r.mu.RLock()
	enum, ok := r.enumerators[entityType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("enumerate %q: no enumerator registered", entityType)
	}
	return enum(ctx, filter, offset, limit)
}

// Types returns the registered type discriminators, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.loaders))
	for t := range r.loaders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
