package pathdb

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SlugStore provides CRUD operations for slug records.
type SlugStore struct {
	db *gorm.DB
}

// NewSlugStore creates a new SlugStore.
func NewSlugStore(db *gorm.DB) *SlugStore {
	return &SlugStore{db: db}
}

// WithTx returns a SlugStore bound to the given transaction handle.
func (s *SlugStore) WithTx(tx *gorm.DB) *SlugStore {
	return &SlugStore{db: tx}
}

// AutoMigrate creates or updates the slug_records table. On dialects with
// partial-index support it also installs the unique index that makes the
// active-slug invariant hold under concurrent writers; retired rows stay
// out of the index so soft-deleted slugs can be reclaimed.
func (s *SlugStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&SlugRecord{}); err != nil {
		return fmt.Errorf("auto-migrate slug_records: %w", err)
	}
	if SupportsPartialIndexes(s.db) {
		err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_slug_active_owner
			ON slug_records (entity_type, slug, (coalesce(slug_group, ''))) WHERE state = 'active'`).Error
		if err != nil {
			return fmt.Errorf("create active slug unique index: %w", err)
		}
	}
	return nil
}

// Upsert creates or replaces the single slug row for an entity. A save
// implies the entity is live, so the row is forced back to the active state.
func (s *SlugStore) Upsert(entityType, entityID, slug string, group *string) error {
	record := &SlugRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Slug:       slug,
		Group:      group,
		State:      StateActive,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"slug":       slug,
			"slug_group": group,
			"state":      StateActive,
			"retired_at": nil,
			"updated_at": time.Now(),
		}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("upsert slug record: %w", err)
	}
	return nil
}

// Get retrieves the slug row for an entity regardless of state.
// Returns nil, nil if no row exists.
func (s *SlugStore) Get(entityType, entityID string) (*SlugRecord, error) {
	var record SlugRecord
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get slug record: %w", err)
	}
	return &record, nil
}

// FindActive looks up the active owner of (entityType, slug, group). A nil
// group matches only rows whose group is NULL, not rows in any group.
// Returns nil, nil if no active row owns the slug.
func (s *SlugStore) FindActive(entityType, slug string, group *string) (*SlugRecord, error) {
	query := s.db.Where("entity_type = ? AND slug = ? AND state = ?", entityType, slug, StateActive)
	if group == nil {
		query = query.Where("slug_group IS NULL")
	} else {
		query = query.Where("slug_group = ?", *group)
	}

	var record SlugRecord
	if err := query.First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find active slug: %w", err)
	}
	return &record, nil
}

// HasActiveConflict reports whether an active row other than excludeEntityID
// already owns (entityType, slug, group).
func (s *SlugStore) HasActiveConflict(entityType, slug string, group *string, excludeEntityID string) (bool, error) {
	owner, err := s.FindActive(entityType, slug, group)
	if err != nil {
		return false, err
	}
	return owner != nil && owner.EntityID != excludeEntityID, nil
}

// SoftDelete retires the entity's slug row. Retiring an absent row is a
// no-op.
func (s *SlugStore) SoftDelete(entityType, entityID string) error {
	now := time.Now()
	err := s.db.Model(&SlugRecord{}).
		Where("entity_type = ? AND entity_id = ? AND state = ?", entityType, entityID, StateActive).
		Updates(map[string]any{"state": StateRetired, "retired_at": now}).Error
	if err != nil {
		return fmt.Errorf("soft-delete slug record: %w", err)
	}
	return nil
}

// Restore re-activates the entity's retired slug row. Conflict checking is
// the caller's responsibility and must happen before this in the same
// transaction.
func (s *SlugStore) Restore(entityType, entityID string) error {
	err := s.db.Model(&SlugRecord{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Updates(map[string]any{"state": StateActive, "retired_at": nil}).Error
	if err != nil {
		return fmt.Errorf("restore slug record: %w", err)
	}
	return nil
}

// Purge permanently removes the entity's slug row.
func (s *SlugStore) Purge(entityType, entityID string) error {
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&SlugRecord{}).Error
	if err != nil {
		return fmt.Errorf("purge slug record: %w", err)
	}
	return nil
}
