package pathdb

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PathStore provides operations over the append-only path version history.
type PathStore struct {
	db *gorm.DB
}

// NewPathStore creates a new PathStore.
func NewPathStore(db *gorm.DB) *PathStore {
	return &PathStore{db: db}
}

// WithTx returns a PathStore bound to the given transaction handle.
func (s *PathStore) WithTx(tx *gorm.DB) *PathStore {
	return &PathStore{db: tx}
}

// AutoMigrate creates or updates the path_records table. On dialects with
// partial-index support it also installs the unique index that enforces
// global active-path uniqueness under concurrent writers; retired rows are
// exempt so history can accumulate for the same path.
func (s *PathStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&PathRecord{}); err != nil {
		return fmt.Errorf("auto-migrate path_records: %w", err)
	}
	if SupportsPartialIndexes(s.db) {
		err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_path_active_path
			ON path_records (full_path) WHERE state = 'active'`).Error
		if err != nil {
			return fmt.Errorf("create active path unique index: %w", err)
		}
	}
	return nil
}

// GetActive retrieves the entity's current path row.
// Returns nil, nil if the entity has no active path.
func (s *PathStore) GetActive(entityType, entityID string) (*PathRecord, error) {
	var record PathRecord
	err := s.db.Where("entity_type = ? AND entity_id = ? AND state = ?",
		entityType, entityID, StateActive).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get active path: %w", err)
	}
	return &record, nil
}

// GetHistory returns the entity's path versions ordered by version
// ascending. With includeRetired false, only the active row (if any) is
// returned.
func (s *PathStore) GetHistory(entityType, entityID string, includeRetired bool) ([]PathRecord, error) {
	query := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID)
	if !includeRetired {
		query = query.Where("state = ?", StateActive)
	}

	var records []PathRecord
	if err := query.Order("version ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("get path history: %w", err)
	}
	return records, nil
}

// CreateVersion inserts a new active path row. The caller guarantees
// version continuity (previous active version + 1, or 1) and must have run
// the global uniqueness conflict check inside the same transaction.
func (s *PathStore) CreateVersion(entityType, entityID, fullPath string, group *string, version int) (*PathRecord, error) {
	if version < 1 {
		return nil, fmt.Errorf("create path version: version %d out of range", version)
	}
	if len(fullPath) > MaxFullPathLength {
		return nil, fmt.Errorf("create path version: path exceeds %d bytes", MaxFullPathLength)
	}

	record := &PathRecord{
		EntityType: entityType,
		EntityID:   entityID,
		FullPath:   fullPath,
		Group:      group,
		Version:    version,
		State:      StateActive,
	}
	if err := s.db.Create(record).Error; err != nil {
		return nil, fmt.Errorf("create path version: %w", err)
	}
	return record, nil
}

// RetireActive marks the entity's current active row retired, leaving every
// other row untouched. Retiring when no row is active is a no-op.
func (s *PathStore) RetireActive(entityType, entityID string) error {
	now := time.Now()
	err := s.db.Model(&PathRecord{}).
		Where("entity_type = ? AND entity_id = ? AND state = ?", entityType, entityID, StateActive).
		Updates(map[string]any{"state": StateRetired, "retired_at": now}).Error
	if err != nil {
		return fmt.Errorf("retire active path: %w", err)
	}
	return nil
}

// UpdateActiveGroup rewrites the group label on the entity's active row
// without touching path or version. Used when only the uniqueness group
// changed.
func (s *PathStore) UpdateActiveGroup(entityType, entityID string, group *string) error {
	err := s.db.Model(&PathRecord{}).
		Where("entity_type = ? AND entity_id = ? AND state = ?", entityType, entityID, StateActive).
		Update("path_group", group).Error
	if err != nil {
		return fmt.Errorf("update active path group: %w", err)
	}
	return nil
}

// MaxVersion returns the highest version ever recorded for the entity, over
// rows in any state, or 0 when the entity has no path history.
func (s *PathStore) MaxVersion(entityType, entityID string) (int, error) {
	var max *int
	err := s.db.Model(&PathRecord{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Select("MAX(version)").Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("max path version: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

// FindActiveByPath looks up the active owner of a full path across all
// entity types. Returns nil, nil when no live entity owns the path.
func (s *PathStore) FindActiveByPath(fullPath string) (*PathRecord, error) {
	var record PathRecord
	err := s.db.Where("full_path = ? AND state = ?", fullPath, StateActive).
		Order("id DESC").First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find active path: %w", err)
	}
	return &record, nil
}

// FindMostRecentRetiredByPath returns the most recently created retired row
// carrying the path, across all entity types. Returns nil, nil when the path
// was never retired.
func (s *PathStore) FindMostRecentRetiredByPath(fullPath string) (*PathRecord, error) {
	var record PathRecord
	err := s.db.Where("full_path = ? AND state = ?", fullPath, StateRetired).
		Order("id DESC").First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("find retired path: %w", err)
	}
	return &record, nil
}

// PurgeRetiredDuplicates permanently removes every retired row, for any
// entity, whose full path equals fullPath. Runs immediately before a new
// row is activated under that path so a reused path never accumulates dead
// duplicates.
func (s *PathStore) PurgeRetiredDuplicates(fullPath string) error {
	err := s.db.Where("full_path = ? AND state = ?", fullPath, StateRetired).
		Delete(&PathRecord{}).Error
	if err != nil {
		return fmt.Errorf("purge retired duplicates: %w", err)
	}
	return nil
}

// Purge permanently removes every path row for the entity, active and
// retired alike.
func (s *PathStore) Purge(entityType, entityID string) error {
	err := s.db.Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Delete(&PathRecord{}).Error
	if err != nil {
		return fmt.Errorf("purge path records: %w", err)
	}
	return nil
}
