// Package pathdb persists the two records the path engine is built on: the
// single current slug per entity, and the append-only version history of
// computed full paths.
package pathdb

import (
	"time"
)

// MaxFullPathLength is the maximum length of a stored full path, in bytes.
const MaxFullPathLength = 2000

// RowState is the lifecycle state of a slug or path row. Retirement is
// modeled as an explicit state rather than a nullable timestamp so queries
// against historical rows stay first-class.
type RowState string

const (
	StateActive  RowState = "active"
	StateRetired RowState = "retired"
)

// SlugRecord holds the single current slug for one entity. Among active
// rows, (entity_type, slug, slug_group) is unique: engine-side conflict
// checks run inside the mutating transaction, and on Postgres and SQLite a
// partial unique index (installed by AutoMigrate) makes the invariant hold
// even when two writers race past the check.
type SlugRecord struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	EntityType string     `gorm:"column:entity_type;uniqueIndex:idx_slug_entity,priority:1;index:idx_slug_lookup,priority:1;not null"`
	EntityID   string     `gorm:"column:entity_id;uniqueIndex:idx_slug_entity,priority:2;not null"`
	Slug       string     `gorm:"column:slug;type:varchar(100);index:idx_slug_lookup,priority:2;not null"`
	Group      *string    `gorm:"column:slug_group;type:varchar(100)"`
	State      RowState   `gorm:"column:state;type:varchar(16);index;not null;default:active"`
	RetiredAt  *time.Time `gorm:"column:retired_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (SlugRecord) TableName() string { return "slug_records" }

// PathRecord is one version of one entity's computed full path. Exactly one
// row per entity is active at any time; retired rows stay behind as redirect
// targets. The autoincrement ID doubles as the recency tie-break when
// several retired rows share a path. Among active rows, full_path is unique
// across all entity types; as with slugs, a partial unique index backs the
// engine's transactional check on dialects that support one.
type PathRecord struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	EntityType string     `gorm:"column:entity_type;uniqueIndex:idx_path_version,priority:1;index:idx_path_entity_state,priority:1;not null"`
	EntityID   string     `gorm:"column:entity_id;uniqueIndex:idx_path_version,priority:2;index:idx_path_entity_state,priority:2;not null"`
	FullPath   string     `gorm:"column:full_path;type:varchar(2000);index:idx_path_full;not null"`
	Group      *string    `gorm:"column:path_group;type:varchar(100)"`
	Version    int        `gorm:"column:version;uniqueIndex:idx_path_version,priority:3;not null"`
	State      RowState   `gorm:"column:state;type:varchar(16);index:idx_path_entity_state,priority:3;not null;default:active"`
	RetiredAt  *time.Time `gorm:"column:retired_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (PathRecord) TableName() string { return "path_records" }

// IsActive reports whether the record is the entity's current path.
func (p *PathRecord) IsActive() bool { return p.State == StateActive }
