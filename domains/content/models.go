// Package content is the concrete content-tree domain: hierarchical
// categories and the items filed under them. It wires both types into the
// path engine's registry so their canonical URLs are kept in sync.
package content

import (
	"time"
)

// Entity type discriminators.
const (
	TypeCategory = "category"
	TypeItem     = "item"
)

// Category is a node in the content tree. Nil ParentID marks a root.
type Category struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	ParentID  *string   `gorm:"column:parent_id;type:varchar(36);index"`
	Name      string    `gorm:"column:name;not null"`
	Slug      string    `gorm:"column:slug;type:varchar(100);not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Category) TableName() string { return "content_categories" }

// Item is a leaf entity filed under exactly one category. Locale, when set,
// scopes slug uniqueness so translations can share a slug.
type Item struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	CategoryID string    `gorm:"column:category_id;type:varchar(36);index;not null"`
	Name       string    `gorm:"column:name;not null"`
	Slug       string    `gorm:"column:slug;type:varchar(100);not null"`
	Locale     *string   `gorm:"column:locale;type:varchar(16)"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName returns the GORM table name.
func (Item) TableName() string { return "content_items" }
