package content

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/solaius/pathkeeper/pkg/slugify"
)

// Store provides database access for the content tree.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new content store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the content tables if needed.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Category{}, &Item{})
}

// CreateCategory inserts a category, deriving its slug from the name when
// none is set.
func (s *Store) CreateCategory(cat *Category) error {
	if cat.Slug == "" {
		cat.Slug = slugify.Make(cat.Name)
	}
	if err := s.db.Create(cat).Error; err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// GetCategory retrieves a category by ID. Returns nil, nil if not found.
func (s *Store) GetCategory(id string) (*Category, error) {
	var cat Category
	if err := s.db.First(&cat, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &cat, nil
}

// UpdateCategory persists name and slug changes on an existing category.
func (s *Store) UpdateCategory(cat *Category) error {
	if cat.Slug == "" {
		cat.Slug = slugify.Make(cat.Name)
	}
	if err := s.db.Save(cat).Error; err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return nil
}

// ListChildCategories returns the direct children of a category.
func (s *Store) ListChildCategories(parentID string) ([]Category, error) {
	var cats []Category
	if err := s.db.Where("parent_id = ?", parentID).Order("id").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("list child categories: %w", err)
	}
	return cats, nil
}

// ListCategories returns a stable batch of categories for bulk rebuilds.
func (s *Store) ListCategories(offset, limit int) ([]Category, error) {
	var cats []Category
	if err := s.db.Order("id").Offset(offset).Limit(limit).Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// CreateItem inserts an item, deriving its slug from the name when none is
// set.
func (s *Store) CreateItem(item *Item) error {
	if item.Slug == "" {
		item.Slug = slugify.Make(item.Name)
	}
	if err := s.db.Create(item).Error; err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// GetItem retrieves an item by ID. Returns nil, nil if not found.
func (s *Store) GetItem(id string) (*Item, error) {
	var item Item
	if err := s.db.First(&item, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	return &item, nil
}

// UpdateItem persists name and slug changes on an existing item.
func (s *Store) UpdateItem(item *Item) error {
	if item.Slug == "" {
		item.Slug = slugify.Make(item.Name)
	}
	if err := s.db.Save(item).Error; err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ListItemsByCategory returns the items filed directly under a category.
func (s *Store) ListItemsByCategory(categoryID string) ([]Item, error) {
	var items []Item
	if err := s.db.Where("category_id = ?", categoryID).Order("id").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items by category: %w", err)
	}
	return items, nil
}

// ListItems returns a stable batch of items for bulk rebuilds.
func (s *Store) ListItems(offset, limit int) ([]Item, error) {
	var items []Item
	if err := s.db.Order("id").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}
