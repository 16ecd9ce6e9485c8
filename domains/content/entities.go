package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/solaius/pathkeeper/pkg/entity"
)

// CategoryNode adapts a Category row to the path engine's entity contract.
// Its path is the slash-joined slug chain from the root down.
type CategoryNode struct {
	Category *Category
	store    *Store
}

// NewCategoryNode wraps a category row for the engine.
func NewCategoryNode(cat *Category, store *Store) *CategoryNode {
	return &CategoryNode{Category: cat, store: store}
}

func (n *CategoryNode) EntityRef() entity.Ref {
	return entity.Ref{Type: TypeCategory, ID: n.Category.ID}
}

func (n *CategoryNode) ComputePath() (string, error) {
	segments := []string{n.Category.Slug}
	parentID := n.Category.ParentID
	for parentID != nil {
		parent, err := n.store.GetCategory(*parentID)
		if err != nil {
			return "", err
		}
		if parent == nil {
			return "", fmt.Errorf("category %s: dangling parent %s", n.Category.ID, *parentID)
		}
		segments = append([]string{parent.Slug}, segments...)
		parentID = parent.ParentID
	}
	return strings.Join(segments, "/"), nil
}

// ListDependents returns the full flattened subtree: every descendant
// category and every item filed anywhere under this category.
func (n *CategoryNode) ListDependents(ctx context.Context) ([]entity.PathBuilder, error) {
	var dependents []entity.PathBuilder

	queue := []string{n.Category.ID}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]

		items, err := n.store.ListItemsByCategory(id)
		if err != nil {
			return nil, err
		}
		for i := range items {
			dependents = append(dependents, NewItemNode(&items[i], n.store))
		}

		children, err := n.store.ListChildCategories(id)
		if err != nil {
			return nil, err
		}
		for i := range children {
			dependents = append(dependents, NewCategoryNode(&children[i], n.store))
			queue = append(queue, children[i].ID)
		}
	}

	return dependents, nil
}

// ItemNode adapts an Item row to the path engine's entity contract. Its
// path is its category's path plus its own slug, prefixed with the locale
// when one is set so that translations sharing a slug keep distinct URLs.
type ItemNode struct {
	Item  *Item
	store *Store
}

// NewItemNode wraps an item row for the engine.
func NewItemNode(item *Item, store *Store) *ItemNode {
	return &ItemNode{Item: item, store: store}
}

func (n *ItemNode) EntityRef() entity.Ref {
	return entity.Ref{Type: TypeItem, ID: n.Item.ID}
}

func (n *ItemNode) ComputePath() (string, error) {
	cat, err := n.store.GetCategory(n.Item.CategoryID)
	if err != nil {
		return "", err
	}
	if cat == nil {
		// Orphaned items keep no path.
		return "", nil
	}
	base, err := NewCategoryNode(cat, n.store).ComputePath()
	if err != nil {
		return "", err
	}
	path := base + "/" + n.Item.Slug
	if n.Item.Locale != nil && *n.Item.Locale != "" {
		path = *n.Item.Locale + "/" + path
	}
	return path, nil
}

// DefaultGroup scopes item slug uniqueness by locale.
func (n *ItemNode) DefaultGroup() *string {
	return n.Item.Locale
}

// Register wires both content entity types into the registry, including
// their loaders and bulk-rebuild enumerators.
func Register(reg *entity.Registry, store *Store) error {
	err := reg.Register(TypeCategory, &CategoryNode{Category: &Category{}}, func(_ context.Context, id string) (entity.PathBuilder, error) {
		cat, err := store.GetCategory(id)
		if err != nil {
			return nil, err
		}
		if cat == nil {
			return nil, nil
		}
		return NewCategoryNode(cat, store), nil
	})
	if err != nil {
		return err
	}

	err = reg.RegisterEnumerator(TypeCategory, func(_ context.Context, _ string, offset, limit int) ([]entity.PathBuilder, error) {
		cats, err := store.ListCategories(offset, limit)
		if err != nil {
			return nil, err
		}
		batch := make([]entity.PathBuilder, len(cats))
		for i := range cats {
			batch[i] = NewCategoryNode(&cats[i], store)
		}
		return batch, nil
	})
	if err != nil {
		return err
	}

	err = reg.Register(TypeItem, &ItemNode{Item: &Item{}}, func(_ context.Context, id string) (entity.PathBuilder, error) {
		item, err := store.GetItem(id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, nil
		}
		return NewItemNode(item, store), nil
	})
	if err != nil {
		return err
	}

	return reg.RegisterEnumerator(TypeItem, func(_ context.Context, _ string, offset, limit int) ([]entity.PathBuilder, error) {
		items, err := store.ListItems(offset, limit)
		if err != nil {
			return nil, err
		}
		batch := make([]entity.PathBuilder, len(items))
		for i := range items {
			batch[i] = NewItemNode(&items[i], store)
		}
		return batch, nil
	})
}
