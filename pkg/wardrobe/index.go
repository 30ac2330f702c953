// Package wardrobe provides the per-request item snapshot used to build
// prompts and validate model output, and the sources that load it.
package wardrobe

import "github.com/pario-ai/stylist/pkg/models"

// Index is an immutable id → item map built from one wardrobe snapshot.
type Index struct {
	items []models.ClothingItemRef
	byID  map[int64]int
}

// Build indexes items. Duplicate ids keep their first occurrence and the
// supplied order is preserved.
func Build(items []models.ClothingItemRef) *Index {
	idx := &Index{
		items: make([]models.ClothingItemRef, 0, len(items)),
		byID:  make(map[int64]int, len(items)),
	}
	for _, it := range items {
		if _, dup := idx.byID[it.ID]; dup {
			continue
		}
		idx.byID[it.ID] = len(idx.items)
		idx.items = append(idx.items, cloneItem(it))
	}
	return idx
}

// Lookup returns the item with the given id.
func (x *Index) Lookup(id int64) (models.ClothingItemRef, bool) {
	i, ok := x.byID[id]
	if !ok {
		return models.ClothingItemRef{}, false
	}
	return cloneItem(x.items[i]), true
}

// All returns a copy of every indexed item in snapshot order.
func (x *Index) All() []models.ClothingItemRef {
	out := make([]models.ClothingItemRef, len(x.items))
	for i, it := range x.items {
		out[i] = cloneItem(it)
	}
	return out
}

// Len returns the number of distinct items.
func (x *Index) Len() int { return len(x.items) }

// ByRole returns the items whose category fills the given role.
func (x *Index) ByRole(role models.Role) []models.ClothingItemRef {
	var out []models.ClothingItemRef
	for _, it := range x.items {
		if it.Category.Role() == role {
			out = append(out, cloneItem(it))
		}
	}
	return out
}

func cloneItem(it models.ClothingItemRef) models.ClothingItemRef {
	if it.Tags != nil {
		it.Tags = append([]string(nil), it.Tags...)
	}
	return it
}
