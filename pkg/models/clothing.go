package models

import "strings"

// Category is the wardrobe category assigned at upload time. Besides the
// garment categories, the generic "top" and "bottom" are accepted.
type Category string

const (
	CategoryShirt  Category = "shirt"
	CategoryHoodie Category = "hoodie"
	CategoryPants  Category = "pants"
	CategoryShorts Category = "shorts"
	CategoryTop    Category = "top"
	CategoryBottom Category = "bottom"
)

// Categories lists the accepted wardrobe categories in display order.
var Categories = []Category{CategoryShirt, CategoryPants, CategoryShorts, CategoryHoodie, CategoryTop, CategoryBottom}

func (c Category) normalized() Category {
	return Category(strings.ToLower(strings.TrimSpace(string(c))))
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c.normalized() {
	case CategoryShirt, CategoryHoodie, CategoryPants, CategoryShorts, CategoryTop, CategoryBottom:
		return true
	}
	return false
}

// Role returns the outfit role an item of this category fills. Matching
// ignores case and surrounding space.
func (c Category) Role() Role {
	switch c.normalized() {
	case CategoryShirt, CategoryHoodie, CategoryTop:
		return RoleTop
	case CategoryPants, CategoryShorts, CategoryBottom:
		return RoleBottom
	default:
		return RoleAdditional
	}
}

// Role is a named position in an outfit.
type Role string

const (
	RoleTop        Role = "top"
	RoleBottom     Role = "bottom"
	RoleAdditional Role = "additional"
)

// ClothingItemRef is a read-only snapshot of one wardrobe entry.
type ClothingItemRef struct {
	ID             int64    `json:"id" yaml:"id"`
	Category       Category `json:"category" yaml:"category"`
	Name           string   `json:"name,omitempty" yaml:"name"`
	ImagePath      string   `json:"image_path,omitempty" yaml:"image_path"`
	ClothingType   string   `json:"clothing_type,omitempty" yaml:"clothing_type"`
	Color          string   `json:"color,omitempty" yaml:"color"`
	SecondaryColor string   `json:"secondary_color,omitempty" yaml:"secondary_color"`
	Season         string   `json:"season,omitempty" yaml:"season"`
	Style          string   `json:"style,omitempty" yaml:"style"`
	Pattern        string   `json:"pattern,omitempty" yaml:"pattern"`
	Material       string   `json:"material,omitempty" yaml:"material"`
	Fit            string   `json:"fit,omitempty" yaml:"fit"`
	Tags           []string `json:"tags,omitempty" yaml:"tags"`
}
