// internal/domain/models/recipe.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Recipe is a shared recipe. Slug is the public key used in URLs; ID never changes.
//
// SlugBase holds the transliterated title the slug was last allocated from.
// It lets a recipe left on a placeholder slug be finalized later without
// re-deriving the title.
type Recipe struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Slug     string             `bson:"slug" json:"slug"`
	SlugBase string             `bson:"slug_base" json:"-"`
	OwnerID  primitive.ObjectID `bson:"owner_id" json:"owner_id"`

	Title       string   `bson:"title" json:"title"`
	Description string   `bson:"description" json:"description"`
	Ingredients []string `bson:"ingredients" json:"ingredients"`
	Steps       []string `bson:"steps" json:"steps"`
	Category    string   `bson:"category" json:"category"`
	ImageURL    string   `bson:"image_url,omitempty" json:"image_url,omitempty"`
	YoutubeURL  string   `bson:"youtube_url,omitempty" json:"youtube_url,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Recipe categories
const (
	CategoryBreakfast = "Breakfast"
	CategoryLunch     = "Lunch"
	CategoryDinner    = "Dinner"
	CategoryDessert   = "Dessert"
)

// AllCategories returns all valid recipe categories.
func AllCategories() []string {
	return []string{
		CategoryBreakfast,
		CategoryLunch,
		CategoryDinner,
		CategoryDessert,
	}
}

// IsValidCategory checks if a category is valid.
func IsValidCategory(category string) bool {
	for _, c := range AllCategories() {
		if c == category {
			return true
		}
	}
	return false
}

// Recipe list sort orders
const (
	SortAlphabetAsc  = "alphabetAsc"
	SortAlphabetDesc = "alphabetDesc"
	SortDateAsc      = "dateAsc"
	SortDateDesc     = "dateDesc"
)

// IsValidSort reports whether s names a supported recipe sort order.
// The empty string is accepted and means newest first.
func IsValidSort(s string) bool {
	switch s {
	case "", SortAlphabetAsc, SortAlphabetDesc, SortDateAsc, SortDateDesc:
		return true
	}
	return false
}
