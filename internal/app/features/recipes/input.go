// internal/app/features/recipes/input.go
package recipes

import (
	"strings"

	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	"github.com/dalemusser/stratarecipe/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratarecipe/internal/app/system/inputval"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
)

const (
	maxListEntries = 100
	maxEntryLength = 500
)

// recipeInput is the body of create and edit requests.
type recipeInput struct {
	Title       string   `json:"title" validate:"required,max=200" label:"Title"`
	Description string   `json:"description" validate:"max=5000" label:"Description"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
	Category    string   `json:"category" validate:"required,category" label:"Category"`
	ImageURL    string   `json:"image_url" validate:"httpurl" label:"Image URL"`
	YoutubeURL  string   `json:"youtube_url" validate:"youtubeurl" label:"YouTube URL"`
}

// clean strips markup and surrounding whitespace from every field.
func (in *recipeInput) clean() {
	in.Title = normalize.Name(htmlsanitize.PlainText(in.Title))
	in.Description = htmlsanitize.PlainText(in.Description)
	in.Ingredients = htmlsanitize.PlainTextAll(in.Ingredients)
	in.Steps = htmlsanitize.PlainTextAll(in.Steps)
	in.Category = normalize.Category(in.Category)
	in.ImageURL = strings.TrimSpace(in.ImageURL)
	in.YoutubeURL = strings.TrimSpace(in.YoutubeURL)
}

// validate returns field errors, or nil when the input is acceptable.
func (in recipeInput) validate() map[string]string {
	fields := map[string]string{}
	if res := inputval.Validate(in); res.HasErrors() {
		fields = res.Fields()
	}
	checkList(fields, "ingredients", "Ingredients", in.Ingredients)
	checkList(fields, "steps", "Steps", in.Steps)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func checkList(fields map[string]string, key, label string, items []string) {
	if _, ok := fields[key]; ok {
		return
	}
	if len(items) > maxListEntries {
		fields[key] = label + " may have at most 100 entries."
		return
	}
	for _, it := range items {
		if len(it) > maxEntryLength {
			fields[key] = label + " entries must be at most 500 characters."
			return
		}
	}
}

func (in recipeInput) recipe() models.Recipe {
	return models.Recipe{
		Title:       in.Title,
		Description: in.Description,
		Ingredients: in.Ingredients,
		Steps:       in.Steps,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		YoutubeURL:  in.YoutubeURL,
	}
}

func (in recipeInput) update(slugValue, base string) recipestore.Update {
	return recipestore.Update{
		Title:       in.Title,
		Description: in.Description,
		Ingredients: in.Ingredients,
		Steps:       in.Steps,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
		YoutubeURL:  in.YoutubeURL,
		Slug:        slugValue,
		SlugBase:    base,
	}
}
