// internal/app/features/recipes/write.go
package recipes

import (
	"context"
	"errors"
	"net/http"

	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/metrics"
	"github.com/dalemusser/stratarecipe/internal/app/system/slug"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// baseFor returns the slug base for title, or the id when the title has
// nothing that survives transliteration.
func baseFor(title string, id primitive.ObjectID) string {
	if base := slug.Transliterate(title); base != "" {
		return base
	}
	return id.Hex()
}

// create handles POST /api/recipes.
//
// The slug is allocated from the title. A recipe whose slug could not be
// finalized is still created and returned under its placeholder slug; the
// slug-placeholder-repair task renames it later.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in recipeInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.clean()
	if fields := in.validate(); fields != nil {
		jsonutil.ValidationError(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	id := primitive.NewObjectID()
	base := baseFor(in.Title, id)

	var created models.Recipe
	res, err := h.alloc.Allocate(ctx, base, func(ctx context.Context, s string) (string, error) {
		rec := in.recipe()
		rec.ID = id
		rec.OwnerID = actor.UserID()
		rec.Slug = s
		rec.SlugBase = base
		out, err := h.recipes.Create(ctx, rec)
		if err != nil {
			return "", err
		}
		created = out
		return out.ID.Hex(), nil
	})
	if err != nil {
		var se *slug.StoreError
		if !errors.As(err, &se) || se.Slug == "" {
			h.errLog.Internal(w, r, "failed to create recipe", err, zap.String("base", base))
			return
		}
		h.logger.Warn("recipe left on placeholder slug",
			zap.String("recipe_id", id.Hex()),
			zap.String("slug", se.Slug),
			zap.Error(err))
	}
	metrics.SlugAllocations.WithLabelValues("create", string(res.Path)).Inc()
	created.Slug = res.Slug

	h.audit.RecipeCreated(ctx, r, actor.UserID(), created.ID, created.Slug, string(res.Path))
	jsonutil.Created(w, created)
}

// edit handles PUT /api/recipes/{slug}.
//
// The slug is reallocated only when the title's slug base changed or the
// recipe is still on a placeholder, so other edits never move its URL.
func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in recipeInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.clean()
	if fields := in.validate(); fields != nil {
		jsonutil.ValidationError(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	recipe, ok := h.lookup(ctx, w, r)
	if !ok {
		return
	}
	if !canModify(actor, recipe) {
		jsonutil.Forbidden(w, "only the owner or an admin may edit this recipe")
		return
	}

	base := baseFor(in.Title, recipe.ID)
	newSlug := recipe.Slug
	if base != recipe.SlugBase || slug.IsPlaceholder(recipe.Slug, recipe.SlugBase) {
		res, err := h.alloc.Reallocate(ctx, base, recipe.ID.Hex(), func(ctx context.Context, s string) error {
			return h.recipes.Apply(ctx, recipe.ID, in.update(s, base))
		})
		if err != nil {
			h.writeError(w, r, "failed to edit recipe", err, recipe.ID)
			return
		}
		metrics.SlugAllocations.WithLabelValues("edit", string(res.Path)).Inc()
		newSlug = res.Slug
	} else if err := h.recipes.Apply(ctx, recipe.ID, in.update(recipe.Slug, recipe.SlugBase)); err != nil {
		h.writeError(w, r, "failed to edit recipe", err, recipe.ID)
		return
	}

	h.audit.RecipeUpdated(ctx, r, actor.UserID(), recipe.ID, recipe.Slug, newSlug)

	updated, err := h.recipes.GetByID(ctx, recipe.ID)
	if err != nil {
		h.writeError(w, r, "failed to reload recipe", err, recipe.ID)
		return
	}
	jsonutil.OK(w, updated)
}

// delete handles DELETE /api/recipes/{slug}. The recipe's comments go with it.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	recipe, ok := h.lookup(ctx, w, r)
	if !ok {
		return
	}
	if !canModify(actor, recipe) {
		jsonutil.Forbidden(w, "only the owner or an admin may delete this recipe")
		return
	}

	removed, err := h.recipes.Delete(ctx, recipe.ID, h.logger)
	if err != nil {
		h.writeError(w, r, "failed to delete recipe", err, recipe.ID)
		return
	}

	h.logger.Info("recipe deleted",
		zap.String("recipe_id", recipe.ID.Hex()),
		zap.String("slug", recipe.Slug),
		zap.Int64("comments_removed", removed))
	h.audit.RecipeDeleted(ctx, r, actor.UserID(), recipe.ID, recipe.Slug, removed)
	jsonutil.NoContent(w)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error, id primitive.ObjectID) {
	if errors.Is(err, recipestore.ErrNotFound) {
		jsonutil.NotFound(w, "recipe not found")
		return
	}
	h.errLog.Internal(w, r, msg, err, zap.String("recipe_id", id.Hex()))
}
