// internal/app/features/recipes/recipes.go
package recipes

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/stratarecipe/internal/app/features/errors"
	commentstore "github.com/dalemusser/stratarecipe/internal/app/store/comments"
	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	"github.com/dalemusser/stratarecipe/internal/app/store/storeutil"
	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/authorname"
	"github.com/dalemusser/stratarecipe/internal/app/system/inputval"
	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/app/system/slug"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides the recipe API.
type Handler struct {
	recipes  *recipestore.Store
	comments *commentstore.Store
	alloc    *slug.Allocator
	names    *authorname.Resolver
	audit    *auditlog.Logger
	errLog   *errorsfeature.ErrorLogger
	logger   *zap.Logger
	perPage  int64
}

// NewHandler creates a new recipes Handler. perPage <= 0 uses the store default.
func NewHandler(
	db *mongo.Database,
	audit *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	perPage int64,
	logger *zap.Logger,
) *Handler {
	recipes := recipestore.New(db)
	if perPage <= 0 {
		perPage = recipestore.DefaultPerPage
	}
	return &Handler{
		recipes:  recipes,
		comments: commentstore.New(db),
		alloc:    slug.NewAllocator(recipes),
		names:    authorname.New(userstore.New(db), logger),
		audit:    audit,
		errLog:   errLog,
		logger:   logger,
		perPage:  perPage,
	}
}

// Routes returns the recipe endpoints. When mounted at /api/recipes:
//   - GET    /api/recipes          list (category, q, sort, page)
//   - POST   /api/recipes          create
//   - GET    /api/recipes/{slug}   one recipe with its comments
//   - PUT    /api/recipes/{slug}   edit (owner or admin)
//   - DELETE /api/recipes/{slug}   delete with its comments (owner or admin)
//
// {slug} also accepts the recipe's ID.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{slug}", h.show)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/", h.create)
		pr.Put("/{slug}", h.edit)
		pr.Delete("/{slug}", h.delete)
	})
	return r
}

// MineRoutes returns the acting user's own recipes, for mounting at /api/me/recipes.
func MineRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)
	r.Get("/", h.mine)
	return r
}

// listResponse is one page of a recipe listing.
type listResponse struct {
	Recipes []models.Recipe `json:"recipes"`
	Total   int64           `json:"total"`
	Page    int64           `json:"page"`
	Pages   int64           `json:"pages"`
	PerPage int64           `json:"per_page"`
}

// recipeResponse is a recipe with its comments.
type recipeResponse struct {
	Recipe   models.Recipe `json:"recipe"`
	Comments []authorname.Named `json:"comments"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f, fields := h.filterFromQuery(r)
	if fields != nil {
		jsonutil.ValidationError(w, fields)
		return
	}
	h.writeList(w, r, f)
}

func (h *Handler) mine(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)
	f, fields := h.filterFromQuery(r)
	if fields != nil {
		jsonutil.ValidationError(w, fields)
		return
	}
	f.OwnerID = actor.UserID()
	h.writeList(w, r, f)
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, f recipestore.ListFilter) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	recipes, total, err := h.recipes.List(ctx, f)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list recipes", err)
		return
	}
	if recipes == nil {
		recipes = []models.Recipe{}
	}
	jsonutil.OK(w, listResponse{
		Recipes: recipes,
		Total:   total,
		Page:    f.Page,
		Pages:   storeutil.Pages(total, f.PerPage),
		PerPage: f.PerPage,
	})
}

// filterFromQuery reads category, q, sort and page. Unknown categories and
// sort orders are rejected rather than ignored.
func (h *Handler) filterFromQuery(r *http.Request) (recipestore.ListFilter, map[string]string) {
	q := r.URL.Query()
	fields := map[string]string{}

	f := recipestore.ListFilter{
		Search:  normalize.QueryParam(q.Get("q")),
		PerPage: h.perPage,
		Page:    1,
	}
	if c := normalize.QueryParam(q.Get("category")); c != "" {
		f.Category = normalize.Category(c)
		if !models.IsValidCategory(f.Category) {
			fields["category"] = "unknown category"
		}
	}
	if s := normalize.QueryParam(q.Get("sort")); !models.IsValidSort(s) {
		fields["sort"] = "unknown sort order"
	} else {
		f.Sort = normalize.Sort(s)
	}
	if p := normalize.QueryParam(q.Get("page")); p != "" {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 1 {
			fields["page"] = "page must be a positive number"
		} else {
			f.Page = n
		}
	}

	if len(fields) > 0 {
		return f, fields
	}
	return f, nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	recipe, ok := h.lookup(ctx, w, r)
	if !ok {
		return
	}

	comments, err := h.comments.ListByRecipe(ctx, recipe.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list comments", err, zap.String("recipe_id", recipe.ID.Hex()))
		return
	}
	jsonutil.OK(w, recipeResponse{Recipe: recipe, Comments: h.names.NameAll(ctx, comments)})
}

// lookup loads the recipe named by the {slug} route parameter, falling back
// to treating it as an ID. It writes the error response itself.
func (h *Handler) lookup(ctx context.Context, w http.ResponseWriter, r *http.Request) (models.Recipe, bool) {
	key := chi.URLParam(r, "slug")

	recipe, err := h.recipes.GetBySlug(ctx, key)
	if errors.Is(err, recipestore.ErrNotFound) && inputval.IsValidObjectID(key) {
		oid, _ := primitive.ObjectIDFromHex(key)
		recipe, err = h.recipes.GetByID(ctx, oid)
	}
	switch {
	case err == nil:
		return recipe, true
	case errors.Is(err, recipestore.ErrNotFound):
		jsonutil.NotFound(w, "recipe not found")
	default:
		h.errLog.Internal(w, r, "failed to load recipe", err, zap.String("key", key))
	}
	return models.Recipe{}, false
}

// canModify reports whether actor may edit or delete recipe.
func canModify(actor *auth.Actor, recipe models.Recipe) bool {
	return actor.IsAdmin() || actor.UserID() == recipe.OwnerID
}
