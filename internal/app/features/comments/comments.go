// internal/app/features/comments/comments.go
package comments

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/stratarecipe/internal/app/features/errors"
	commentstore "github.com/dalemusser/stratarecipe/internal/app/store/comments"
	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/authorname"
	"github.com/dalemusser/stratarecipe/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratarecipe/internal/app/system/inputval"
	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// DefaultMaxLength caps a comment body when no limit is configured.
const DefaultMaxLength = 2000

// Handler provides the comment API.
type Handler struct {
	comments  *commentstore.Store
	recipes   *recipestore.Store
	names     *authorname.Resolver
	audit     *auditlog.Logger
	errLog    *errorsfeature.ErrorLogger
	logger    *zap.Logger
	maxLength int
}

// NewHandler creates a new comments Handler.
func NewHandler(
	db *mongo.Database,
	audit *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	maxLength int,
	logger *zap.Logger,
) *Handler {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Handler{
		comments:  commentstore.New(db),
		recipes:   recipestore.New(db),
		names:     authorname.New(userstore.New(db), logger),
		audit:     audit,
		errLog:    errLog,
		logger:    logger,
		maxLength: maxLength,
	}
}

// Routes returns the comment endpoints. When mounted at /api/comments:
//   - GET    /api/comments?recipe={slug or id}  comments on a recipe, oldest first
//   - POST   /api/comments                      add a comment
//   - DELETE /api/comments/{id}                 delete (author or admin)
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list)

	r.Group(func(pr chi.Router) {
		pr.Use(auth.RequireSignedIn)
		pr.Post("/", h.add)
		pr.Delete("/{id}", h.delete)
	})
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	key := normalize.QueryParam(r.URL.Query().Get("recipe"))
	if key == "" {
		jsonutil.BadRequest(w, "recipe is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	recipe, err := h.recipes.GetBySlug(ctx, key)
	if errors.Is(err, recipestore.ErrNotFound) && inputval.IsValidObjectID(key) {
		oid, _ := primitive.ObjectIDFromHex(key)
		recipe, err = h.recipes.GetByID(ctx, oid)
	}
	if err != nil {
		if errors.Is(err, recipestore.ErrNotFound) {
			jsonutil.NotFound(w, "recipe not found")
			return
		}
		h.errLog.Internal(w, r, "failed to load recipe", err, zap.String("key", key))
		return
	}

	comments, err := h.comments.ListByRecipe(ctx, recipe.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list comments", err, zap.String("recipe_id", recipe.ID.Hex()))
		return
	}
	jsonutil.OK(w, map[string]any{
		"recipe_id": recipe.ID,
		"comments":  h.names.NameAll(ctx, comments),
	})
}

type addInput struct {
	RecipeID string `json:"recipe_id" validate:"required,objectid" label:"Recipe"`
	Body     string `json:"body" validate:"required" label:"Comment"`
}

// add handles POST /api/comments. The author's current display name is
// stored on the comment.
func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in addInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.RecipeID = normalize.QueryParam(in.RecipeID)
	in.Body = htmlsanitize.PlainText(in.Body)
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	if len([]rune(in.Body)) > h.maxLength {
		jsonutil.ValidationError(w, map[string]string{
			"body": "Comment must be at most " + strconv.Itoa(h.maxLength) + " characters.",
		})
		return
	}
	recipeID, _ := primitive.ObjectIDFromHex(in.RecipeID)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.recipes.GetByID(ctx, recipeID); err != nil {
		if errors.Is(err, recipestore.ErrNotFound) {
			jsonutil.NotFound(w, "recipe not found")
			return
		}
		h.errLog.Internal(w, r, "failed to load recipe", err, zap.String("recipe_id", in.RecipeID))
		return
	}

	c, err := h.comments.Create(ctx, models.Comment{
		RecipeID:   recipeID,
		AuthorID:   actor.UserID(),
		AuthorName: actor.Name(),
		Body:       in.Body,
	})
	if err != nil {
		h.errLog.Internal(w, r, "failed to add comment", err, zap.String("recipe_id", in.RecipeID))
		return
	}

	jsonutil.Created(w, authorname.Named{Comment: c, AuthorName: h.names.Resolve(ctx, c)})
}

// delete handles DELETE /api/comments/{id}.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.NotFound(w, "comment not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	c, err := h.comments.GetByID(ctx, id)
	if err != nil {
		h.writeError(w, r, "failed to load comment", err, id)
		return
	}
	if !actor.IsAdmin() && actor.UserID() != c.AuthorID {
		jsonutil.Forbidden(w, "only the author or an admin may delete this comment")
		return
	}
	if err := h.comments.Delete(ctx, id); err != nil {
		h.writeError(w, r, "failed to delete comment", err, id)
		return
	}

	h.audit.CommentDeleted(ctx, r, actor.UserID(), c.AuthorID, c.ID, c.RecipeID)
	jsonutil.NoContent(w)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error, id primitive.ObjectID) {
	if errors.Is(err, commentstore.ErrNotFound) {
		jsonutil.NotFound(w, "comment not found")
		return
	}
	h.errLog.Internal(w, r, msg, err, zap.String("comment_id", id.Hex()))
}
