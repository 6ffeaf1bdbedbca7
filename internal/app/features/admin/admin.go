// internal/app/features/admin/admin.go
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	errorsfeature "github.com/dalemusser/stratarecipe/internal/app/features/errors"
	"github.com/dalemusser/stratarecipe/internal/app/store/audit"
	commentstore "github.com/dalemusser/stratarecipe/internal/app/store/comments"
	ledgerstore "github.com/dalemusser/stratarecipe/internal/app/store/ledger"
	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/authorname"
	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/app/system/slug"
	"github.com/dalemusser/stratarecipe/internal/app/system/tasks"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	reconcileBatch = 50
	repairBatch    = 100
)

// TaskRunner is the part of the background task runner the admin API uses.
type TaskRunner interface {
	Trigger(ctx context.Context, name string) error
	Outcomes() []tasks.Outcome
}

// Handler provides admin maintenance endpoints.
type Handler struct {
	recipes     *recipestore.Store
	comments    *commentstore.Store
	auditStore  *audit.Store
	ledger      *ledgerstore.Store
	alloc       *slug.Allocator
	names       *authorname.Resolver
	reconciler  tasks.Reconciler
	runner      TaskRunner
	auditLogger *auditlog.Logger
	errLog      *errorsfeature.ErrorLogger
	logger      *zap.Logger
}

// NewHandler creates a new admin Handler. runner may be nil when background
// tasks are disabled.
func NewHandler(
	db *mongo.Database,
	reconciler tasks.Reconciler,
	runner TaskRunner,
	auditLogger *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	recipes := recipestore.New(db)
	return &Handler{
		recipes:     recipes,
		comments:    commentstore.New(db),
		auditStore:  audit.New(db),
		ledger:      ledgerstore.New(db),
		alloc:       slug.NewAllocator(recipes),
		names:       authorname.New(userstore.New(db), logger),
		reconciler:  reconciler,
		runner:      runner,
		auditLogger: auditLogger,
		errLog:      errLog,
		logger:      logger,
	}
}

// Routes returns the admin endpoints. When mounted at /api/admin:
//   - GET  /api/admin/recipes                  every recipe with its comments
//   - POST /api/admin/propagation/reconcile    resume unfinished propagation runs
//   - POST /api/admin/slugs/repair             finalize recipes left on placeholder slugs
//   - GET  /api/admin/tasks                    last outcome of each background task
//   - POST /api/admin/tasks/{name}/run         run a background task now
//   - GET  /api/admin/audit                    audit log (category, event, target, limit)
//   - GET  /api/admin/ledger                   failed API requests (class, path, status, limit)
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.RequireRole(models.RoleAdmin))

	r.Get("/recipes", h.allRecipes)
	r.Post("/propagation/reconcile", h.reconcile)
	r.Post("/slugs/repair", h.repairSlugs)
	r.Get("/tasks", h.listTasks)
	r.Post("/tasks/{name}/run", h.runTask)
	r.Get("/audit", h.auditLog)
	r.Get("/ledger", h.ledgerEntries)
	return r
}

// recipeWithComments is one entry of the all-recipes view.
type recipeWithComments struct {
	models.Recipe
	Comments []authorname.Named `json:"comments"`
}

func (h *Handler) allRecipes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	recipes, err := h.recipes.ListAll(ctx)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list recipes", err)
		return
	}
	ids := make([]primitive.ObjectID, len(recipes))
	for i, rec := range recipes {
		ids[i] = rec.ID
	}
	byRecipe, err := h.comments.ListByRecipes(ctx, ids)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list comments", err)
		return
	}

	out := make([]recipeWithComments, 0, len(recipes))
	for _, rec := range recipes {
		out = append(out, recipeWithComments{
			Recipe:   rec,
			Comments: h.names.NameAll(ctx, byRecipe[rec.ID]),
		})
	}
	jsonutil.OK(w, map[string]any{"recipes": out})
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	n, err := h.reconciler.Reconcile(ctx, reconcileBatch)
	if err != nil {
		h.errLog.Internal(w, r, "propagation reconcile failed", err)
		return
	}
	h.auditLogger.PropagationReconciled(ctx, r, actor.UserID(), n)
	jsonutil.OK(w, map[string]int{"resumed": n})
}

// repairSlugs handles POST /api/admin/slugs/repair?older_than=30s. The
// default only touches placeholders older than a minute so an allocation
// still in flight is left alone.
func (h *Handler) repairSlugs(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	grace := time.Minute
	if s := normalize.QueryParam(r.URL.Query().Get("older_than")); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			jsonutil.BadRequest(w, "older_than must be a non-negative duration")
			return
		}
		grace = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	fixed, err := tasks.RepairPlaceholders(ctx, h.recipes, h.alloc, time.Now().UTC().Add(-grace), repairBatch, h.logger)
	if err != nil {
		h.errLog.Internal(w, r, "slug placeholder repair failed", err)
		return
	}
	h.auditLogger.SlugsRepaired(ctx, r, actor.UserID(), fixed)
	jsonutil.OK(w, map[string]int{"fixed": fixed})
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	outcomes := []tasks.Outcome{}
	if h.runner != nil {
		outcomes = h.runner.Outcomes()
	}
	jsonutil.OK(w, map[string]any{"tasks": outcomes})
}

func (h *Handler) runTask(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		jsonutil.NotFound(w, "background tasks are disabled")
		return
	}
	name := chi.URLParam(r, "name")

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	err := h.runner.Trigger(ctx, name)
	switch {
	case errors.Is(err, tasks.ErrUnknownJob):
		jsonutil.NotFound(w, "unknown task")
	case err != nil:
		h.errLog.LogWithFields(r, "task run failed", err, zap.String("task", name))
		jsonutil.OK(w, map[string]string{"task": name, "error": err.Error()})
	default:
		jsonutil.OK(w, map[string]string{"task": name})
	}
}

// auditLog handles GET /api/admin/audit?category=&event=&target=&limit=.
func (h *Handler) auditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.QueryFilter{
		Category:  normalize.QueryParam(q.Get("category")),
		EventType: normalize.QueryParam(q.Get("event")),
	}
	if t := normalize.QueryParam(q.Get("target")); t != "" {
		oid, err := primitive.ObjectIDFromHex(t)
		if err != nil {
			jsonutil.BadRequest(w, "target must be an ID")
			return
		}
		f.TargetID = &oid
	}
	if l := normalize.QueryParam(q.Get("limit")); l != "" {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil || n < 1 || n > 500 {
			jsonutil.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		f.Limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	events, err := h.auditStore.Query(ctx, f)
	if err != nil {
		h.errLog.Internal(w, r, "failed to query audit log", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	jsonutil.OK(w, map[string]any{"events": events})
}

// ledgerEntries handles GET /api/admin/ledger?class=&path=&status=&limit=.
func (h *Handler) ledgerEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledgerstore.ListFilter{
		ErrorClass: normalize.QueryParam(q.Get("class")),
		PathPrefix: normalize.QueryParam(q.Get("path")),
	}
	if s := normalize.QueryParam(q.Get("status")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 400 || n > 599 {
			jsonutil.BadRequest(w, "status must be an error status code")
			return
		}
		f.StatusCode = n
	}
	if l := normalize.QueryParam(q.Get("limit")); l != "" {
		n, err := strconv.ParseInt(l, 10, 64)
		if err != nil || n < 1 || n > 500 {
			jsonutil.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		f.Limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	entries, err := h.ledger.List(ctx, f)
	if err != nil {
		h.errLog.Internal(w, r, "failed to query ledger", err)
		return
	}
	if entries == nil {
		entries = []ledgerstore.Entry{}
	}
	jsonutil.OK(w, map[string]any{"entries": entries})
}
