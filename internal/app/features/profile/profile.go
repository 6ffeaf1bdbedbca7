// internal/app/features/profile/profile.go
package profile

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username: the handle chosen at registration

import (
	"context"
	"errors"
	"net/http"

	errorsfeature "github.com/dalemusser/stratarecipe/internal/app/features/errors"
	propagationstore "github.com/dalemusser/stratarecipe/internal/app/store/propagation"
	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/inputval"
	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/app/system/propagation"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// runHistory is how many runs the run list returns.
const runHistory = 20

// Handler provides the acting user's profile endpoints.
type Handler struct {
	userStore  *userstore.Store
	runStore   *propagationstore.Store
	propagator *propagation.Propagator
	audit      *auditlog.Logger
	errLog     *errorsfeature.ErrorLogger
	logger     *zap.Logger
}

// NewHandler creates a new profile Handler.
func NewHandler(
	db *mongo.Database,
	propagator *propagation.Propagator,
	audit *auditlog.Logger,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		userStore:  userstore.New(db),
		runStore:   propagationstore.New(db),
		propagator: propagator,
		audit:      audit,
		errLog:     errLog,
		logger:     logger,
	}
}

// Routes returns the profile endpoints. When mounted at /api/me:
//   - GET  /api/me                                 the acting user's profile
//   - PUT  /api/me/display-name                    rename and propagate to comments
//   - GET  /api/me/propagation-runs                recent propagation runs
//   - GET  /api/me/propagation-runs/{id}           one run
//   - POST /api/me/propagation-runs/{id}/resume    re-apply a run's unfinished items
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(auth.RequireSignedIn)

	r.Get("/", h.show)
	r.Put("/display-name", h.changeDisplayName)
	r.Get("/propagation-runs", h.listRuns)
	r.Get("/propagation-runs/{id}", h.showRun)
	r.Post("/propagation-runs/{id}/resume", h.resumeRun)
	return r
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.userStore.GetByID(ctx, actor.UserID())
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			jsonutil.NotFound(w, "profile not found")
			return
		}
		h.errLog.Internal(w, r, "failed to load profile", err, zap.String("user_id", actor.ID))
		return
	}
	jsonutil.OK(w, u)
}

type displayNameInput struct {
	DisplayName string `json:"display_name" validate:"required,max=100" label:"Display name"`
}

// changeDisplayNameResponse reports the new profile and how the rename
// reached the user's comments.
type changeDisplayNameResponse struct {
	Profile     *models.User       `json:"profile"`
	Propagation propagation.Report `json:"propagation"`
}

// changeDisplayName handles PUT /api/me/display-name.
//
// The profile is updated first; propagation then runs within the request.
// Comment writes that fail stay on the run for resume or the reconcile task,
// so the response is 200 even when Propagation.Failed > 0.
func (h *Handler) changeDisplayName(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in displayNameInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.DisplayName = normalize.Name(in.DisplayName)
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	userID := actor.UserID()
	if err := h.userStore.SetDisplayName(ctx, userID, in.DisplayName); err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			jsonutil.NotFound(w, "profile not found")
			return
		}
		h.errLog.Internal(w, r, "failed to change display name", err, zap.String("user_id", actor.ID))
		return
	}
	h.audit.DisplayNameChanged(ctx, r, userID, actor.DisplayName, in.DisplayName)

	report, err := h.propagator.Propagate(ctx, userID, in.DisplayName)
	if err != nil {
		h.errLog.LogWithFields(r, "display name propagation failed", err, zap.String("user_id", actor.ID))
		jsonutil.InternalError(w, "display name changed but comments could not be updated")
		return
	}
	h.audit.PropagationFinished(ctx, r, userID, report.RunID, report.Status, report.Total, report.Updated, report.Failed)

	h.logger.Info("display name changed",
		zap.String("user_id", actor.ID),
		zap.String("run_id", report.RunID.Hex()),
		zap.Int("updated", report.Updated),
		zap.Int("failed", report.Failed))

	u, err := h.userStore.GetByID(ctx, userID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to reload profile", err, zap.String("user_id", actor.ID))
		return
	}
	jsonutil.OK(w, changeDisplayNameResponse{Profile: u, Propagation: report})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	runs, err := h.runStore.ListByUser(ctx, actor.UserID(), runHistory)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list propagation runs", err, zap.String("user_id", actor.ID))
		return
	}
	if runs == nil {
		runs = []models.PropagationRun{}
	}
	jsonutil.OK(w, map[string]any{"runs": runs})
}

func (h *Handler) showRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	run, ok := h.loadRun(ctx, w, r)
	if !ok {
		return
	}
	jsonutil.OK(w, run)
}

// resumeRun handles POST /api/me/propagation-runs/{id}/resume.
func (h *Handler) resumeRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	run, ok := h.loadRun(ctx, w, r)
	if !ok {
		return
	}

	report, err := h.propagator.Resume(ctx, run.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to resume propagation run", err, zap.String("run_id", run.ID.Hex()))
		return
	}
	if !run.IsTerminal() {
		h.audit.PropagationFinished(ctx, r, run.UserID, run.ID, report.Status, report.Total, report.Updated, report.Failed)
	}
	jsonutil.OK(w, report)
}

// loadRun loads the {id} run. Runs of other users are reported as missing
// unless the actor is an admin.
func (h *Handler) loadRun(ctx context.Context, w http.ResponseWriter, r *http.Request) (models.PropagationRun, bool) {
	actor, _ := auth.CurrentUser(r)

	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.NotFound(w, "propagation run not found")
		return models.PropagationRun{}, false
	}
	run, err := h.runStore.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, propagationstore.ErrNotFound) {
			jsonutil.NotFound(w, "propagation run not found")
			return models.PropagationRun{}, false
		}
		h.errLog.Internal(w, r, "failed to load propagation run", err, zap.String("run_id", id.Hex()))
		return models.PropagationRun{}, false
	}
	if run.UserID != actor.UserID() && !actor.IsAdmin() {
		jsonutil.NotFound(w, "propagation run not found")
		return models.PropagationRun{}, false
	}
	return run, true
}
