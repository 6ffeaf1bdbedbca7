// internal/app/features/users/users.go
package users

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username: the handle chosen at registration

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"

	errorsfeature "github.com/dalemusser/stratarecipe/internal/app/features/errors"
	"github.com/dalemusser/stratarecipe/internal/app/store/storeutil"
	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/app/system/auditlog"
	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/inputval"
	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const pageSize = 20

// Handler provides user management endpoints.
type Handler struct {
	userStore   *userstore.Store
	errLog      *errorsfeature.ErrorLogger
	auditLogger *auditlog.Logger
	logger      *zap.Logger
}

// NewHandler creates a new users Handler.
func NewHandler(
	db *mongo.Database,
	errLog *errorsfeature.ErrorLogger,
	auditLogger *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		userStore:   userstore.New(db),
		errLog:      errLog,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Routes returns the user endpoints. When mounted at /api/users:
//   - POST  /api/users        create a profile (registration); admin role needs an admin actor
//   - GET   /api/users/{id}   public profile
//   - GET   /api/users        list users (admin)
//   - PATCH /api/users/{id}   change role or status (admin)
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/{id}", h.show)

	r.Group(func(ar chi.Router) {
		ar.Use(auth.RequireRole(models.RoleAdmin))
		ar.Get("/", h.list)
		ar.Patch("/{id}", h.update)
	})
	return r
}

// publicProfile is what anyone may see about a user.
type publicProfile struct {
	ID          primitive.ObjectID `json:"id"`
	DisplayName string             `json:"display_name,omitempty"`
	Username    string             `json:"username,omitempty"`
	Role        string             `json:"role"`
}

type createInput struct {
	Username    string `json:"username" validate:"required,max=50" label:"Username"`
	DisplayName string `json:"display_name" validate:"max=100" label:"Display name"`
	Email       string `json:"email" label:"Email"`
	Role        string `json:"role" validate:"oneof=admin member" label:"Role"`
}

// create handles POST /api/users.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in createInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.Username = normalize.Name(in.Username)
	in.DisplayName = normalize.Name(in.DisplayName)
	in.Email = normalize.Email(in.Email)
	in.Role = normalize.Role(in.Role)
	if in.Role == "" {
		in.Role = models.RoleMember
	}

	fields := map[string]string{}
	if res := inputval.Validate(in); res.HasErrors() {
		fields = res.Fields()
	}
	if in.Email != "" && !inputval.IsValidEmail(in.Email) {
		fields["email"] = "A valid email address is required."
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	actor, signedIn := auth.CurrentUser(r)
	if in.Role == models.RoleAdmin && (!signedIn || !actor.IsAdmin()) {
		jsonutil.Forbidden(w, "only an admin may create admin users")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u := models.User{
		Username:    in.Username,
		DisplayName: in.DisplayName,
		Role:        in.Role,
	}
	if in.Email != "" {
		u.Email = &in.Email
	}
	created, err := h.userStore.Create(ctx, u)
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateUsername) {
			jsonutil.Conflict(w, "username is already taken")
			return
		}
		h.errLog.Internal(w, r, "failed to create user", err, zap.String("username", in.Username))
		return
	}

	var actorID primitive.ObjectID
	if signedIn {
		actorID = actor.UserID()
	}
	h.auditLogger.UserCreated(ctx, r, actorID, created.ID, created.Role)
	jsonutil.Created(w, created)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.NotFound(w, "user not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.userStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			jsonutil.NotFound(w, "user not found")
			return
		}
		h.errLog.Internal(w, r, "failed to load user", err, zap.String("user_id", id.Hex()))
		return
	}
	jsonutil.OK(w, publicProfile{ID: u.ID, DisplayName: u.DisplayName, Username: u.Username, Role: u.Role})
}

// list handles GET /api/users?q=&role=&status=&page=.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := bson.M{}
	if s := normalize.QueryParam(q.Get("q")); s != "" {
		filter["$or"] = []bson.M{
			{"username_ci": primitive.Regex{Pattern: regexp.QuoteMeta(text.Fold(s))}},
			{"display_name": primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}},
		}
	}
	if role := normalize.Role(q.Get("role")); role != "" {
		filter["role"] = role
	}
	if st := normalize.Status(q.Get("status")); st != "" {
		filter["status"] = st
	}
	page, _ := strconv.ParseInt(q.Get("page"), 10, 64)
	if page < 1 {
		page = 1
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	total, err := h.userStore.Count(ctx, filter)
	if err != nil {
		h.errLog.Internal(w, r, "failed to count users", err)
		return
	}
	opts := storeutil.Paginate(pageSize, page).
		SetSort(bson.D{{Key: "username_ci", Value: 1}, {Key: "_id", Value: 1}})
	users, err := h.userStore.Find(ctx, filter, opts)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list users", err)
		return
	}
	if users == nil {
		users = []models.User{}
	}
	jsonutil.OK(w, map[string]any{
		"users": users,
		"total": total,
		"page":  page,
		"pages": storeutil.Pages(total, pageSize),
	})
}

type updateInput struct {
	Role   *string `json:"role"`
	Status *string `json:"status"`
}

// update handles PATCH /api/users/{id}. The last active admin cannot be
// demoted or disabled.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.NotFound(w, "user not found")
		return
	}

	var in updateInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	fields := map[string]string{}
	if in.Role != nil {
		*in.Role = normalize.Role(*in.Role)
		if !models.IsValidRole(*in.Role) {
			fields["role"] = "Role must be one of: admin, member."
		}
	}
	if in.Status != nil {
		*in.Status = normalize.Status(*in.Status)
		if !models.IsValidStatus(*in.Status) {
			fields["status"] = "Status must be one of: active, disabled."
		}
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	u, err := h.userStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			jsonutil.NotFound(w, "user not found")
			return
		}
		h.errLog.Internal(w, r, "failed to load user", err, zap.String("user_id", id.Hex()))
		return
	}

	losesAdmin := (in.Role != nil && *in.Role != models.RoleAdmin) ||
		(in.Status != nil && *in.Status != models.StatusActive)
	if u.Role == models.RoleAdmin && u.Status == models.StatusActive && losesAdmin {
		n, err := h.userStore.CountActiveAdmins(ctx)
		if err != nil {
			h.errLog.Internal(w, r, "failed to count admins", err)
			return
		}
		if n <= 1 {
			jsonutil.Conflict(w, "cannot demote or disable the last active admin")
			return
		}
	}

	if err := h.userStore.UpdateFromInput(ctx, id, userstore.UpdateInput{Role: in.Role, Status: in.Status}); err != nil {
		h.errLog.Internal(w, r, "failed to update user", err, zap.String("user_id", id.Hex()))
		return
	}
	updated, err := h.userStore.GetByID(ctx, id)
	if err != nil {
		h.errLog.Internal(w, r, "failed to reload user", err, zap.String("user_id", id.Hex()))
		return
	}
	jsonutil.OK(w, updated)
}
