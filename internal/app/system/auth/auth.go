// Package auth authenticates API callers and identifies the acting user.
//
// Every API request carries the service API key as a Bearer token. The user
// a request acts for is named by the trusted X-User-ID header set by the
// front end, and is loaded fresh from the database on each request so role
// changes and disabled accounts take effect immediately.
package auth

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username: the handle chosen at registration

import (
	"context"
	"net/http"
	"strings"

	"github.com/dalemusser/stratarecipe/internal/app/system/jsonutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// UserHeader names the header carrying the acting user's ID.
const UserHeader = "X-User-ID"

// UserFetcher fetches fresh user data from the database.
// Implementations should return nil if the user is not found or is disabled.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *Actor
}

// Actor is the user a request acts for.
type Actor struct {
	ID          string
	DisplayName string
	Username    string
	Role        string
}

// UserID returns the actor's ID as an ObjectID.
// If the ID is invalid, returns a zero ObjectID.
func (a *Actor) UserID() primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(a.ID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// IsAdmin reports whether the actor has the admin role.
func (a *Actor) IsAdmin() bool {
	return normalize.Role(a.Role) == "admin"
}

// Name is the name to stamp on things the actor writes.
func (a *Actor) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the actor & "found?" flag from the request context.
func CurrentUser(r *http.Request) (*Actor, bool) {
	u, ok := r.Context().Value(currentUserKey).(*Actor)
	return u, ok
}

// LoadActor returns middleware that resolves the X-User-ID header through
// fetcher and injects the actor into the request context. Requests without
// the header, or naming an unknown or disabled user, carry on anonymously.
func LoadActor(fetcher UserFetcher, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserHeader))
			if userID != "" && fetcher != nil {
				if a := fetcher.FetchUser(r.Context(), userID); a != nil {
					r = withUser(r, a)
				} else {
					logger.Info("acting user not found or disabled",
						zap.String("user_id", userID),
						zap.String("path", r.URL.Path))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSignedIn is middleware that ensures there is an actor in context.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			jsonutil.Unauthorized(w, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole returns middleware that ensures there is an actor with one of
// the allowed roles.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[normalize.Role(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				jsonutil.Unauthorized(w, "sign in required")
				return
			}
			if _, has := set[normalize.Role(u.Role)]; !has {
				jsonutil.Forbidden(w, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withUser(r *http.Request, u *Actor) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects an Actor into the request context for testing.
func WithTestUser(r *http.Request, u *Actor) *http.Request {
	return withUser(r, u)
}
