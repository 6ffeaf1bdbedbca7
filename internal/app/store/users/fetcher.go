package userstore

import (
	"context"
	"errors"

	"github.com/dalemusser/stratarecipe/internal/app/system/auth"
	"github.com/dalemusser/stratarecipe/internal/app/system/normalize"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var actorFields = options.FindOne().SetProjection(bson.M{
	"display_name": 1, "username": 1, "role": 1, "status": 1,
})

// Fetcher resolves the X-User-ID of each API request to an auth.Actor.
// It reads the profile fresh every time, so a role change or a disabled
// account takes effect on the next request.
type Fetcher struct {
	store  *Store
	logger *zap.Logger
}

func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{store: New(db), logger: logger}
}

// FetchUser returns nil for a malformed id, an unknown or disabled user,
// and on store errors (which are logged).
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.Actor {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := f.store.findOne(ctx, bson.M{"_id": oid}, actorFields)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			f.logger.Warn("acting user lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return nil
	}
	if normalize.Status(u.Status) == models.StatusDisabled {
		return nil
	}
	return &auth.Actor{
		ID:          u.ID.Hex(),
		DisplayName: u.DisplayName,
		Username:    u.Username,
		Role:        normalize.Role(u.Role),
	}
}
