// internal/app/system/seeding/seeding.go
package seeding

import (
	"context"
	"strings"

	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// AdminSeed describes the administrator created on first start.
type AdminSeed struct {
	Email       string
	DisplayName string
}

// SeedAll seeds default data if not already present.
func SeedAll(ctx context.Context, db *mongo.Database, admin AdminSeed, logger *zap.Logger) error {
	return seedAdmin(ctx, userstore.New(db), admin, logger)
}

// seedAdmin creates an admin profile when none is active and an email is
// configured. An existing user with that email is left alone.
func seedAdmin(ctx context.Context, store *userstore.Store, admin AdminSeed, logger *zap.Logger) error {
	email := strings.TrimSpace(admin.Email)
	if email == "" {
		return nil
	}

	n, err := store.CountActiveAdmins(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := store.GetByEmail(ctx, email); err == nil {
		logger.Warn("seed admin email belongs to an existing user; not promoting",
			zap.String("email", email))
		return nil
	} else if err != userstore.ErrNotFound {
		return err
	}

	name := strings.TrimSpace(admin.DisplayName)
	if name == "" {
		name = "Administrator"
	}
	username, _, _ := strings.Cut(email, "@")

	u, err := store.Create(ctx, models.User{
		DisplayName: name,
		Username:    username,
		Email:       &email,
		Role:        models.RoleAdmin,
	})
	if err != nil {
		return err
	}
	logger.Info("seeded admin user",
		zap.String("user_id", u.ID.Hex()),
		zap.String("email", email))
	return nil
}
