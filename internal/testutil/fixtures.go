package testutil

import (
	"testing"
	"time"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// InsertUser writes u straight to the users collection, filling in the id,
// timestamps, role and status when they are empty.
func InsertUser(t *testing.T, db *mongo.Database, u models.User) models.User {
	t.Helper()
	now := time.Now().UTC()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if u.Role == "" {
		u.Role = models.RoleMember
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	ctx, cancel := TestContext()
	defer cancel()
	if _, err := db.Collection("users").InsertOne(ctx, u); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return u
}

// InsertRecipe writes r straight to the recipes collection. The slug
// defaults to the hex id so fixtures never collide.
func InsertRecipe(t *testing.T, db *mongo.Database, r models.Recipe) models.Recipe {
	t.Helper()
	now := time.Now().UTC()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	if r.Slug == "" {
		r.Slug = r.ID.Hex()
	}
	if r.Title == "" {
		r.Title = "Fixture " + r.ID.Hex()
	}
	if r.Category == "" {
		r.Category = models.CategoryDinner
	}
	if r.OwnerID.IsZero() {
		r.OwnerID = primitive.NewObjectID()
	}
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	}
	if r.Steps == nil {
		r.Steps = []string{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	ctx, cancel := TestContext()
	defer cancel()
	if _, err := db.Collection("recipes").InsertOne(ctx, r); err != nil {
		t.Fatalf("insert recipe: %v", err)
	}
	return r
}

// InsertComment writes c straight to the comments collection.
func InsertComment(t *testing.T, db *mongo.Database, c models.Comment) models.Comment {
	t.Helper()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.Body == "" {
		c.Body = "fixture comment"
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := TestContext()
	defer cancel()
	if _, err := db.Collection("comments").InsertOne(ctx, c); err != nil {
		t.Fatalf("insert comment: %v", err)
	}
	return c
}
