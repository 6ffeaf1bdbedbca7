// internal/app/store/recipes/recipestore.go
package recipestore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dalemusser/stratarecipe/internal/app/store/storeutil"
	"github.com/dalemusser/stratarecipe/internal/app/system/slug"
	"github.com/dalemusser/stratarecipe/internal/app/system/txn"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a recipe is not found.
	ErrNotFound = errors.New("recipe not found")
	// ErrDuplicateSlug is returned when a write is rejected by the unique slug
	// index. It matches slug.ErrTaken so the allocator treats it as a collision.
	ErrDuplicateSlug = fmt.Errorf("recipe %w", slug.ErrTaken)
)

// DefaultPerPage is the listing page size.
const DefaultPerPage = 12

// Store provides access to the recipes collection. Deleting a recipe also
// removes its comments, so the store keeps a handle on both.
type Store struct {
	db       *mongo.Database
	c        *mongo.Collection
	comments *mongo.Collection
}

// New creates a new recipe store.
func New(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		c:        db.Collection("recipes"),
		comments: db.Collection("comments"),
	}
}

// Create inserts a recipe. ID and timestamps are filled in when zero.
func (s *Store) Create(ctx context.Context, r models.Recipe) (models.Recipe, error) {
	now := time.Now().UTC()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	}
	if r.Steps == nil {
		r.Steps = []string{}
	}

	if _, err := s.c.InsertOne(ctx, r); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Recipe{}, ErrDuplicateSlug
		}
		return models.Recipe{}, err
	}
	return r, nil
}

// SlugTaken reports whether a recipe other than excludeID holds slug.
func (s *Store) SlugTaken(ctx context.Context, slugValue, excludeID string) (bool, error) {
	filter := bson.M{"slug": slugValue}
	if excludeID != "" {
		oid, err := primitive.ObjectIDFromHex(excludeID)
		if err != nil {
			return false, fmt.Errorf("exclude id: %w", err)
		}
		filter["_id"] = bson.M{"$ne": oid}
	}
	n, err := s.c.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetSlug rewrites the slug of a recipe.
func (s *Store) SetSlug(ctx context.Context, id, slugValue string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{"slug": slugValue},
	})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateSlug
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID loads a recipe by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Recipe, error) {
	var r models.Recipe
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Recipe{}, ErrNotFound
		}
		return models.Recipe{}, err
	}
	return r, nil
}

// GetBySlug loads a recipe by its slug.
func (s *Store) GetBySlug(ctx context.Context, slugValue string) (models.Recipe, error) {
	var r models.Recipe
	if err := s.c.FindOne(ctx, bson.M{"slug": slugValue}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Recipe{}, ErrNotFound
		}
		return models.Recipe{}, err
	}
	return r, nil
}

// Update holds the editable fields of a recipe. Slug and SlugBase are
// written together with the rest of the edit.
type Update struct {
	Title       string
	Description string
	Ingredients []string
	Steps       []string
	Category    string
	ImageURL    string
	YoutubeURL  string
	Slug        string
	SlugBase    string
}

// Apply writes an edit. It returns ErrDuplicateSlug if the slug is held by
// another recipe.
func (s *Store) Apply(ctx context.Context, id primitive.ObjectID, upd Update) error {
	set := bson.M{
		"title":       upd.Title,
		"description": upd.Description,
		"ingredients": nonNil(upd.Ingredients),
		"steps":       nonNil(upd.Steps),
		"category":    upd.Category,
		"image_url":   upd.ImageURL,
		"youtube_url": upd.YoutubeURL,
		"slug":        upd.Slug,
		"slug_base":   upd.SlugBase,
		"updated_at":  time.Now().UTC(),
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if wafflemongo.IsDup(err) {
			return ErrDuplicateSlug
		}
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListFilter narrows a recipe listing.
type ListFilter struct {
	Category string
	Search   string // case-insensitive substring of the title
	OwnerID  primitive.ObjectID
	Sort     string
	Page     int64
	PerPage  int64
}

// List returns one page of recipes and the total number matching the filter.
func (s *Store) List(ctx context.Context, f ListFilter) ([]models.Recipe, int64, error) {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if !f.OwnerID.IsZero() {
		filter["owner_id"] = f.OwnerID
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		filter["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
	}

	total, err := s.c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	perPage := f.PerPage
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	opts := storeutil.Paginate(perPage, f.Page).SetSort(sortFor(f.Sort))
	if f.Sort == models.SortAlphabetAsc || f.Sort == models.SortAlphabetDesc {
		opts.SetCollation(&options.Collation{Locale: "en", Strength: 2})
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	var recipes []models.Recipe
	if err := cur.All(ctx, &recipes); err != nil {
		return nil, 0, err
	}
	return recipes, total, nil
}

func sortFor(s string) bson.D {
	switch s {
	case models.SortAlphabetAsc:
		return bson.D{{Key: "title", Value: 1}, {Key: "_id", Value: 1}}
	case models.SortAlphabetDesc:
		return bson.D{{Key: "title", Value: -1}, {Key: "_id", Value: -1}}
	case models.SortDateAsc:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	default:
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	}
}

// ListAll returns every recipe, newest first.
func (s *Store) ListAll(ctx context.Context) ([]models.Recipe, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recipes []models.Recipe
	if err := cur.All(ctx, &recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

// RecipeIDs enumerates the IDs of every recipe.
func (s *Store) RecipeIDs(ctx context.Context) ([]primitive.ObjectID, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// FindPlaceholders returns recipes still on a temporary slug that were
// created before cutoff. The slug must be slug_base followed by the
// placeholder marker, so a title that only looks like one is not matched.
func (s *Store) FindPlaceholders(ctx context.Context, cutoff time.Time, limit int64) ([]models.Recipe, error) {
	tail := bson.M{"$substrCP": bson.A{
		"$slug",
		bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{bson.M{"$strLenCP": "$slug"}, 8}}}},
		8,
	}}
	filter := bson.M{
		"slug":       primitive.Regex{Pattern: `-temp-[0-9a-f]{8}$`},
		"slug_base":  bson.M{"$type": "string", "$ne": ""},
		"created_at": bson.M{"$lte": cutoff},
		"$expr": bson.M{"$eq": bson.A{
			"$slug",
			bson.M{"$concat": bson.A{"$slug_base", "-temp-", tail}},
		}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var recipes []models.Recipe
	if err := cur.All(ctx, &recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

// Delete removes a recipe together with its comments and returns how many
// comments went with it. Both deletes share a transaction when the
// deployment supports one.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID, log *zap.Logger) (int64, error) {
	var removed int64
	err := txn.Run(ctx, s.db, log, func(ctx context.Context) error {
		cres, err := s.comments.DeleteMany(ctx, bson.M{"recipe_id": id})
		if err != nil {
			return err
		}
		res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return ErrNotFound
		}
		removed = cres.DeletedCount
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
