// internal/app/store/comments/commentstore.go
package commentstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a comment is not found.
var ErrNotFound = errors.New("comment not found")

// Store provides access to the comments collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new comment store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("comments")}
}

// Create inserts a comment. ID and CreatedAt are filled in when zero.
func (s *Store) Create(ctx context.Context, c models.Comment) (models.Comment, error) {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, c); err != nil {
		return models.Comment{}, err
	}
	return c, nil
}

// GetByID loads a comment by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Comment, error) {
	var c models.Comment
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, err
	}
	return c, nil
}

// ListByRecipe returns a recipe's comments, oldest first.
func (s *Store) ListByRecipe(ctx context.Context, recipeID primitive.ObjectID) ([]models.Comment, error) {
	return s.find(ctx, bson.M{"recipe_id": recipeID})
}

// ListByRecipes returns the comments of several recipes grouped by recipe ID.
func (s *Store) ListByRecipes(ctx context.Context, recipeIDs []primitive.ObjectID) (map[primitive.ObjectID][]models.Comment, error) {
	out := make(map[primitive.ObjectID][]models.Comment, len(recipeIDs))
	if len(recipeIDs) == 0 {
		return out, nil
	}
	comments, err := s.find(ctx, bson.M{"recipe_id": bson.M{"$in": recipeIDs}})
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		out[c.RecipeID] = append(out[c.RecipeID], c)
	}
	return out, nil
}

// CommentsByAuthor returns the comments on recipeID written by authorID.
// Only the fields needed to rewrite the author name are loaded.
func (s *Store) CommentsByAuthor(ctx context.Context, recipeID, authorID primitive.ObjectID) ([]models.Comment, error) {
	opts := options.Find().SetProjection(bson.M{
		"_id":         1,
		"recipe_id":   1,
		"author_id":   1,
		"author_name": 1,
	})
	cur, err := s.c.Find(ctx, bson.M{"recipe_id": recipeID, "author_id": authorID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var comments []models.Comment
	if err := cur.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// SetAuthorName rewrites the stored author name of one comment.
func (s *Store) SetAuthorName(ctx context.Context, id primitive.ObjectID, name string) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"author_name": name},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes one comment.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByRecipe returns the number of comments on a recipe.
func (s *Store) CountByRecipe(ctx context.Context, recipeID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"recipe_id": recipeID})
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var comments []models.Comment
	if err := cur.All(ctx, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}
