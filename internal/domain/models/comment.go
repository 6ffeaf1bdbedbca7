// internal/domain/models/comment.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Comment belongs to exactly one recipe and is deleted with it.
//
// AuthorName is a snapshot of the author's display name taken when the
// comment was written. It lags the profile after a rename until the
// propagation run for that author reaches it. Comments written before the
// field existed have it empty.
type Comment struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipeID   primitive.ObjectID `bson:"recipe_id" json:"recipe_id"`
	AuthorID   primitive.ObjectID `bson:"author_id" json:"author_id"`
	AuthorName string             `bson:"author_name,omitempty" json:"author_name,omitempty"`
	Body       string             `bson:"body" json:"body"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
}
