// internal/domain/models/propagation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PropagationRun records one attempt to copy a user's display name onto every
// comment they have written. The affected comments are listed up front as
// PropagationItems so an interrupted run can be resumed from what is left.
type PropagationRun struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	DisplayName string             `bson:"display_name" json:"display_name"`
	Status      string             `bson:"status" json:"status"`

	Total   int `bson:"total" json:"total"`
	Updated int `bson:"updated" json:"updated"`
	Failed  int `bson:"failed" json:"failed"`
	Skipped int `bson:"skipped" json:"skipped"`
	Passes  int `bson:"passes" json:"passes"`

	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updated_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// PropagationItem is one comment a run must rewrite.
type PropagationItem struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID     primitive.ObjectID `bson:"run_id" json:"run_id"`
	RecipeID  primitive.ObjectID `bson:"recipe_id" json:"recipe_id"`
	CommentID primitive.ObjectID `bson:"comment_id" json:"comment_id"`
	State     string             `bson:"state" json:"state"`
	Attempts  int                `bson:"attempts" json:"attempts"`
	LastError string             `bson:"last_error,omitempty" json:"last_error,omitempty"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// Propagation run statuses
const (
	RunPending    = "pending"
	RunRunning    = "running"
	RunCompleted  = "completed"
	RunPartial    = "partial"
	RunSuperseded = "superseded"
)

// Propagation item states. A skipped item needs no write: its comment was
// deleted, or the run stopped being the user's current name.
const (
	ItemPending = "pending"
	ItemDone    = "done"
	ItemFailed  = "failed"
	ItemSkipped = "skipped"
)

// IsSettled reports whether an item will not be written again by its run.
func (it PropagationItem) IsSettled() bool {
	return it.State == ItemDone || it.State == ItemSkipped
}

// IsTerminal reports whether a run will not be picked up again by reconciliation.
func (r PropagationRun) IsTerminal() bool {
	return r.Status == RunCompleted || r.Status == RunSuperseded
}
