// internal/app/store/propagation/propagationstore.go
package propagationstore

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

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("propagation run not found")

// ErrSuperseded is returned by SaveRun when a newer rename already marked
// the run superseded.
var ErrSuperseded = errors.New("propagation run superseded")

var unfinished = []string{models.RunPending, models.RunRunning, models.RunPartial}

// Store persists propagation runs and their items.
type Store struct {
	runs  *mongo.Collection
	items *mongo.Collection
}

// New creates a new propagation store.
func New(db *mongo.Database) *Store {
	return &Store{
		runs:  db.Collection("propagation_runs"),
		items: db.Collection("propagation_items"),
	}
}

// CreateRun inserts a run and its items, assigning IDs to both. If the
// items cannot be written the run and any items already inserted are
// removed again.
func (s *Store) CreateRun(ctx context.Context, run *models.PropagationRun, items []models.PropagationItem) error {
	run.ID = primitive.NewObjectID()
	if _, err := s.runs.InsertOne(ctx, run); err != nil {
		run.ID = primitive.NilObjectID
		return err
	}
	if err := s.AddItems(ctx, run.ID, items); err != nil {
		_, _ = s.items.DeleteMany(ctx, bson.M{"run_id": run.ID})
		_, _ = s.runs.DeleteOne(ctx, bson.M{"_id": run.ID})
		run.ID = primitive.NilObjectID
		return err
	}
	return nil
}

// AddItems inserts items for a run, assigning their IDs.
func (s *Store) AddItems(ctx context.Context, runID primitive.ObjectID, items []models.PropagationItem) error {
	if len(items) == 0 {
		return nil
	}
	docs := make([]interface{}, len(items))
	for i := range items {
		items[i].ID = primitive.NewObjectID()
		items[i].RunID = runID
		docs[i] = items[i]
	}
	if _, err := s.items.InsertMany(ctx, docs); err != nil {
		for i := range items {
			items[i].ID = primitive.NilObjectID
		}
		return err
	}
	return nil
}

// GetRun loads a run by ID.
func (s *Store) GetRun(ctx context.Context, id primitive.ObjectID) (models.PropagationRun, error) {
	var run models.PropagationRun
	if err := s.runs.FindOne(ctx, bson.M{"_id": id}).Decode(&run); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.PropagationRun{}, ErrNotFound
		}
		return models.PropagationRun{}, err
	}
	return run, nil
}

// SaveRun writes a run's status and counters. A run marked superseded keeps
// that status: saving any other status returns ErrSuperseded and changes
// nothing.
func (s *Store) SaveRun(ctx context.Context, run models.PropagationRun) error {
	set := bson.M{
		"status":     run.Status,
		"total":      run.Total,
		"updated":    run.Updated,
		"failed":     run.Failed,
		"skipped":    run.Skipped,
		"passes":     run.Passes,
		"updated_at": run.UpdatedAt,
	}
	if run.CompletedAt != nil {
		set["completed_at"] = run.CompletedAt
	}
	filter := bson.M{"_id": run.ID}
	if run.Status != models.RunSuperseded {
		filter["status"] = bson.M{"$ne": models.RunSuperseded}
	}
	res, err := s.runs.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := s.runs.CountDocuments(ctx, bson.M{"_id": run.ID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrSuperseded
}

// SaveItem writes an item's state.
func (s *Store) SaveItem(ctx context.Context, item models.PropagationItem) error {
	_, err := s.items.UpdateOne(ctx, bson.M{"_id": item.ID}, bson.M{
		"$set": bson.M{
			"state":      item.State,
			"attempts":   item.Attempts,
			"last_error": item.LastError,
			"updated_at": item.UpdatedAt,
		},
	})
	return err
}

// Items returns every item of a run.
func (s *Store) Items(ctx context.Context, runID primitive.ObjectID) ([]models.PropagationItem, error) {
	cur, err := s.items.Find(ctx, bson.M{"run_id": runID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var items []models.PropagationItem
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SupersedeOthers marks the user's unfinished runs other than keep as superseded.
func (s *Store) SupersedeOthers(ctx context.Context, userID, keep primitive.ObjectID) (int64, error) {
	res, err := s.runs.UpdateMany(ctx, bson.M{
		"user_id": userID,
		"_id":     bson.M{"$ne": keep},
		"status":  bson.M{"$in": unfinished},
	}, bson.M{
		"$set": bson.M{
			"status":     models.RunSuperseded,
			"updated_at": time.Now().UTC(),
		},
	})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// ListIncomplete returns unfinished runs last touched at or before cutoff,
// oldest first.
func (s *Store) ListIncomplete(ctx context.Context, cutoff time.Time, limit int64) ([]models.PropagationRun, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.runs.Find(ctx, bson.M{
		"status":     bson.M{"$in": unfinished},
		"updated_at": bson.M{"$lte": cutoff},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var runs []models.PropagationRun
	if err := cur.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListByUser returns a user's most recent runs, newest first.
func (s *Store) ListByUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.PropagationRun, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.runs.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var runs []models.PropagationRun
	if err := cur.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}
