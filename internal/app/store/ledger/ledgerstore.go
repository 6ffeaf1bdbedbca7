// internal/app/store/ledger/ledgerstore.go
package ledgerstore

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Entry is one failed API request.
type Entry struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	RequestID string             `bson:"request_id,omitempty" json:"request_id,omitempty"`

	Method   string `bson:"method" json:"method"`
	Path     string `bson:"path" json:"path"`
	Query    string `bson:"query,omitempty" json:"query,omitempty"`
	RemoteIP string `bson:"remote_ip" json:"remote_ip"`
	ActorID  string `bson:"actor_id,omitempty" json:"actor_id,omitempty"` // X-User-ID as sent

	RequestBodyPreview string `bson:"request_body_preview,omitempty" json:"request_body_preview,omitempty"`

	StatusCode   int    `bson:"status_code" json:"status_code"`
	ErrorClass   string `bson:"error_class" json:"error_class"`                         // validation, auth, forbidden, not_found, conflict, internal
	ErrorMessage string `bson:"error_message,omitempty" json:"error_message,omitempty"` // start of the response body

	DurationMs float64   `bson:"duration_ms" json:"duration_ms"`
	StartedAt  time.Time `bson:"started_at" json:"started_at"`
}

// Store manages the ledger_entries collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new ledger store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("ledger_entries")}
}

// Create inserts a new ledger entry.
func (s *Store) Create(ctx context.Context, entry Entry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, entry)
	return err
}

// ListFilter narrows a List call. Zero fields are ignored.
type ListFilter struct {
	ErrorClass string
	PathPrefix string
	StatusCode int
	Since      *time.Time
	Limit      int64 // defaults to 50, capped at 500
}

func (f ListFilter) bson() bson.M {
	q := bson.M{}
	if f.ErrorClass != "" {
		q["error_class"] = f.ErrorClass
	}
	if f.PathPrefix != "" {
		q["path"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(f.PathPrefix)}
	}
	if f.StatusCode != 0 {
		q["status_code"] = f.StatusCode
	}
	if f.Since != nil {
		q["started_at"] = bson.M{"$gte": *f.Since}
	}
	return q
}

// List returns entries matching filter, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, filter.bson(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var entries []Entry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteOlderThan removes entries that started before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"started_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
