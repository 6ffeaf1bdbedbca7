// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// collection pairs a collection name with its JSON-Schema validator.
// A nil schema only makes sure the collection exists.
type collection struct {
	name   string
	schema func() bson.M
}

var collections = []collection{
	{"users", usersSchema},
	{"recipes", recipesSchema},
	{"comments", commentsSchema},
	{"propagation_runs", propagationRunsSchema},
	{"propagation_items", propagationItemsSchema},
	{"audit_logs", nil},
	{"ledger_entries", nil},
}

// EnsureAll creates the collections the service writes to and attaches their
// validators. Servers that reject collMod validators (some DocumentDB
// versions) are logged and skipped; every other problem is collected and
// returned together.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	existing, listErr := db.ListCollectionNames(ctx, bson.M{})
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	var problems []string
	for _, c := range collections {
		if listErr != nil || !have[c.name] {
			if err := createCollection(ctx, db, c.name); err != nil {
				problems = append(problems, c.name+": "+err.Error())
				continue
			}
		}
		if c.schema == nil {
			continue
		}
		if err := setValidator(ctx, db, c.name, c.schema()); err != nil {
			if unsupported(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", c.name))
				continue
			}
			problems = append(problems, c.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// createCollection creates name, treating a concurrent creation as success.
func createCollection(ctx context.Context, db *mongo.Database, name string) error {
	if err := db.CreateCollection(ctx, name); err != nil {
		if alreadyExists(err) {
			return nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		return err
	}
	zap.L().Info("validator ensured", zap.String("collection", name))
	return nil
}

// commandErr reports whether err is a command error with one of codes, or
// whose text contains one of phrases.
func commandErr(err error, codes []int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		for _, c := range codes {
			if ce.Code == c {
				return true
			}
		}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// NamespaceExists
func alreadyExists(err error) bool {
	return commandErr(err, []int32{48}, "already exists", "namespace exists")
}

// CommandNotFound or NotImplemented
func unsupported(err error) bool {
	return commandErr(err, []int32{59, 115}, "no such command", "not implemented", "not supported")
}

/* ------------------------- JSON-Schema docs ---------------------- */

func usersSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"role", "status"},
			"properties": bson.M{
				"display_name": bson.M{"bsonType": "string"},
				"username":     bson.M{"bsonType": "string"},
				"username_ci":  bson.M{"bsonType": "string"},
				"email":        bson.M{"bsonType": bson.A{"string", "null"}},
				"role":         bson.M{"enum": bson.A{models.RoleAdmin, models.RoleMember}},
				"status":       bson.M{"enum": bson.A{"active", "disabled"}},
			},
		},
	}
}

func recipesSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"slug", "owner_id", "title", "category", "created_at"},
			"properties": bson.M{
				"slug":        bson.M{"bsonType": "string", "minLength": 1},
				"slug_base":   bson.M{"bsonType": "string"},
				"owner_id":    bson.M{"bsonType": "objectId"},
				"title":       bson.M{"bsonType": "string", "minLength": 1, "pattern": ".*\\S.*"},
				"ingredients": bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
				"steps":       bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
				"category":    bson.M{"enum": bson.A{"Breakfast", "Lunch", "Dinner", "Dessert"}},
				"created_at":  bson.M{"bsonType": "date"},
			},
		},
	}
}

func commentsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"recipe_id", "author_id", "body"},
			"properties": bson.M{
				"recipe_id":   bson.M{"bsonType": "objectId"},
				"author_id":   bson.M{"bsonType": "objectId"},
				"author_name": bson.M{"bsonType": "string"},
				"body":        bson.M{"bsonType": "string", "minLength": 1},
			},
		},
	}
}

func propagationRunsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"user_id", "display_name", "status"},
			"properties": bson.M{
				"user_id":      bson.M{"bsonType": "objectId"},
				"display_name": bson.M{"bsonType": "string", "minLength": 1},
				"status": bson.M{"enum": bson.A{
					models.RunPending, models.RunRunning, models.RunCompleted, models.RunPartial, models.RunSuperseded,
				}},
			},
		},
	}
}

func propagationItemsSchema() bson.M {
	return bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"run_id", "comment_id", "state"},
			"properties": bson.M{
				"run_id":     bson.M{"bsonType": "objectId"},
				"recipe_id":  bson.M{"bsonType": "objectId"},
				"comment_id": bson.M{"bsonType": "objectId"},
				"state":      bson.M{"enum": bson.A{models.ItemPending, models.ItemDone, models.ItemFailed, models.ItemSkipped}},
			},
		},
	}
}
