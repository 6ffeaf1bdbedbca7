// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// EnsureAll brings every collection's indexes in line with what the stores
// query by. It runs at startup and for each test database, is idempotent,
// and reports the problems of all collections together.
//
// The unique index on recipes.slug turns a lost slug probe race into a
// rejected write, which the allocator then resolves with the id suffix.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	sets := []struct {
		name string
		fn   func(context.Context, *mongo.Database) error
	}{
		{"users", ensureUsers},
		{"recipes", ensureRecipes},
		{"comments", ensureComments},
		{"propagation_runs", ensurePropagationRuns},
		{"propagation_items", ensurePropagationItems},
		{"audit_logs", ensureAuditLogs},
		{"ledger_entries", ensureLedgerEntries},
	}

	var errs []error
	for _, set := range sets {
		if err := set.fn(ctx, db); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", set.name, err))
		}
	}
	return errors.Join(errs...)
}

// present is an index already on the collection, keyed by its key signature.
type present struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique bool   `bson:"unique"`
}

// signature renders index keys as "field:dir, ..." in key order.
func signature(keys bson.D) string {
	var b strings.Builder
	for i, kv := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:%v", kv.Key, kv.Value)
	}
	return b.String()
}

// existing lists the collection's indexes. A missing collection has none.
func existing(ctx context.Context, coll *mongo.Collection) map[string]present {
	out := map[string]present{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return out
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx present
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("skipping undecodable index", zap.String("collection", coll.Name()), zap.Error(err))
			continue
		}
		out[signature(idx.Key)] = idx
	}
	return out
}

// ensureIndexSet creates each wanted index that is missing. An index on the
// same keys is reused when its uniqueness matches and rebuilt when it does not.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, wanted []mongo.IndexModel) error {
	have := existing(ctx, coll)
	var errs []error

	for _, m := range wanted {
		name, unique := "", false
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique != nil && *m.Options.Unique
		}
		sig := signature(m.Keys.(bson.D))
		log := zap.L().With(zap.String("collection", coll.Name()), zap.String("index", name), zap.String("keys", sig))

		if ex, ok := have[sig]; ok {
			if ex.Unique == unique {
				log.Debug("index present")
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Errorf("%s: drop %s for rebuild: %w", name, ex.Name, err))
				continue
			}
			log.Info("rebuilding index with new uniqueness", zap.Bool("unique", unique))
		}

		start := time.Now()
		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			if unique && wafflemongo.IsDup(err) {
				err = fmt.Errorf("existing documents hold duplicate keys: %w", err)
			}
			log.Warn("index create failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Info("index created", zap.Bool("unique", unique), zap.Duration("took", time.Since(start)))
	}
	return errors.Join(errs...)
}

/* -------------------------------------------------------------------------- */
/* Collection-specific index sets                                              */
/* -------------------------------------------------------------------------- */

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("users"), []mongo.IndexModel{
		// Usernames are optional; sparse so users without one don't collide.
		{
			Keys:    bson.D{{Key: "username_ci", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("uniq_users_usernameci"),
		},
		{
			Keys: bson.D{
				{Key: "role", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("idx_users_role_status"),
		},
	})
}

func ensureRecipes(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("recipes"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_recipes_slug"),
		},
		// Listing: category filter + newest first
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_recipes_category_created_id"),
		},
		// "My recipes"
		{
			Keys: bson.D{
				{Key: "owner_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_recipes_owner_created"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}},
			Options: options.Index().SetName("idx_recipes_created_id"),
		},
	})
}

func ensureComments(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("comments"), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "recipe_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_comments_recipe_created"),
		},
		// Propagation: a recipe's comments by one author
		{
			Keys: bson.D{
				{Key: "recipe_id", Value: 1},
				{Key: "author_id", Value: 1},
			},
			Options: options.Index().SetName("idx_comments_recipe_author"),
		},
	})
}

func ensurePropagationRuns(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("propagation_runs"), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "updated_at", Value: 1},
			},
			Options: options.Index().SetName("idx_proprun_status_updated"),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_proprun_user_created"),
		},
	})
}

func ensurePropagationItems(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("propagation_items"), []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "run_id", Value: 1},
				{Key: "comment_id", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("uniq_propitem_run_comment"),
		},
	})
}

func ensureAuditLogs(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("audit_logs"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_created"),
		},
		{
			Keys: bson.D{
				{Key: "category", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_category_created"),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_user_created"),
		},
		{
			Keys: bson.D{
				{Key: "actor_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_audit_actor_created"),
		},
	})
}

func ensureLedgerEntries(ctx context.Context, db *mongo.Database) error {
	return ensureIndexSet(ctx, db.Collection("ledger_entries"), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "started_at", Value: -1}},
			Options: options.Index().SetName("idx_ledger_started"),
		},
		{
			Keys: bson.D{
				{Key: "error_class", Value: 1},
				{Key: "started_at", Value: -1},
			},
			Options: options.Index().SetName("idx_ledger_class_started"),
		},
	})
}
