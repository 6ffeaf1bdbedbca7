// Package testutil provides the Mongo test database, seeded fixtures and
// request helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratarecipe/internal/app/system/indexes"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoURIEnv overrides the test server address (default mongodb://localhost:27017).
const MongoURIEnv = "STRATARECIPE_TEST_MONGO_URI"

const dbPrefix = "srtest_"

var (
	clientOnce sync.Once
	client     *mongo.Client
	clientErr  error
)

// sharedClient connects once per test binary. A failed ping is remembered so
// every later SetupTestDB skips quickly.
func sharedClient() (*mongo.Client, error) {
	clientOnce.Do(func() {
		uri := os.Getenv(MongoURIEnv)
		if uri == "" {
			uri = "mongodb://localhost:27017"
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		opts := options.Client().ApplyURI(uri).
			SetMaxPoolSize(64).
			SetConnectTimeout(3 * time.Second).
			SetServerSelectionTimeout(3 * time.Second)
		client, clientErr = mongo.Connect(ctx, opts)
		if clientErr == nil {
			clientErr = client.Ping(ctx, nil)
		}
	})
	return client, clientErr
}

// SetupTestDB returns an empty database private to t with every production
// index in place, so slug uniqueness and the other unique keys behave as in
// production. It skips t when MongoDB is unreachable and drops the database
// when t finishes. Validators are not attached; tests that need them call
// validators.EnsureAll themselves.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	c, err := sharedClient()
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	db := c.Database(dbName(t.Name()))
	ctx, cancel := TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop %s: %v", db.Name(), err)
		}
	})
	return db
}

// dbName derives a database name from a test name. A random tail keeps
// packages whose tests share a name from colliding when go test runs them
// in parallel; the total stays inside Mongo's 63 byte limit.
func dbName(test string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, test)
	if len(clean) > 40 {
		clean = clean[:40]
	}
	return dbPrefix + clean + "_" + uuid.NewString()[:8]
}

// TestContext bounds a test's store calls.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
