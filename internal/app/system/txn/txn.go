// Package txn runs multi-document writes in a MongoDB transaction when the
// deployment supports one, and without one when it does not (standalone
// servers, DocumentDB without a replica set).
//
//	err := txn.Run(ctx, db, log, func(ctx context.Context) error {
//	    if _, err := comments.DeleteMany(ctx, bson.M{"recipe_id": id}); err != nil {
//	        return err
//	    }
//	    _, err := recipes.DeleteOne(ctx, bson.M{"_id": id})
//	    return err
//	})
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Func holds the writes to group. ctx is a mongo.SessionContext inside a
// transaction and the caller's context otherwise; use it for every call.
type Func func(ctx context.Context) error

// Run executes fn in a transaction if possible. When sessions or
// transactions are unavailable it logs a warning (if log is non-nil) and
// runs fn directly, so the writes are applied without atomicity.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn Func) error {
	session, err := db.Client().StartSession()
	if err != nil {
		warn(log, "failed to start session, running without transaction", err)
		return fn(ctx)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		warn(log, "transactions not supported, running without transaction", err)
		return fn(ctx)
	}
	return err
}

func warn(log *zap.Logger, msg string, err error) {
	if log != nil {
		log.Warn(msg, zap.Error(err))
	}
}

// notSupportedCodes are server error codes meaning no transaction can run:
// 20 (IllegalOperation on a standalone), 51, and 263 (operation not allowed
// in a transaction).
var notSupportedCodes = map[int32]struct{}{20: {}, 51: {}, 263: {}}

// IsNotSupported reports whether err says the deployment cannot run a
// multi-document transaction.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		if _, ok := notSupportedCodes[cmdErr.Code]; ok {
			return true
		}
	}

	// DocumentDB and older servers only say so in the message. Two keyword
	// hits are required so unrelated errors mentioning "session" do not match.
	msg := strings.ToLower(err.Error())
	hits := 0
	for _, kw := range []string{"transaction", "replica set", "session", "not supported", "illegal operation"} {
		if strings.Contains(msg, kw) {
			hits++
		}
	}
	return hits >= 2
}
