// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	commentstore "github.com/dalemusser/stratarecipe/internal/app/store/comments"
	ledgerstore "github.com/dalemusser/stratarecipe/internal/app/store/ledger"
	propagationstore "github.com/dalemusser/stratarecipe/internal/app/store/propagation"
	recipestore "github.com/dalemusser/stratarecipe/internal/app/store/recipes"
	userstore "github.com/dalemusser/stratarecipe/internal/app/store/users"
	"github.com/dalemusser/stratarecipe/internal/app/system/propagation"
	"github.com/dalemusser/stratarecipe/internal/app/system/slug"
	"github.com/dalemusser/stratarecipe/internal/app/system/tasks"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It configures operation timeouts, builds the display name propagator that
// the profile and admin APIs share, and starts the background task runner.
//
// Returning a non-nil error will abort startup and prevent the server from
// starting.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Batch: appCfg.BatchTimeout})

	propagator = newPropagator(deps.MongoDatabase, appCfg, logger)
	startTaskRunner(deps.MongoDatabase, appCfg, propagator, logger)

	return nil
}

var (
	// propagator applies display name changes to comments; shared by the
	// profile API, the admin API and the reconcile task.
	propagator *propagation.Propagator

	// taskRunner is the global task runner instance, used for graceful shutdown.
	taskRunner *tasks.Runner
)

func newPropagator(db *mongo.Database, appCfg AppConfig, logger *zap.Logger) *propagation.Propagator {
	cfg := propagation.Config{
		Fanout:     appCfg.PropagationFanout,
		Attempts:   appCfg.PropagationItemAttempts,
		RetryDelay: appCfg.PropagationRetryDelay,
		StaleAfter: appCfg.PropagationStaleAfter,
	}
	content := propagation.NewContent(recipestore.New(db), commentstore.New(db))
	return propagation.New(content, propagationstore.New(db), userstore.New(db), cfg, logger.Named("propagation"))
}

// startTaskRunner registers the maintenance jobs and starts running them.
// A job with a zero interval is not registered.
func startTaskRunner(db *mongo.Database, appCfg AppConfig, p *propagation.Propagator, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	if appCfg.PropagationReconcileInterval > 0 {
		taskRunner.Register(tasks.PropagationReconcileJob(p, appCfg.PropagationReconcileInterval, 50, logger))
	}

	if appCfg.SlugRepairInterval > 0 {
		recipes := recipestore.New(db)
		taskRunner.Register(tasks.SlugPlaceholderRepairJob(
			recipes,
			slug.NewAllocator(recipes),
			appCfg.SlugRepairInterval,
			appCfg.SlugPlaceholderGrace,
			logger,
		))
	}

	if appCfg.LedgerPruneInterval > 0 {
		taskRunner.Register(tasks.LedgerPruneJob(ledgerstore.New(db), appCfg.LedgerPruneInterval, appCfg.LedgerRetention, logger))
	}

	taskRunner.Start()
}
