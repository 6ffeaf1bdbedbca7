package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/stratarecipe/internal/app/system/indexes"
	"github.com/dalemusser/stratarecipe/internal/app/system/seeding"
	"github.com/dalemusser/stratarecipe/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// ConnectDB opens the pooled Mongo client. Propagation fan-out draws from
// the same pool as request traffic, so mongo_max_pool_size bounds both.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	pool := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		pool.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		pool.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, pool)
	if err != nil {
		return DBDeps{}, fmt.Errorf("connect mongo: %w", err)
	}

	logger.Info("mongo connected",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool", pool.MaxPoolSize),
		zap.Uint64("min_pool", pool.MinPoolSize))

	return DBDeps{MongoClient: client, MongoDatabase: client.Database(appCfg.MongoDatabase)}, nil
}

// EnsureSchema prepares the database before any handler runs: collections
// and their validators, then indexes (the unique recipes.slug index among
// them), then the seed admin. ctx carries the index boot timeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"validators", func(ctx context.Context) error { return validators.EnsureAll(ctx, db) }},
		{"indexes", func(ctx context.Context) error { return indexes.EnsureAll(ctx, db) }},
		{"seed", func(ctx context.Context) error {
			admin := seeding.AdminSeed{Email: appCfg.SeedAdminEmail, DisplayName: appCfg.SeedAdminName}
			return seeding.SeedAll(ctx, db, admin, logger)
		}},
	}

	for _, s := range steps {
		if err := s.run(ctx); err != nil {
			logger.Error("schema step failed", zap.String("step", s.name), zap.Error(err))
			return fmt.Errorf("ensure schema (%s): %w", s.name, err)
		}
		logger.Debug("schema step done", zap.String("step", s.name))
	}
	logger.Info("schema ensured", zap.String("database", db.Name()))
	return nil
}
