package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown runs once the HTTP server has drained. Background tasks stop
// first so a propagation pass or slug repair in flight can finish its writes
// before the Mongo client goes away. Both steps share ctx's deadline and
// both run even when the first fails.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var errs []error

	if taskRunner != nil {
		if err := taskRunner.Stop(ctx); err != nil {
			logger.Warn("task runner stop incomplete", zap.Error(err))
			errs = append(errs, err)
		}
	}

	if deps.MongoClient != nil {
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("mongo disconnect", zap.Error(err))
			errs = append(errs, err)
		}
	}

	logger.Info("stratarecipe shut down", zap.Int("errors", len(errs)))
	return errors.Join(errs...)
}
