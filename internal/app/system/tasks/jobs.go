// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/stratarecipe/internal/app/system/metrics"
	"github.com/dalemusser/stratarecipe/internal/app/system/slug"
	"github.com/dalemusser/stratarecipe/internal/app/system/timeouts"
	"github.com/dalemusser/stratarecipe/internal/domain/models"
	"go.uber.org/zap"
)

// Reconciler resumes propagation runs that stopped before finishing.
type Reconciler interface {
	Reconcile(ctx context.Context, limit int64) (int, error)
}

// PropagationReconcileJob creates a job that picks up propagation runs left
// pending or partial, for example by a crash mid-run or a failed item.
func PropagationReconcileJob(r Reconciler, interval time.Duration, batch int64, logger *zap.Logger) Job {
	return Job{
		Name:     "propagation-reconcile",
		Interval: interval,
		Run: func(ctx context.Context) error {
			ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), logger, "propagation-reconcile")
			defer cancel()
			n, err := r.Reconcile(ctx, batch)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("resumed propagation runs", zap.Int("runs", n))
			}
			return nil
		},
	}
}

// PlaceholderFinder lists recipes still on a placeholder slug.
type PlaceholderFinder interface {
	FindPlaceholders(ctx context.Context, cutoff time.Time, limit int64) ([]models.Recipe, error)
}

// SlugFinalizer renames an item from its placeholder to its id-suffixed slug.
type SlugFinalizer interface {
	Finalize(ctx context.Context, base, id string) (string, error)
}

// RepairPlaceholders finalizes recipes that have sat on a placeholder slug
// since before cutoff and returns how many were fixed. Recipes whose slug is
// not a placeholder of their own slug base are left alone. A recipe that
// cannot be finalized is logged and left for the next pass.
func RepairPlaceholders(ctx context.Context, finder PlaceholderFinder, fin SlugFinalizer, cutoff time.Time, limit int64, logger *zap.Logger) (int, error) {
	stuck, err := finder.FindPlaceholders(ctx, cutoff, limit)
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, r := range stuck {
		if ctx.Err() != nil {
			return fixed, ctx.Err()
		}
		if !slug.IsPlaceholder(r.Slug, r.SlugBase) {
			logger.Debug("slug placeholder repair skipped lookalike slug",
				zap.String("recipe_id", r.ID.Hex()),
				zap.String("slug", r.Slug))
			continue
		}
		final, err := fin.Finalize(ctx, r.SlugBase, r.ID.Hex())
		if err != nil {
			logger.Warn("slug placeholder repair failed",
				zap.String("recipe_id", r.ID.Hex()),
				zap.String("slug", r.Slug),
				zap.Error(err))
			continue
		}
		metrics.SlugPlaceholderRepairs.Inc()
		logger.Info("slug placeholder repaired",
			zap.String("recipe_id", r.ID.Hex()),
			zap.String("from", r.Slug),
			zap.String("to", final))
		fixed++
	}
	return fixed, nil
}

// SlugPlaceholderRepairJob creates a job that finalizes recipes left on a
// "-temp-" slug when the rename step of an allocation failed. Recipes younger
// than grace are skipped so an allocation still in flight is not raced.
func SlugPlaceholderRepairJob(finder PlaceholderFinder, fin SlugFinalizer, interval, grace time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "slug-placeholder-repair",
		Interval: interval,
		Run: func(ctx context.Context) error {
			ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), logger, "slug-placeholder-repair")
			defer cancel()
			_, err := RepairPlaceholders(ctx, finder, fin, time.Now().UTC().Add(-grace), 100, logger)
			return err
		},
	}
}

// LedgerPruner removes old ledger entries.
type LedgerPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LedgerPruneJob creates a job that deletes API error ledger entries older
// than retention.
func LedgerPruneJob(p LedgerPruner, interval, retention time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "ledger-prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Long(), logger, "ledger-prune")
			defer cancel()
			n, err := p.DeleteOlderThan(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("pruned ledger entries", zap.Int64("deleted", n))
			}
			return nil
		},
	}
}
