// Package janitor runs scheduled maintenance: expiring filter-removal
// records past their retention, dropping suppression windows nothing can
// reference anymore, re-resolving reply snapshots, and flushing the offline
// cache.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatsync/pkg/cache"
	"chatsync/pkg/config"
	"chatsync/pkg/logger"
	"chatsync/pkg/suppress"
	"chatsync/pkg/threadstore"
)

// Deps carries the components a maintenance run touches.
type Deps struct {
	Store    *threadstore.Store
	Suppress *suppress.Set
	Cache    *cache.Bridge
	// RetentionDays bounds how long filter-removal records are kept.
	RetentionDays int
}

// Start launches the scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg *config.Config, deps Deps) (context.CancelFunc, error) {
	if !cfg.Janitor.Enabled {
		logger.Info("janitor_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Janitor.Cron
	if cronExpr == "" {
		cronExpr = config.DefaultJanitorCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("janitor_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid janitor cron expression: %s", cronExpr)
	}

	if deps.RetentionDays <= 0 {
		deps.RetentionDays = config.DefaultRemovalDays
	}

	logger.Info("janitor_enabled", "cron", cronExpr, "removal_retention_days", deps.RetentionDays)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, deps)
	return cancel, nil
}

// RunOnce executes a single maintenance pass.
func RunOnce(deps Deps) {
	start := time.Now()

	retention := time.Duration(deps.RetentionDays) * 24 * time.Hour
	cutoff := time.Now().Add(-retention).UnixMilli()

	expired := 0
	droppedWindows := 0
	if deps.Suppress != nil {
		expired = deps.Suppress.ExpireRemovals(cutoff)
		droppedWindows = deps.Suppress.DropWindowsBefore(cutoff)
	}

	backfilled := 0
	if deps.Store != nil {
		for _, threadID := range deps.Store.ThreadIDs() {
			backfilled += deps.Store.BackfillReplies(threadID)
		}
	}

	flushed := 0
	if deps.Cache != nil {
		flushed = deps.Cache.FlushDirty()
	}

	logger.Info("janitor_run_complete",
		"removals_expired", expired,
		"windows_dropped", droppedWindows,
		"replies_backfilled", backfilled,
		"cache_flushed", flushed,
		"elapsed", time.Since(start).String(),
	)
}

// runScheduler computes the next tick with gronx and sleeps until it fires.
func runScheduler(ctx context.Context, cronExpr string, deps Deps) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("janitor_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			RunOnce(deps)
		case <-ctx.Done():
			logger.Info("janitor_scheduler_stopping")
			return
		}
	}
}
