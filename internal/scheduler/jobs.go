package scheduler

import (
	"context"
	"fmt"
	"time"

	"VNFlow/internal/domain/models"
	domrepo "VNFlow/internal/domain/repository"
	"VNFlow/internal/usecase"
	pkgcache "VNFlow/pkg/cache"
	"VNFlow/pkg/config"
	applogger "VNFlow/pkg/logger"
)

// refreshLockTTL bounds how long a crashed instance can hold a refresh
// lock before another instance may take over.
const refreshLockTTL = 30 * time.Minute

// OverviewSink receives freshly built overviews for live fan-out.
type OverviewSink interface {
	BroadcastOverview(o *models.MarketOverview)
}

// UniverseCache is the invalidate-and-rewarm surface of the cached
// instrument store.
type UniverseCache interface {
	Invalidate(ctx context.Context) error
	ListUniverse(ctx context.Context) ([]string, error)
}

// AnalysisJobs carries the collaborators the standing jobs drive.
// Publisher, Sink, Universe and Lock may be nil when the matching
// component is disabled; the jobs degrade instead of failing.
type AnalysisJobs struct {
	Refresh   *usecase.RefreshUseCase
	Overview  *usecase.OverviewUseCase
	Publisher domrepo.SnapshotPublisher
	Sink      OverviewSink
	Universe  UniverseCache

	// Lock keeps identically scheduled refreshes on multiple instances
	// from re-scoring the same universe at once.
	Lock pkgcache.Service
}

// RegisterAnalysisJobs wires the standing analysis jobs onto the
// scheduler: the end-of-day refresh sweep, the periodic universe cache
// reload, and the weekly deep-history recompute. Jobs whose cron spec
// is empty are simply not registered.
func RegisterAnalysisJobs(s *Scheduler, deps AnalysisJobs, cfg *config.Config, l *applogger.Logger) error {
	if deps.Refresh == nil || deps.Overview == nil {
		return fmt.Errorf("refresh and overview use cases are required")
	}

	days := cfg.Analysis.DaysBack
	deepDays := cfg.Analysis.DeepDaysBack
	if deepDays <= 0 {
		deepDays = days
	}
	top := cfg.Analysis.TopN

	if spec := cfg.Scheduler.EODSpec; spec != "" {
		job := withLock(deps.Lock, "lock:eod-refresh", l, eodRefreshJob(deps, days, top, l))
		if err := s.Register("eod-refresh", spec, job); err != nil {
			return err
		}
	}

	if spec := cfg.Scheduler.UniverseSpec; spec != "" && deps.Universe != nil {
		job := universeReloadJob(deps.Universe, l)
		if err := s.Register("universe-reload", spec, job); err != nil {
			return err
		}
	}

	if spec := cfg.Scheduler.DeepSpec; spec != "" {
		job := func(ctx context.Context) error {
			_, failed, err := deps.Refresh.RefreshUniverse(ctx, deepDays)
			if err != nil {
				return fmt.Errorf("deep refresh: %w", err)
			}
			if failed > 0 && l != nil {
				l.Warn("deep refresh finished with failures", applogger.Int("failed", failed))
			}
			return nil
		}
		if err := s.Register("deep-refresh", spec, withLock(deps.Lock, "lock:deep-refresh", l, job)); err != nil {
			return err
		}
	}

	return nil
}

// withLock gates a job behind a best-effort distributed lock. When the
// lock is held elsewhere the tick is skipped cleanly; when the lock
// backend itself errors the job still runs, since a broken cache should
// not stop the nightly refresh.
func withLock(lock pkgcache.Service, key string, l *applogger.Logger, run JobFunc) JobFunc {
	if lock == nil {
		return run
	}
	return func(ctx context.Context) error {
		ok, err := lock.TryLock(ctx, key, refreshLockTTL)
		if err != nil {
			if l != nil {
				l.Warn("job lock unavailable, running anyway", applogger.String("key", key), applogger.Error(err))
			}
			return run(ctx)
		}
		if !ok {
			if l != nil {
				l.Info("job held by another instance, tick skipped", applogger.String("key", key))
			}
			return nil
		}
		defer func() {
			if uerr := lock.Unlock(context.Background(), key); uerr != nil && l != nil {
				l.Warn("job lock release failed", applogger.String("key", key), applogger.Error(uerr))
			}
		}()
		return run(ctx)
	}
}

// eodRefreshJob re-scores the whole universe after the session close,
// then rebuilds the market overview and fans it out to the bus and any
// live subscribers. The overview steps are best effort: a publish
// failure never marks the refresh itself failed.
func eodRefreshJob(deps AnalysisJobs, days, top int, l *applogger.Logger) JobFunc {
	return func(ctx context.Context) error {
		refreshed, failed, err := deps.Refresh.RefreshUniverse(ctx, days)
		if err != nil {
			return fmt.Errorf("eod refresh: %w", err)
		}
		if refreshed == 0 && failed == 0 {
			return nil
		}

		ov, err := deps.Overview.BuildOverview(ctx, usecase.OverviewParams{DaysBack: days, Top: top})
		if err != nil {
			return fmt.Errorf("eod overview: %w", err)
		}
		if deps.Publisher != nil {
			if err := deps.Publisher.PublishOverview(ctx, ov); err != nil && l != nil {
				l.Warn("overview publish failed", applogger.Error(err))
			}
		}
		if deps.Sink != nil {
			deps.Sink.BroadcastOverview(ov)
		}
		return nil
	}
}

// universeReloadJob drops the cached instrument universe and warms it
// again so the next analysis pass sees listing changes.
func universeReloadJob(universe UniverseCache, l *applogger.Logger) JobFunc {
	return func(ctx context.Context) error {
		if err := universe.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidate universe cache: %w", err)
		}
		symbols, err := universe.ListUniverse(ctx)
		if err != nil {
			return fmt.Errorf("rewarm universe cache: %w", err)
		}
		if l != nil {
			l.Info("universe cache reloaded", applogger.Int("symbols", len(symbols)))
		}
		return nil
	}
}
