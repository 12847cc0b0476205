package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VNFlow/internal/domain/models"
	domrepo "VNFlow/internal/domain/repository"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/pkg/logger"
)

// RefreshUseCase re-analyzes a symbol and pushes the fresh result through
// the persistence and fan-out chain: snapshot store, message bus, alerts.
type RefreshUseCase struct {
	analyzer    *AnalyzerUseCase
	instruments domrepo.InstrumentStore
	snapshots   domrepo.SnapshotStore
	publisher   domrepo.SnapshotPublisher
	notifier    domsvc.AlertNotifier
	metrics     domrepo.Metrics
	workers     int
	log         *logger.Logger
}

// NewRefreshUseCase creates a new RefreshUseCase instance. publisher and
// notifier may be nil when the corresponding sink is disabled.
func NewRefreshUseCase(
	analyzer *AnalyzerUseCase,
	instruments domrepo.InstrumentStore,
	snapshots domrepo.SnapshotStore,
	publisher domrepo.SnapshotPublisher,
	notifier domsvc.AlertNotifier,
	metrics domrepo.Metrics,
	workers int,
	log *logger.Logger,
) *RefreshUseCase {
	if workers <= 0 {
		workers = 8
	}
	return &RefreshUseCase{
		analyzer:    analyzer,
		instruments: instruments,
		snapshots:   snapshots,
		publisher:   publisher,
		notifier:    notifier,
		metrics:     metrics,
		workers:     workers,
		log:         log,
	}
}

type RefreshParams struct {
	Symbol   string
	DaysBack int
}

// Refresh recomputes the symbol's analysis and persists the snapshot.
// Publishing and alerting are best effort once the snapshot is stored.
func (uc *RefreshUseCase) Refresh(ctx context.Context, p RefreshParams) (*models.AnalysisResult, error) {
	start := time.Now()

	res, err := uc.analyzer.Analyze(ctx, AnalyzeParams{Symbol: p.Symbol, DaysBack: p.DaysBack})
	if err != nil {
		uc.metrics.RecordError("refresh")
		return nil, err
	}

	if err := uc.snapshots.SaveResult(ctx, res); err != nil {
		uc.metrics.RecordError("snapshot_store")
		return nil, fmt.Errorf("store snapshot for %s: %w", res.Symbol, err)
	}

	if uc.publisher != nil {
		if err := uc.publisher.PublishResult(ctx, res); err != nil {
			uc.metrics.RecordError("snapshot_publish")
			uc.log.Warn("snapshot publish failed",
				logger.String("symbol", res.Symbol), logger.Error(err))
		}
	}

	if uc.notifier != nil {
		if err := uc.notifier.Notify(ctx, res); err != nil {
			uc.metrics.RecordError("alert")
			uc.log.Warn("alert delivery failed",
				logger.String("symbol", res.Symbol), logger.Error(err))
		}
	}

	uc.metrics.RecordLatency("refresh", time.Since(start).Seconds())
	return res, nil
}

// RefreshUniverse refreshes every symbol in the stored universe with a
// bounded worker pool. Per-symbol failures are logged and counted, never
// fatal. Returns the number of refreshed and failed symbols.
func (uc *RefreshUseCase) RefreshUniverse(ctx context.Context, daysBack int) (int, int, error) {
	universe, err := uc.instruments.ListUniverse(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list universe: %w", err)
	}
	universe = dedupeSymbols(universe)

	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	refreshed, failed := 0, 0

	workers := uc.workers
	if workers > len(universe) {
		workers = len(universe)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				_, err := uc.Refresh(ctx, RefreshParams{Symbol: symbol, DaysBack: daysBack})
				mu.Lock()
				if err != nil {
					failed++
				} else {
					refreshed++
				}
				mu.Unlock()
				if err != nil {
					uc.log.Warn("symbol refresh failed",
						logger.String("symbol", symbol), logger.Error(err))
				}
			}
		}()
	}

	for _, s := range universe {
		jobs <- s
	}
	close(jobs)
	wg.Wait()

	uc.log.Info("universe refresh finished",
		logger.Int("refreshed", refreshed),
		logger.Int("failed", failed),
		logger.Int("days_back", daysBack))
	return refreshed, failed, nil
}
