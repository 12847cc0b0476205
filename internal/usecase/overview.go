package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"VNFlow/internal/domain/models"
	domrepo "VNFlow/internal/domain/repository"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/pkg/logger"
)

// OverviewUseCase fans the analyzer out over the tradable universe and
// folds the per-symbol outcomes into a market overview. One broken
// symbol never sinks the batch: its error is carried as a failure entry
// and the rest of the universe is still scored.
type OverviewUseCase struct {
	analyzer    *AnalyzerUseCase
	instruments domrepo.InstrumentStore
	builder     domsvc.OverviewBuilder
	workers     int
	timeout     time.Duration
	log         *logger.Logger
}

// NewOverviewUseCase creates a new OverviewUseCase instance.
func NewOverviewUseCase(analyzer *AnalyzerUseCase, instruments domrepo.InstrumentStore, builder domsvc.OverviewBuilder, workers int, log *logger.Logger) *OverviewUseCase {
	if workers <= 0 {
		workers = 8
	}
	return &OverviewUseCase{
		analyzer:    analyzer,
		instruments: instruments,
		builder:     builder,
		workers:     workers,
		timeout:     2 * time.Minute,
		log:         log,
	}
}

type OverviewParams struct {
	// Symbols restricts the scan. Empty means the full stored universe.
	Symbols  []string
	DaysBack int
	Top      int
}

// BuildOverview analyzes every symbol in the universe with a bounded
// worker pool and merges the outcomes into a single overview.
func (uc *OverviewUseCase) BuildOverview(ctx context.Context, p OverviewParams) (*models.MarketOverview, error) {
	// Overall timeout
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	universe := dedupeSymbols(p.Symbols)
	if len(universe) == 0 {
		listed, err := uc.instruments.ListUniverse(ctx)
		if err != nil {
			return nil, fmt.Errorf("list universe: %w", err)
		}
		universe = dedupeSymbols(listed)
	}

	type outcome struct {
		res  *models.AnalysisResult
		fail *models.AnalysisError
	}

	jobs := make(chan string)
	ch := make(chan outcome, len(universe))
	var wg sync.WaitGroup

	workers := uc.workers
	if workers > len(universe) {
		workers = len(universe)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				res, err := uc.analyzer.Analyze(ctx, AnalyzeParams{Symbol: symbol, DaysBack: p.DaysBack})
				if err != nil {
					ch <- outcome{fail: &models.AnalysisError{Symbol: symbol, Reason: err.Error()}}
					continue
				}
				ch <- outcome{res: res}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, s := range universe {
			jobs <- s
		}
	}()

	go func() { wg.Wait(); close(ch) }()

	results := make([]*models.AnalysisResult, 0, len(universe))
	failures := make([]models.AnalysisError, 0)
	for out := range ch {
		if out.fail != nil {
			failures = append(failures, *out.fail)
			continue
		}
		results = append(results, out.res)
	}

	ov := uc.builder.Build(results, failures, p.Top)
	uc.log.Info("market overview built",
		logger.Int("universe", ov.Universe),
		logger.Int("analyzed", ov.Analyzed),
		logger.Int("failures", len(failures)))
	return ov, nil
}

// dedupeSymbols normalizes tickers to upper case and drops duplicates
// while keeping first-seen order.
func dedupeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
