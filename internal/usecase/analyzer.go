package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"VNFlow/internal/domain/models"
	domrepo "VNFlow/internal/domain/repository"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/pkg/logger"
	"VNFlow/pkg/util"
)

// AnalyzerUseCase loads the daily-bar window for one symbol and runs the
// composite analysis over it.
type AnalyzerUseCase struct {
	bars        domrepo.BarStore
	instruments domrepo.InstrumentStore
	engine      domsvc.SymbolAnalyzer
	log         *logger.Logger
}

// NewAnalyzerUseCase creates a new AnalyzerUseCase instance.
func NewAnalyzerUseCase(bars domrepo.BarStore, instruments domrepo.InstrumentStore, engine domsvc.SymbolAnalyzer, log *logger.Logger) *AnalyzerUseCase {
	return &AnalyzerUseCase{bars: bars, instruments: instruments, engine: engine, log: log}
}

type AnalyzeParams struct {
	Symbol   string
	DaysBack int
	// AsOf bounds the bar query. Zero means "up to the latest stored bar".
	AsOf time.Time
}

// Analyze fetches bars and metadata for the symbol and scores the window.
// A missing instrument record is not an error: the engine falls back to
// the neutral context and the gap is only logged.
func (uc *AnalyzerUseCase) Analyze(ctx context.Context, p AnalyzeParams) (*models.AnalysisResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	days := domrepo.NormalizeLookback(p.DaysBack)

	asOf := p.AsOf
	if asOf.IsZero() {
		asOf = time.Now().In(util.VNLocation())
	}
	from := asOf.AddDate(0, 0, -days)

	bars, err := uc.bars.GetDailyBars(ctx, symbol, from, asOf)
	if err != nil {
		return nil, fmt.Errorf("load bars for %s: %w", symbol, err)
	}

	meta, err := uc.instruments.GetInstrument(ctx, symbol)
	if err != nil {
		uc.log.Warn("instrument metadata unavailable",
			logger.String("symbol", symbol), logger.Error(err))
		meta = nil
	}

	return uc.engine.Analyze(bars, meta)
}
