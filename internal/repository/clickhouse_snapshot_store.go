package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"VNFlow/internal/domain/models"
	"VNFlow/internal/domain/repository"
	pkgch "VNFlow/pkg/clickhouse"
)

const snapshotColumns = "(symbol, as_of, bars, composite, adjusted, class, strength, action, " +
	"volume_score, price_action_score, momentum_score, accumulation_score, adjustment, " +
	"entry_signals, exit_signals, sizing_tier, sizing_fraction, volatility, max_drawdown, created_at)"

// CHSnapshotStore implements SnapshotStore backed by ClickHouse. Results
// are flattened to one wide row per (symbol, as_of) for exporters and
// backtests; the engine never reads them back.
type CHSnapshotStore struct {
	db    *sql.DB
	table string
}

func NewCHSnapshotStore(ch *pkgch.Client) *CHSnapshotStore {
	return &CHSnapshotStore{db: ch.DB(), table: tableSnapshots}
}

func (s *CHSnapshotStore) SaveResult(ctx context.Context, r *models.AnalysisResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	q := fmt.Sprintf("INSERT INTO %s %s VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.table, snapshotColumns)
	_, err := s.db.ExecContext(ctx, q, snapshotArgs(r, time.Now())...)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *CHSnapshotStore) SaveBatch(ctx context.Context, results []*models.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}
	const chunkSize = 500
	now := time.Now()
	for start := 0; start < len(results); start += chunkSize {
		end := start + chunkSize
		if end > len(results) {
			end = len(results)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*20)
		for _, r := range results[start:end] {
			if r == nil || r.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, snapshotArgs(r, now)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s %s VALUES %s", s.table, snapshotColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("save snapshot batch: %w", err)
		}
	}
	return nil
}

func snapshotArgs(r *models.AnalysisResult, now time.Time) []interface{} {
	volume, _ := r.Composite.Component(models.ComponentVolume)
	priceAction, _ := r.Composite.Component(models.ComponentPriceAction)
	momentum, _ := r.Composite.Component(models.ComponentMomentum)
	accumulation, _ := r.Composite.Component(models.ComponentAccumulation)

	return []interface{}{
		r.Symbol,
		r.AsOf,
		int32(r.Bars),
		r.Composite.Score,
		r.Context.AdjustedScore,
		string(r.Composite.Class),
		string(r.Composite.Strength),
		r.Composite.Action,
		volume,
		priceAction,
		momentum,
		accumulation,
		r.Context.TotalAdjustment(),
		joinSignalCodes(r.Signals.Entries),
		joinSignalCodes(r.Signals.Exits),
		r.Signals.Sizing.Tier,
		r.Signals.Sizing.Fraction,
		r.Risk.AnnualizedVolatility,
		r.Risk.MaxDrawdown,
		now,
	}
}

func joinSignalCodes(signals []models.TradeSignal) string {
	if len(signals) == 0 {
		return ""
	}
	codes := make([]string, len(signals))
	for i, s := range signals {
		codes[i] = s.Code
	}
	return strings.Join(codes, ",")
}

var _ repository.SnapshotStore = (*CHSnapshotStore)(nil)
