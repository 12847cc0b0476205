package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"VNFlow/internal/domain/models"
	domsvc "VNFlow/internal/domain/service"
	pkgch "VNFlow/pkg/clickhouse"
	applogger "VNFlow/pkg/logger"
)

// CHInstrumentStore implements InstrumentStore backed by ClickHouse. The
// universe is derived from symbols with recent bars, not from the
// instruments table, so a symbol with data but no metadata still gets
// analyzed (with the neutral context).
type CHInstrumentStore struct {
	db *sql.DB
	l  *applogger.Logger
	// symbols with no bar newer than this many days fall out of the universe
	activeDays int
}

func NewCHInstrumentStore(ch *pkgch.Client) *CHInstrumentStore {
	return &CHInstrumentStore{db: ch.DB(), activeDays: 45}
}

// SetLogger injects a structured logger.
func (s *CHInstrumentStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHInstrumentStore) GetInstrument(ctx context.Context, symbol string) (*models.InstrumentMetadata, error) {
	const q = `
        SELECT symbol, sector, exchange, market_cap, updated_at
        FROM ` + tableInstruments + ` FINAL
        WHERE symbol = ?
        LIMIT 1
    `
	var m models.InstrumentMetadata
	err := s.db.QueryRowContext(ctx, q, symbol).
		Scan(&m.Symbol, &m.Sector, &m.Exchange, &m.MarketCap, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", symbol, domsvc.ErrMetadataUnavailable)
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_instrument error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get instrument: %w", err)
	}
	return &m, nil
}

func (s *CHInstrumentStore) GetInstruments(ctx context.Context, symbols []string) (map[string]*models.InstrumentMetadata, error) {
	if len(symbols) == 0 {
		return map[string]*models.InstrumentMetadata{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ",")
	q := fmt.Sprintf(`
        SELECT symbol, sector, exchange, market_cap, updated_at
        FROM %s FINAL
        WHERE symbol IN (%s)
    `, tableInstruments, placeholders)

	args := make([]interface{}, len(symbols))
	for i, sym := range symbols {
		args[i] = sym
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_instruments error",
				applogger.Int("symbols", len(symbols)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get instruments: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*models.InstrumentMetadata, len(symbols))
	for rows.Next() {
		var m models.InstrumentMetadata
		if err := rows.Scan(&m.Symbol, &m.Sector, &m.Exchange, &m.MarketCap, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out[m.Symbol] = &m
	}
	return out, rows.Err()
}

func (s *CHInstrumentStore) ListUniverse(ctx context.Context) ([]string, error) {
	start := time.Now()
	const q = `
        SELECT DISTINCT symbol
        FROM ` + tableBars + `
        WHERE date >= today() - ?
        ORDER BY symbol ASC
    `
	rows, err := s.db.QueryContext(ctx, q, s.activeDays)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse list_universe error", applogger.Error(err))
		}
		return nil, fmt.Errorf("list universe: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, 2048)
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse list_universe ok",
			applogger.Int("symbols", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}
