package repository

import (
	"context"
	"time"

	"VNFlow/internal/domain/models"
)

// BarStore provides read-only access to daily bars for analysis. Bars come
// back ordered by date ascending.
type BarStore interface {
	GetDailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
	GetLatestBars(ctx context.Context, symbol string, n int) ([]models.PriceBar, error)
}

// InstrumentStore provides instrument metadata and the tradable universe.
type InstrumentStore interface {
	GetInstrument(ctx context.Context, symbol string) (*models.InstrumentMetadata, error)
	GetInstruments(ctx context.Context, symbols []string) (map[string]*models.InstrumentMetadata, error)
	ListUniverse(ctx context.Context) ([]string, error)
}
