package repository

import (
	"context"
	"time"

	"VNFlow/internal/domain/models"
)

type Publisher interface {
	Publish(ctx context.Context, b *models.PriceBar) error
	PublishBatch(ctx context.Context, bars []*models.PriceBar) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, b *models.PriceBar) error
	StoreBatch(ctx context.Context, bars []*models.PriceBar) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceBar, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// SnapshotStore persists flattened analysis results for downstream exporters.
// The engine itself never reads snapshots back; every analysis derives from
// bars alone.
type SnapshotStore interface {
	SaveResult(ctx context.Context, r *models.AnalysisResult) error
	SaveBatch(ctx context.Context, results []*models.AnalysisResult) error
}

// SnapshotPublisher pushes fresh analysis output to the message bus for
// alerting and export consumers.
type SnapshotPublisher interface {
	PublishResult(ctx context.Context, r *models.AnalysisResult) error
	PublishOverview(ctx context.Context, o *models.MarketOverview) error
	Close() error
}

type Metrics interface {
	RecordBarStored(backend, symbol string)
	RecordError(kind string)
	RecordLastClose(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
