package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"VNFlow/internal/domain/models"
	"VNFlow/internal/domain/repository"
	pkgkafka "VNFlow/pkg/kafka"
)

// ClickHouseBarStorage implements Storage for ClickHouse.
type ClickHouseBarStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseBarStorage creates ClickHouse bar storage.
func NewClickHouseBarStorage(db *sql.DB, table string) repository.Storage {
	if table == "" {
		table = tableBars
	}
	return &ClickHouseBarStorage{db: db, table: table}
}

func (s *ClickHouseBarStorage) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseBarStorage) Store(ctx context.Context, b *models.PriceBar) error {
	q := fmt.Sprintf("INSERT INTO %s (symbol, date, open, high, low, close, volume, foreign_buy, foreign_sell, ingested_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.db.ExecContext(ctx, q,
		b.Symbol,
		b.Date,
		b.Open,
		b.High,
		b.Low,
		b.Close,
		b.Volume,
		b.ForeignBuy,
		b.ForeignSell,
		time.Now(),
	)
	return err
}

func (s *ClickHouseBarStorage) StoreBatch(ctx context.Context, bars []*models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	// Multi-row VALUES to cut round-trips; 2000 rows per chunk.
	const chunkSize = 2000
	now := time.Now()
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*10)
		for _, b := range bars[start:end] {
			if b == nil || b.Symbol == "" || b.Date.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.Symbol,
				b.Date,
				b.Open,
				b.High,
				b.Low,
				b.Close,
				b.Volume,
				b.ForeignBuy,
				b.ForeignSell,
				now,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, date, open, high, low, close, volume, foreign_buy, foreign_sell, ingested_at) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseBarStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.PriceBar, error) {
	q := fmt.Sprintf("SELECT symbol, date, open, high, low, close, volume, foreign_buy, foreign_sell FROM %s FINAL WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bars []*models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.ForeignBuy, &b.ForeignSell); err != nil {
			return nil, err
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

func (s *ClickHouseBarStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseBarStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaBarPublisher implements Publisher for Kafka. The wire format is the
// same compact schema the ingest consumer reads, so normalized bars can be
// replayed through the same pipeline.
type KafkaBarPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaBarPublisher creates a Kafka bar publisher.
func NewKafkaBarPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaBarPublisher{producer: producer, topic: topic}
}

func (p *KafkaBarPublisher) Publish(ctx context.Context, b *models.PriceBar) error {
	return p.producer.Publish(ctx, p.topic, []byte(b.Symbol), barWire(b))
}

func (p *KafkaBarPublisher) PublishBatch(ctx context.Context, bars []*models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(bars))
	for i, b := range bars {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(b.Symbol),
			Value: barWire(b),
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaBarPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

func barWire(b *models.PriceBar) map[string]interface{} {
	return map[string]interface{}{
		"symbol": b.Symbol,
		"date":   b.Date.Format("2006-01-02"),
		"o":      b.Open,
		"h":      b.High,
		"l":      b.Low,
		"c":      b.Close,
		"v":      b.Volume,
		"fb":     b.ForeignBuy,
		"fs":     b.ForeignSell,
	}
}
