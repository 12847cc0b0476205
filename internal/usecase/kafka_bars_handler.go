package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"VNFlow/internal/domain/models"
	domrepo "VNFlow/internal/domain/repository"
	mid "VNFlow/internal/middleware"
	pkgkafka "VNFlow/pkg/kafka"
	"VNFlow/pkg/util"
)

// KafkaBarsHandler consumes end-of-day bar messages and feeds them
// through the ingest pipeline.
type KafkaBarsHandler struct {
	topic   string
	pipe    *mid.IngestPipeline
	metrics domrepo.Metrics
}

func NewKafkaBarsHandler(topic string, pipe *mid.IngestPipeline, metrics domrepo.Metrics) *KafkaBarsHandler {
	return &KafkaBarsHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaBarsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, date, o, h, l, c, v, fb, fs}
func (h *KafkaBarsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol      string  `json:"symbol"`
		Date        string  `json:"date"` // YYYY-MM-DD, exchange local time
		Open        float64 `json:"o"`
		High        float64 `json:"h"`
		Low         float64 `json:"l"`
		Close       float64 `json:"c"`
		Volume      int64   `json:"v"`
		ForeignBuy  int64   `json:"fb"`
		ForeignSell int64   `json:"fs"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}

	date, err := time.ParseInLocation("2006-01-02", m.Date, util.VNLocation())
	if err != nil {
		h.metrics.RecordError("consumer_bad_date")
		return err
	}

	start := time.Now()
	err = h.pipe.Process(ctx, &models.PriceBar{
		Symbol:      strings.ToUpper(strings.TrimSpace(m.Symbol)),
		Date:        date,
		Open:        m.Open,
		High:        m.High,
		Low:         m.Low,
		Close:       m.Close,
		Volume:      m.Volume,
		ForeignBuy:  m.ForeignBuy,
		ForeignSell: m.ForeignSell,
	})
	h.metrics.RecordLatency("ingest_handle_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_process")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaBarsHandler)(nil)
