package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

// ProducerConfig carries writer tuning. Zero values are filled with
// defaults suited to small JSON records on an EOD-scale feed.
type ProducerConfig struct {
	Brokers      []string
	Compression  string
	RequiredAcks int
	MaxAttempts  int
	BatchSize    int
	BatchBytes   int64
	BatchTimeout time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	Async        bool
	HashByKey    bool
}

type ProducerOption func(*ProducerConfig)

func WithBrokers(brokers ...string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) { c.Compression = codec }
}

// WithRequiredAcks maps directly onto kafka acks: -1 all, 1 leader, 0 none.
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks = acks }
}

func WithMaxAttempts(n int) ProducerOption {
	return func(c *ProducerConfig) { c.MaxAttempts = n }
}

func WithBatchSize(n int) ProducerOption {
	return func(c *ProducerConfig) { c.BatchSize = n }
}

func WithBatchBytes(n int64) ProducerOption {
	return func(c *ProducerConfig) { c.BatchBytes = n }
}

func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.BatchTimeout = d }
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}

// WithAsync trades delivery reports for throughput. Errors surface only
// inside the writer, so keep it off for bar data.
func WithAsync(async bool) ProducerOption {
	return func(c *ProducerConfig) { c.Async = async }
}

// WithHashByKey pins every key to one partition so per-symbol ordering
// survives the trip through the broker.
func WithHashByKey(on bool) ProducerOption {
	return func(c *ProducerConfig) { c.HashByKey = on }
}

// Message is one record of a batch publish. Value goes through the same
// coercion as Publish: []byte and string pass through, anything else is
// JSON encoded.
type Message struct {
	Key   []byte
	Value interface{}
}

// Producer wraps a kafka-go Writer that owns no fixed topic: the topic
// is chosen per call, so one producer serves bars, snapshots and alerts.
type Producer struct {
	writer *kafka.Writer
	comp   string
}

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := ProducerConfig{
		RequiredAcks: -1,
		Compression:  "gzip",
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: no brokers configured")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		balancer = &kafka.Hash{}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     balancer,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   cfg.BatchBytes,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		Async:        cfg.Async,
		Compression:  parseCompression(cfg.Compression),
	}

	registerProducerMetrics()
	return &Producer{writer: w, comp: cfg.Compression}, nil
}

// Publish sends one record to topic. Ordering holds per key when the
// producer hashes by key.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	data, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", topic, err)
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: data})
	p.observe(topic, len(data), 1, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishBatch sends all records in one writer call, which lets the
// writer pack them into as few broker requests as batching allows.
func (p *Producer) PublishBatch(ctx context.Context, topic string, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	records := make([]kafka.Message, 0, len(msgs))
	var size int
	for i, m := range msgs {
		data, err := encodeValue(m.Value)
		if err != nil {
			return fmt.Errorf("encode message %d for %s: %w", i, topic, err)
		}
		size += len(data)
		records = append(records, kafka.Message{Topic: topic, Key: m.Key, Value: data})
	}

	start := time.Now()
	err := p.writer.WriteMessages(ctx, records...)
	p.observe(topic, size, len(msgs), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("publish %d messages to %s: %w", len(msgs), topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) observe(topic string, size, count int, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		producerErrors.WithLabelValues(topic).Add(float64(count))
	} else {
		producerBytes.WithLabelValues(topic, p.comp).Add(float64(size))
	}
	producerMessages.WithLabelValues(topic, p.comp, result).Add(float64(count))
	producerLatency.WithLabelValues(topic).Observe(elapsed.Seconds())
}

func encodeValue(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []byte:
		return val, nil
	case string:
		return []byte(val), nil
	default:
		return json.Marshal(val)
	}
}

func parseCompression(codec string) kafka.Compression {
	switch codec {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Gzip
	}
}

var (
	producerMetricsOnce sync.Once

	producerMessages *prometheus.CounterVec
	producerErrors   *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMetricsOnce.Do(func() {
		producerMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnflow_kafka_producer_messages_total",
			Help: "Messages published, by topic, compression and result.",
		}, []string{"topic", "compression", "result"})
		producerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnflow_kafka_producer_errors_total",
			Help: "Publish failures by topic.",
		}, []string{"topic"})
		producerBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vnflow_kafka_producer_bytes_total",
			Help: "Payload bytes published, by topic and compression.",
		}, []string{"topic", "compression"})
		producerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vnflow_kafka_producer_publish_seconds",
			Help:    "WriteMessages latency by topic.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})

		prometheus.MustRegister(producerMessages, producerErrors, producerBytes, producerLatency)
	})
}
