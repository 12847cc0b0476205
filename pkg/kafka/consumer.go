package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	applogger "VNFlow/pkg/logger"
)

// MessageHandler consumes raw records from one topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerConfig holds reader and worker pool tuning.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *applogger.Logger
}

type ConsumerOption func(*ConsumerConfig)

func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) { c.WorkerCount = count }
}

// WithConsumerRetry bounds in-process redelivery before a record goes to
// the dead letter topic.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

func WithConsumerLogger(lg *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = lg }
}

// delivery is one fetched record together with the reader that owns its
// offset.
type delivery struct {
	topic  string
	msg    kafka.Message
	reader *kafka.Reader
}

// Consumer runs one reader per registered topic and a fixed worker pool.
// Records are dispatched to workers by (topic, partition), so each
// partition is handled and committed strictly in order even with many
// workers.
type Consumer struct {
	cfg      ConsumerConfig
	lg       *applogger.Logger
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	queues   []chan delivery
	dlq      *kafka.Writer
	hook     ConsumerHook

	ctx      context.Context
	cancel   context.CancelFunc
	fetchWG  sync.WaitGroup
	workWG   sync.WaitGroup
	stopOnce sync.Once
}

func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = applogger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:      cfg,
		lg:       cfg.Logger,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		hook:     NoopHook{},
		ctx:      ctx,
		cancel:   cancel,
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}

	registerConsumerMetrics()
	return c, nil
}

// WithConsumerHook installs lifecycle callbacks around every handled
// record. Call before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds a handler to its topic. The first registration
// for a topic wins.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.lg.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start spins up one reader per registered topic and the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: kafka.FirstOffset,
		})
	}

	c.queues = make([]chan delivery, c.cfg.WorkerCount)
	for i := range c.queues {
		c.queues[i] = make(chan delivery, c.cfg.BufferSize)
		c.workWG.Add(1)
		go c.worker(i, c.queues[i])
	}

	for topic, reader := range c.readers {
		c.fetchWG.Add(1)
		go c.fetchLoop(topic, reader)
	}

	c.lg.Info("kafka consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop cancels the fetch loops, drains the worker queues and closes the
// readers. Records still in flight when ctx expires stay uncommitted and
// redeliver on the next start.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		c.cancel()

		if err := waitGroup(ctx, &c.fetchWG); err != nil {
			stopErr = fmt.Errorf("stop kafka fetchers: %w", err)
			return
		}
		for _, q := range c.queues {
			close(q)
		}
		if err := waitGroup(ctx, &c.workWG); err != nil {
			stopErr = fmt.Errorf("stop kafka workers: %w", err)
			return
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.lg.Warn("close kafka reader", applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.lg.Warn("close dead letter writer", applogger.Error(err))
			}
		}
		c.lg.Info("kafka consumer stopped")
	})
	return stopErr
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchLoop reads one topic and routes records to the worker that owns
// their partition.
func (c *Consumer) fetchLoop(topic string, reader *kafka.Reader) {
	defer c.fetchWG.Done()

	for {
		msg, err := reader.FetchMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			c.lg.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
				return
			}
			continue
		}

		idx := c.queueFor(topic, msg.Partition)
		select {
		case c.queues[idx] <- delivery{topic: topic, msg: msg, reader: reader}:
			c.gauge(idx)
		case <-c.ctx.Done():
			return
		}
	}
}

// queueFor pins a (topic, partition) pair to one worker so records from
// the same partition never interleave.
func (c *Consumer) queueFor(topic string, partition int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(topic))
	return (int(h.Sum32()) + partition) % len(c.queues)
}

func (c *Consumer) gauge(idx int) {
	q := c.queues[idx]
	worker := strconv.Itoa(idx)
	consumerQueueDepth.WithLabelValues(worker).Set(float64(len(q)))
	consumerQueueFullness.WithLabelValues(worker).Set(float64(len(q)) / float64(cap(q)))
}

func (c *Consumer) worker(idx int, queue chan delivery) {
	defer c.workWG.Done()

	for d := range queue {
		c.process(d)
		c.gauge(idx)
	}
}

// process runs one record through its handler with retries, then either
// commits or parks it. A record whose handler keeps failing without a
// dead letter topic stays uncommitted so the group redelivers it.
func (c *Consumer) process(d delivery) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.lg.Error("kafka handler panic",
				applogger.String("topic", d.topic),
				applogger.Int("partition", d.msg.Partition),
				applogger.Any("panic", r))
		}
		consumerHandleLatency.WithLabelValues(d.topic).Observe(time.Since(start).Seconds())
	}()

	err := c.handleWithRetry(d)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		c.lg.Error("kafka message failed",
			applogger.String("topic", d.topic),
			applogger.Int("partition", d.msg.Partition),
			applogger.Int64("offset", d.msg.Offset),
			applogger.Error(err))
		if !c.parkInDLQ(d) {
			return
		}
	}
	c.commit(d)
}

func (c *Consumer) handleWithRetry(d delivery) error {
	handler := c.handlers[d.topic]

	var err error
	for attempt := 0; attempt <= c.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
			case <-c.ctx.Done():
				return c.ctx.Err()
			}
		}

		hctx, hmsg, data, herr := c.hook.BeforeHandle(c.ctx, d.topic, d.msg, d.msg.Value)
		if herr != nil {
			return herr
		}
		err = handler.Handle(hctx, data)
		c.hook.AfterHandle(hctx, d.topic, hmsg, data, err)
		if err == nil {
			return nil
		}
		c.hook.OnError(hctx, d.topic, hmsg, data, err)
	}
	return fmt.Errorf("after %d attempts: %w", c.cfg.RetryMax+1, err)
}

// parkInDLQ moves a poisoned record to the dead letter topic, tagged
// with its origin. Reports whether the offset may now be committed.
func (c *Consumer) parkInDLQ(d delivery) bool {
	if c.dlq == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     d.msg.Key,
		Value:   d.msg.Value,
		Headers: append(d.msg.Headers, kafka.Header{Key: "source_topic", Value: []byte(d.topic)}),
	})
	if err != nil {
		c.lg.Error("dead letter publish failed",
			applogger.String("topic", c.cfg.DLQTopic),
			applogger.Error(err))
		return false
	}
	return true
}

// commit acknowledges one offset with bounded retries. Commits use a
// background context so a shutdown does not drop acks for records that
// were already handled.
func (c *Consumer) commit(d delivery) {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = d.reader.CommitMessages(ctx, d.msg)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.lg.Error("offset commit failed",
		applogger.String("topic", d.topic),
		applogger.Int("partition", d.msg.Partition),
		applogger.Int64("offset", d.msg.Offset),
		applogger.Error(err))
}

// backoffWithJitter grows min exponentially toward max, then shaves off
// up to half so synchronized retries spread out.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt-1)
	if d <= 0 || d > max {
		d = max
	}
	return d - time.Duration(rand.Int63n(int64(d)/2+1))
}

var (
	consumerMetricsOnce sync.Once

	consumerQueueDepth    *prometheus.GaugeVec
	consumerQueueFullness *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnflow_kafka_consumer_queue_depth",
			Help: "Records waiting in each worker queue.",
		}, []string{"worker"})
		consumerQueueFullness = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vnflow_kafka_consumer_queue_fullness",
			Help: "Worker queue utilization, len over cap.",
		}, []string{"worker"})
		consumerHandleLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "vnflow_kafka_consumer_handle_seconds",
			Help: "Handler time per record, retries included.",
		}, []string{"topic"})

		prometheus.MustRegister(consumerQueueDepth, consumerQueueFullness, consumerHandleLatency)
	})
}
