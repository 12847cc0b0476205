package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"VNFlow/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode selects which halves of the queue a process runs.
type QueueMode int

const (
	// ModeProducerConsumer publishes and consumes in the same process.
	ModeProducerConsumer QueueMode = iota
	// ModeProducerOnly publishes without starting workers.
	ModeProducerOnly
	// ModeConsumerOnly drains messages published elsewhere.
	ModeConsumerOnly
)

const (
	defaultRetryDelay = 10 * time.Second
	retrySweepEvery   = 5 * time.Second
	popBlock          = 2 * time.Second
	retryBatch        = 100
	eventListCap      = 10_000
)

// RedisQueue is a Redis-list work queue with delayed retries and a dead
// letter list. Message types without a registered consumer are diverted
// to capped per-type event lists, so fire-and-forget topics such as
// aggregated logs never circle through the work loop.
type RedisQueue struct {
	lg        *logger.Logger
	cfg       *QueueConfig
	client    *redis.Client
	keyPrefix string
	mode      QueueMode

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisQueueOption adjusts queue construction.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix namespaces every Redis key the queue touches.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) { r.keyPrefix = prefix }
}

// NewRedisQueue builds a queue in the given mode. Workers do not run
// until Start.
func NewRedisQueue(lg *logger.Logger, cfg *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		lg:        lg,
		cfg:       cfg,
		client:    client,
		keyPrefix: "vnflow:queue",
		mode:      mode,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJob binds a consumer to its message type. A second
// registration for the same type is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.lg.Warn("queue job ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[job.Type()]; dup {
		r.lg.Warn("queue message type already bound",
			logger.String("job", job.Name()),
			logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.lg.Info("queue job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

// Start verifies the Redis connection and, in consumer modes, launches
// the worker pool and the retry sweeper.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("queue already running")
	}
	r.running = true
	r.mu.Unlock()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("queue redis ping: %w", err)
	}

	if r.mode == ModeProducerOnly {
		r.lg.Info("queue publisher ready", logger.String("prefix", r.keyPrefix))
		return nil
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retrySweeper()

	r.lg.Info("queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("prefix", r.keyPrefix))
	return nil
}

// Stop cancels workers and waits for them up to the context deadline.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.lg.Info("queue stopped")
		return nil
	case <-ctx.Done():
		r.lg.Warn("queue workers still draining at deadline", logger.Error(ctx.Err()))
		return fmt.Errorf("queue stop: %w", ctx.Err())
	}
}

// PublishMessage enqueues a payload. Types with a registered consumer
// join the work list; everything else lands on a capped event list for
// out-of-process readers. Producer-only processes cannot know the
// remote consumer set, so their messages always join the work list.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, consumed := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return errors.New("queue not running")
	}

	raw, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if consumed || r.mode == ModeProducerOnly {
		if err := r.client.LPush(ctx, r.workKey(), raw).Err(); err != nil {
			return fmt.Errorf("push message: %w", err)
		}
		return nil
	}

	key := r.eventKey(msgType)
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, eventListCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push event %s: %w", msgType, err)
	}
	return nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()

	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, popBlock, r.workKey()).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil):
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			continue
		default:
			r.lg.Error("queue pop failed", logger.Int("worker", id), logger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) == 2 {
			r.dispatch([]byte(res[1]))
		}
	}
	r.lg.Debug("queue worker exited", logger.Int("worker", id))
}

func (r *RedisQueue) dispatch(raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.lg.Error("queue message undecodable", logger.Error(err))
		return
	}

	r.mu.RLock()
	job := r.jobs[msg.Type]
	r.mu.RUnlock()
	if job == nil {
		// The consumer set changed between publish and delivery; park
		// the message instead of dropping it.
		r.lg.Warn("queue message without consumer",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	payload := msg.Payload
	if m, ok := payload.(map[string]interface{}); ok {
		// Round-tripped JSON decodes into a map; hand jobs the raw
		// bytes so ParsePayload can target the real type.
		if b, err := json.Marshal(m); err == nil {
			payload = json.RawMessage(b)
		}
	}

	start := time.Now()
	err := job.Handle(r.ctx, payload)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.lg.Warn("queue message abandoned at shutdown",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return
	}
	r.retryOrPark(msg, job, err)
}

func (r *RedisQueue) retryOrPark(msg Message, job Job, cause error) {
	r.lg.Error("queue message failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(cause))

	if msg.Attempts >= r.cfg.RetryLimit {
		r.deadLetter(msg)
		return
	}

	msg.Attempts++
	due := time.Now().Add(r.cfg.RetryDelay)
	raw, err := json.Marshal(msg)
	if err != nil {
		r.lg.Error("queue retry encode failed", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(due.Unix()),
		Member: raw,
	}).Err()
	if err != nil {
		r.lg.Error("queue retry schedule failed", logger.String("id", msg.ID), logger.Error(err))
		return
	}
	r.lg.Info("queue retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("due", due.Format(time.RFC3339)))
}

func (r *RedisQueue) deadLetter(msg Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		r.lg.Error("queue dlq encode failed", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.dlqKey(), raw).Err(); err != nil {
		r.lg.Error("queue dlq push failed", logger.String("id", msg.ID), logger.Error(err))
		return
	}
	r.lg.Error("queue message parked in dlq",
		logger.String("id", msg.ID),
		logger.String("type", msg.Type),
		logger.Int("attempts", msg.Attempts))
}

// retrySweeper promotes due retries back onto the work list.
func (r *RedisQueue) retrySweeper() {
	defer r.wg.Done()

	tick := time.NewTicker(retrySweepEvery)
	defer tick.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-tick.C:
			r.promoteDueRetries()
		}
	}
}

func (r *RedisQueue) promoteDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(time.Now().Unix(), 10),
		Count: retryBatch,
	}).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		r.lg.Error("queue retry scan failed", logger.Error(err))
		return
	}

	for _, member := range due {
		// Removal and re-push run atomically so a crashed instance
		// cannot double-deliver a retry.
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, r.retryKey(), member)
		pipe.LPush(r.ctx, r.workKey(), member)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.lg.Error("queue retry promote failed", logger.Error(err))
		}
	}
}

func (r *RedisQueue) workKey() string  { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string { return r.keyPrefix + ":retry" }
func (r *RedisQueue) dlqKey() string   { return r.keyPrefix + ":dlq" }

func (r *RedisQueue) eventKey(msgType string) string {
	return r.keyPrefix + ":events:" + msgType
}

var _ QueueService = (*RedisQueue)(nil)
