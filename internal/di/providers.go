package di

import (
	"context"
	"fmt"
	"net"
	"time"

	"VNFlow/internal/domain/repository"
	domsvc "VNFlow/internal/domain/service"
	"VNFlow/internal/handler/api"
	"VNFlow/internal/handler/ws"
	mid "VNFlow/internal/middleware"
	internalrepo "VNFlow/internal/repository"
	"VNFlow/internal/scheduler"
	icache "VNFlow/internal/service/cache"
	"VNFlow/internal/service/notify"
	"VNFlow/internal/services/analytics"
	"VNFlow/internal/usecase"
	pkgcache "VNFlow/pkg/cache"
	pkgch "VNFlow/pkg/clickhouse"
	"VNFlow/pkg/config"
	pkgkafka "VNFlow/pkg/kafka"
	applogger "VNFlow/pkg/logger"
	"VNFlow/pkg/metrics"
	pkgqueue "VNFlow/pkg/queue"
	"VNFlow/pkg/server"
	xutil "VNFlow/pkg/util"

	"github.com/redis/go-redis/v9"
)

// instrumentCacheTTL bounds how stale cached metadata may get between the
// scheduled universe reloads.
const instrumentCacheTTL = 6 * time.Hour

// ProvideLogger creates the application logger from the environment.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{Level: "debug", Format: "console", Output: "stdout"}
	if cfg.Environment == "production" {
		lc = &applogger.Config{Level: "info", Format: "json", Output: "stdout"}
	}
	return applogger.New(lc)
}

// ProvideCalibration loads the scoring calibration file.
func ProvideCalibration(cfg *config.Config) (*config.Calibration, error) {
	cal, err := config.LoadCalibration(cfg.Analysis.CalibrationPath)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	return cal, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS vnflow",
		"CREATE TABLE IF NOT EXISTS vnflow.daily_bars (" +
			"symbol String, date Date, open Float64, high Float64, low Float64, close Float64, " +
			"volume Int64, foreign_buy Int64, foreign_sell Int64, ingested_at DateTime" +
			") ENGINE=ReplacingMergeTree(ingested_at) ORDER BY (symbol, date)",
		"CREATE TABLE IF NOT EXISTS vnflow.instruments (" +
			"symbol String, sector String, exchange String, market_cap Float64, updated_at DateTime" +
			") ENGINE=ReplacingMergeTree(updated_at) ORDER BY symbol",
		"CREATE TABLE IF NOT EXISTS vnflow.analysis_snapshots (" +
			"symbol String, as_of DateTime, bars Int32, composite Float64, adjusted Float64, " +
			"class String, strength String, action String, " +
			"volume_score Float64, price_action_score Float64, momentum_score Float64, accumulation_score Float64, " +
			"adjustment Float64, entry_signals String, exit_signals String, " +
			"sizing_tier String, sizing_fraction Float64, volatility Float64, max_drawdown Float64, created_at DateTime" +
			") ENGINE=MergeTree ORDER BY (symbol, as_of)",
	}); err != nil {
		_ = client.Close() // cannot log here (DI layer no logger); propagate error
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers...),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
// Returns nil when bar ingest is disabled.
func ProvideKafkaConsumer(cfg *config.Config, lg *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Ingest.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(lg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBarStorage creates ClickHouse storage for ingested bars.
func ProvideBarStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseBarStorage(chClient.DB(), cfg.ClickHouse.Database+".daily_bars")
}

// ProvideBarPublisher creates the Kafka publisher for normalized bars.
func ProvideBarPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.NormalizedTopic)
}

// ProvideBarProcessor creates the backend router for validated bars.
func ProvideBarProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	cfg *config.Config,
) *usecase.BarProcessor {
	return usecase.NewBarProcessor(
		pub,
		store,
		m,
		cfg.Backend.Type,
		cfg.Backend.BatchSize,
		cfg.Backend.BatchTimeout,
	)
}

// ProvideIngestPipeline builds the validation and dedupe stage between the
// bar feed and the backend.
func ProvideIngestPipeline(proc *usecase.BarProcessor, m repository.Metrics, cfg *config.Config) *mid.IngestPipeline {
	return mid.NewIngestPipeline(proc, m,
		mid.WithDedupeWindow(cfg.Ingest.ThrottleWindow),
		mid.WithBufferSize(cfg.Ingest.BufferSize),
		mid.WithRetryBackoff(cfg.Ingest.RetryBackoff),
	)
}

// ProvideKafkaBarsHandler decodes bar messages off the raw topic into the
// pipeline.
func ProvideKafkaBarsHandler(pipe *mid.IngestPipeline, m repository.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.BarsTopic, pipe, m)
}

// ProvideBarIngestor assembles the ingest side. Nil when ingest is disabled.
func ProvideBarIngestor(
	consumer *pkgkafka.Consumer,
	proc *usecase.BarProcessor,
	pipe *mid.IngestPipeline,
	kh *usecase.KafkaBarsHandler,
	m repository.Metrics,
) *usecase.BarIngestor {
	if consumer == nil {
		return nil
	}
	consumer.WithConsumerHook(pkgkafka.LagHook{Observe: func(topic string, lag time.Duration) {
		m.RecordLatency("kafka_delivery_lag", lag.Seconds())
	}})
	consumer.RegisterHandler(kh)
	return usecase.NewBarIngestor(consumer, proc, pipe)
}

// ProvideRedisCache creates the shared Redis backend. Nil when Redis is
// disabled; the cache service then runs memory-only.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}

	host, port := splitAddr(cfg.Redis.Addr)
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("vnflow"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCacheService layers a small in-process LRU over Redis. Without
// Redis the LRU stands alone, so cached reads and job locks keep working
// in single-instance deployments.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc == nil {
		return pkgcache.NewMemoryCache(pkgcache.WithMemoryMaxSize(4096))
	}
	return pkgcache.NewLayeredCache(rc, pkgcache.WithLayeredMemorySize(4096))
}

// ProvideRedisClient exposes the underlying Redis connection for the job
// queue and the response cache. Nil when Redis is disabled.
func ProvideRedisClient(rc *pkgcache.RedisCache) *redis.Client {
	if rc == nil {
		return nil
	}
	return rc.Client()
}

// ProvideCachedInstrumentStore wraps the ClickHouse instrument store with
// the metadata cache.
func ProvideCachedInstrumentStore(chClient *pkgch.Client, svc pkgcache.Service, lg *applogger.Logger) *internalrepo.CachedInstrumentStore {
	inner := internalrepo.NewCHInstrumentStore(chClient)
	inner.SetLogger(lg)
	return internalrepo.NewCachedInstrumentStore(inner, svc, instrumentCacheTTL)
}

// ProvideInstrumentStore narrows the cached store to the domain interface.
func ProvideInstrumentStore(cached *internalrepo.CachedInstrumentStore) repository.InstrumentStore {
	return cached
}

// ProvideBarStore creates the read side over stored daily bars.
func ProvideBarStore(chClient *pkgch.Client, lg *applogger.Logger) repository.BarStore {
	s := internalrepo.NewCHBarStore(chClient)
	s.SetLogger(lg)
	return s
}

// ProvideSnapshotStore persists flattened analysis results.
func ProvideSnapshotStore(chClient *pkgch.Client) repository.SnapshotStore {
	return internalrepo.NewCHSnapshotStore(chClient)
}

// ProvideSnapshotPublisher pushes analysis output to the bus. Nil when no
// snapshot topic is configured.
func ProvideSnapshotPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SnapshotPublisher {
	if cfg.Kafka.SnapshotTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaSnapshotPublisher(producer, cfg.Kafka.SnapshotTopic)
}

// ProvideNotifier creates the webhook alert channel. Nil when unset.
func ProvideNotifier(cfg *config.Config, lg *applogger.Logger) domsvc.AlertNotifier {
	if cfg.Alerts.WebhookURL == "" {
		return nil
	}
	return notify.NewWebhookNotifier(cfg.Alerts.WebhookURL, cfg.Alerts.Timeout, cfg.Alerts.Attempts, lg)
}

// ProvideEngine creates the per-symbol analysis engine.
func ProvideEngine(cal *config.Calibration) domsvc.SymbolAnalyzer {
	return analytics.NewEngine(cal)
}

// ProvideOverviewBuilder creates the market-overview fold.
func ProvideOverviewBuilder(cal *config.Calibration) domsvc.OverviewBuilder {
	return analytics.NewOverviewBuilder(cal)
}

// ProvideAnalyzerUseCase creates the on-demand analysis use case.
func ProvideAnalyzerUseCase(
	bars repository.BarStore,
	instruments repository.InstrumentStore,
	engine domsvc.SymbolAnalyzer,
	lg *applogger.Logger,
) *usecase.AnalyzerUseCase {
	return usecase.NewAnalyzerUseCase(bars, instruments, engine, lg)
}

// ProvideOverviewUseCase creates the market-wide scan use case.
func ProvideOverviewUseCase(
	analyzer *usecase.AnalyzerUseCase,
	instruments repository.InstrumentStore,
	builder domsvc.OverviewBuilder,
	cfg *config.Config,
	lg *applogger.Logger,
) *usecase.OverviewUseCase {
	return usecase.NewOverviewUseCase(analyzer, instruments, builder, cfg.Analysis.Workers, lg)
}

// ProvideRefreshUseCase creates the analyze-persist-fanout use case.
func ProvideRefreshUseCase(
	analyzer *usecase.AnalyzerUseCase,
	instruments repository.InstrumentStore,
	snapshots repository.SnapshotStore,
	publisher repository.SnapshotPublisher,
	notifier domsvc.AlertNotifier,
	m repository.Metrics,
	cfg *config.Config,
	lg *applogger.Logger,
) *usecase.RefreshUseCase {
	return usecase.NewRefreshUseCase(analyzer, instruments, snapshots, publisher, notifier, m, cfg.Analysis.Workers, lg)
}

// ProvideRefreshJob wraps the refresh use case as a queue job.
func ProvideRefreshJob(refresh *usecase.RefreshUseCase) *usecase.RefreshJob {
	return usecase.NewRefreshJob(refresh)
}

// ProvideRefreshQueue creates the Redis-backed refresh queue with workers.
// Nil when the queue is disabled.
func ProvideRefreshQueue(
	cfg *config.Config,
	lg *applogger.Logger,
	client *redis.Client,
	job *usecase.RefreshJob,
) *pkgqueue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	opts := []pkgqueue.RedisQueueOption{}
	if cfg.Queue.Name != "" {
		opts = append(opts, pkgqueue.WithKeyPrefix(cfg.Queue.Name))
	}
	q := pkgqueue.NewRedisQueue(lg, &pkgqueue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.Retries,
		RetryDelay: cfg.Queue.RetryDelay,
	}, client, pkgqueue.ModeProducerConsumer, opts...)
	q.RegisterJob(job)
	return q
}

// ProvideQueueService adapts the queue for publishers, keeping a disabled
// queue a plain nil interface.
func ProvideQueueService(q *pkgqueue.RedisQueue) pkgqueue.QueueService {
	if q == nil {
		return nil
	}
	return q
}

// ProvideResponseCache picks the response-byte cache backend: Redis when
// available, in-process TTL map otherwise.
func ProvideResponseCache(client *redis.Client) icache.BytesCache {
	if client != nil {
		return icache.NewRedisBytes(client, "resp")
	}
	return icache.NewTTLCache()
}

// ProvideAnalysisHandler creates the HTTP API handler.
func ProvideAnalysisHandler(
	analyzer *usecase.AnalyzerUseCase,
	overview *usecase.OverviewUseCase,
	qs pkgqueue.QueueService,
	respCache icache.BytesCache,
	cfg *config.Config,
	lg *applogger.Logger,
) *api.AnalysisHandler {
	h := api.NewAnalysisHandler(analyzer, overview, qs)
	h.SetLogger(lg)
	h.SetCache(respCache)
	h.SetRateLimit(cfg.Analysis.RateLimitRPS, cfg.Analysis.RateLimitBurst)
	h.SetCacheTTLs(cfg.Analysis.CacheTTL.Analyze, cfg.Analysis.CacheTTL.Overview)
	return h
}

// ProvideHub creates the websocket fan-out hub.
func ProvideHub(lg *applogger.Logger) *ws.Hub {
	return ws.NewHub(lg)
}

// ProvideScheduler builds the cron scheduler with the standing analysis
// jobs. Nil when scheduling is disabled.
func ProvideScheduler(
	cfg *config.Config,
	lg *applogger.Logger,
	refresh *usecase.RefreshUseCase,
	overview *usecase.OverviewUseCase,
	publisher repository.SnapshotPublisher,
	hub *ws.Hub,
	cached *internalrepo.CachedInstrumentStore,
	svc pkgcache.Service,
) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	s, err := scheduler.New(cfg.Scheduler.Timezone, 0, lg)
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	deps := scheduler.AnalysisJobs{
		Refresh:   refresh,
		Overview:  overview,
		Publisher: publisher,
		Lock:      svc,
	}
	if hub != nil {
		deps.Sink = hub
	}
	if cached != nil {
		deps.Universe = cached
	}
	if err := scheduler.RegisterAnalysisJobs(s, deps, cfg, lg); err != nil {
		return nil, fmt.Errorf("scheduler jobs: %w", err)
	}
	return s, nil
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lg *applogger.Logger,
	handler *api.AnalysisHandler,
	hub *ws.Hub,
	chClient *pkgch.Client,
	ingestor *usecase.BarIngestor,
	queue *pkgqueue.RedisQueue,
	sched *scheduler.Scheduler,
	publisher repository.SnapshotPublisher,
	svc pkgcache.Service,
) *server.App {
	app := server.New(cfg, lg, handler, hub, chClient)
	app.Ingestor = ingestor
	app.Queue = queue
	app.Scheduler = sched
	app.Publisher = publisher
	app.Cache = svc
	return app
}

// splitAddr breaks a host:port address, defaulting the standard Redis port.
func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	return host, xutil.ParseIntDefault(portStr, 6379)
}
