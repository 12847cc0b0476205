//go:build wireinject
// +build wireinject

package di

import (
	"VNFlow/pkg/config"
	"VNFlow/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Foundation
		ProvideLogger,
		ProvideCalibration,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideRedisClient,

		// Ingest side
		ProvideBarStorage,
		ProvideBarPublisher,
		ProvideBarProcessor,
		ProvideIngestPipeline,
		ProvideKafkaBarsHandler,
		ProvideBarIngestor,

		// Analysis repositories
		ProvideBarStore,
		ProvideCachedInstrumentStore,
		ProvideInstrumentStore,
		ProvideSnapshotStore,
		ProvideSnapshotPublisher,

		// Domain services
		ProvideEngine,
		ProvideOverviewBuilder,
		ProvideNotifier,

		// Use cases
		ProvideAnalyzerUseCase,
		ProvideOverviewUseCase,
		ProvideRefreshUseCase,
		ProvideRefreshJob,

		// Transport
		ProvideRefreshQueue,
		ProvideQueueService,
		ProvideResponseCache,
		ProvideAnalysisHandler,
		ProvideHub,
		ProvideScheduler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
