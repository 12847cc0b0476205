package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "VNFlow/internal/domain/repository"
	"VNFlow/internal/handler/api"
	"VNFlow/internal/handler/ws"
	"VNFlow/internal/scheduler"
	"VNFlow/internal/usecase"
	pkgcache "VNFlow/pkg/cache"
	pkgch "VNFlow/pkg/clickhouse"
	"VNFlow/pkg/config"
	xhttp "VNFlow/pkg/http"
	applogger "VNFlow/pkg/logger"
	pkgqueue "VNFlow/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	api        *api.AnalysisHandler
	hub        *ws.Hub
	chClient   *pkgch.Client
	httpServer *xhttp.Server

	// Optional components, attached by DI when the config enables them.
	Ingestor  *usecase.BarIngestor
	Queue     *pkgqueue.RedisQueue
	Scheduler *scheduler.Scheduler
	Publisher domrepo.SnapshotPublisher
	Cache     pkgcache.Service
}

// New creates a new App instance with the always-on dependencies.
func New(
	cfg *config.Config,
	lg *applogger.Logger,
	apiHandler *api.AnalysisHandler,
	hub *ws.Hub,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:      cfg,
		log:      lg,
		api:      apiHandler,
		hub:      hub,
		chClient: chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.log
	if l == nil {
		var err error
		l, err = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		if err != nil {
			log.Printf("failed to create logger: %v", err)
			return err
		}
	}

	// Liveness follows the bar store: no ClickHouse, no answers.
	if a.chClient != nil {
		a.api.SetHealthCheck(a.chClient.Health)
	}

	serverOpts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	}
	if a.cfg.Metrics.Enabled {
		path := a.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		serverOpts = append(serverOpts, xhttp.WithMetricsPath(path))
	}
	a.httpServer = xhttp.NewServer(a.api, serverOpts...)
	if a.hub != nil {
		a.hub.RegisterRoutes(a.httpServer.Echo())
	}

	// Start ingest: Kafka consumer plus validation pipeline
	if a.Ingestor != nil {
		if err := a.Ingestor.Start(ctx); err != nil {
			l.Error("bar ingest start error", applogger.Error(err))
			return err
		}
		l.Info("bar ingest started", applogger.String("backend", a.cfg.Backend.Type))
	}

	// Start refresh queue workers if configured. With the queue up,
	// aggregated error logs ride the same bus.
	if a.Queue != nil {
		if err := a.Queue.Start(); err != nil {
			l.Error("refresh queue start error", applogger.Error(err))
			return err
		}
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "vnflow.logs.errors",
			Publisher:      a.Queue,
		})
	}

	// Start scheduled jobs
	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx, l)
}

// shutdown gracefully stops all services: intake first, then the serving
// surface, then the sinks.
func (a *App) shutdown(ctx context.Context, l *applogger.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop scheduled jobs so no new sweeps begin mid-shutdown
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(shutdownCtx); err != nil {
			l.Warn("scheduler stop error", applogger.Error(err))
		}
	}

	// Stop ingest (consumer + pipeline), then release its sinks
	if a.Ingestor != nil {
		if err := a.Ingestor.Shutdown(shutdownCtx); err != nil {
			l.Warn("bar ingest stop error", applogger.Error(err))
		}
		if proc := a.Ingestor.Processor(); proc != nil {
			proc.Close()
		}
	}

	// Flush aggregated logs while the queue can still carry them, then
	// stop the queue workers
	if a.Queue != nil {
		l.RemoveCollector()
		if err := a.Queue.Stop(shutdownCtx); err != nil {
			l.Warn("refresh queue stop error", applogger.Error(err))
		}
	}

	// Shutdown HTTP server
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	// Disconnect live subscribers
	if a.hub != nil {
		a.hub.Close()
	}

	// Close snapshot publisher
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			l.Warn("snapshot publisher close error", applogger.Error(err))
		}
	}

	// Close infrastructure clients
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
