// Command server runs the marketplace sync HTTP API, the job queue workers
// and the periodic sync trigger in one process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	appintegration "github.com/ordersync/backend/internal/application/integration"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/auth"
	"github.com/ordersync/backend/internal/infrastructure/cache"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/ecommerce"
	"github.com/ordersync/backend/internal/infrastructure/event"
	"github.com/ordersync/backend/internal/infrastructure/logger"
	"github.com/ordersync/backend/internal/infrastructure/persistence"
	"github.com/ordersync/backend/internal/infrastructure/scheduler"
	"github.com/ordersync/backend/internal/infrastructure/telemetry"
	"github.com/ordersync/backend/internal/interfaces/http/handler"
	"github.com/ordersync/backend/internal/interfaces/http/middleware"
	"github.com/ordersync/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	otelCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}

	// Logs go to the collector through the zap bridge when enabled
	logsCfg := otelCfg
	logsCfg.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled
	logProvider, err := telemetry.NewLoggerProvider(ctx, logsCfg, bootLog)
	if err != nil {
		bootLog.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log, err := logger.New(logCfg, logProvider.ZapCore(cfg.Telemetry.ServiceName, logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		bootLog.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting ordersync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, otelCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, otelCfg, telemetry.MetricsOptions{
		ExportInterval: cfg.Telemetry.MetricsInterval,
		Prometheus:     cfg.Telemetry.PrometheusEnabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
		if err := logProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down log provider", zap.Error(err))
		}
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	syncMetrics, err := telemetry.NewSyncMetrics(meterProvider.Meter(cfg.Telemetry.ServiceName))
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		DBName:     cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Redis backs webhook dedup and event fan-out across instances
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing Redis", zap.Error(err))
			}
		}()
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	}
	dedup := cache.NewDedupStore(redisClient, log)
	defer func() {
		_ = dedup.Close()
	}()

	// Repositories
	storeRepo := persistence.NewGormStoreRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	ticketRepo := persistence.NewGormSupportTicketRepository(db.DB)
	jobRepo := persistence.NewGormSyncJobRepository(db.DB)

	// Marketplace adapters
	registry, err := ecommerce.NewRegistryFromConfig(cfg, ecommerce.HTTPOptions{
		Metrics: syncMetrics,
		Logger:  log,
	})
	if err != nil {
		log.Fatal("Failed to build marketplace registry", zap.Error(err))
	}
	log.Info("Marketplaces registered", zap.Any("marketplaces", registry.Marketplaces()))

	// Record change events
	eventBus := event.NewInMemoryEventBus(log)
	if redisClient != nil {
		eventBus.Subscribe(event.NewRedisFanoutHandler(redisClient, event.DefaultFanoutChannel))
	} else {
		eventBus.Subscribe(event.LoggingHandler{})
	}
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	// Job queue
	queue := scheduler.NewJobQueue(scheduler.JobQueueConfig{
		PollInterval: cfg.Queue.PollInterval,
		JobTimeout:   cfg.Queue.JobTimeout,
		StaleAfter:   cfg.Queue.StaleAfter,
		DefaultOptions: integration.JobOptions{
			Attempts:         cfg.Queue.DefaultAttempts,
			Backoff:          integration.BackoffPolicy{Type: integration.BackoffExponential, Delay: cfg.Queue.BackoffDelay},
			RemoveOnComplete: true,
			RemoveOnFail:     false,
		},
	}, jobRepo, syncMetrics, log)

	// Application services
	tokenManager := appintegration.NewTokenManager(storeRepo, registry, syncMetrics, appintegration.TokenManagerConfig{
		RefreshSkew: cfg.Sync.TokenRefreshSkew,
	})
	reconciler := appintegration.NewReconciliationService(appintegration.ReconciliationDeps{
		Orders:    orderRepo,
		Products:  productRepo,
		Tickets:   ticketRepo,
		Stores:    storeRepo,
		Registry:  registry,
		Tokens:    tokenManager,
		Publisher: eventBus,
		Metrics:   syncMetrics,
	})
	syncService := appintegration.NewSyncService(storeRepo, ticketRepo, registry, tokenManager, reconciler, syncMetrics, appintegration.SyncConfig{
		PageSize:         cfg.Sync.PageSize,
		MaxPages:         cfg.Sync.MaxPages,
		SupportRetention: cfg.Sync.SupportRetention,
	})
	ingestion := appintegration.NewIngestionService(registry, storeRepo, tokenManager, reconciler, queue, dedup, syncMetrics, appintegration.IngestionConfig{
		DedupEnabled: cfg.Webhook.DedupEnabled,
		DedupTTL:     cfg.Webhook.DedupTTL,
	})
	connectService := appintegration.NewConnectService(registry, storeRepo, queue)
	triggerService := appintegration.NewTriggerService(storeRepo, queue)

	if err := appintegration.NewJobHandlers(syncService, ingestion, tokenManager).Register(queue, appintegration.JobConcurrency{
		Webhook: cfg.Queue.WebhookConcurrency,
		Sync:    cfg.Queue.SyncConcurrency,
	}); err != nil {
		log.Fatal("Failed to register job handlers", zap.Error(err))
	}

	if cfg.Queue.Enabled {
		if err := queue.Start(ctx); err != nil {
			log.Fatal("Failed to start job queue", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.StopTimeout)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				log.Error("Error stopping job queue", zap.Error(err))
			}
		}()
		log.Info("Job queue started",
			zap.Int("webhook_concurrency", cfg.Queue.WebhookConcurrency),
			zap.Int("sync_concurrency", cfg.Queue.SyncConcurrency),
		)
	}

	if cfg.Sync.CronEnabled {
		trigger := scheduler.NewSyncCronTrigger(scheduler.SyncCronTriggerConfig{
			SupportInterval:      cfg.Sync.SupportInterval,
			OrdersInterval:       cfg.Sync.OrdersInterval,
			ProductsInterval:     cfg.Sync.ProductsInterval,
			TokenRefreshInterval: cfg.Sync.TokenRefreshInterval,
		}, queue, storeRepo, log)
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start sync trigger", zap.Error(err))
		}
		defer func() {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping sync trigger", zap.Error(err))
			}
		}()
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	checks := map[string]handler.HealthCheck{"database": db.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, telemetry.ServiceVersion, checks)

	var tp trace.TracerProvider
	if tracerProvider.IsEnabled() {
		tp = otel.GetTracerProvider()
	}
	engine, err := router.NewEngine(router.EngineConfig{
		Logger:         log,
		ServiceName:    cfg.Telemetry.ServiceName,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
		},
		TracerProvider: tp,
		Meter:          meterProvider.Meter(cfg.Telemetry.ServiceName),
		Profiling:      profiler.IsEnabled(),
		MetricsHandler: meterProvider.Handler(),
		Health:         systemHandler.Health,
	})
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	marketplaceHandler := handler.NewMarketplaceHandler(handler.MarketplaceHandlerDeps{
		Ingester:  ingestion,
		Connector: connectService,
		Trigger:   triggerService,
		Enricher:  reconciler,
		Webhook:   cfg.Webhook,
		Frontend:  cfg.Frontend,
	})
	queueHandler := handler.NewQueueHandler(queue, marketplaceHandler)

	var webhookMiddleware []gin.HandlerFunc
	if cfg.Webhook.RatePerSecond > 0 {
		limiter := middleware.NewRateLimiter(cfg.Webhook.RatePerSecond, cfg.Webhook.RateBurst)
		go limiter.Run(ctx)
		webhookMiddleware = append(webhookMiddleware, middleware.RateLimit(limiter))
		log.Info("Webhook rate limiting enabled",
			zap.Float64("per_second", cfg.Webhook.RatePerSecond),
			zap.Int("burst", cfg.Webhook.RateBurst),
		)
	}

	verifier := auth.NewTokenVerifier(cfg.JWT)
	router.NewRouter(engine,
		router.WithAPIVersion("v1"),
		router.WithAuth(
			middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{Verifier: verifier, Logger: log}),
			middleware.BodyLimit(cfg.HTTP.MaxBodySize),
			middleware.SpanEnricher(),
		),
	).
		Public(
			router.RegistrarFunc(func(rg *gin.RouterGroup) {
				marketplaceHandler.RegisterRoutes(rg, webhookMiddleware...)
			}),
			systemHandler,
		).
		Protected(
			router.RegistrarFunc(marketplaceHandler.RegisterOperatorRoutes),
			queueHandler,
		).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}
