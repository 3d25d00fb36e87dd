package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wms-platform/opname-service/internal/api"
	"github.com/wms-platform/opname-service/internal/application"
	"github.com/wms-platform/opname-service/internal/config"
	"github.com/wms-platform/opname-service/internal/infrastructure/identity"
	mongoRepo "github.com/wms-platform/opname-service/internal/infrastructure/mongodb"
	redisinfra "github.com/wms-platform/opname-service/internal/infrastructure/redis"
	"github.com/wms-platform/opname-service/pkg/cloudevents"
	"github.com/wms-platform/opname-service/pkg/idempotency"
	"github.com/wms-platform/opname-service/pkg/kafka"
	"github.com/wms-platform/opname-service/pkg/logging"
	"github.com/wms-platform/opname-service/pkg/metrics"
	"github.com/wms-platform/opname-service/pkg/mongodb"
	"github.com/wms-platform/opname-service/pkg/outbox"
	"github.com/wms-platform/opname-service/pkg/tracing"
)

func main() {
	cfg, err := config.Load()

	logConfig := logging.DefaultConfig(config.ServiceName)
	if cfg != nil {
		logConfig.Level = logging.ParseLevel(cfg.LogLevel)
		logConfig.Environment = cfg.Environment
	}
	logger := logging.New(logConfig)
	logger.SetDefault()

	if err != nil {
		logger.WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}
	logger.Info("Starting opname-service API")

	ctx := context.Background()

	// Tracing is optional; the service runs without it
	tracerProvider, err := tracing.Initialize(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		if cfg.Tracing.Enabled {
			logger.Info("Tracing initialized", "endpoint", cfg.Tracing.OTLPEndpoint)
		}
	}

	m := metrics.New(metrics.DefaultConfig(config.ServiceName))

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDB, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	eventFactory := cloudevents.NewEventFactory("/" + config.ServiceName)
	store := mongoRepo.NewSessionStore(mongoClient, eventFactory)
	if err := store.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to create opname indexes")
		os.Exit(1)
	}
	units := mongoRepo.NewUnitSource(mongoClient, logger.Logger, cfg.ExpectedStatuses...)

	idempotencyRepo := idempotency.NewMongoRepository(mongoClient)
	if err := idempotencyRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize idempotency indexes")
	}

	opts := []application.Option{
		application.WithMetrics(m),
		application.WithApproverRoles(cfg.Auth.ApproverRoles...),
	}
	var cache application.RegistryCache
	if cfg.Redis.Enabled() {
		redisClient, err := redisinfra.NewClient(ctx, cfg.Redis)
		if err != nil {
			// The cache and the scan lock are optimizations; run without them
			logger.WithError(err).Warn("Redis unavailable, running without registry cache and session lock")
		} else {
			defer redisClient.Close()
			cache = redisinfra.NewRegistryCache(redisClient, cfg.Redis.CacheTTL)
			opts = append(opts,
				application.WithRegistryCache(cache),
				application.WithSessionLocker(redisinfra.NewSessionLocker(redisClient, cfg.Redis.LockTTL)),
			)
			logger.Info("Redis connected", "addr", cfg.Redis.Addr)
		}
	}

	kafkaProducer := kafka.NewProducer(cfg.Kafka)
	defer kafkaProducer.Close()
	producer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)

	publisher := outbox.NewPublisher(store.OutboxRepository(), producer, logger, m, cfg.Outbox)
	if err := publisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer publisher.Stop()
	logger.Info("Outbox publisher started", "brokers", cfg.Kafka.Brokers)

	service := application.NewOpnameService(store, units, logger, opts...)
	queries := application.NewQueryService(store, cache, logger)

	idem := idempotency.DefaultConfig(config.ServiceName, idempotencyRepo)
	idem.UserIDExtractor = api.CallerID
	idem.Metrics = idempotency.NewMetrics("opname", m.Registry())
	idem.Logger = logger.Logger

	router, err := api.NewRouter(&api.RouterConfig{
		ServiceName:   config.ServiceName,
		Service:       service,
		Queries:       queries,
		Verifier:      identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		Logger:        logger,
		Metrics:       m,
		Idempotency:   idem,
		ScanRateLimit: cfg.ScanRateLimit,
		Ready: func() error {
			return mongoClient.HealthCheck(ctx)
		},
	})
	if err != nil {
		logger.WithError(err).Error("Failed to build router")
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}
