package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	httpadapter "github.com/mheravagimyan/real-estate-ledger/internal/adapter/http"
	natsadapter "github.com/mheravagimyan/real-estate-ledger/internal/adapter/messaging/nats"
	cacheadapter "github.com/mheravagimyan/real-estate-ledger/internal/adapter/repository/cache"
	mongoadapter "github.com/mheravagimyan/real-estate-ledger/internal/adapter/repository/mongodb"
	"github.com/mheravagimyan/real-estate-ledger/internal/config"
	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/ledger"
	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/usecase"
	"github.com/mheravagimyan/real-estate-ledger/internal/platform/metrics"
	"github.com/mheravagimyan/real-estate-ledger/internal/platform/tracer"
)

// App owns the wired service: storage, ledger, usecase and servers.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	mongoClient    *mongo.Client
	redisClient    *redis.Client
	natsPublisher  *natsadapter.Publisher
	tracerProvider *sdktrace.TracerProvider
	metricsManager *metrics.Manager
	httpServer     *httpadapter.Server
}

func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx := context.Background()

	logger.Info("Initializing MongoDB client...")
	mongoClient, err := mongoadapter.NewMongoDBConnection(&cfg.Mongo)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MongoDB client: %w", err)
	}
	logger.Info("MongoDB client initialized successfully")

	logger.Info("Initializing Redis client...")
	redisClient, err := cacheadapter.NewRedisClient(&cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis client: %w", err)
	}

	natsPublisher, err := natsadapter.NewPublisher(&cfg.NATS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize NATS publisher: %w", err)
	}

	tracerProvider := tracer.InitTracer(cfg.ServiceName, cfg.Tracing.OTLPEndpoint, logger)
	metricsManager := metrics.NewManager("real_estate_ledger")

	journal := mongoadapter.NewEventJournal(mongoClient, cfg.Mongo.Database)
	settlement := mongoadapter.NewAccountRepository(mongoClient, cfg.Mongo.Database)
	listingCache := cacheadapter.NewRedisCacheRepository(redisClient, logger)

	led, err := ledger.New(journal, settlement, domain.Address(cfg.Ledger.OperatorAddress), cfg.Ledger.FeeBps, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	if err := led.Recover(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover ledger state: %w", err)
	}
	logger.Info("Ledger initialized",
		zap.String("operator", cfg.Ledger.OperatorAddress),
		zap.Uint32("fee_bps", led.Fees().RateBps),
	)

	uc := usecase.NewMarketplaceUsecase(led, settlement, journal, natsPublisher, listingCache, metricsManager, logger)
	handler := httpadapter.NewHandler(uc, logger)
	router := httpadapter.NewRouter(handler, cfg.JWT.Secret, metricsManager, logger)
	httpServer := httpadapter.NewServer(&cfg.HTTP, router, logger)

	return &App{
		cfg:            cfg,
		logger:         logger,
		mongoClient:    mongoClient,
		redisClient:    redisClient,
		natsPublisher:  natsPublisher,
		tracerProvider: tracerProvider,
		metricsManager: metricsManager,
		httpServer:     httpServer,
	}, nil
}

// Run starts the servers and blocks until a shutdown signal arrives, then
// tears everything down within the configured timeout.
func (a *App) Run() error {
	errCh := make(chan error, 2)

	go func() {
		if err := metrics.StartMetricsServer(a.cfg.Metrics.Port, a.logger, a.metricsManager.Registry); err != nil {
			a.logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	go func() {
		errCh <- a.httpServer.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("HTTP server failed", zap.Error(err))
			a.shutdown()
			return err
		}
	case sig := <-quit:
		a.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}

	a.natsPublisher.Close()

	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("Failed to close Redis client", zap.Error(err))
	}

	if err := a.mongoClient.Disconnect(ctx); err != nil {
		a.logger.Error("Failed to disconnect MongoDB", zap.Error(err))
	} else {
		a.logger.Info("MongoDB connection closed.")
	}

	if err := a.tracerProvider.Shutdown(ctx); err != nil {
		a.logger.Error("Failed to shut down tracer provider", zap.Error(err))
	}

	a.logger.Info("Shutdown complete")
}
