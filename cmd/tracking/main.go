package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/piresc/schoolbus/internal/pkg/config"
	"github.com/piresc/schoolbus/internal/pkg/constants"
	"github.com/piresc/schoolbus/internal/pkg/database"
	"github.com/piresc/schoolbus/internal/pkg/health"
	"github.com/piresc/schoolbus/internal/pkg/logger"
	"github.com/piresc/schoolbus/internal/pkg/metrics"
	"github.com/piresc/schoolbus/internal/pkg/middleware"
	"github.com/piresc/schoolbus/internal/pkg/models"
	natspkg "github.com/piresc/schoolbus/internal/pkg/nats"
	nrpkg "github.com/piresc/schoolbus/internal/pkg/newrelic"
	"github.com/piresc/schoolbus/internal/pkg/retry"
	"github.com/piresc/schoolbus/internal/pkg/server"
	wspkg "github.com/piresc/schoolbus/internal/pkg/websocket"
	"github.com/piresc/schoolbus/services/tracking/broadcast"
	"github.com/piresc/schoolbus/services/tracking/gateway"
	"github.com/piresc/schoolbus/services/tracking/geofence"
	"github.com/piresc/schoolbus/services/tracking/handler"
	httpHandler "github.com/piresc/schoolbus/services/tracking/handler/http"
	natsHandler "github.com/piresc/schoolbus/services/tracking/handler/nats"
	wsHandler "github.com/piresc/schoolbus/services/tracking/handler/websocket"
	"github.com/piresc/schoolbus/services/tracking/ingest"
	"github.com/piresc/schoolbus/services/tracking/repository"
	"github.com/piresc/schoolbus/services/tracking/session"
	"github.com/piresc/schoolbus/services/tracking/subscription"
	"github.com/piresc/schoolbus/services/tracking/usecase"
)

const (
	streamMaxAge     = 7 * 24 * time.Hour
	sweepInterval    = time.Minute
	reapInterval     = 15 * time.Second
	shutdownDeadline = 10 * time.Second
)

type snapshotFunc func(routeID string) models.Snapshot

func (f snapshotFunc) ActiveSnapshot(routeID string) models.Snapshot { return f(routeID) }

func main() {
	appName := "tracking-service"
	configPath := config.GetEnv("CONFIG_PATH", "config/tracking.env")
	configs := config.InitConfig(configPath)

	// Initialize New Relic and Zap logger
	nrApp := nrpkg.InitNewRelic(configs)

	zapLogger, err := logger.InitZapLoggerFromConfig(configs, nrApp)
	if err != nil {
		log.Fatalf("Failed to create Zap logger: %v", err)
	}
	logger.SetGlobalLogger(zapLogger)

	logger.Info("Starting application",
		logger.String("app", appName),
		logger.String("version", configs.App.Version),
		logger.String("environment", configs.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector(configs.Metrics.Namespace)
	connectRetrier := retry.New(retry.Config{
		MaxRetries: 5,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
		Multiplier: 2,
		Jitter:     true,
	}, zapLogger)

	// Initialize PostgreSQL database connection
	var postgresClient *database.PostgresClient
	if err := connectRetrier.Execute(ctx, func(context.Context) error {
		c, err := database.NewPostgresClient(configs.Database)
		postgresClient = c
		return err
	}); err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
	}

	// Initialize Redis client
	var redisClient *database.RedisClient
	if err := connectRetrier.Execute(ctx, func(context.Context) error {
		c, err := database.NewRedisClient(configs.Redis)
		redisClient = c
		return err
	}); err != nil {
		zapLogger.Fatal("Failed to connect to Redis", logger.Err(err))
	}

	// Initialize JetStream-enabled NATS client
	var natsClient *natspkg.Client
	if err := connectRetrier.Execute(ctx, func(context.Context) error {
		c, err := natspkg.NewClient(configs.NATS.URL, appName, collector)
		natsClient = c
		return err
	}); err != nil {
		zapLogger.Fatal("Failed to connect to NATS with JetStream", logger.Err(err))
	}

	if err := gateway.EnsureTrackingStream(ctx, natsClient, streamMaxAge); err != nil {
		zapLogger.Fatal("Failed to ensure tracking stream", logger.Err(err))
	}

	// Initialize repositories
	routeRepo := repository.NewCachedRouteRepository(
		repository.NewRouteRepository(postgresClient.GetDB()),
		configs.Tracking.RouteCacheTTL,
	)
	snapshotRepo := repository.NewSnapshotRepository(redisClient)
	historyRepo := repository.NewHistoryRepository(postgresClient.GetDB())

	// Initialize gateway
	eventGW := gateway.NewEventGW(natsClient)

	// Initialize the tracking core. The registry reads snapshots from the
	// session manager, which publishes through the registry.
	var sessions *session.Manager
	registry := subscription.NewRegistry(subscription.Config{
		QueueSize:   configs.Tracking.SubscriberQueue,
		IdleTimeout: configs.Tracking.IdleTimeout,
	}, snapshotFunc(func(routeID string) models.Snapshot {
		return sessions.ActiveSnapshot(routeID)
	}))
	broadcaster := broadcast.NewBroadcaster(registry, eventGW, collector)
	sessions = session.NewManager(
		session.Config{
			SessionRetention: configs.Tracking.SessionRetention,
			RequestTokenTTL:  configs.Tracking.RequestTokenTTL,
		},
		geofence.NewEngine(geofence.ConfigFrom(configs.Tracking)),
		routeRepo,
		broadcaster,
	)
	ingestor := ingest.NewIngestor(ingest.ConfigFrom(configs.Tracking), sessions, collector)

	collector.RegisterGauge("active_sessions", "Sessions currently Active.", func() float64 {
		return float64(sessions.ActiveCount())
	})
	collector.RegisterGauge("subscriptions", "Live route subscriptions.", func() float64 {
		return float64(registry.Count())
	})

	// Initialize usecases
	trackingUC := usecase.NewTrackingUC(routeRepo, sessions, ingestor, registry)
	historyUC := usecase.NewHistoryUC(historyRepo, snapshotRepo, routeRepo, collector)

	// Initialize handlers
	wsManager := wspkg.NewManager(configs.JWT)
	collector.RegisterGauge("websocket_connections", "Open WebSocket connections.", func() float64 {
		return float64(wsManager.Count())
	})
	trackingHandler := handler.NewHandler(
		httpHandler.NewTrackingHandler(trackingUC, historyUC),
		wsHandler.NewTrackingWSHandler(trackingUC, wsManager, wsHandler.Config{IdleTimeout: configs.Tracking.IdleTimeout}),
		natsHandler.NewTrackingHandler(historyUC, natsClient, nrApp),
		configs,
	)

	if err := trackingHandler.InitNATSConsumers(ctx); err != nil {
		zapLogger.Fatal("Failed to initialize NATS consumers", logger.Err(err))
	}

	// Initialize Echo server
	e := echo.New()
	e.HideBanner = true

	mw := middleware.NewMiddleware(middleware.Config{
		Logger:      zapLogger,
		NRApp:       nrApp,
		APIKey:      configs.Server.APIKey,
		ServiceName: appName,
	})
	e.Use(mw.Handler())

	healthService := health.NewHealthService()
	healthService.AddChecker("postgres", health.NewPostgresHealthChecker(postgresClient))
	healthService.AddChecker("redis", health.NewRedisHealthChecker(redisClient))
	healthService.AddChecker("nats", health.NewNATSHealthChecker(natsClient, constants.StreamTracking))
	health.RegisterHealthEndpoints(e, appName, configs.App.Version, healthService)

	if configs.Metrics.Enabled {
		e.GET("/metrics", echo.WrapHandler(collector.Handler()))
	}

	trackingHandler.RegisterRoutes(e, mw, redisClient.GetClient())

	// Background janitors
	go sessions.Run(ctx, sweepInterval)
	go registry.Run(ctx, reapInterval)

	srv := server.NewGracefulServer(e, zapLogger, configs.Server)

	// Shutdown hooks run in reverse registration order
	srv.OnShutdown(func(context.Context) error {
		zapLogger.Info("Closing logger")
		return zapLogger.Close()
	})
	srv.OnShutdown(func(context.Context) error {
		nrpkg.Shutdown(nrApp, shutdownDeadline)
		return nil
	})
	srv.OnShutdown(func(context.Context) error {
		zapLogger.Info("Closing PostgreSQL connection...")
		return postgresClient.Close()
	})
	srv.OnShutdown(func(context.Context) error {
		zapLogger.Info("Closing Redis connection...")
		return redisClient.Close()
	})
	srv.OnShutdown(func(context.Context) error {
		zapLogger.Info("Closing NATS connection...")
		natsClient.Close()
		return nil
	})
	srv.OnShutdown(func(context.Context) error {
		trackingHandler.Close()
		registry.Close()
		return nil
	})
	srv.OnShutdown(func(context.Context) error {
		zapLogger.Info("Closing WebSocket connections", logger.Int("count", wsManager.Count()))
		wsManager.CloseAll()
		return nil
	})

	if err := srv.Run(ctx); err != nil {
		zapLogger.Fatal("Server stopped with error", logger.Err(err))
	}
}
