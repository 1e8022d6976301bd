package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/gocomet/ridematch/internal/api/handlers"
	"github.com/gocomet/ridematch/internal/api/routes"
	"github.com/gocomet/ridematch/internal/config"
	"github.com/gocomet/ridematch/internal/domain/driver"
	"github.com/gocomet/ridematch/internal/domain/trip"
	"github.com/gocomet/ridematch/internal/service/matching"
	"github.com/gocomet/ridematch/internal/service/pricing"
	"github.com/gocomet/ridematch/internal/service/routing"
	"github.com/gocomet/ridematch/internal/service/trips"
	"github.com/gocomet/ridematch/internal/storage/memory"
	"github.com/gocomet/ridematch/internal/storage/postgres"
	"github.com/gocomet/ridematch/pkg/cache"
	"github.com/gocomet/ridematch/pkg/database"
	"github.com/gocomet/ridematch/pkg/events"
	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
	"github.com/gocomet/ridematch/pkg/monitoring"
	"github.com/gocomet/ridematch/pkg/presence"
	"github.com/gocomet/ridematch/pkg/websocket"
)

type stores struct {
	trips    trip.Repository
	drivers  driver.Repository
	lastSeen presence.LastSeenStore
	db       *sql.DB
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting RideMatch",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
		logger.String("store", cfg.Store.Backend),
		logger.Bool("redis_enabled", cfg.Redis.Enabled),
		logger.Any("pricing", cfg.Pricing),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
		LogLevel:   cfg.NewRelic.LogLevel,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp = monitoring.Disabled()
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized successfully", logger.String("app_name", cfg.NewRelic.AppName))
	} else {
		appLogger.Info("New Relic APM disabled")
	}
	defer nrApp.Shutdown(10 * time.Second)

	// Redis backs presence and the cross-instance backplane. An unreachable Redis
	// only degrades both to this instance.
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(ctx, cache.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			PoolSize:    cfg.Redis.PoolSize,
			MinIdleConn: cfg.Redis.MinIdleConn,
			DialTimeout: cfg.Redis.DialTimeout,
			ReadTimeout: cfg.Redis.ReadTimeout,
		}, nrApp.App())
		if err != nil {
			appLogger.Warn("Redis unreachable at startup, presence starts in local mode", logger.Err(err))
		} else {
			appLogger.Info("Connected to Redis successfully")
		}
		defer cache.Close(redisClient)
		if nrApp.IsEnabled() {
			go reportRedisPool(ctx, redisClient, nrApp)
		}
	}

	st, err := openStores(ctx, cfg, nrApp.IsEnabled(), appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open trip store", logger.Err(err))
	}
	if st.db != nil {
		defer st.db.Close()
	}

	// Presence and fan-out
	var shared presence.SharedIndex
	var backplane websocket.Backplane
	if redisClient != nil {
		shared = presence.NewRedisIndex(redisClient)
		backplane = websocket.NewRedisBackplane(redisClient, cfg.Presence.Channel, appLogger)
	}
	presenceIdx := presence.NewFallbackIndex(ctx, shared, appLogger.Named("presence"))
	go presence.RunSweeper(ctx, presenceIdx, cfg.Presence.SweepInterval, appLogger.Named("presence"))

	wsHub := websocket.NewHub(presenceIdx, st.lastSeen, backplane, appLogger.Named("hub"), websocket.Config{
		PresenceTTL: cfg.Presence.TTL,
		Workers:     cfg.WebSocket.Workers,
		QueueSize:   cfg.WebSocket.QueueSize,
		SendBuffer:  cfg.WebSocket.SendBuffer,
	})

	// Trip event log
	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		appLogger.Info("Publishing trip events to Kafka",
			logger.Strings("brokers", cfg.Kafka.Brokers),
			logger.String("topic", cfg.Kafka.Topic),
		)
	}
	defer publisher.Close()

	tripSvc := trips.NewService(trips.Deps{
		Trips:   st.trips,
		Drivers: st.drivers,
		Finder: matching.NewService(st.drivers, appLogger.Named("matching"), matching.Config{
			RadiusKM:      cfg.Matching.MaxRadiusKM,
			MaxCandidates: cfg.Matching.MaxCandidates,
		}),
		Router: routing.NewService(newRouteProvider(cfg, appLogger), appLogger.Named("routing"), routing.Config{
			Timeout: cfg.Routing.Timeout,
			Retries: cfg.Routing.Retries,
		}),
		Pricing:  pricing.NewCalculator(pricingConfig(cfg.Pricing)),
		Notifier: wsHub,
		Events:   publisher,
		NewRelic: nrApp,
		Logger:   appLogger.Named("trips"),
	})
	defer tripSvc.Close()

	wsHub.SetGateway(handlers.NewSocketGateway(tripSvc))
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		wsHub.Run(ctx)
	}()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize identity verifier", logger.Err(err))
	}

	// Initialize handlers with dependencies
	h := handlers.NewHandlers(tripSvc, wsHub, st.db, redisClient, appLogger,
		cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize)

	// Initialize Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Setup all routes
	routes.SetupRoutes(router, h, verifier, appLogger, nrApp.App())

	appLogger.Info("Routes configured successfully")

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}
	<-hubDone

	appLogger.Info("Server stopped gracefully")
}

func openStores(ctx context.Context, cfg *config.Config, instrumented bool, log *logger.Logger) (*stores, error) {
	if cfg.Store.Backend == "memory" {
		log.Warn("Using the in-memory store, data is lost on restart")
		return &stores{
			trips:    memory.NewTripRepository(),
			drivers:  memory.NewDriverRepository(),
			lastSeen: memory.NewLastSeenStore(),
		}, nil
	}

	db, err := database.NewPostgresDB(ctx, database.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		DBName:       cfg.Database.Name,
		SSLMode:      cfg.Database.SSLMode,
		MaxConns:     cfg.Database.MaxConnections,
		MaxIdle:      cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
		Instrumented: instrumented,
	})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("Connected to PostgreSQL successfully")

	return &stores{
		trips:    postgres.NewTripRepository(db),
		drivers:  postgres.NewDriverRepository(db),
		lastSeen: postgres.NewLastSeenStore(db),
		db:       db,
	}, nil
}

func newRouteProvider(cfg *config.Config, log *logger.Logger) routing.Provider {
	if cfg.Routing.GoogleMapsAPIKey != "" {
		p, err := routing.NewGoogleMapsProvider(cfg.Routing.GoogleMapsAPIKey)
		if err == nil {
			log.Info("Routing through Google Maps")
			return p
		}
		log.Warn("Google Maps client rejected, using straight-line routing", logger.Err(err))
	}
	return routing.NewStraightLineProvider(cfg.Routing.AverageSpeedKMH)
}

func pricingConfig(p config.PricingConfig) pricing.Config {
	return pricing.Config{
		Rates: map[trip.VehicleType]pricing.Rate{
			trip.VehicleMotorbike: {Base: p.Motorbike.Base, PerKilometer: p.Motorbike.PerKilometer},
			trip.VehicleFourSeat:  {Base: p.FourSeat.Base, PerKilometer: p.FourSeat.PerKilometer},
			trip.VehicleSevenSeat: {Base: p.SevenSeat.Base, PerKilometer: p.SevenSeat.PerKilometer},
		},
		DefaultTier: trip.DefaultVehicleType,
	}
}

func newVerifier(ctx context.Context, cfg *config.Config) (identity.Verifier, error) {
	if cfg.Auth.Provider == "firebase" {
		return identity.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.CredentialsFile)
	}
	return identity.NewJWTVerifier(cfg.JWT.Secret), nil
}

func reportRedisPool(ctx context.Context, client *redis.Client, nrApp *monitoring.NewRelicApp) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nrApp.RecordRedisPoolStats(cache.GetClientStats(client))
		}
	}
}
