package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"flipswitch/internal/config"
	"flipswitch/internal/constants"
	"flipswitch/internal/flags"
	"flipswitch/internal/logger"
	"flipswitch/internal/pubsub"
	"flipswitch/internal/realtime"
	"flipswitch/pkg/bootstrap"
	"flipswitch/pkg/health"
	"flipswitch/pkg/metrics"
	"flipswitch/pkg/middleware"
	"flipswitch/pkg/migrations"
	"flipswitch/pkg/ratelimit"
)

type App struct {
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector
	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client
	publisher   pubsub.Publisher
	subscriber  pubsub.Subscriber
	hub         *realtime.Hub
	server      *http.Server
	router      *gin.Engine
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initBroker(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.initServer()
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		if err := migrations.RunPostgres(db, "migrations/postgres"); err != nil {
			return err
		}
		a.logger.Info("Migrations applied")
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		brokerType := a.config.Broker.Type
		if brokerType == "" || brokerType == "redis" {
			return err
		}
		a.logger.WarnwCtx(ctx, "Redis connection failed, serving without cache", "error", err)
	} else {
		a.redisClient = rdb
	}

	if a.config.Database.MongoDB.URI != "" {
		initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		mongoClient, err := a.dbConnector.InitMongoDB(initCtx)
		if err != nil {
			a.logger.WarnwCtx(initCtx, "MongoDB connection failed, continuing without MongoDB", "error", err)
		} else if mongoClient != nil {
			a.mongoClient = mongoClient
			dbName := a.config.Database.MongoDB.Database
			if dbName == "" {
				dbName = constants.DefaultMongoDBName
			}
			if err := migrations.EnsureAuditCollection(initCtx, mongoClient.Database(dbName)); err != nil {
				a.logger.WarnwCtx(initCtx, "Failed to ensure audit collection", "error", err)
			}
		}
	}

	return nil
}

func (a *App) initBroker() error {
	publisher, subscriber, err := pubsub.New(a.config.Broker, a.redisClient, a.logger)
	if err != nil {
		return err
	}
	a.publisher = publisher
	a.subscriber = subscriber
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.Identity())
	router.Use(middleware.LoggerMiddleware(a.logger))

	if a.config.RateLimit.Enabled {
		rlConfig := ratelimit.DefaultConfig()
		if a.config.RateLimit.RPS > 0 {
			rlConfig.RPS = a.config.RateLimit.RPS
		}
		if a.config.RateLimit.Burst > 0 {
			rlConfig.Burst = a.config.RateLimit.Burst
		}
		router.Use(ratelimit.Middleware(rlConfig))
		a.logger.Infow("Rate limiting enabled", "rps", rlConfig.RPS, "burst", rlConfig.Burst)
	}

	store := flags.NewPostgresStore(a.db)

	var cache flags.Cache = flags.NopCache{}
	if a.redisClient != nil {
		cache = flags.NewBreakerCache(flags.NewRedisCache(a.redisClient))
	}
	repo := flags.NewCachedRepository(store, cache, a.config.Cache.TTL(), a.logger)

	var auditStore flags.AuditStore = store
	if a.config.Audit.Backend == "mongodb" && a.mongoClient != nil {
		dbName := a.config.Database.MongoDB.Database
		if dbName == "" {
			dbName = constants.DefaultMongoDBName
		}
		auditStore = flags.NewMongoAuditStore(a.mongoClient.Database(dbName))
		a.logger.Infow("Audit entries routed to MongoDB", "database", dbName)
	}

	svc := flags.NewService(repo, auditStore, a.logger,
		flags.WithChangeEvents(flags.NewChangeEventPublisher(a.publisher)),
	)

	flagHandler := flags.NewHandler(svc, a.logger)
	flagHandler.RegisterRoutes(router)

	a.hub = realtime.NewHub(a.subscriber, a.logger)
	realtimeHandler := realtime.NewHandler(a.hub, a.logger)
	realtimeHandler.RegisterRoutes(router)

	metrics.RegisterFlagMetrics()
	metrics.RegisterStreamMetrics()
	metrics.RegisterHTTPMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.RegisterOptional(health.NewMongoDBChecker(a.mongoClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.router = router
	return nil
}

func (a *App) initServer() {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeout(),
		WriteTimeout: a.config.Server.WriteTimeout(),
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(gCtx, "Server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown(gCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.hub != nil {
		a.hub.Close()
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher close error: %w", err))
		}
	}
	if a.subscriber != nil {
		if err := a.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("subscriber close error: %w", err))
		}
	}

	dbErrs := a.dbConnector.ShutdownDatabases(shutdownCtx, a.redisClient, a.db, a.mongoClient)
	errs = append(errs, dbErrs...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "Server exited successfully")
	return nil
}
