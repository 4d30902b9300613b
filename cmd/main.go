package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"logistics-service/internal/carriers"
	"logistics-service/internal/config"
	"logistics-service/internal/events"
	"logistics-service/internal/handlers"
	"logistics-service/internal/middleware"
	"logistics-service/internal/models"
	"logistics-service/internal/repository"
	"logistics-service/internal/services"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		log.SetLevel(level)
	}
	log.Info("Starting Logistics Service...")

	// Connect to database
	db, err := connectDatabase(cfg.GetDatabaseDSN(), cfg.Server.Env)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	log.Info("Database connected successfully")

	if err := runMigrations(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}
	log.Info("Database migrations completed")

	// Redis is optional; without it snapshots are not cached and rate limiting is in-memory
	redisClient := connectRedis(cfg.RedisURL, log)

	var publisher events.EventPublisher = events.NoopPublisher{}
	var eventBus handlers.ConnectionChecker
	if cfg.NATSURL != "" {
		eventsPublisher, err := events.NewPublisher(cfg.NATSURL, log)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize events publisher, events won't be published")
			eventBus = events.NoopPublisher{}
		} else {
			defer eventsPublisher.Close()
			publisher = eventsPublisher
			eventBus = eventsPublisher
			log.Info("NATS events publisher initialized")
		}
	} else {
		log.Info("NATS_URL not configured, events disabled")
	}

	entry := logrus.NewEntry(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tenant courier passwords live in GCP Secret Manager when enabled
	var vault services.PasswordVault
	if cfg.Secrets.UseSecretManager {
		secretClient, err := secrets.NewGCPSecretManagerClient(ctx, secrets.GCPSecretManagerConfig{
			ProjectID: cfg.Secrets.GCPProjectID,
			CacheTTL:  cfg.Secrets.CacheTTL,
		})
		if err != nil {
			log.WithError(err).Warn("Failed to initialize secret manager, tenant passwords stay in the database")
		} else {
			defer secretClient.Close()
			vault = services.NewSecretManagerVault(secretClient, entry)
			log.WithField("project_id", cfg.Secrets.GCPProjectID).Info("Secret manager initialized")
		}
	}

	// Repositories
	orderRepo := repository.NewOrderRepository(db)
	accountRepo := repository.NewCourierAccountRepository(db)

	// Courier clients, one per account configuration
	courierFactory := carriers.NewCourierFactory(cfg.Courier, services.NewResolvingAccountStore(accountRepo, vault), entry)
	if !cfg.Courier.HasCredentials() {
		log.Warn("No platform Xpressbees account configured; only tenants with their own account can ship")
	}

	var cache services.SnapshotCache
	if redisClient != nil {
		cache = services.NewRedisSnapshotCache(redisClient, cfg.Tracking.CacheTTL, entry)
	}

	shippingService := services.NewShippingService(courierFactory, orderRepo, publisher, cache, entry)
	accountService := services.NewCourierAccountService(accountRepo, courierFactory, entry)
	if vault != nil {
		accountService.WithVault(vault)
	}

	pollerDone := make(chan struct{})
	if cfg.Tracking.Enabled {
		poller := services.NewTrackingPoller(shippingService, orderRepo, courierFactory, services.PollerConfig{
			Interval:    cfg.Tracking.Interval,
			BatchSize:   cfg.Tracking.BatchSize,
			Concurrency: cfg.Tracking.Concurrency,
		}, entry)
		go func() {
			defer close(pollerDone)
			poller.Run(ctx)
		}()
	} else {
		close(pollerDone)
		log.Info("Tracking poller disabled")
	}

	shippingHandler := handlers.NewShippingHandler(shippingService)
	if eventBus != nil {
		shippingHandler.WithEventBus(eventBus)
	}
	accountHandler := handlers.NewCourierAccountHandler(accountService)

	rbacMw := rbac.NewMiddlewareWithURL(cfg.RBACURL, nil)

	router := setupRouter(shippingHandler, accountHandler, cfg, rbacMw, redisClient, entry)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": srv.Addr, "environment": cfg.Server.Env}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	cancel()
	<-pollerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server shutdown complete")
}

// connectDatabase establishes a connection to the PostgreSQL database
func connectDatabase(databaseURL, env string) (*gorm.DB, error) {
	logLevel := logger.Info
	if env == "production" {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Warehouse{},
		&models.Order{},
		&models.OrderItem{},
		&models.TrackingEvent{},
		&models.CourierAccount{},
	)
}

// connectRedis returns nil when Redis is not configured or unreachable
func connectRedis(redisURL string, log *logrus.Logger) *redis.Client {
	if redisURL == "" {
		log.Info("REDIS_URL not configured, caching disabled")
		return nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Warn("Failed to parse Redis URL, continuing without Redis")
		return nil
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Failed to connect to Redis, continuing without Redis")
		_ = client.Close()
		return nil
	}
	log.Info("Connected to Redis")
	return client
}

// setupRouter configures the Gin router with routes and middleware
func setupRouter(
	shippingHandler *handlers.ShippingHandler,
	accountHandler *handlers.CourierAccountHandler,
	cfg *config.Config,
	rbacMw *rbac.Middleware,
	redisClient *redis.Client,
	log *logrus.Entry,
) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gosharedmw.SecurityHeaders())

	// Rate limiting middleware (uses Redis for distributed rate limiting)
	if redisClient != nil {
		router.Use(gosharedmw.RedisRateLimitMiddlewareWithProfile(redisClient, "standard"))
	} else {
		router.Use(gosharedmw.RateLimit())
	}

	httpLog := log.WithField("component", "http")
	router.Use(middleware.LoggingMiddleware(httpLog))
	router.Use(middleware.CORS())

	// IstioAuth must come before TenantMiddleware and RBAC middleware
	router.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
		RequireAuth:        false,
		AllowLegacyHeaders: true,
		SkipPaths: []string{
			"/health",
		},
	}))

	router.Use(middleware.TenantMiddleware())
	router.Use(middleware.ErrorHandler(httpLog))

	router.GET("/health", shippingHandler.HealthCheck)

	api := router.Group("/api")
	api.Use(middleware.RequireTenant())
	{
		// Read operations
		api.POST("/rates", rbacMw.RequirePermission(rbac.PermissionShippingRead), shippingHandler.GetRates)
		api.GET("/couriers", rbacMw.RequirePermission(rbac.PermissionShippingRead), shippingHandler.ListCouriers)
		api.GET("/track/:awb", rbacMw.RequirePermission(rbac.PermissionShippingRead), shippingHandler.TrackShipment)

		// Booking
		api.POST("/orders/:id/shipment", rbacMw.RequirePermission(rbac.PermissionShippingCreate), shippingHandler.BookShipment)
		api.POST("/manifests", rbacMw.RequirePermission(rbac.PermissionShippingCreate), shippingHandler.CreateManifest)

		// Updates
		api.POST("/orders/:id/cancel", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), shippingHandler.CancelShipment)
		api.POST("/orders/:id/track", rbacMw.RequirePermission(rbac.PermissionShippingUpdate), shippingHandler.RefreshTracking)

		// Courier account
		api.GET("/courier-account", rbacMw.RequirePermission(rbac.PermissionShippingManage), accountHandler.GetAccount)
		api.PUT("/courier-account", rbacMw.RequirePermission(rbac.PermissionShippingManage), accountHandler.UpsertAccount)
		api.POST("/courier-account/test", rbacMw.RequirePermission(rbac.PermissionShippingManage), accountHandler.TestConnection)
	}

	return router
}
