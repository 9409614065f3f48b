// Package main provides the main entry point for the Chatrasa messaging orchestration service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatrasa/chatrasa/app/handlers"
	"github.com/chatrasa/chatrasa/app/middleware"
	"github.com/chatrasa/chatrasa/app/router"
	"github.com/chatrasa/chatrasa/app/scheduler"
	"github.com/chatrasa/chatrasa/app/services"
	businessflow "github.com/chatrasa/chatrasa/business_flow"
	"github.com/chatrasa/chatrasa/config"
	"github.com/chatrasa/chatrasa/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting Chatrasa application...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	// Event fan-out goes through Redis pub/sub when the cache is up;
	// otherwise events are dropped silently
	var events services.EventPublisher
	if rc != nil {
		events = services.NewRedisEventPublisher(rc, cfg.Cache.EventChannelPrefix)
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))
	} else {
		events = services.NewNoopEventPublisher()
	}

	// Initialize repositories
	vendorRepo := repository.NewVendorRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	workflowSessionRepo := repository.NewWorkflowSessionRepository(db)
	flowRepo := repository.NewFlowRepository(db)
	flowResponseRepo := repository.NewFlowResponseRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	// Initialize services
	tokenService, err := services.NewTokenService(&cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	credentialCipher, err := services.NewCredentialCipher(&cfg.Crypto)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	gateway := services.NewGatewayClient(&cfg.Gateway)
	flowCrypto := services.NewFlowCrypto()
	mediaStorage := services.NewLocalMediaStorage(&cfg.Storage)

	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Initialize flows
	sender := businessflow.NewMessageSender(
		gateway,
		credentialCipher,
		messageRepo,
		conversationRepo,
		flowResponseRepo,
		events,
	)

	engine := businessflow.NewWorkflowEngine(
		db,
		workflowRepo,
		workflowSessionRepo,
		flowRepo,
		activityRepo,
		sender,
		events,
		500*time.Millisecond,
	)

	webhookFlow := businessflow.NewWebhookFlow(
		cfg.Gateway.VerifyToken,
		vendorRepo,
		leadRepo,
		conversationRepo,
		messageRepo,
		activityRepo,
		gateway,
		mediaStorage,
		sender,
		engine,
		events,
	)

	flowExchangeFlow := businessflow.NewFlowExchangeFlow(
		flowRepo,
		flowResponseRepo,
		leadRepo,
		conversationRepo,
		activityRepo,
		credentialCipher,
		flowCrypto,
		events,
	)

	vendorFlow := businessflow.NewVendorFlow(
		vendorRepo,
		flowRepo,
		activityRepo,
		credentialCipher,
		flowCrypto,
		tokenService,
		&cfg.Crypto,
	)

	campaignFlow := businessflow.NewCampaignFlow(
		campaignRepo,
		messageRepo,
		leadRepo,
		conversationRepo,
		activityRepo,
		db,
	)

	workflowFlow := businessflow.NewWorkflowFlow(workflowRepo)

	conversationFlow := businessflow.NewConversationFlow(conversationRepo, messageRepo)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(webhookFlow)
	flowHandler := handlers.NewFlowHandler(flowExchangeFlow)
	vendorHandler := handlers.NewVendorHandler(vendorFlow)
	campaignHandler := handlers.NewCampaignHandler(campaignFlow)
	workflowHandler := handlers.NewWorkflowHandler(workflowFlow)
	conversationHandler := handlers.NewConversationHandler(conversationFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(
		webhookHandler,
		flowHandler,
		vendorHandler,
		campaignHandler,
		workflowHandler,
		conversationHandler,
		authMiddleware,
	)

	if cfg.Worker.Enabled {
		worker := scheduler.NewDeliveryWorker(
			messageRepo,
			vendorRepo,
			conversationRepo,
			leadRepo,
			campaignRepo,
			gateway,
			credentialCipher,
			events,
			cfg.Worker,
		)
		stopWorker := worker.Start(context.Background())
		stopFuncs = append(stopFuncs, stopWorker)
	}

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
