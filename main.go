// Package main provides the main entry point for the Simurgh voice-call campaign platform
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/simurgh-io/simurgh/app/handlers"
	"github.com/simurgh-io/simurgh/app/middleware"
	"github.com/simurgh-io/simurgh/app/router"
	"github.com/simurgh-io/simurgh/app/scheduler"
	"github.com/simurgh-io/simurgh/app/services"
	businessflow "github.com/simurgh-io/simurgh/business_flow"
	"github.com/simurgh-io/simurgh/config"
	"github.com/simurgh-io/simurgh/repository"
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
	log.Println("Starting Simurgh application...")

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
	if !cfg.Enabled {
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

// initializeAppointmentNotifier builds the appointment notifier from email configuration
func initializeAppointmentNotifier(cfg *config.ProductionConfig) services.AppointmentNotifier {
	var emailProvider services.EmailProvider
	if cfg.Email.Host != "" {
		emailProvider = services.NewSMTPEmailProvider(
			cfg.Email.Host,
			cfg.Email.Port,
			cfg.Email.Username,
			cfg.Email.Password,
			cfg.Email.FromEmail,
			cfg.Email.FromName,
		)
	} else {
		// No relay configured: booked appointments still reach the log
		emailProvider = services.NewMockEmailProvider()
	}

	recipient := cfg.Email.AppointmentRecipient
	if recipient == "" {
		recipient = cfg.Email.FromEmail
	}

	return services.NewEmailAppointmentNotifier(emailProvider, recipient)
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

	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	callRepo := repository.NewCallRepository(db)
	transcriptRepo := repository.NewTranscriptRepository(db)
	analyticsRepo := repository.NewCallAnalyticsRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	campaignContactRepo := repository.NewCampaignContactRepository(db)
	contactRepo := repository.NewContactRepository(db)
	webhookLogRepo := repository.NewWebhookLogRepository(db)
	transactor := repository.NewGormTransactor(db)

	// Initialize services
	vapiClient := services.NewVapiClient(&cfg.Vapi)
	notifier := initializeAppointmentNotifier(cfg)

	var realtime services.RealtimePublisher
	if rc != nil {
		realtime = services.NewRedisRealtimePublisher(rc, cfg.Cache.RedisPrefix+"realtime")
	} else {
		realtime = services.NewNoopRealtimePublisher()
	}

	// Initialize token service
	tokenService, err := services.NewTokenService(
		cfg.JWT.SecretKey,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	// Initialize flows
	lifecycleFlow := businessflow.NewCallLifecycleFlow(
		callRepo,
		transcriptRepo,
		analyticsRepo,
		campaignRepo,
		campaignContactRepo,
		contactRepo,
		transactor,
		realtime,
		notifier,
	)

	webhookFlow := businessflow.NewWebhookFlow(
		callRepo,
		contactRepo,
		campaignRepo,
		webhookLogRepo,
		lifecycleFlow,
		vapiClient,
		realtime,
		rc,
		cfg.Vapi.DefaultAssistantID,
	)

	syncFlow := businessflow.NewSyncFlow(
		callRepo,
		vapiClient,
		lifecycleFlow,
		cfg.Scheduler.GraceWindow,
	)

	dispatchFlow := businessflow.NewDispatchFlow(
		campaignRepo,
		campaignContactRepo,
		contactRepo,
		callRepo,
		vapiClient,
		realtime,
		cfg.Dispatcher.ChunkDelay,
	)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(webhookFlow)
	callHandler := handlers.NewCallHandler(syncFlow, dispatchFlow)

	// Initialize auth middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	// Initialize router
	appRouter := router.NewFiberRouter(
		webhookHandler,
		callHandler,
		authMiddleware,
		cfg.Vapi.WebhookSecret,
		cfg.Security.AllowedOrigins,
	)

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewReconciliationScheduler(syncFlow, cfg.Scheduler.SweepInterval)
		stopScheduler := sched.Start(context.Background())
		stopFuncs = append(stopFuncs, stopScheduler)

		// SIGHUP requests an immediate out-of-schedule sweep
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		go func() {
			for range hup {
				log.Println("SIGHUP received, triggering reconciliation sweep")
				sched.TriggerSweep()
			}
		}()
		stopFuncs = append(stopFuncs, func() {
			signal.Stop(hup)
			close(hup)
		})
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
