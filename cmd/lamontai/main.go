package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lamontai/lamontai/api"
	"github.com/lamontai/lamontai/internal/articles"
	"github.com/lamontai/lamontai/internal/billing"
	"github.com/lamontai/lamontai/internal/cache"
	"github.com/lamontai/lamontai/internal/config"
	"github.com/lamontai/lamontai/internal/database"
	"github.com/lamontai/lamontai/internal/generation"
	"github.com/lamontai/lamontai/internal/identity"
	"github.com/lamontai/lamontai/internal/messaging"
	"github.com/lamontai/lamontai/internal/onboarding"
	"github.com/lamontai/lamontai/internal/progress"
	"github.com/lamontai/lamontai/internal/ratelimit"
	"github.com/lamontai/lamontai/pkg/logger"
	"github.com/lamontai/lamontai/pkg/metrics"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Create logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		zapLogger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zapLogger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Redis is optional; the cache and rate limiter degrade to in-process
	// fallbacks without it.
	redisClient, err := database.NewRedisClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		zapLogger.Warn("Redis unavailable, using in-memory fallbacks", zap.Error(err))
		redisClient = nil
	}

	var appCache *cache.Cache
	var planLimiter *ratelimit.PlanLimiter
	if redisClient != nil {
		appCache = cache.New(redisClient, zapLogger, 10*time.Minute)
		planLimiter = ratelimit.NewPlanLimiter(&ratelimit.RedisClient{Client: redisClient}, zapLogger)
	} else {
		appCache = cache.New(nil, zapLogger, 10*time.Minute)
		planLimiter = ratelimit.NewPlanLimiter(nil, zapLogger)
	}

	// Create services
	identitySvc, err := identity.NewService(zapLogger, db, identity.Config{
		JWTSecret:       cfg.JWT.Secret,
		ExpirationHours: cfg.JWT.ExpirationHours,
		RefreshSecret:   cfg.JWT.RefreshSecret,
		RefreshExpHours: cfg.JWT.RefreshExpHours,
	})
	if err != nil {
		zapLogger.Fatal("Failed to create identity service", zap.Error(err))
	}

	billingSvc, err := billing.NewService(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create billing service", zap.Error(err))
	}

	onboardingSvc, err := onboarding.NewService(zapLogger, db, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		zapLogger.Fatal("Failed to create onboarding service", zap.Error(err))
	}

	completer := generation.NewClient(generation.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, zapLogger)

	var publisher messaging.Publisher = messaging.NoopPublisher{}
	if cfg.Kafka.EnableEvents {
		publisher = messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger)
	}

	hub := progress.NewHub(zapLogger)

	articleSvc, err := articles.NewService(zapLogger, db, completer, billingSvc, publisher, hub, articles.Config{
		Workers:   cfg.Generation.Workers,
		QueueSize: cfg.Generation.QueueSize,
	})
	if err != nil {
		zapLogger.Fatal("Failed to create article service", zap.Error(err))
	}

	// Readiness probes the hard dependencies
	ready := func(ctx context.Context) map[string]string {
		failures := map[string]string{}
		if sqlDB, err := db.DB(); err != nil {
			failures["postgres"] = err.Error()
		} else if err := sqlDB.PingContext(ctx); err != nil {
			failures["postgres"] = err.Error()
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				failures["redis"] = err.Error()
			}
		}
		return failures
	}

	// Schedule DB pool metrics collection every 30s
	tickerDB := time.NewTicker(30 * time.Second)
	go func() {
		for range tickerDB.C {
			if sqlDB, err := db.DB(); err == nil {
				stats := sqlDB.Stats()
				metrics.DBOpenConns.WithLabelValues("postgres").Set(float64(stats.OpenConnections))
				metrics.DBIdleConns.WithLabelValues("postgres").Set(float64(stats.Idle))
				metrics.DBInUseConns.WithLabelValues("postgres").Set(float64(stats.InUse))
			}
		}
	}()

	// Scheduled database backups
	backupCtx, cancelBackups := context.WithCancel(context.Background())
	defer cancelBackups()
	if cfg.Backup.Enabled {
		backupMgr := database.NewBackupManager(cfg.Database.DSN, zapLogger, database.BackupConfig{
			Dir:       cfg.Backup.Dir,
			Interval:  cfg.Backup.Interval,
			Retention: cfg.Backup.Retention,
		})
		go backupMgr.Run(backupCtx)
	}

	// Create API server
	apiServer := api.NewServer(zapLogger, cfg.Server, api.Deps{
		Identity:   identitySvc,
		Billing:    billingSvc,
		Onboarding: onboardingSvc,
		Articles:   articleSvc,
		Limiter:    planLimiter,
		Cache:      appCache,
		Hub:        hub,
		Ready:      ready,
	})

	// Start services
	if err := identitySvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start identity service", zap.Error(err))
	}
	if err := billingSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start billing service", zap.Error(err))
	}
	if err := onboardingSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start onboarding service", zap.Error(err))
	}
	if err := articleSvc.Start(); err != nil {
		zapLogger.Fatal("Failed to start article service", zap.Error(err))
	}

	// Start HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := apiServer.Start(addr); err != nil {
			zapLogger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt to shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down API server", zap.Error(err))
	}

	// Stop services; aborted generations are failed now and re-queued work is
	// recovered on the next start
	if err := articleSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop article service", zap.Error(err))
	}
	if err := onboardingSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop onboarding service", zap.Error(err))
	}
	if err := billingSvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop billing service", zap.Error(err))
	}
	if err := identitySvc.Stop(); err != nil {
		zapLogger.Error("Failed to stop identity service", zap.Error(err))
	}
	if err := publisher.Close(); err != nil {
		zapLogger.Error("Failed to close event publisher", zap.Error(err))
	}

	zapLogger.Info("Server exited properly")
}
