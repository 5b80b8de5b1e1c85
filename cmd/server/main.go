package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ledgerapp "github.com/varejo/backend/internal/application/ledger"
	"github.com/varejo/backend/internal/domain/shared"
	"github.com/varejo/backend/internal/infrastructure/cache"
	"github.com/varejo/backend/internal/infrastructure/config"
	"github.com/varejo/backend/internal/infrastructure/logger"
	"github.com/varejo/backend/internal/infrastructure/persistence"
	"github.com/varejo/backend/internal/infrastructure/scheduler"
	"github.com/varejo/backend/internal/interfaces/http/handler"
	"github.com/varejo/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.Log)
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Varejo Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database with GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Correlation locker: Redis when configured, in-process otherwise
	var locker shared.CorrelationLocker
	if cfg.Sync.UseRedisLock {
		redisLocker, err := cache.NewRedisCorrelationLocker(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, cfg.Sync.LockTTL)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisLocker.Close(); err != nil {
				log.Error("Error closing Redis", zap.Error(err))
			}
		}()
		locker = redisLocker
		log.Info("Using Redis correlation locks")
	} else {
		locker = cache.NewInMemoryCorrelationLocker()
	}

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	transactionRepo := persistence.NewGormTransactionRepository(db.DB)
	creditAccountRepo := persistence.NewGormCreditAccountRepository(db.DB)

	// Application services
	processor := ledgerapp.NewEventProcessor(orderRepo, transactionRepo, creditAccountRepo, locker, log)
	scanner := ledgerapp.NewDriftScanner(orderRepo, transactionRepo, creditAccountRepo, log)
	remediator := ledgerapp.NewRemediator(processor, creditAccountRepo, log)

	// Reconciliation scheduler
	sched, err := scheduler.NewReconciliationScheduler(
		scheduler.ReconciliationSchedulerConfig{
			Enabled:    cfg.Sync.Enabled,
			Interval:   cfg.Sync.Interval,
			JobTimeout: cfg.Sync.JobTimeout,
		},
		scanner, processor, remediator, nil, log,
	)
	if err != nil {
		log.Fatal("Invalid scheduler configuration", zap.Error(err))
	}

	if err := sched.Start(context.Background()); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// HTTP engine and middleware
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler.SetupValidator()
	engine := gin.New()
	engine.Use(logger.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	// Routes
	r := router.NewRouter(engine)
	r.Register(handler.NewSyncHandler(processor, scanner, sched))
	r.Register(handler.NewHealthHandler(db))
	r.Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := sched.Stop(ctx); err != nil {
		log.Error("Scheduler did not stop cleanly", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
