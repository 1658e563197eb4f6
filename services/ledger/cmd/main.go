package main

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corebank/ledger-core/pkg"
	"github.com/corebank/ledger-core/pkg/cache"
	"github.com/corebank/ledger-core/pkg/database"
	"github.com/corebank/ledger-core/pkg/repositories"
	"github.com/corebank/ledger-core/services/ledger/configs"
	"github.com/corebank/ledger-core/services/ledger/internal/console"
	"github.com/corebank/ledger-core/services/ledger/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// main initializes and runs the ledger service.
func main() {
	// Initialize global logger with default configuration
	pkg.InitLogger()
	logger := pkg.Logger
	defer logger.Sync() // Ensure all buffered logs are flushed on exit

	// Load configuration from environment and optional config file
	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	// Initialize PostgreSQL database connection
	db, disconnect, err := database.New(context.Background(), logger, database.Config{
		PrimaryDSN: cfg.PrimaryDbAddr,
		ReadDSNs:   []string{cfg.ReadDbAddr},
		MaxConns:   cfg.MaxDbCons,
		MinConns:   cfg.MinDbCons,
	})
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer disconnect() // Ensure database connections are closed on shutdown

	// Apply schema migrations against the primary
	if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Create a context that can be canceled for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis client backing PIN grants and attempt counters
	redisClient, redisCloser, err := cache.New(ctx, cache.Config{
		Addr: cfg.RedisAddr,
	})
	if err != nil {
		logger.Fatal("Failed to initialize redis", zap.Error(err))
	}
	logger.Info("Redis client initialized successfully")

	// Wire repositories and the operations engine
	accountRepo := repositories.NewAccountRepository()
	txnRepo := repositories.NewTransactionRepository()
	cardRepo := repositories.NewCardRepository()
	ledgerService := services.NewLedgerService(logger, cfg, db, accountRepo, txnRepo, cardRepo)
	pinService := services.NewPinService(logger, cfg, db, accountRepo,
		services.NewRedisGrantStore(redisClient),
		services.NewPinAttemptLimiter(redisClient, cfg.PinAttemptRate, cfg.PinAttemptBurst, time.Minute, logger))

	// Expose Prometheus metrics in the background
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	go func() {
		logger.Info("Metrics listener starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics listener stopped", zap.Error(err))
		}
	}()

	// Run the operator console until it exits or a signal arrives
	done := make(chan struct{})
	go func() {
		defer close(done)
		console.New(ledgerService, pinService, logger, bufio.NewReader(os.Stdin), os.Stdout).Run(ctx)
	}()

	// Handle graceful shutdown on SIGINT or SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case osSignal := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", osSignal.String()))
	case <-done:
		logger.Info("Console session ended")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel() // Trigger context cancellation
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Metrics listener shutdown failed", zap.Error(err))
	}
	redisCloser()
	logger.Info("Service shutdown completed successfully")
}
