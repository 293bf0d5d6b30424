package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	amqpclient "kovara/internal/amqp"
	"kovara/internal/config"
	"kovara/internal/log"
	"kovara/internal/providers"
	"kovara/internal/providers/dwolla"
	"kovara/internal/providers/sandbox"
	"kovara/internal/storage"
	"kovara/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     slog.LevelInfo,
		Component: log.ComponentWorker,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var payments providers.PaymentsGateway = sandbox.New()
	if cfg.PaymentsProvider == "dwolla" {
		payments, err = dwolla.NewClient(dwolla.Config{
			BaseURL: cfg.DwollaBaseURL,
			Key:     cfg.DwollaKey,
			Secret:  cfg.DwollaSecret,
		})
		if err != nil {
			logger.Error("Failed to initialize payments client", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("Payments provider initialized", "provider", cfg.PaymentsProvider)

	client, err := amqpclient.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err, "url", cfg.AMQPURL)
		os.Exit(1)
	}
	defer client.Close()

	settlementWorker := worker.NewSettlementWorker(repo, payments, cfg.SettlementBatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		err := client.ConsumeTransferSettlements(ctx, func(msg *amqpclient.TransferSettlementMessage) error {
			return settlementWorker.HandleSettlementMessage(ctx, msg)
		})
		if err != nil {
			logger.Error("Settlement consumer stopped", "error", err)
			cancel()
		}
	}()

	// The sweep backstops lost or delayed messages by polling rows stuck in
	// processing.
	go func() {
		if err := settlementWorker.Run(ctx, cfg.SettlementInterval); err != nil && err != context.Canceled {
			logger.Error("Settlement sweep stopped", "error", err)
			cancel()
		}
	}()

	// Expired sessions accumulate forever otherwise.
	go func() {
		cleanupLog := logger.WithComponent(log.ComponentStorage)
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := repo.DeleteExpiredSessions(ctx, time.Now())
				if err != nil {
					cleanupLog.Error("Session cleanup failed", "error", err)
					continue
				}
				if n > 0 {
					cleanupLog.Info("Expired sessions removed", "count", n)
				}
			}
		}
	}()

	logger.Info("Worker running",
		"queue", cfg.AMQPQueue,
		"sweep_interval", cfg.SettlementInterval,
		"batch_size", cfg.SettlementBatchSize)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Warn("Worker context cancelled")
	}

	cancel()
	logger.Info("Worker stopped")
}
