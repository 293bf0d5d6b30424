package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kovara/internal/amqp"
	"kovara/internal/cache"
	"kovara/internal/config"
	apphttp "kovara/internal/http"
	"kovara/internal/log"
	"kovara/internal/providers"
	"kovara/internal/providers/dwolla"
	"kovara/internal/providers/plaid"
	"kovara/internal/providers/sandbox"
	"kovara/internal/services"
	"kovara/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
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

	// Both providers default to the in-memory sandbox so the server runs end
	// to end with no credentials.
	box := sandbox.New()

	var aggregator providers.AccountAggregator = box
	if cfg.BankProvider == "plaid" {
		aggregator, err = plaid.NewClient(plaid.Config{
			BaseURL:    cfg.PlaidBaseURL,
			ClientID:   cfg.PlaidClientID,
			Secret:     cfg.PlaidSecret,
			ClientName: cfg.PlaidClientName,
		})
		if err != nil {
			logger.Error("Failed to initialize bank data client", "error", err)
			os.Exit(1)
		}
	}
	logger.Info("Bank data provider initialized", "provider", cfg.BankProvider)

	var payments providers.PaymentsGateway = box
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

	// AMQP is optional: without it, transfers settle through the worker's
	// periodic sweep only.
	var publisher services.SettlementPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, settlement messages disabled", "error", err)
	} else {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	institutionCache := cache.NewLRUCache[providers.Institution](cfg.InstitutionCacheSize, cfg.InstitutionCacheTTL)

	users := services.NewUserService(repo, repo, payments, cfg.SessionTTL)
	accounts := services.NewAccountService(repo, repo, aggregator, payments, institutionCache, cfg.PlaidClientName)
	transfers := services.NewTransferService(repo, repo, payments, publisher)
	financials := services.NewFinancialsService(repo, repo)

	srv := apphttp.NewServer(":"+cfg.Port, users, accounts, transfers, financials, cfg.SecureCookies)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting kovara server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
