// Package main is the entry point for the Botify ledger service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"botify/internal/api"
	"botify/internal/api/handler"
	"botify/internal/bot"
	"botify/internal/config"
	"botify/internal/pkg/db"
	"botify/internal/pkg/dedup"
	"botify/internal/pkg/lock"
	"botify/internal/repository"
	"botify/internal/service"
	"botify/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log)
	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool, cfg.Ledger.OfficialUserID); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	store := repository.NewStore(dbPool.Pool)
	runner := repository.NewTxRunner(dbPool.Pool, cfg.Ledger.MaxTxRetries)
	keyLock := lock.NewKeyLock()

	files, closeFiles := openFileStore(ctx, cfg.Storage)
	defer closeFiles()

	checks := map[string]handler.Check{"postgres": dbPool.HealthCheck}

	var deduper *dedup.Checker
	if cfg.Redis.Addr != "" {
		rdb, err := dedup.Connect(ctx, dedup.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		deduper = dedup.NewChecker(rdb, cfg.Redis.DedupTTL)
		checks["redis"] = deduper.Ping
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Request de-duplication enabled")
	} else {
		deduper = dedup.NewChecker(nil, 0)
		log.Warn().Msg("Redis not configured, request de-duplication disabled")
	}

	// Initialize services
	ledgerCfg := service.LedgerConfig{
		MonetizationThreshold: cfg.Ledger.MonetizationThreshold,
		OfficialUserID:        cfg.Ledger.OfficialUserID,
		SignupBonus:           cfg.Ledger.SignupBonus,
	}
	ledgerService := service.NewLedgerService(store, runner, files, keyLock, ledgerCfg)
	catalogService := service.NewCatalogService(store, runner, files, keyLock, ledgerCfg)
	authService := service.NewAuthService(store.Users, ledgerService, cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL)
	cleanupService := service.NewCleanupService(store.FileCleanup, files, cfg.Cleanup.BatchSize, cfg.Cleanup.MaxAttempts)

	go cleanupService.Run(ctx, cfg.Cleanup.Interval)

	// HTTP API
	router := api.NewRouter(api.Deps{
		Auth:       authService,
		Ledger:     ledgerService,
		Catalog:    catalogService,
		Dedup:      deduper,
		Checks:     checks,
		JWTSecret:  cfg.HTTP.JWTSecret,
		Logger:     log.Logger,
		Registerer: prometheus.DefaultRegisterer,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	// Telegram front end
	var telegramBot *bot.Bot
	if cfg.Telegram.Token != "" {
		telegramBot, err = bot.New(&bot.Dependencies{
			Config:  cfg,
			Ledger:  ledgerService,
			Catalog: catalogService,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create Telegram bot")
		}
		go telegramBot.Start()
	} else {
		log.Info().Msg("Telegram token not set, Telegram front end disabled")
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	if telegramBot != nil {
		telegramBot.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Stopped gracefully")
}

func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// openFileStore returns the bot package store. Without a bucket, uploads
// are rejected and deletions are no-ops.
func openFileStore(ctx context.Context, cfg config.StorageConfig) (storage.FileStore, func()) {
	if cfg.Bucket == "" {
		log.Warn().Msg("Storage bucket not configured, package uploads disabled")
		return storage.Disabled{}, func() {}
	}

	client, err := storage.NewGCSClient(ctx, cfg.CredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	gcs := storage.NewGCS(client, cfg.Bucket, cfg.PublicBaseURL)
	log.Info().Str("bucket", cfg.Bucket).Msg("Package storage enabled")

	return gcs, func() {
		if err := gcs.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close storage client")
		}
	}
}
