package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payvia/config"
	httpHandler "payvia/internal/adapter/http/handler"
	"payvia/internal/adapter/provider"
	memStorage "payvia/internal/adapter/storage/memory"
	pgStorage "payvia/internal/adapter/storage/postgres"
	redisStorage "payvia/internal/adapter/storage/redis"
	"payvia/internal/core/ports"
	"payvia/internal/service"
	"payvia/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Msg("Starting Payvia wallet core")

	ctx := context.Background()

	// Initialize stores per configured driver
	var (
		ledgerStore     ports.LedgerStore
		settlementStore ports.SettlementStore
		userRepo        ports.UserRepository
		healthCheckers  []ports.HealthChecker
	)
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		ledgerStore = pgStorage.NewLedgerStore(pool)
		settlementStore = pgStorage.NewSettlementStore(pool)
		userRepo = pgStorage.NewUserRepo(pool)
		healthCheckers = append(healthCheckers, pgStorage.NewHealthCheck(pool))
	case "memory":
		log.Warn().Msg("Using in-memory storage; all state is lost on restart")
		ledgerStore = memStorage.NewLedgerStore()
		settlementStore = memStorage.NewSettlementStore()
		userRepo = memStorage.NewUserRepository()
	default:
		log.Fatal().Str("driver", cfg.Storage.Driver).Msg("Unknown storage driver")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))

	dispatchCache := redisStorage.NewDispatchCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize auth primitives
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize quoting
	terms, err := service.ParseChannelTerms(cfg.Channels)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid channel configuration")
	}
	rates, err := service.NewStaticRateSourceFromConfig(cfg.Rates)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid rate configuration")
	}
	quoteSvc := service.NewQuoteService(terms, rates)

	// Initialize provider adapters
	registry := provider.NewRegistry(
		provider.NewMTNAdapter(cfg.Providers.MTN, log),
		provider.NewAirtelAdapter(cfg.Providers.Airtel, log),
		provider.NewBankAdapter(cfg.Providers.Bank, log),
	)
	log.Info().Strs("channels", registry.ChannelIDs()).Msg("Provider adapters registered")

	// Initialize business services
	ledgerSvc := service.NewLedgerService(ledgerStore, log)
	settlementSvc := service.NewSettlementService(
		settlementStore,
		ledgerSvc,
		quoteSvc,
		registry,
		dispatchCache,
		cfg.Settlement.DispatchMaxRetries,
		log,
	)
	historySvc := service.NewHistoryService(ledgerStore, settlementStore, log)
	userSvc := service.NewUserService(userRepo, ledgerSvc, hashSvc, tokenSvc, log)

	// Background status poller
	poller := service.NewStatusPoller(settlementStore, settlementSvc, service.PollerOptions{
		Interval:    cfg.Settlement.PollInterval,
		BaseDelay:   cfg.Settlement.PollBaseDelay,
		MaxDelay:    cfg.Settlement.PollMaxDelay,
		MaxAttempts: cfg.Settlement.PollMaxAttempts,
	}, log)
	pollerCtx, stopPoller := context.WithCancel(ctx)
	defer stopPoller()
	go poller.Run(pollerCtx)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		UserSvc:        userSvc,
		LedgerSvc:      ledgerSvc,
		SettlementSvc:  settlementSvc,
		QuoteSvc:       quoteSvc,
		HistorySvc:     historySvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopPoller()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
