package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vestra/chain_service/internal/adapters/chainrpc"
	"github.com/vestra/chain_service/internal/api/handlers"
	"github.com/vestra/chain_service/internal/api/routes"
	"github.com/vestra/chain_service/internal/domain/services/crediting"
	"github.com/vestra/chain_service/internal/domain/services/ingest"
	"github.com/vestra/chain_service/internal/domain/services/reconciliation"
	"github.com/vestra/chain_service/internal/domain/services/withdrawal"
	"github.com/vestra/chain_service/internal/infrastructure/cache"
	"github.com/vestra/chain_service/internal/infrastructure/config"
	"github.com/vestra/chain_service/internal/infrastructure/database"
	"github.com/vestra/chain_service/internal/infrastructure/repositories"
	"github.com/vestra/chain_service/internal/workers/auto_withdrawal"
	creditingworker "github.com/vestra/chain_service/internal/workers/crediting"
	"github.com/vestra/chain_service/internal/workers/deposit_scanner"
	"github.com/vestra/chain_service/pkg/graceful"
	"github.com/vestra/chain_service/pkg/logger"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	log.Info("Starting chain service",
		"version", version,
		"environment", cfg.Environment,
		"chain", cfg.Chain.Name)

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		log.Warn("Redis unavailable, worker status will not be published", "error", err)
		redisClient = nil
	}

	// Repositories
	addressRepo := repositories.NewMonitoredAddressRepository(db)
	eventRepo := repositories.NewDepositEventRepository(db)
	scanLogRepo := repositories.NewScanLogRepository(db)
	checkpointRepo := repositories.NewCheckpointRepository(db)
	balanceRepo := repositories.NewBalanceRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)

	// Chain adapters
	chainClient := chainrpc.NewClient(chainrpc.Config{
		Chain:         cfg.Chain.Name,
		RPCURL:        cfg.Chain.RPCURL,
		TokenContract: cfg.Chain.TokenContract,
		TokenDecimals: cfg.Chain.TokenDecimals,
		Timeout:       time.Duration(cfg.Chain.RPCTimeout) * time.Second,
	}, log)

	signerClient := chainrpc.NewSignerClient(chainrpc.SignerConfig{
		URL:           cfg.Withdrawal.SignerURL,
		TokenContract: cfg.Withdrawal.TokenContract,
		FromAddress:   cfg.Withdrawal.WithdrawalAddress,
	}, log)

	// Services
	ingestService := ingest.NewService(addressRepo, eventRepo, checkpointRepo, cfg.Chain, log)
	creditingService := crediting.NewService(db, eventRepo, balanceRepo, chainClient, cfg.Chain, cfg.Deposit, log)
	withdrawalService := withdrawal.NewService(db, withdrawalRepo, balanceRepo, log)
	reconciliationService := reconciliation.NewService(eventRepo, addressRepo, cfg.Deposit.BatchSize, log)

	// Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	creditWorker := creditingworker.NewWorker(creditingService, &creditingworker.Config{
		LoopInterval: cfg.Deposit.LoopInterval(),
		IdleInterval: cfg.Deposit.IdleInterval(),
	}, log)
	go creditWorker.Start(ctx)

	var scanWorker *deposit_scanner.Worker
	if cfg.Deposit.PollingEnabled {
		scanWorker = deposit_scanner.NewWorker(
			chainClient, addressRepo, checkpointRepo, eventRepo, scanLogRepo, ingestService,
			&deposit_scanner.Config{
				Chain:           cfg.Chain.Name,
				Token:           cfg.Chain.TokenContract,
				Confirmations:   cfg.Deposit.Confirmations,
				MaxRangePerCall: cfg.Deposit.MaxRangePerCall,
				BatchSize:       cfg.Deposit.BatchSize,
				LoopInterval:    cfg.Deposit.LoopInterval(),
				IdleInterval:    cfg.Deposit.IdleInterval(),
			}, log)
		go scanWorker.Start(ctx)
	} else {
		log.Info("Polling scanner disabled, webhook is the only ingestion path")
	}

	withdrawalWorker := auto_withdrawal.NewWorker(
		withdrawalRepo, signerClient, chainClient, redisClient,
		&auto_withdrawal.Config{
			Enabled:           cfg.Withdrawal.Enabled,
			WithdrawalAddress: cfg.Withdrawal.WithdrawalAddress,
			TokenContract:     cfg.Withdrawal.TokenContract,
			Confirmations:     cfg.Withdrawal.Confirmations,
			LoopInterval:      cfg.Withdrawal.LoopInterval(),
			IdleInterval:      cfg.Withdrawal.IdleInterval(),
			ConfirmPollEvery:  15 * time.Second,
			ConfirmTimeout:    30 * time.Minute,
		}, log)
	go withdrawalWorker.Start(ctx)

	if cfg.Reconciliation.Enabled {
		if err := reconciliationService.Schedule(cfg.Reconciliation.CronSpec); err != nil {
			log.Fatal("Failed to schedule reconciliation sweep", "error", err)
		}
		defer reconciliationService.Stop()
	}

	// HTTP surface
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := routes.SetupRoutes(routes.Handlers{
		Health:      handlers.NewHealthHandlers(db, redisClient, version),
		Webhook:     handlers.NewDepositWebhookHandlers(ingestService, cfg.Deposit.WebhookSecret, log),
		Diagnostics: handlers.NewDiagnosticsHandlers(eventRepo, scanLogRepo, checkpointRepo, addressRepo, withdrawalWorker, cfg.Chain, cfg.Deposit, log),
		Withdrawal:  handlers.NewWithdrawalHandlers(withdrawalService, log),
	}, log)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", "error", err)
		}
	}()

	sm := graceful.NewShutdownManager(server, db.DB, log)
	sm.Register(graceful.ShutdownFunc(func(timeout time.Duration) error {
		cancel()
		creditWorker.Stop()
		if scanWorker != nil {
			scanWorker.Stop()
		}
		withdrawalWorker.Stop()
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	}))
	sm.WaitForShutdown()
}
