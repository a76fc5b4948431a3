package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"signalTraderBot/config"
	"signalTraderBot/internal/adapters/binance"
	"signalTraderBot/internal/adapters/logger"
	"signalTraderBot/internal/adapters/sqlite"
	"signalTraderBot/internal/adapters/webhook"
	"signalTraderBot/internal/app"
	"signalTraderBot/internal/planner"
	"signalTraderBot/internal/precision"
	"signalTraderBot/internal/risk"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	exchangeClient, err := binance.New(binance.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	// Signed futures requests are rejected on clock drift, so sync before
	// anything that places orders.
	if err := exchangeClient.SetServerTime(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to sync time with Binance server")
		log.Fatalf("FATAL: Failed to sync time with Binance server: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Initialize Planning and Risk Components
	resolver := precision.NewResolver(exchangeClient, appLogger)

	planBuilder, err := planner.NewBuilder(appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize order plan builder")
		log.Fatalf("FATAL: Failed to initialize order plan builder: %v", err)
	}

	cooldownGuard, err := risk.NewCooldownGuard(repo, appLogger, cfg.CooldownWindow)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize cooldown guard")
		log.Fatalf("FATAL: Failed to initialize cooldown guard: %v", err)
	}

	// 6. Initialize Notifier (Webhook Adapter)
	notifier, err := webhook.New(webhook.Config{
		URL:    cfg.WebhookURL,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize webhook notifier")
		log.Fatalf("FATAL: Failed to initialize webhook notifier: %v", err)
	}

	// 7. Initialize Application Service
	positionBook := app.NewPositionBook()
	tradingService, err := app.NewTradingService(
		appLogger,
		exchangeClient,
		repo,
		notifier,
		resolver,
		planBuilder,
		cooldownGuard,
		positionBook,
		cfg.QuoteAsset,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(context.Background(), "Trading service initialized", map[string]interface{}{"accountID": cfg.AccountID})

	// 8. Rehydrate Positions from Trade History
	// Positions left OPEN or PARTIAL by a previous run resume monitoring.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	restored, err := tradingService.RehydratePositions(ctx, cfg.AccountID)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to rehydrate positions from trade history")
		log.Fatalf("FATAL: Failed to rehydrate positions from trade history: %v", err)
	}
	if restored > 0 {
		appLogger.Info(ctx, "Restored active positions from trade history", map[string]interface{}{"count": restored})
	}

	// 9. Start the Reconciler
	reconciler, err := app.NewReconciler(
		appLogger,
		exchangeClient,
		repo,
		notifier,
		positionBook,
		cfg.AccountID,
		cfg.ReconcileInterval,
	)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position reconciler")
		log.Fatalf("FATAL: Failed to initialize position reconciler: %v", err)
	}
	reconciler.Start(ctx)
	appLogger.Info(ctx, "Position reconciler started", map[string]interface{}{"interval": cfg.ReconcileInterval.String()})

	// 10. Wait for Shutdown Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	appLogger.Info(ctx, "Shutdown signal received, stopping...", map[string]interface{}{"signal": sig.String()})

	reconciler.Stop()
	cancel()
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
