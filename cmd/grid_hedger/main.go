package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grid_hedger/internal/alert"
	"grid_hedger/internal/config"
	"grid_hedger/internal/core"
	"grid_hedger/internal/feed"
	"grid_hedger/internal/infrastructure/metrics"
	"grid_hedger/internal/logging"
	"grid_hedger/internal/mock"
	"grid_hedger/internal/store"
	"grid_hedger/internal/trading/hedger"
	"grid_hedger/internal/trading/lifecycle"
	"grid_hedger/internal/trading/reconciler"
	"grid_hedger/pkg/concurrency"
	"grid_hedger/pkg/telemetry"

	"github.com/shopspring/decimal"
)

var (
	// Version information (set via build flags)
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/grid_hedger.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("grid_hedger version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobalLogger(logger)

	logger.Info("Starting grid_hedger",
		"version", version,
		"symbols", len(cfg.Symbols),
		"primary_venue", cfg.App.PrimaryVenue,
		"hedge_venue", cfg.App.HedgeVenue,
	)

	tel, err := telemetry.Setup("grid_hedger")
	if err != nil {
		logger.Warn("Failed to initialize telemetry", "error", err)
	}

	tradeStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logger.Error("Failed to open trade store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer tradeStore.Close()

	var metricsServer *metrics.Server
	if cfg.Telemetry.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Health().Register("trade_store", tradeStore.Ping)
		metricsServer.Start()
	}

	alertManager := alert.NewAlertManager(cfg.Alerts.QueueSize, logger)
	if cfg.Alerts.Telegram.Enabled {
		alertManager.AddChannel(alert.NewTelegramChannel(
			string(cfg.Alerts.Telegram.BotToken), cfg.Alerts.Telegram.ChatID))
	}
	if cfg.Alerts.Slack.Enabled {
		alertManager.AddChannel(alert.NewSlackChannel(string(cfg.Alerts.Slack.WebhookURL)))
	}
	alertManager.Start()

	primary, hedge, err := createVenues(cfg)
	if err != nil {
		logger.Error("Failed to create venues", "error", err)
		os.Exit(1)
	}

	quoteFeed := feed.NewClient(cfg.Feed.URL, logger)
	quoteFeed.Start()

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "orders",
		MaxWorkers:  cfg.Concurrency.OrderPoolSize,
		MaxCapacity: cfg.Concurrency.OrderPoolBuffer,
	}, logger)

	manager := lifecycle.NewManager(
		lifecycleConfig(cfg),
		primary,
		hedge,
		quoteFeed,
		tradeStore,
		alertManager,
		pool,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, sym := range cfg.Symbols {
		spec, err := sym.ToSymbolSpec()
		if err != nil {
			logger.Error("Invalid symbol config", "symbol", sym.Name, "error", err)
			os.Exit(1)
		}
		gridSpec, err := sym.Grid.ToGridSpec("symbols." + sym.Name + ".grid")
		if err != nil {
			logger.Error("Invalid grid config", "symbol", sym.Name, "error", err)
			os.Exit(1)
		}
		if err := manager.Start(ctx, spec, gridSpec); err != nil {
			logger.Error("Failed to start symbol", "symbol", sym.Name, "error", err)
			os.Exit(1)
		}
	}

	// Session end and Ctrl-C both land on the same shutdown path
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	windowDone := make(chan struct{})
	scheduler, err := lifecycle.NewScheduler(lifecycle.WindowConfig{
		Open:          cfg.Window.Open,
		Close:         cfg.Window.Close,
		CheckInterval: time.Duration(cfg.Window.CheckIntervalSeconds) * time.Second,
	}, manager, func() { close(windowDone) }, logger)
	if err != nil {
		logger.Error("Invalid trading window", "error", err)
		os.Exit(1)
	}
	go scheduler.Run(ctx)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal, gracefully shutting down...", "signal", sig.String())
	case <-windowDone:
		logger.Info("Trading window closed, shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if cfg.System.CancelOnExit {
		if err := manager.StopAll(shutdownCtx); err != nil {
			logger.Error("Symbol drain incomplete", "error", err)
		}
	}
	cancel()

	quoteFeed.Stop()
	pool.Stop()
	alertManager.Stop()
	if metricsServer != nil {
		_ = metricsServer.Stop(shutdownCtx)
	}
	if tel != nil {
		_ = tel.Shutdown(shutdownCtx)
	}

	logger.Info("Shutdown complete")
}

func lifecycleConfig(cfg *config.Config) lifecycle.Config {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }

	recCfg := reconciler.DefaultConfig()
	recCfg.SettlementWait = seconds(cfg.Timing.SettlementWaitSeconds)
	recCfg.MarketClosedBackoff = seconds(cfg.Timing.MarketClosedBackoffSeconds)

	hedCfg := hedger.DefaultConfig()
	hedCfg.Floor = seconds(cfg.Timing.HedgeFloorSeconds)
	hedCfg.ConvergenceWait = seconds(cfg.Timing.ConvergenceWaitSeconds)

	return lifecycle.Config{
		PollInterval:        seconds(cfg.Timing.PollIntervalSeconds),
		OrderRate:           cfg.Timing.OrderRate,
		OrderBurst:          cfg.Timing.OrderBurst,
		MarketClosedBackoff: seconds(cfg.Timing.MarketClosedBackoffSeconds),
		Reconciler:          recCfg,
		Hedger:              hedCfg,
	}
}

// createVenues builds the primary and hedge connectors. Only the in-process
// mock venues ship in this build; live connectors plug in behind the same
// interfaces.
func createVenues(cfg *config.Config) (core.PrimaryVenue, core.HedgeVenue, error) {
	var primary core.PrimaryVenue
	switch cfg.App.PrimaryVenue {
	case "mock":
		primary = mock.NewPrimaryVenue()
	default:
		return nil, nil, fmt.Errorf("unsupported primary venue: %s", cfg.App.PrimaryVenue)
	}

	var hedge core.HedgeVenue
	switch cfg.App.HedgeVenue {
	case "mock":
		hedge = mock.NewHedgeVenue(decimal.Zero)
	default:
		return nil, nil, fmt.Errorf("unsupported hedge venue: %s", cfg.App.HedgeVenue)
	}

	return primary, hedge, nil
}
