package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gamedex/internal/config"
	"gamedex/internal/publisher"
	"gamedex/internal/scheduler"
	"gamedex/internal/service"
	"gamedex/internal/source/steam"
	"gamedex/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	runOnce := flag.Bool("once", false, "run one full refresh and exit")
	showStats := flag.Bool("stats", false, "print catalog stats and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer rabbitMQ.Close()

	gameStore := postgres.NewGameStore(db)
	blacklistStore := postgres.NewBlacklistStore(db)
	searchStore := postgres.NewSearchStore(db)
	txManager := postgres.NewTransactionManager(db)

	steamClient := steam.New(steam.Config{
		APIKey:         cfg.Steam.APIKey,
		AppListURL:     cfg.Steam.AppListURL,
		AppDetailsURL:  cfg.Steam.AppDetailsURL,
		Timeout:        cfg.Steam.Timeout,
		RequestDelay:   cfg.Steam.RequestDelay,
		MaxDelay:       cfg.Steam.MaxDelay,
		CatalogTTL:     cfg.Steam.CatalogTTL,
		DetailTTL:      cfg.Steam.DetailTTL,
		MaxAttempts:    cfg.Steam.Retry.MaxAttempts,
		InitialBackoff: cfg.Steam.Retry.InitialBackoff,
		MaxBackoff:     cfg.Steam.Retry.MaxBackoff,
	}, logger)
	defer steamClient.Close()

	blacklistService := service.NewBlacklistService(blacklistStore, logger)

	syncService := service.NewSyncService(
		steamClient,
		gameStore,
		blacklistService,
		txManager,
		rabbitMQ,
		logger,
		cfg.Sync,
	)

	// Read side, consumed by an external HTTP layer in the full deployment.
	searchService := service.NewSearchService(searchStore, cfg.Search, logger)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *showStats {
		stats, err := searchService.Stats(ctx)
		if err != nil {
			logger.Error("failed to load stats", "error", err)
			os.Exit(1)
		}
		if err := json.NewEncoder(os.Stdout).Encode(stats); err != nil {
			logger.Error("failed to encode stats", "error", err)
			os.Exit(1)
		}
		return
	}

	if *runOnce {
		if _, err := syncService.UpdateAllGames(ctx); err != nil {
			logger.Error("refresh failed", "error", err)
			os.Exit(1)
		}
		return
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting gamedex syncer",
		"interval", cfg.Sync.Interval,
		"concurrency", cfg.Sync.Concurrency,
		"batch_size", cfg.Sync.BatchSize,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
