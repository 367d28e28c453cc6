package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"commodity-market-go/internal/config"
	"commodity-market-go/internal/database"
	"commodity-market-go/internal/engine"
	"commodity-market-go/internal/logger"
	"commodity-market-go/internal/notify"
	"commodity-market-go/internal/wallet"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Logger)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize the wallet service client
	walletClient := wallet.NewRestClient(&cfg.Wallet, log)

	// Pick the notification sink
	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.Discord.Enabled {
		discordNotifier, err := notify.NewDiscordNotifier(&cfg.Discord, log)
		if err != nil {
			log.Fatal("Failed to connect to Discord", zap.Error(err))
		}
		defer discordNotifier.Close()
		notifier = discordNotifier
		log.Info("Discord notifications enabled")
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the market engine
	marketEngine, err := engine.NewEngine(log, &cfg, db, walletClient, notifier)
	if err != nil {
		log.Fatal("Failed to initialize market engine", zap.Error(err))
	}
	marketEngine.Run(ctx)

	log.Info("Market engine has been shut down.")
}
