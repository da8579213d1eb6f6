package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/oscillometry-report-server/internal/api"
	"github.com/oscillometry-report-server/internal/config"
	"github.com/oscillometry-report-server/internal/export"
	"github.com/oscillometry-report-server/internal/repository"
	"github.com/oscillometry-report-server/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: search ., ./config, /etc/oscillometry-report)")
	flag.Parse()

	// Load configuration
	configManager, err := config.NewManagerWithFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, closeLog, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	defer closeLog()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := repository.Open(ctx, cfg, configManager.GetDatabaseURL(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open patient store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Error("Failed to close patient store")
		}
	}()

	exporter, err := export.NewExporterFromConfig(ctx, cfg.Export, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to configure export")
	}

	server := api.NewServer(configManager, store, service.NewDerivationEngine(logger), exporter, logger)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"storage": cfg.Storage.Backend,
	}).Info("Starting oscillometry report server")

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
