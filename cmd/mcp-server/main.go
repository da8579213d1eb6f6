package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oscillometry-report-server/internal/config"
	"github.com/oscillometry-report-server/internal/domain"
	"github.com/oscillometry-report-server/internal/mcp"
	"github.com/oscillometry-report-server/internal/repository"
	"github.com/oscillometry-report-server/internal/service"
	"github.com/oscillometry-report-server/pkg/external"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	remote := flag.String("remote", "", "report server URL; when set, patients are read over HTTP instead of the local store")
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

	// stdout carries the protocol
	logCfg := cfg.Logging
	if logCfg.Output == "" || logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	logger, closeLog, err := config.NewLogger(logCfg)
	if err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	defer closeLog()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store domain.PatientStore
	if *remote != "" {
		store = external.NewPatientClient(external.PatientClientConfig{
			BaseURL:   *remote,
			Timeout:   10 * time.Second,
			RateLimit: 10,
		}, logger)
	} else {
		local, closeStore, err := repository.Open(ctx, cfg, configManager.GetDatabaseURL(), logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open patient store")
		}
		defer closeStore()
		store = local
	}

	// Create MCP server
	mcpServer, err := mcp.NewServer(cfg.MCP, cfg.Report.DefaultPrecision, store, service.NewDerivationEngine(logger), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	// Start MCP server
	if err := mcpServer.Start(ctx); err != nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}

	logger.Info("Oscillometry report MCP server stopped")
}
