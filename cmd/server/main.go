package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chorus-platform/process-monitor/internal/api"
	"github.com/chorus-platform/process-monitor/internal/config"
	"github.com/chorus-platform/process-monitor/internal/services"
	"github.com/chorus-platform/process-monitor/internal/storage/postgres"
	"github.com/chorus-platform/process-monitor/internal/tracing"
	"github.com/chorus-platform/process-monitor/pkg/cache"
	"github.com/chorus-platform/process-monitor/pkg/logger"
)

const (
	serviceName    = "process-monitor"
	serviceVersion = "v1.2.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting process-monitor",
		"version", serviceVersion,
		"environment", cfg.Environment,
		"hostname", cfg.ResolveHostname(),
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Initialize OpenTelemetry tracing when enabled
	if cfg.Tracing.Enabled {
		tracerProvider, err := tracing.NewTracerProvider(serviceName, serviceVersion, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer provider", "error", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("Tracer provider shutdown failed", "error", err)
			}
		}()
		logger.Info("OpenTelemetry tracing initialized", "endpoint", cfg.Tracing.OTLPEndpoint)
	}
	tracer := tracing.NewMonitorTracer(serviceName)

	// Connect PostgreSQL and run migrations
	db, err := postgres.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", "error", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	if err := postgres.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run database migrations", "error", err)
	}
	logger.Info("PostgreSQL connected, schema migrated")

	// Initialize the Valkey cache. The monitor keeps working without it:
	// live endpoints degrade but collection and alerting stay up.
	valkeyCache, err := cache.NewValkeyCache(cfg.Cache.URL, time.Duration(cfg.Cache.TTL)*time.Second, logger)
	if err != nil {
		logger.Warn("Cache unavailable, continuing with no-op cache", "error", err)
		valkeyCache = cache.NewNoopValkeyCache(logger)
	} else {
		logger.Info("Valkey cache initialized", "url", cfg.Cache.URL)
	}

	// Stores
	metricsStore := postgres.NewMetricsStore(db)
	rulesStore := postgres.NewRulesStore(db)
	alertsStore := postgres.NewAlertsStore(db)

	// Monitor services
	monitor := services.NewMonitorServices(cfg, metricsStore, rulesStore, alertsStore, valkeyCache, tracer, logger)

	// Background scheduler (collection, health checks, rule sweeps, cleanup)
	if cfg.Scheduler.Enabled {
		monitor.Scheduler.Start(ctx)
		defer monitor.Scheduler.Stop()
	} else {
		logger.Info("Background scheduler disabled by configuration")
	}

	// Hot-reload thresholds and probe endpoints on config file changes
	if configPath := config.ConfigFilePath(); configPath != "" {
		watcher := config.NewWatcher(configPath, cfg, logger)
		watcher.RegisterCallback(monitor.ApplyConfig)
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Error("Configuration watcher failed", "error", err)
			}
		}()
	}

	// Initialize API server
	apiServer := api.NewServer(cfg, logger, valkeyCache, db, metricsStore, rulesStore, monitor)

	// Start server
	if err := apiServer.Start(ctx); err != nil {
		logger.Fatal("Server failed to start", "error", err)
	}

	logger.Info("process-monitor shutdown complete")
}
