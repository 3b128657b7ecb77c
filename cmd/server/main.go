package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/handlers"
	"agri-yield-platform/internal/repository"
	"agri-yield-platform/internal/services"
	"agri-yield-platform/pkg/database"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("agri-yield-api", version, logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting agricultural yield API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"data_source": cfg.Data.Source,
	})

	metricsCollector := metrics.NewCollector("agri_yield", prometheus.DefaultRegisterer)

	// The record store is only needed when the table is loaded from it
	var repo repository.CropRepository
	if cfg.Data.Source == config.SourceDatabase {
		db, err := database.Open(&database.Config{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		}, logger, metricsCollector)
		if err != nil {
			logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{
				"driver": cfg.Database.Driver,
			}, err)
		}
		defer db.Close()

		repo = repository.NewCropRepository(db, logger, metricsCollector)
	}

	// Load the table once; it is immutable for the life of the process
	var store dataset.RecordSource
	if repo != nil {
		store = repo
	}
	table, err := dataset.NewLoader(store, logger, metricsCollector).Load(ctx, cfg.Data)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load crop yield table", logging.Fields{
			"data_source": cfg.Data.Source,
		}, err)
	}

	catalog, err := services.DefaultCatalog()
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load insight catalog", logging.Fields{}, err)
	}

	// Initialize services
	aggregationService := services.NewAggregationService(table, logger, metricsCollector)
	predictionService := services.NewPredictionService(table, cfg.Model, logger, metricsCollector)
	insightService := services.NewInsightService(aggregationService, predictionService, catalog, cfg.Insights, logger, metricsCollector)

	// Initialize handlers
	yieldHandler := handlers.NewYieldHandler(aggregationService, predictionService, insightService, logger, metricsCollector)
	if repo != nil {
		yieldHandler.WithStore(repo)
	}

	router := handlers.NewRouter(yieldHandler)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
			"rows":    table.Len(),
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{
		"cached_models": predictionService.CachedModels(),
	})
}
