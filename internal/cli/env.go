// Package cli holds the bootstrap shared by the command line tools.
package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/repository"
	"agri-yield-platform/pkg/database"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

// Env is the configuration, logger and metrics of one tool invocation.
// Metrics go to a private registry since the tools expose no endpoint.
type Env struct {
	Config  *config.Config
	Logger  *logging.StructuredLogger
	Metrics *metrics.Collector
}

// Setup loads configuration from cfgFile, or from $AGRI_CONFIG and the
// working directory when empty, and builds the logger for service.
func Setup(cfgFile, service, version string, debug bool) (*Env, error) {
	load := config.LoadConfig
	if cfgFile != "" {
		load = func() (*config.Config, error) { return config.Load(cfgFile) }
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	if debug {
		level = logging.DebugLevel
	}

	return &Env{
		Config:  cfg,
		Logger:  logging.NewStructuredLogger(service, version, level),
		Metrics: metrics.NewCollector("agri_yield_cli", prometheus.NewRegistry()),
	}, nil
}

// OpenRepository connects to the configured record store. The returned
// close function releases the connection pool.
func (e *Env) OpenRepository(ctx context.Context) (repository.CropRepository, func() error, error) {
	if err := e.Config.ValidateDatabase(); err != nil {
		return nil, nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	d := e.Config.Database
	db, err := database.Open(&database.Config{
		Driver:          d.Driver,
		DSN:             d.DSN,
		Host:            d.Host,
		Port:            d.Port,
		User:            d.User,
		Password:        d.Password,
		Database:        d.Database,
		SSLMode:         d.SSLMode,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
	}, e.Logger, e.Metrics)
	if err != nil {
		return nil, nil, err
	}

	repo := repository.NewCropRepository(db, e.Logger, e.Metrics)
	if err := repo.HealthCheck(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("record store unreachable: %w", err)
	}
	return repo, db.Close, nil
}
