package dataset

import (
	"context"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

// RecordSource reads every stored record, e.g. the SQL repository.
type RecordSource interface {
	ListRecords(ctx context.Context) ([]models.Record, error)
}

// Loader builds the table once at startup from the configured source.
type Loader struct {
	store   RecordSource
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewLoader creates a loader. store may be nil unless the source is the database.
func NewLoader(store RecordSource, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Loader {
	return &Loader{
		store:   store,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Load returns the table described by cfg. Any failure is a *models.DataLoadError.
func (l *Loader) Load(ctx context.Context, cfg config.DataConfig) (*Table, error) {
	timer := l.metrics.NewTimer(l.metrics.TableLoadDuration)

	l.logger.Info(ctx, "[TABLE_LOAD_START] Loading crop yield table", logging.Fields{
		"source":   cfg.Source,
		"csv_path": cfg.CSVPath,
	})

	var (
		table *Table
		stats LoadStats
		err   error
	)

	switch cfg.Source {
	case config.SourceCSV:
		table, stats, err = LoadCSV(cfg.CSVPath)
	case config.SourceSample:
		table = GenerateSample(SampleOptions{
			Seed:               cfg.SampleSeed,
			RowsPerCombination: cfg.SampleRowsPerCombination,
		})
		stats = LoadStats{Total: table.Len()}
	case config.SourceDatabase:
		table, err = l.loadFromStore(ctx)
		if table != nil {
			stats = LoadStats{Total: table.Len()}
		}
	default:
		err = &models.DataLoadError{Source: cfg.Source, Reason: "unknown data source"}
	}

	if err != nil {
		l.logger.Error(ctx, "[TABLE_LOAD_ERROR] Failed to load crop yield table", logging.Fields{
			"source": cfg.Source,
		}, err)
		return nil, err
	}

	duration := timer.ObserveDuration()
	l.metrics.TableRows.Set(float64(table.Len()))

	l.logger.Info(ctx, "[TABLE_LOAD_COMPLETE] Crop yield table loaded", logging.Fields{
		"source":       table.Source(),
		"rows_read":    stats.Total,
		"rows_loaded":  stats.Loaded(),
		"rows_dropped": stats.Dropped,
		"duration_ms":  duration.Milliseconds(),
	})

	if stats.Dropped > 0 {
		l.logger.Warn(ctx, "[TABLE_LOAD_DROPPED] Rows with missing values were dropped", logging.Fields{
			"rows_dropped": stats.Dropped,
		})
	}

	return table, nil
}

func (l *Loader) loadFromStore(ctx context.Context) (*Table, error) {
	if l.store == nil {
		return nil, &models.DataLoadError{Source: config.SourceDatabase, Reason: "no record store configured"}
	}

	records, err := l.store.ListRecords(ctx)
	if err != nil {
		return nil, &models.DataLoadError{Source: config.SourceDatabase, Reason: "list records", Err: err}
	}
	if len(records) == 0 {
		return nil, &models.DataLoadError{Source: config.SourceDatabase, Reason: "no rows in store; run the ingester first"}
	}
	return New(records, config.SourceDatabase), nil
}
