package services

import (
	"context"
	"fmt"
	"time"

	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/internal/repository"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

// DefaultBatchSize is used when a non-positive batch size is requested.
const DefaultBatchSize = 500

// IngestionService loads crop yield records into the repository
type IngestionService struct {
	repo    repository.CropRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	Source            string
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	Batches           int
	Duration          time.Duration
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.CropRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestCSV reads a crop yield CSV and stores its valid rows. Rows dropped by
// the loader count as failed records. With replace set, existing rows are
// removed first.
func (s *IngestionService) IngestCSV(ctx context.Context, path string, batchSize int, replace bool) (*IngestionResult, error) {
	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"path":       path,
		"batch_size": batchSize,
		"replace":    replace,
		"stage":      "INITIALIZATION",
	})

	table, stats, err := dataset.LoadCSV(path)
	if err != nil {
		s.metrics.RecordIngestionError("load_error")
		s.logger.Error(ctx, "[INGEST_LOAD_ERROR] Failed to read input", logging.Fields{
			"path":  path,
			"stage": "LOAD",
		}, err)
		return nil, err
	}
	if stats.Dropped > 0 {
		s.metrics.IngestionErrorsTotal.WithLabelValues("conversion_error").Add(float64(stats.Dropped))
	}

	if replace {
		if err := s.Reset(ctx); err != nil {
			return nil, err
		}
	}

	result, err := s.IngestRecords(ctx, table.Records(), batchSize)
	if err != nil {
		return nil, err
	}
	result.Source = path
	result.TotalRecords = stats.Total
	result.FailedRecords = stats.Dropped
	return result, nil
}

// Reset removes every stored record.
func (s *IngestionService) Reset(ctx context.Context) error {
	if err := s.repo.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to clear existing records: %w", err)
	}
	s.logger.Info(ctx, "[INGEST_RESET] Existing records removed", logging.Fields{})
	return nil
}

// IngestRecords stores records in batches of batchSize.
func (s *IngestionService) IngestRecords(ctx context.Context, records []models.Record, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	result := &IngestionResult{TotalRecords: len(records)}

	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.repo.InsertBatch(ctx, records[start:end]); err != nil {
			s.metrics.RecordIngestionError("insert_error")
			s.logger.Error(ctx, "[INGEST_BATCH_ERROR] Batch insert failed", logging.Fields{
				"batch_start": start,
				"batch_size":  end - start,
				"stage":       "BATCH_INSERT",
			}, err)
			return nil, fmt.Errorf("failed to insert batch at row %d: %w", start, err)
		}
		result.SuccessfulRecords += end - start
		result.Batches++
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	fields := logging.Fields{
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"batches":            result.Batches,
		"duration_seconds":   result.Duration.Seconds(),
		"stage":              "COMPLETE",
	}
	if secs := result.Duration.Seconds(); secs > 0 {
		fields["records_per_second"] = float64(result.SuccessfulRecords) / secs
	}
	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", fields)

	return result, nil
}
