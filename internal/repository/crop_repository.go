package repository

import (
	"context"
	"fmt"
	"time"

	"agri-yield-platform/internal/models"
	"agri-yield-platform/pkg/database"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

// CropRepository provides data access for stored crop yield records
type CropRepository interface {
	// Schema operations
	EnsureSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Record operations
	InsertBatch(ctx context.Context, records []models.Record) error
	ListRecords(ctx context.Context) ([]models.Record, error)
	Count(ctx context.Context) (int, error)
	Truncate(ctx context.Context) error

	// Utility operations
	HealthCheck(ctx context.Context) error
}

var schemaStatements = map[string][]string{
	database.DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS crop_yields (
			id               BIGSERIAL PRIMARY KEY,
			region           TEXT NOT NULL,
			crop             TEXT NOT NULL,
			soil_type        TEXT NOT NULL,
			season           TEXT NOT NULL,
			year             INTEGER NOT NULL,
			rainfall_mm      DOUBLE PRECISION NOT NULL,
			irrigation_pct   DOUBLE PRECISION NOT NULL,
			fertilizer_kg_ha DOUBLE PRECISION NOT NULL,
			yield_t_ha       DOUBLE PRECISION NOT NULL,
			created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crop_yields_region_crop ON crop_yields (region, crop)`,
	},
	database.DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS crop_yields (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			region           TEXT NOT NULL,
			crop             TEXT NOT NULL,
			soil_type        TEXT NOT NULL,
			season           TEXT NOT NULL,
			year             INTEGER NOT NULL,
			rainfall_mm      REAL NOT NULL,
			irrigation_pct   REAL NOT NULL,
			fertilizer_kg_ha REAL NOT NULL,
			yield_t_ha       REAL NOT NULL,
			created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crop_yields_region_crop ON crop_yields (region, crop)`,
	},
}

const insertRecordQuery = `
	INSERT INTO crop_yields (
		region, crop, soil_type, season, year,
		rainfall_mm, irrigation_pct, fertilizer_kg_ha, yield_t_ha
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// cropRepository implements CropRepository
type cropRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewCropRepository creates a new crop yield repository
func NewCropRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) CropRepository {
	return &cropRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// EnsureSchema creates the crop_yields table and its index when missing
func (r *cropRepository) EnsureSchema(ctx context.Context) error {
	stmts, ok := schemaStatements[r.db.Driver()]
	if !ok {
		return fmt.Errorf("no schema for driver %q", r.db.Driver())
	}

	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, "ensure_schema", stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	r.logger.Info(ctx, "[REPO_SCHEMA] Schema ensured", logging.Fields{
		"driver": r.db.Driver(),
		"table":  "crop_yields",
	})
	return nil
}

// DropSchema removes the crop_yields table
func (r *cropRepository) DropSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "drop_schema", `DROP TABLE IF EXISTS crop_yields`); err != nil {
		return fmt.Errorf("failed to drop schema: %w", err)
	}

	r.logger.Info(ctx, "[REPO_SCHEMA_DROP] Schema dropped", logging.Fields{
		"driver": r.db.Driver(),
		"table":  "crop_yields",
	})
	return nil
}

// InsertBatch inserts records in a single transaction
func (r *cropRepository) InsertBatch(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(records)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"count":       len(records),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	// Begin transaction
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, tx.Rebind(insertRecordQuery))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		rec := &records[i]
		_, err := stmt.ExecContext(ctx,
			rec.Region,
			rec.Crop,
			rec.SoilType,
			rec.Season,
			rec.Year,
			rec.Rainfall,
			rec.Irrigation,
			rec.Fertilizer,
			rec.Yield,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(records)))

	return nil
}

// ListRecords returns every stored record in insertion order
func (r *cropRepository) ListRecords(ctx context.Context) ([]models.Record, error) {
	query := `
		SELECT region, crop, soil_type, season, year,
		       rainfall_mm, irrigation_pct, fertilizer_kg_ha, yield_t_ha
		FROM crop_yields
		ORDER BY id
	`

	var records []models.Record
	if err := r.db.SelectContext(ctx, "list_records", &records, query); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records
func (r *cropRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, "count_records", &count, `SELECT COUNT(*) FROM crop_yields`); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Truncate deletes every stored record
func (r *cropRepository) Truncate(ctx context.Context) error {
	result, err := r.db.ExecContext(ctx, "truncate_records", `DELETE FROM crop_yields`)
	if err != nil {
		return fmt.Errorf("failed to truncate records: %w", err)
	}

	deleted, _ := result.RowsAffected()
	r.logger.Info(ctx, "[REPO_TRUNCATE] Records deleted", logging.Fields{
		"deleted": deleted,
	})
	return nil
}

// HealthCheck performs a repository health check
func (r *cropRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
