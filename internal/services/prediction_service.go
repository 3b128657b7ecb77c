package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/internal/regression"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

type modelKey struct {
	region string
	crop   string
}

func (k modelKey) String() string { return k.region + "\x00" + k.crop }

// cacheEntry is either a ready model or a permanent fitting failure.
type cacheEntry struct {
	model *regression.ScaledModel
	err   error
}

// PredictionService fits one regression model per (region, crop) on first use
// and keeps it for the life of the process. At most one fit per key runs at a
// time; concurrent callers for that key share its result.
type PredictionService struct {
	table   *dataset.Table
	cfg     config.ModelConfig
	factory *regression.TrainerFactory
	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	mu    sync.RWMutex
	cache map[modelKey]*cacheEntry
	group singleflight.Group
	fits  atomic.Int64
}

// NewPredictionService creates a new prediction service
func NewPredictionService(table *dataset.Table, cfg config.ModelConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *PredictionService {
	return &PredictionService{
		table: table,
		cfg:   cfg,
		factory: regression.NewTrainerFactory(regression.ForestOptions{
			Trees:    cfg.Trees,
			Seed:     cfg.Seed,
			MaxDepth: cfg.MaxDepth,
		}),
		logger:  logger,
		metrics: metricsCollector,
		cache:   make(map[modelKey]*cacheEntry),
	}
}

// Predict returns the yield estimate for the inputs, floored at zero.
func (s *PredictionService) Predict(ctx context.Context, req models.PredictionRequest) (*models.Prediction, error) {
	if err := validatePrediction(req); err != nil {
		s.metrics.RecordPrediction("invalid")
		return nil, err
	}

	model, err := s.model(ctx, modelKey{region: strings.TrimSpace(req.Region), crop: strings.TrimSpace(req.Crop)})
	if err != nil {
		var insufficient *models.InsufficientDataError
		if errors.As(err, &insufficient) {
			s.metrics.RecordPrediction("insufficient_data")
		} else {
			s.metrics.RecordPrediction("error")
		}
		return nil, err
	}

	estimate := model.Predict([]float64{req.Rainfall, req.Irrigation, req.Fertilizer})
	if math.IsNaN(estimate) || math.IsInf(estimate, 0) {
		s.metrics.RecordPrediction("error")
		return nil, &models.InternalComputationError{Operation: "yield prediction", Err: errors.New("non-finite estimate")}
	}

	s.metrics.RecordPrediction("success")
	return &models.Prediction{
		PredictedYield: math.Max(0, estimate),
		Unit:           models.YieldUnit,
		ModelType:      string(model.Type),
		TrainingRows:   model.Rows,
	}, nil
}

func validatePrediction(req models.PredictionRequest) error {
	if strings.TrimSpace(req.Region) == "" {
		return &models.ValidationError{Field: "region", Message: "region is required"}
	}
	if strings.TrimSpace(req.Crop) == "" {
		return &models.ValidationError{Field: "crop", Message: "crop is required"}
	}
	inputs := []struct {
		name  string
		value float64
	}{
		{"rainfall", req.Rainfall},
		{"irrigation", req.Irrigation},
		{"fertilizer", req.Fertilizer},
	}
	for _, in := range inputs {
		if math.IsNaN(in.value) || math.IsInf(in.value, 0) {
			return &models.ValidationError{Field: in.name, Value: fmt.Sprint(in.value), Message: in.name + " must be a finite number"}
		}
	}
	return nil
}

// CachedModels returns the number of cached keys, failures included.
func (s *PredictionService) CachedModels() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Fits returns how many fits have been attempted since startup.
func (s *PredictionService) Fits() int64 { return s.fits.Load() }

func (s *PredictionService) lookup(key modelKey) (*cacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[key]
	return e, ok
}

func (s *PredictionService) model(ctx context.Context, key modelKey) (*regression.ScaledModel, error) {
	if e, ok := s.lookup(key); ok {
		s.metrics.RecordCacheLookup(true)
		return e.model, e.err
	}
	s.metrics.RecordCacheLookup(false)

	v, err, shared := s.group.Do(key.String(), func() (interface{}, error) {
		if e, ok := s.lookup(key); ok {
			return e, nil
		}

		e, err := s.fit(ctx, key)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.cache[key] = e
		size := len(s.cache)
		s.mu.Unlock()
		s.metrics.ModelCacheEntries.Set(float64(size))
		return e, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		s.logger.Debug(ctx, "[MODEL_FIT_SHARED] Joined in-flight model fit", logging.Fields{
			"region": key.region,
			"crop":   key.crop,
		})
	}

	e := v.(*cacheEntry)
	return e.model, e.err
}

// fit trains the model for key. Insufficient data is returned as a cacheable
// entry; timeouts and numeric failures are returned as errors and not cached.
func (s *PredictionService) fit(ctx context.Context, key modelKey) (*cacheEntry, error) {
	s.fits.Add(1)

	rows := s.table.Filter(models.NewFilter(key.region, key.crop))
	if len(rows) < s.cfg.MinRows {
		s.metrics.RecordModelFit("none", "insufficient_data", 0)
		s.logger.Warn(ctx, "[MODEL_FIT_INSUFFICIENT] Not enough rows to fit model", logging.Fields{
			"region":   key.region,
			"crop":     key.crop,
			"rows":     len(rows),
			"required": s.cfg.MinRows,
		})
		return &cacheEntry{err: &models.InsufficientDataError{
			Operation: fmt.Sprintf("prediction for %s/%s", key.region, key.crop),
			Required:  s.cfg.MinRows,
			Available: len(rows),
		}}, nil
	}

	modelType := regression.ModelTypeLinear
	if len(rows) >= s.cfg.ForestMinRows {
		modelType = regression.ModelTypeForest
	}
	trainer, err := s.factory.GetTrainer(modelType)
	if err != nil {
		return nil, &models.InternalComputationError{Operation: "model fit", Err: err}
	}

	s.logger.Info(ctx, "[MODEL_FIT_START] Fitting yield model", logging.Fields{
		"region":     key.region,
		"crop":       key.crop,
		"rows":       len(rows),
		"model_type": string(modelType),
	})

	// the fit outlives a cancelled request so joined callers still get a model
	fitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FitTimeout)
	defer cancel()

	start := time.Now()
	X, y := featureMatrix(rows)
	model, err := regression.Train(fitCtx, trainer, X, y)
	duration := time.Since(start)

	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			err = fmt.Errorf("fit exceeded %s: %w", s.cfg.FitTimeout, err)
		}
		s.metrics.RecordModelFit(string(modelType), outcome, duration)
		s.logger.Error(ctx, "[MODEL_FIT_ERROR] Model fit failed", logging.Fields{
			"region":      key.region,
			"crop":        key.crop,
			"model_type":  string(modelType),
			"outcome":     outcome,
			"duration_ms": duration.Milliseconds(),
		}, err)
		return nil, &models.InternalComputationError{Operation: "model fit", Err: err}
	}

	s.metrics.RecordModelFit(string(modelType), "success", duration)
	s.logger.Info(ctx, "[MODEL_FIT_COMPLETE] Yield model cached", logging.Fields{
		"region":      key.region,
		"crop":        key.crop,
		"rows":        len(rows),
		"model_type":  string(modelType),
		"duration_ms": duration.Milliseconds(),
	})

	return &cacheEntry{model: model}, nil
}
