package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/internal/regression"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

const (
	// FactorImpactMinRows is the smallest subset factor impact is computed on.
	FactorImpactMinRows = 10
	factorBins          = 5
)

// AggregationService computes grouped yield summaries over the loaded table
type AggregationService struct {
	table   *dataset.Table
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(table *dataset.Table, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AggregationService {
	return &AggregationService{
		table:   table,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Table returns the table the service reads from.
func (s *AggregationService) Table() *dataset.Table { return s.table }

// UniqueValues lists the distinct values of a field.
func (s *AggregationService) UniqueValues(field models.Field) []string {
	return s.table.UniqueValues(field)
}

// YieldByRegion groups yield by region, optionally for one crop, ordered by
// descending mean.
func (s *AggregationService) YieldByRegion(ctx context.Context, crop string) []models.RegionYield {
	defer s.metrics.ObserveProcessing("yield_by_region", time.Now())

	rows := s.table.Filter(models.NewFilter("", crop))
	out := regionYields(rows)

	s.logger.Debug(ctx, "[AGG_YIELD_BY_REGION] Yield grouped by region", logging.Fields{
		"crop":   crop,
		"rows":   len(rows),
		"groups": len(out),
	})
	return out
}

func regionYields(rows []models.Record) []models.RegionYield {
	keys, groups := groupYields(rows, models.FieldRegion)

	out := make([]models.RegionYield, 0, len(keys))
	for _, k := range keys {
		sum := summarize(groups[k])
		out = append(out, models.RegionYield{Region: k, Mean: sum.mean, Std: sum.std, Count: sum.count})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Mean != out[j].Mean {
			return out[i].Mean > out[j].Mean
		}
		return out[i].Region < out[j].Region
	})
	return out
}

// YieldByFactor groups yield by factor after filtering. Continuous factors are
// cut into up to five quantile bins; duplicate edges collapse into fewer bins.
func (s *AggregationService) YieldByFactor(ctx context.Context, factor, region, crop string) ([]models.FactorBucket, error) {
	defer s.metrics.ObserveProcessing("yield_by_factor", time.Now())

	field, err := models.ResolveFactor(factor)
	if err != nil {
		return nil, err
	}

	rows := s.table.Filter(models.NewFilter(region, crop))
	out := make([]models.FactorBucket, 0)
	if len(rows) == 0 {
		return out, nil
	}

	switch {
	case field.IsContinuous():
		out = bucketByQuantile(rows, field)
	case field == models.FieldYear:
		keys, groups := groupYields(rows, field)
		sort.Slice(keys, func(i, j int) bool {
			a, _ := strconv.Atoi(keys[i])
			b, _ := strconv.Atoi(keys[j])
			return a < b
		})
		for _, k := range keys {
			sum := summarize(groups[k])
			out = append(out, models.FactorBucket{Bucket: k, Mean: sum.mean, Count: sum.count})
		}
	default:
		keys, groups := groupYields(rows, field)
		sort.Strings(keys)
		for _, k := range keys {
			sum := summarize(groups[k])
			out = append(out, models.FactorBucket{Bucket: k, Mean: sum.mean, Count: sum.count})
		}
	}

	s.logger.Debug(ctx, "[AGG_YIELD_BY_FACTOR] Yield grouped by factor", logging.Fields{
		"factor":  field.FactorName(),
		"region":  region,
		"crop":    crop,
		"rows":    len(rows),
		"buckets": len(out),
	})
	return out, nil
}

func bucketByQuantile(rows []models.Record, field models.Field) []models.FactorBucket {
	values := column(rows, field)
	edges := quantileEdges(values, factorBins)

	if len(edges) == 1 {
		sum := summarize(column(rows, models.FieldYield))
		return []models.FactorBucket{{
			Bucket: fmt.Sprintf("[%.2f, %.2f]", edges[0], edges[0]),
			Mean:   sum.mean,
			Count:  sum.count,
		}}
	}

	bins := make([][]float64, len(edges)-1)
	for i, v := range values {
		b := binIndex(edges, v)
		bins[b] = append(bins[b], rows[i].Yield)
	}

	out := make([]models.FactorBucket, 0, len(bins))
	for i, yields := range bins {
		if len(yields) == 0 {
			continue
		}
		sum := summarize(yields)
		out = append(out, models.FactorBucket{Bucket: binLabel(edges, i), Mean: sum.mean, Count: sum.count})
	}
	return out
}

// YieldTrend groups yield by year in ascending order.
func (s *AggregationService) YieldTrend(ctx context.Context, region, crop string) []models.YearYield {
	defer s.metrics.ObserveProcessing("yield_trend", time.Now())

	rows := s.table.Filter(models.NewFilter(region, crop))
	return yearlyTrend(rows)
}

func yearlyTrend(rows []models.Record) []models.YearYield {
	byYear := make(map[int][]float64)
	for i := range rows {
		byYear[rows[i].Year] = append(byYear[rows[i].Year], rows[i].Yield)
	}

	out := make([]models.YearYield, 0, len(byYear))
	for year, yields := range byYear {
		sum := summarize(yields)
		out = append(out, models.YearYield{Year: year, Mean: sum.mean, Std: sum.std, Count: sum.count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// CorrelationMatrix returns Pearson coefficients over rainfall, irrigation,
// fertilizer and yield. Entries involving a zero-variance column are NaN.
func (s *AggregationService) CorrelationMatrix(ctx context.Context, region, crop string) models.CorrelationMatrix {
	defer s.metrics.ObserveProcessing("correlation_matrix", time.Now())

	rows := s.table.Filter(models.NewFilter(region, crop))
	out := make(models.CorrelationMatrix, len(models.CorrelationFields))
	if len(rows) == 0 {
		return out
	}

	cols := make(map[models.Field][]float64, len(models.CorrelationFields))
	for _, f := range models.CorrelationFields {
		cols[f] = column(rows, f)
	}

	for _, a := range models.CorrelationFields {
		row := make(map[string]models.NullFloat, len(models.CorrelationFields))
		for _, b := range models.CorrelationFields {
			if a == b {
				if len(rows) >= 2 && variance(cols[a]) > 0 {
					row[b.FactorName()] = 1
				} else {
					row[b.FactorName()] = models.NaN()
				}
				continue
			}
			row[b.FactorName()] = pearson(cols[a], cols[b])
		}
		out[a.FactorName()] = row
	}
	return out
}

// FactorImpact fits yield on rainfall, irrigation and fertilizer by ordinary
// least squares and returns each |coefficient| as a percentage of their sum.
// Coefficients are on raw feature scales, so the shares reflect the units of
// each factor as much as its influence. Fewer than FactorImpactMinRows rows
// give an empty map. All-zero coefficients give all-zero shares.
func (s *AggregationService) FactorImpact(ctx context.Context, region, crop string) (models.FactorImpact, error) {
	defer s.metrics.ObserveProcessing("factor_impact", time.Now())

	rows := s.table.Filter(models.NewFilter(region, crop))
	return factorImpact(rows)
}

func factorImpact(rows []models.Record) (models.FactorImpact, error) {
	out := make(models.FactorImpact, len(models.FeatureFields))
	if len(rows) < FactorImpactMinRows {
		return out, nil
	}

	X, y := featureMatrix(rows)
	model, err := regression.FitOLS(X, y)
	if err != nil {
		return nil, &models.InternalComputationError{Operation: "factor impact regression", Err: err}
	}

	total := 0.0
	for _, c := range model.Coef {
		total += math.Abs(c)
	}
	for i, f := range models.FeatureFields {
		share := 0.0
		if total > 0 {
			share = math.Abs(model.Coef[i]) / total * 100
		}
		out[f.FactorName()] = share
	}
	return out, nil
}
