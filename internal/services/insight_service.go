package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

// Trend directions.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"

	// slopes below this magnitude (yield units per year step) count as stable
	trendSlopeTolerance = 0.01
	topN                = 3
)

// InsightService composes aggregation and prediction results into narrative
// insight objects. Output is deterministic for a given table.
type InsightService struct {
	agg       *AggregationService
	predictor *PredictionService
	catalog   *Catalog
	threshold float64
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
}

// NewInsightService creates a new insight service
func NewInsightService(agg *AggregationService, predictor *PredictionService, catalog *Catalog, cfg config.InsightsConfig, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *InsightService {
	return &InsightService{
		agg:       agg,
		predictor: predictor,
		catalog:   catalog,
		threshold: cfg.StrategyThreshold,
		logger:    logger,
		metrics:   metricsCollector,
	}
}

// RegionInsights summarizes one region, optionally narrowed to a crop.
func (s *InsightService) RegionInsights(ctx context.Context, region, crop string) (*models.RegionInsights, error) {
	defer s.metrics.ObserveProcessing("region_insights", time.Now())

	region, crop = strings.TrimSpace(region), strings.TrimSpace(crop)
	if region == "" {
		return nil, &models.ValidationError{Field: "region", Message: "region is required"}
	}

	rows := s.agg.Table().Filter(models.NewFilter(region, crop))
	out := &models.RegionInsights{
		Region:          region,
		Crop:            labelOr(crop, "All crops"),
		RowCount:        len(rows),
		AverageYield:    models.NaN(),
		YieldTrend:      []models.YearYield{},
		TrendDirection:  TrendStable,
		FactorImpact:    models.FactorImpact{},
		TopCrops:        []string{},
		Summary:         []string{},
		Recommendations: []string{},
	}
	if len(rows) == 0 {
		out.Summary = s.appendLine(out.Summary, s.catalog.Summary.NoData, map[string]string{"subject": "region " + region})
		return out, nil
	}

	out.AverageYield = models.NullFloat(round(stat.Mean(column(rows, models.FieldYield), nil), 2))

	out.YieldTrend = yearlyTrend(rows)
	out.TrendDirection = trendDirection(out.YieldTrend)
	out.Summary, out.Recommendations = s.describeTrend(out.YieldTrend, out.Summary, out.Recommendations)

	impact, err := factorImpact(rows)
	if err != nil {
		return nil, err
	}
	out.FactorImpact = roundImpact(impact)
	if ranked := impact.Dominant(); len(ranked) > 0 {
		out.DominantFactor = ranked[0]
		for _, tmpl := range s.catalog.Recommendations.RegionFactor[ranked[0]] {
			out.Recommendations = s.appendLine(out.Recommendations, tmpl, map[string]string{"crop": crop})
		}
	}

	soils, _ := rankedMeans(rows, models.FieldSoilType)
	out.BestSoil = soils[0]
	subject := "crops"
	if crop != "" {
		subject = "this crop"
	}
	out.Summary = s.appendLine(out.Summary, s.catalog.Summary.BestSoil, map[string]string{"subject": subject, "soil": out.BestSoil})
	out.Recommendations = s.appendLine(out.Recommendations, s.catalog.Recommendations.BestSoil, map[string]string{"soil": out.BestSoil})

	crops, _ := rankedMeans(rows, models.FieldCrop)
	out.TopCrops = head(crops, topN)

	if crop != "" {
		out.ExpectedYield = s.expectedYield(ctx, region, crop, rows)
	}

	s.logger.Debug(ctx, "[INSIGHT_REGION] Region insights composed", logging.Fields{
		"region": region,
		"crop":   crop,
		"rows":   len(rows),
	})
	return out, nil
}

// CropInsights summarizes one crop, optionally narrowed to a region.
func (s *InsightService) CropInsights(ctx context.Context, crop, region string) (*models.CropInsights, error) {
	defer s.metrics.ObserveProcessing("crop_insights", time.Now())

	crop, region = strings.TrimSpace(crop), strings.TrimSpace(region)
	if crop == "" {
		return nil, &models.ValidationError{Field: "crop", Message: "crop is required"}
	}

	rows := s.agg.Table().Filter(models.NewFilter(region, crop))
	out := &models.CropInsights{
		Crop:            crop,
		Region:          labelOr(region, "All regions"),
		RowCount:        len(rows),
		AverageYield:    models.NaN(),
		TrendDirection:  TrendStable,
		YieldByRegion:   []models.RegionYield{},
		TopRegions:      []string{},
		FactorImpact:    models.FactorImpact{},
		Summary:         []string{},
		Recommendations: []string{},
	}
	if len(rows) == 0 {
		out.Summary = s.appendLine(out.Summary, s.catalog.Summary.NoData, map[string]string{"subject": "crop " + crop})
		return out, nil
	}

	out.AverageYield = models.NullFloat(round(stat.Mean(column(rows, models.FieldYield), nil), 2))
	out.TrendDirection = trendDirection(yearlyTrend(rows))

	byRegion := regionYields(rows)
	for _, r := range byRegion {
		out.TopRegions = append(out.TopRegions, r.Region)
	}
	out.TopRegions = head(out.TopRegions, topN)
	if region == "" {
		out.YieldByRegion = byRegion
		out.BestRegion = byRegion[0].Region
		out.WorstRegion = byRegion[len(byRegion)-1].Region
		out.Summary = s.appendLine(out.Summary, s.catalog.Summary.RegionRange, map[string]string{
			"crop": crop, "best": out.BestRegion, "worst": out.WorstRegion,
		})
		out.Recommendations = s.appendLine(out.Recommendations, s.catalog.Recommendations.BestRegion, map[string]string{
			"crop": crop, "region": out.BestRegion,
		})
	}

	impact, err := factorImpact(rows)
	if err != nil {
		return nil, err
	}
	out.FactorImpact = roundImpact(impact)
	if ranked := impact.Dominant(); len(ranked) >= 2 {
		out.Summary = s.appendLine(out.Summary, s.catalog.Summary.TopFactors, map[string]string{
			"crop":       crop,
			"first":      ranked[0],
			"first_pct":  strconv.FormatFloat(impact[ranked[0]], 'f', 1, 64),
			"second":     ranked[1],
			"second_pct": strconv.FormatFloat(impact[ranked[1]], 'f', 1, 64),
		})
		out.Recommendations = s.appendLine(out.Recommendations, s.catalog.Recommendations.CropFactor[ranked[0]], map[string]string{"crop": crop})
	}

	seasons, _ := rankedMeans(rows, models.FieldSeason)
	out.BestSeason = seasons[0]
	out.Summary = s.appendLine(out.Summary, s.catalog.Summary.BestSeason, map[string]string{"crop": crop, "season": out.BestSeason})
	out.Recommendations = s.appendLine(out.Recommendations, s.catalog.Recommendations.BestSeason, map[string]string{"crop": crop, "season": out.BestSeason})

	if region != "" {
		out.ExpectedYield = s.expectedYield(ctx, region, crop, rows)
	}

	s.logger.Debug(ctx, "[INSIGHT_CROP] Crop insights composed", logging.Fields{
		"crop":   crop,
		"region": region,
		"rows":   len(rows),
	})
	return out, nil
}

// ImprovementStrategies returns one block per factor whose impact exceeds the
// configured threshold, strongest first, followed by the general block.
func (s *InsightService) ImprovementStrategies(ctx context.Context, region, crop string) ([]models.StrategyBlock, error) {
	defer s.metrics.ObserveProcessing("improvement_strategies", time.Now())

	region, crop = strings.TrimSpace(region), strings.TrimSpace(crop)
	if region == "" {
		return nil, &models.ValidationError{Field: "region", Message: "region is required"}
	}
	if crop == "" {
		return nil, &models.ValidationError{Field: "crop", Message: "crop is required"}
	}

	rows := s.agg.Table().Filter(models.NewFilter(region, crop))
	impact, err := factorImpact(rows)
	if err != nil {
		return nil, err
	}

	blocks := make([]models.StrategyBlock, 0, len(impact)+1)
	for _, factor := range impact.Dominant() {
		if impact[factor] <= s.threshold {
			continue
		}
		field, err := models.ResolveFactor(factor)
		if err != nil {
			return nil, &models.InternalComputationError{Operation: "improvement strategies", Err: err}
		}
		current := round(stat.Mean(column(rows, field), nil), 1)
		blocks = append(blocks, models.StrategyBlock{
			Factor:       factor,
			Impact:       strconv.FormatFloat(impact[factor], 'f', 1, 64) + "%",
			CurrentValue: &current,
			Strategies:   append([]string(nil), s.catalog.Strategies[factor]...),
		})
	}

	blocks = append(blocks, models.StrategyBlock{
		Factor:     s.catalog.General.Factor,
		Impact:     s.catalog.General.Impact,
		Strategies: append([]string(nil), s.catalog.General.Strategies...),
	})

	s.logger.Debug(ctx, "[INSIGHT_STRATEGIES] Improvement strategies composed", logging.Fields{
		"region": region,
		"crop":   crop,
		"rows":   len(rows),
		"blocks": len(blocks),
	})
	return blocks, nil
}

// expectedYield predicts yield at the subset's average inputs. Prediction
// failures leave the field empty.
func (s *InsightService) expectedYield(ctx context.Context, region, crop string, rows []models.Record) *float64 {
	if s.predictor == nil {
		return nil
	}
	pred, err := s.predictor.Predict(ctx, models.PredictionRequest{
		Region:     region,
		Crop:       crop,
		Rainfall:   stat.Mean(column(rows, models.FieldRainfall), nil),
		Irrigation: stat.Mean(column(rows, models.FieldIrrigation), nil),
		Fertilizer: stat.Mean(column(rows, models.FieldFertilizer), nil),
	})
	if err != nil {
		var insufficient *models.InsufficientDataError
		if !errors.As(err, &insufficient) {
			s.logger.Warn(ctx, "[INSIGHT_PREDICT_ERROR] Expected yield unavailable", logging.Fields{
				"region": region,
				"crop":   crop,
				"error":  err.Error(),
			})
		}
		return nil
	}
	v := round(pred.PredictedYield, 2)
	return &v
}

func (s *InsightService) describeTrend(trend []models.YearYield, summary, recs []string) ([]string, []string) {
	if len(trend) <= 2 {
		return summary, recs
	}
	first, last := trend[0], trend[len(trend)-1]
	vars := map[string]string{
		"first_year": strconv.Itoa(first.Year),
		"last_year":  strconv.Itoa(last.Year),
	}
	if last.Mean > first.Mean {
		vars["delta"] = fmt.Sprintf("%.2f", float64(last.Mean-first.Mean))
		summary = s.appendLine(summary, s.catalog.Summary.TrendIncreased, vars)
		recs = s.appendLine(recs, s.catalog.Recommendations.TrendIncreasing, nil)
	} else {
		vars["delta"] = fmt.Sprintf("%.2f", float64(first.Mean-last.Mean))
		summary = s.appendLine(summary, s.catalog.Summary.TrendDecreased, vars)
		recs = s.appendLine(recs, s.catalog.Recommendations.TrendDecreasing, nil)
	}
	return summary, recs
}

func (s *InsightService) appendLine(lines []string, tmpl string, vars map[string]string) []string {
	if line, ok := render(tmpl, vars); ok && line != "" {
		return append(lines, line)
	}
	return lines
}

// trendDirection classifies the least-squares slope of yearly means against
// their position in the series.
func trendDirection(trend []models.YearYield) string {
	if len(trend) < 2 {
		return TrendStable
	}
	xs := make([]float64, len(trend))
	ys := make([]float64, len(trend))
	for i, t := range trend {
		xs[i] = float64(i)
		ys[i] = float64(t.Mean)
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	switch {
	case slope > -trendSlopeTolerance && slope < trendSlopeTolerance:
		return TrendStable
	case slope > 0:
		return TrendIncreasing
	default:
		return TrendDecreasing
	}
}

func roundImpact(fi models.FactorImpact) models.FactorImpact {
	out := make(models.FactorImpact, len(fi))
	for k, v := range fi {
		out[k] = round(v, 2)
	}
	return out
}

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func head(xs []string, n int) []string {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}
