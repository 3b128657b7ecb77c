package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/models"
)

func newInsights(t *testing.T, rows []models.Record, threshold float64) *InsightService {
	t.Helper()
	logger, m := testDeps(t)
	table := dataset.New(rows, "test")

	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	agg := NewAggregationService(table, logger, m)
	predictor := NewPredictionService(table, testModelConfig(), logger, m)
	return NewInsightService(agg, predictor, catalog, config.InsightsConfig{StrategyThreshold: threshold}, logger, m)
}

func insightTable() []models.Record {
	rows := syntheticRows("North", "Rice", 30, 0.3, 0.5)
	rows = append(rows, shiftYield(syntheticRows("North", "Wheat", 12, 0, 0), -1)...)
	rows = append(rows, shiftYield(syntheticRows("South", "Rice", 30, -0.3, 0.5), -1)...)
	return rows
}

func assertRendered(t *testing.T, lines []string) {
	t.Helper()
	for _, l := range lines {
		assert.NotContains(t, l, "{")
		assert.NotEmpty(t, l)
	}
}

func TestRegionInsights_WithCrop(t *testing.T) {
	svc := newInsights(t, insightTable(), 30)

	out, err := svc.RegionInsights(context.Background(), "North", "Rice")
	require.NoError(t, err)

	assert.Equal(t, "North", out.Region)
	assert.Equal(t, "Rice", out.Crop)
	assert.Equal(t, 30, out.RowCount)
	assert.True(t, out.AverageYield.Valid())
	assert.Len(t, out.YieldTrend, 6)
	assert.Equal(t, TrendIncreasing, out.TrendDirection)
	assert.Equal(t, "Alluvial", out.BestSoil)
	assert.Equal(t, []string{"Rice"}, out.TopCrops)
	require.NotNil(t, out.ExpectedYield)
	assert.Greater(t, *out.ExpectedYield, 0.0)

	require.Len(t, out.FactorImpact, 3)
	assert.Equal(t, out.FactorImpact.Dominant()[0], out.DominantFactor)

	assert.Contains(t, out.Summary[0], "increased")
	assert.Contains(t, out.Summary[0], "from 2010 to 2015")
	assert.Contains(t, out.Summary, "The best soil type for this crop in this region is Alluvial.")
	assert.Contains(t, out.Recommendations, "Continue with current agricultural practices that have led to yield improvements.")
	assert.Contains(t, out.Recommendations, "Prioritize cultivation in Alluvial soil areas for optimal yields.")
	assertRendered(t, out.Summary)
	assertRendered(t, out.Recommendations)
}

func TestRegionInsights_AllCrops(t *testing.T) {
	svc := newInsights(t, insightTable(), 30)

	out, err := svc.RegionInsights(context.Background(), "North", "")
	require.NoError(t, err)

	assert.Equal(t, "All crops", out.Crop)
	assert.Equal(t, 42, out.RowCount)
	assert.Equal(t, []string{"Rice", "Wheat"}, out.TopCrops)
	assert.Nil(t, out.ExpectedYield)
	assert.Contains(t, out.Summary, "The best soil type for crops in this region is Alluvial.")
	assertRendered(t, out.Recommendations)
}

func TestRegionInsights_DecreasingTrend(t *testing.T) {
	svc := newInsights(t, insightTable(), 30)

	out, err := svc.RegionInsights(context.Background(), "South", "Rice")
	require.NoError(t, err)

	assert.Equal(t, TrendDecreasing, out.TrendDirection)
	assert.Contains(t, out.Summary[0], "decreased")
	assert.Contains(t, out.Recommendations, "Review agricultural practices as yields are declining over time.")
}

func TestRegionInsights_NoData(t *testing.T) {
	svc := newInsights(t, insightTable(), 30)

	out, err := svc.RegionInsights(context.Background(), "Nowhere", "")
	require.NoError(t, err)

	assert.Equal(t, 0, out.RowCount)
	assert.False(t, out.AverageYield.Valid())
	assert.Equal(t, TrendStable, out.TrendDirection)
	assert.Equal(t, []string{"No data available for region Nowhere."}, out.Summary)
	assert.Empty(t, out.Recommendations)
	assert.NotNil(t, out.YieldTrend)
	assert.NotNil(t, out.FactorImpact)
}

func TestCropInsights_AllRegions(t *testing.T) {
	svc := newInsights(t, insightTable(), 30)

	out, err := svc.CropInsights(context.Background(), "Rice", "")
	require.NoError(t, err)

	assert.Equal(t, "Rice", out.Crop)
	assert.Equal(t, "All regions", out.Region)
	assert.Equal(t, 60, out.RowCount)
	require.Len(t, out.YieldByRegion, 2)
	assert.Equal(t, "North", out.BestRegion)
	assert.Equal(t, "South", out.WorstRegion)
	assert.Equal(t, []string{"North", "South"}, out.TopRegions)
	assert.NotEmpty(t, out.BestSeason)
	assert.Nil(t, out.ExpectedYield)

	assert.Contains(t, out.Summary, "Best region for Rice is North, worst region is South.")
	assert.Contains(t, out.Recommendations, "Prioritize Rice cultivation in North region.")
	assert.Contains(t, out.Recommendations, "Prioritize Rice cultivation in "+out.BestSeason+" season.")

	ranked := out.FactorImpact.Dominant()
	require.Len(t, ranked, 3)
	found := false
	for _, s := range out.Summary {
		if strings.HasPrefix(s, "The most important factors for Rice yield are: "+ranked[0]) {
			found = true
		}
	}
	assert.True(t, found, "top factor summary missing: %v", out.Summary)
	assertRendered(t, out.Summary)
	assertRendered(t, out.Recommendations)
}

func TestCropInsights_SingleRegion(t *testing.T) {
	svc := newInsights(t, insightTable(), 30)

	out, err := svc.CropInsights(context.Background(), "Rice", "North")
	require.NoError(t, err)

	assert.Equal(t, "North", out.Region)
	assert.Empty(t, out.YieldByRegion)
	assert.Empty(t, out.BestRegion)
	assert.Equal(t, []string{"North"}, out.TopRegions)
	require.NotNil(t, out.ExpectedYield)
}

func TestCropInsights_FewRows(t *testing.T) {
	svc := newInsights(t, syntheticRows("North", "Rice", 4, 0, 0), 30)

	out, err := svc.CropInsights(context.Background(), "Rice", "North")
	require.NoError(t, err)

	assert.Empty(t, out.FactorImpact)
	assert.Nil(t, out.ExpectedYield)
	for _, s := range out.Summary {
		assert.NotContains(t, s, "most important factors")
	}
}

func TestInsights_RequiredParameters(t *testing.T) {
	svc := newInsights(t, insightTable(), 30)
	ctx := context.Background()
	var ve *models.ValidationError

	_, err := svc.RegionInsights(ctx, " ", "Rice")
	assert.True(t, errors.As(err, &ve))

	_, err = svc.CropInsights(ctx, "", "North")
	assert.True(t, errors.As(err, &ve))

	_, err = svc.ImprovementStrategies(ctx, "North", "")
	assert.True(t, errors.As(err, &ve))
}

func TestImprovementStrategies(t *testing.T) {
	rows := syntheticRows("North", "Rice", 40, 0, 0)
	rows = append(rows, syntheticRows("South", "Rice", 5, 0, 0)...)

	tests := []struct {
		name      string
		region    string
		threshold float64
		want      []string
	}{
		{"irrigation only", "North", 30, []string{"Irrigation", "General"}},
		{"lower threshold", "North", 20, []string{"Irrigation", "Fertilizer", "General"}},
		{"everything", "North", 0, []string{"Irrigation", "Fertilizer", "Rainfall", "General"}},
		{"too few rows", "South", 30, []string{"General"}},
		{"no rows", "West", 30, []string{"General"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newInsights(t, rows, tt.threshold)

			blocks, err := svc.ImprovementStrategies(context.Background(), tt.region, "Rice")
			require.NoError(t, err)

			got := make([]string, 0, len(blocks))
			for _, b := range blocks {
				got = append(got, b.Factor)
				assert.NotEmpty(t, b.Strategies)
			}
			assert.Equal(t, tt.want, got)

			general := blocks[len(blocks)-1]
			assert.Equal(t, "Variable", general.Impact)
			assert.Nil(t, general.CurrentValue)
		})
	}
}

func TestImprovementStrategies_BlockContent(t *testing.T) {
	rows := syntheticRows("North", "Rice", 40, 0, 0)
	svc := newInsights(t, rows, 30)

	blocks, err := svc.ImprovementStrategies(context.Background(), "North", "Rice")
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	irr := blocks[0]
	assert.Equal(t, "58.8%", irr.Impact)
	require.NotNil(t, irr.CurrentValue)

	mean := 0.0
	for _, r := range rows {
		mean += r.Irrigation
	}
	assert.Equal(t, round(mean/float64(len(rows)), 1), *irr.CurrentValue)
	assert.Contains(t, irr.Strategies, "Install drip irrigation systems")

	// callers must not be able to edit the catalog through a block
	irr.Strategies[0] = "changed"
	again, err := svc.ImprovementStrategies(context.Background(), "North", "Rice")
	require.NoError(t, err)
	assert.Equal(t, "Install drip irrigation systems", again[0].Strategies[0])
}

func TestTrendDirection(t *testing.T) {
	series := func(means ...float64) []models.YearYield {
		out := make([]models.YearYield, len(means))
		for i, m := range means {
			out[i] = models.YearYield{Year: 2010 + i, Mean: models.NullFloat(m), Count: 1}
		}
		return out
	}

	tests := []struct {
		name  string
		trend []models.YearYield
		want  string
	}{
		{"empty", nil, TrendStable},
		{"single point", series(3), TrendStable},
		{"flat", series(3, 3.001, 2.999, 3), TrendStable},
		{"rising", series(2, 2.5, 3, 3.5), TrendIncreasing},
		{"falling", series(4, 3.5, 3.6, 3), TrendDecreasing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trendDirection(tt.trend))
		})
	}
}
