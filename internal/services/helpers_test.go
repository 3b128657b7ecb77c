package services

import (
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

func testDeps(t *testing.T) (*logging.StructuredLogger, *metrics.Collector) {
	t.Helper()
	logger := logging.NewStructuredLogger("services-test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	return logger, metrics.NewCollector("test", prometheus.NewRegistry())
}

func testModelConfig() config.ModelConfig {
	return config.ModelConfig{
		MinRows:       10,
		ForestMinRows: 50,
		Trees:         20,
		Seed:          42,
		FitTimeout:    time.Minute,
	}
}

// syntheticRows builds n rows whose yield is an exact linear function of
// rainfall, irrigation and fertilizer, plus trend per year after 2010 and
// soilBonus on Alluvial rows. Years cycle over 2010..2015.
func syntheticRows(region, crop string, n int, trend, soilBonus float64) []models.Record {
	out := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		rain := 500 + 37*float64(i%7) + 3*float64(i)
		irr := 40 + float64((i*13)%17)
		fert := 100 + float64((i*29)%23)
		year := 2010 + i%6

		soil, season := "Red", "Rabi"
		bonus := 0.0
		if i%2 == 0 {
			soil = "Alluvial"
			bonus = soilBonus
		}
		if i%3 == 0 {
			season = "Kharif"
		}

		out = append(out, models.Record{
			Region:     region,
			Crop:       crop,
			SoilType:   soil,
			Season:     season,
			Year:       year,
			Rainfall:   rain,
			Irrigation: irr,
			Fertilizer: fert,
			Yield:      1 + 0.002*rain + 0.01*irr + 0.005*fert + trend*float64(year-2010) + bonus,
		})
	}
	return out
}

func shiftYield(rows []models.Record, delta float64) []models.Record {
	for i := range rows {
		rows[i].Yield += delta
	}
	return rows
}

func newAggregation(t *testing.T, rows []models.Record) *AggregationService {
	t.Helper()
	logger, m := testDeps(t)
	return NewAggregationService(dataset.New(rows, "test"), logger, m)
}
