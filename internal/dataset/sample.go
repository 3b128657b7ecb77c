package dataset

import (
	"math"
	"math/rand"

	"agri-yield-platform/internal/models"
)

var (
	sampleRegions = []string{"Northern Plains", "Eastern Plains", "Central Plains", "Western Dry", "Southern Plains", "Coastal Region", "Hill Region"}
	sampleCrops   = []string{"Rice", "Wheat", "Maize", "Sugarcane", "Cotton", "Pulses"}
	sampleSoils   = []string{"Alluvial", "Black", "Red", "Laterite", "Arid"}
	sampleSeasons = []string{"Kharif", "Rabi", "Zaid"}
)

const (
	sampleFirstYear = 2010
	sampleLastYear  = 2022
	// share of (region, crop, year) combinations left out
	sampleSkipRate = 0.3
)

// SampleOptions controls the synthetic dataset.
type SampleOptions struct {
	Seed               int64
	RowsPerCombination int
}

// GenerateSample synthesizes a deterministic table for a given seed. Yield
// responds linearly to rainfall, irrigation and fertilizer with a mild
// upward trend across years.
func GenerateSample(opts SampleOptions) *Table {
	perCombo := opts.RowsPerCombination
	if perCombo <= 0 {
		perCombo = 1
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	var records []models.Record
	for _, region := range sampleRegions {
		for _, crop := range sampleCrops {
			for year := sampleFirstYear; year <= sampleLastYear; year++ {
				if rng.Float64() <= sampleSkipRate {
					continue
				}
				for i := 0; i < perCombo; i++ {
					records = append(records, sampleRecord(rng, region, crop, year))
				}
			}
		}
	}
	return New(records, "sample")
}

func sampleRecord(rng *rand.Rand, region, crop string, year int) models.Record {
	rainfall := normal(rng, 900, 300)
	irrigation := normal(rng, 60, 20)
	fertilizer := normal(rng, 150, 50)

	yield := normal(rng, 3, 1) +
		0.001*(rainfall-600) +
		0.01*irrigation +
		0.005*fertilizer
	yield = math.Max(0.5, yield)
	yield += float64(year-sampleFirstYear) * 0.05 * normal(rng, 1, 0.2)

	return models.Record{
		Region:     region,
		Crop:       crop,
		SoilType:   sampleSoils[rng.Intn(len(sampleSoils))],
		Season:     sampleSeasons[rng.Intn(len(sampleSeasons))],
		Year:       year,
		Rainfall:   round(rainfall, 1),
		Irrigation: round(irrigation, 1),
		Fertilizer: round(fertilizer, 1),
		Yield:      round(yield, 2),
	}
}

func normal(rng *rand.Rand, mean, std float64) float64 {
	return mean + std*rng.NormFloat64()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
