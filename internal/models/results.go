package models

import (
	"math"
	"strconv"
)

// YieldUnit is reported alongside every yield prediction.
const YieldUnit = "tonnes/ha"

// NullFloat is a float64 that encodes NaN and infinities as JSON null.
type NullFloat float64

// NaN returns an undefined NullFloat.
func NaN() NullFloat { return NullFloat(math.NaN()) }

// Valid reports whether the value is a finite number.
func (f NullFloat) Valid() bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (f NullFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(f), 'g', -1, 64), nil
}

func (f *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = NaN()
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = NullFloat(v)
	return nil
}

// RegionYield is one group of yieldByRegion.
type RegionYield struct {
	Region string    `json:"region"`
	Mean   NullFloat `json:"mean"`
	Std    NullFloat `json:"std"`
	Count  int       `json:"count"`
}

// FactorBucket is one group of yieldByFactor. Bucket is the category label or
// the quantile interval label for continuous factors.
type FactorBucket struct {
	Bucket string    `json:"bucket"`
	Mean   NullFloat `json:"mean"`
	Count  int       `json:"count"`
}

// YearYield is one group of yieldTrend.
type YearYield struct {
	Year  int       `json:"year"`
	Mean  NullFloat `json:"mean"`
	Std   NullFloat `json:"std"`
	Count int       `json:"count"`
}

// CorrelationMatrix maps factor -> factor -> Pearson coefficient.
type CorrelationMatrix map[string]map[string]NullFloat

// FactorImpact maps a feature factor name to its share of the summed absolute
// regression coefficients, in percent. Empty when the subset is too small.
type FactorImpact map[string]float64

// Dominant returns the factors ordered by descending impact, ties by name.
func (fi FactorImpact) Dominant() []string {
	out := make([]string, 0, len(fi))
	for k := range fi {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && fi.less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (fi FactorImpact) less(a, b string) bool {
	if fi[a] != fi[b] {
		return fi[a] > fi[b]
	}
	return a < b
}

// PredictionRequest is the body of a yield prediction call.
type PredictionRequest struct {
	Region     string  `json:"region"`
	Crop       string  `json:"crop"`
	Rainfall   float64 `json:"rainfall"`
	Irrigation float64 `json:"irrigation"`
	Fertilizer float64 `json:"fertilizer"`
}

// Prediction is a point estimate from the cached per-(region, crop) model.
type Prediction struct {
	PredictedYield float64 `json:"predicted_yield"`
	Unit           string  `json:"unit"`
	ModelType      string  `json:"model_type"`
	TrainingRows   int     `json:"training_rows"`
}

// RegionInsights is the narrative summary for one region.
type RegionInsights struct {
	Region          string       `json:"region"`
	Crop            string       `json:"crop"`
	RowCount        int          `json:"row_count"`
	AverageYield    NullFloat    `json:"average_yield"`
	YieldTrend      []YearYield  `json:"yield_trend"`
	TrendDirection  string       `json:"trend_direction"`
	FactorImpact    FactorImpact `json:"factor_impact"`
	DominantFactor  string       `json:"dominant_factor,omitempty"`
	BestSoil        string       `json:"best_soil,omitempty"`
	TopCrops        []string     `json:"top_crops"`
	ExpectedYield   *float64     `json:"expected_yield,omitempty"`
	Summary         []string     `json:"summary"`
	Recommendations []string     `json:"recommendations"`
}

// CropInsights is the narrative summary for one crop.
type CropInsights struct {
	Crop            string        `json:"crop"`
	Region          string        `json:"region"`
	RowCount        int           `json:"row_count"`
	AverageYield    NullFloat     `json:"average_yield"`
	TrendDirection  string        `json:"trend_direction"`
	YieldByRegion   []RegionYield `json:"yield_by_region"`
	BestRegion      string        `json:"best_region,omitempty"`
	WorstRegion     string        `json:"worst_region,omitempty"`
	TopRegions      []string      `json:"top_regions"`
	FactorImpact    FactorImpact  `json:"factor_impact"`
	BestSeason      string        `json:"best_season,omitempty"`
	ExpectedYield   *float64      `json:"expected_yield,omitempty"`
	Summary         []string      `json:"summary"`
	Recommendations []string      `json:"recommendations"`
}

// StrategyBlock is one entry of the improvement strategy list. CurrentValue is
// the subset mean of the factor and is absent for the general block.
type StrategyBlock struct {
	Factor       string   `json:"factor"`
	Impact       string   `json:"impact"`
	CurrentValue *float64 `json:"current_value,omitempty"`
	Strategies   []string `json:"strategies"`
}
