package models

import (
	"math"
	"strconv"
	"strings"
)

// Record is one row of the crop yield table. Immutable once loaded.
type Record struct {
	Region     string  `json:"region" db:"region"`
	Crop       string  `json:"crop" db:"crop"`
	SoilType   string  `json:"soil_type" db:"soil_type"`
	Season     string  `json:"season" db:"season"`
	Year       int     `json:"year" db:"year"`
	Rainfall   float64 `json:"rainfall_mm" db:"rainfall_mm"`
	Irrigation float64 `json:"irrigation_pct" db:"irrigation_pct"`
	Fertilizer float64 `json:"fertilizer_kg_ha" db:"fertilizer_kg_ha"`
	Yield      float64 `json:"yield_t_ha" db:"yield_t_ha"`
}

// Numeric returns the value of a numeric field (Year included).
func (r *Record) Numeric(f Field) (float64, bool) {
	switch f {
	case FieldYear:
		return float64(r.Year), true
	case FieldRainfall:
		return r.Rainfall, true
	case FieldIrrigation:
		return r.Irrigation, true
	case FieldFertilizer:
		return r.Fertilizer, true
	case FieldYield:
		return r.Yield, true
	}
	return 0, false
}

// Label returns the field rendered as a string, used for equality filters and grouping.
func (r *Record) Label(f Field) string {
	switch f {
	case FieldRegion:
		return r.Region
	case FieldCrop:
		return r.Crop
	case FieldSoilType:
		return r.SoilType
	case FieldSeason:
		return r.Season
	case FieldYear:
		return strconv.Itoa(r.Year)
	}
	v, _ := r.Numeric(f)
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Features returns the regression inputs in FeatureFields order.
func (r *Record) Features() []float64 {
	return []float64{r.Rainfall, r.Irrigation, r.Fertilizer}
}

// RawCropRecord represents a single line from an input CSV file, keyed by
// resolved schema field. Used during loading and ingestion.
type RawCropRecord map[Field]string

var missingMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
}

// IsMissing reports whether a raw cell denotes an absent value.
func IsMissing(raw string) bool {
	return missingMarkers[strings.ToLower(strings.TrimSpace(raw))]
}

// ToRecord converts RawCropRecord to Record.
// Any missing or unparsable field yields a ValidationError; callers drop the row.
func (r RawCropRecord) ToRecord() (*Record, error) {
	rec := &Record{}

	for _, f := range []Field{FieldRegion, FieldCrop, FieldSoilType, FieldSeason} {
		raw := r[f]
		if IsMissing(raw) {
			return nil, &ValidationError{Field: f.String(), Value: raw, Message: "missing value for " + f.String()}
		}
		v := strings.TrimSpace(raw)
		switch f {
		case FieldRegion:
			rec.Region = v
		case FieldCrop:
			rec.Crop = v
		case FieldSoilType:
			rec.SoilType = v
		case FieldSeason:
			rec.Season = v
		}
	}

	year, err := parseNumber(FieldYear, r[FieldYear])
	if err != nil {
		return nil, err
	}
	if year != math.Trunc(year) {
		return nil, &ValidationError{Field: FieldYear.String(), Value: r[FieldYear], Message: "year must be a whole number"}
	}
	rec.Year = int(year)

	if rec.Rainfall, err = parseNumber(FieldRainfall, r[FieldRainfall]); err != nil {
		return nil, err
	}
	if rec.Irrigation, err = parseNumber(FieldIrrigation, r[FieldIrrigation]); err != nil {
		return nil, err
	}
	if rec.Fertilizer, err = parseNumber(FieldFertilizer, r[FieldFertilizer]); err != nil {
		return nil, err
	}
	if rec.Yield, err = parseNumber(FieldYield, r[FieldYield]); err != nil {
		return nil, err
	}

	return rec, nil
}

func parseNumber(f Field, raw string) (float64, error) {
	if IsMissing(raw) {
		return 0, &ValidationError{Field: f.String(), Value: raw, Message: "missing value for " + f.String()}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: f.String(), Value: raw, Message: "invalid number for " + f.String()}
	}
	return v, nil
}
