package models

import (
	"sort"
	"strings"
)

// Field identifies one column of the crop yield schema.
type Field int

const (
	FieldRegion Field = iota
	FieldCrop
	FieldSoilType
	FieldSeason
	FieldYear
	FieldRainfall
	FieldIrrigation
	FieldFertilizer
	FieldYield
)

// AllFields lists the schema in canonical column order.
var AllFields = []Field{
	FieldRegion, FieldCrop, FieldSoilType, FieldSeason, FieldYear,
	FieldRainfall, FieldIrrigation, FieldFertilizer, FieldYield,
}

// FeatureFields are the regression inputs, in model column order.
var FeatureFields = []Field{FieldRainfall, FieldIrrigation, FieldFertilizer}

// CorrelationFields are the columns of the correlation matrix.
var CorrelationFields = []Field{FieldRainfall, FieldIrrigation, FieldFertilizer, FieldYield}

type fieldInfo struct {
	factor  string   // short API factor name
	column  string   // canonical CSV header
	aliases []string // other accepted headers
}

var schema = map[Field]fieldInfo{
	FieldRegion:     {"Region", "Agro-Climatic Zone", []string{"Region", "Zone", "agro_climatic_zone"}},
	FieldCrop:       {"Crop", "Crop", nil},
	FieldSoilType:   {"Soil", "Soil Type", []string{"Soil", "soil_type"}},
	FieldSeason:     {"Season", "Season", nil},
	FieldYear:       {"Year", "Year", nil},
	FieldRainfall:   {"Rainfall", "Rainfall (mm)", []string{"Rainfall", "rainfall_mm"}},
	FieldIrrigation: {"Irrigation", "Irrigation (%)", []string{"Irrigation", "irrigation_pct"}},
	FieldFertilizer: {"Fertilizer", "Fertilizer (kg/ha)", []string{"Fertilizer Use (kg/ha)", "Fertilizer", "fertilizer_kg_ha"}},
	FieldYield:      {"Yield", "Yield (tonnes/ha)", []string{"crop_yield", "Yield", "yield_t_ha"}},
}

// String returns the canonical column header.
func (f Field) String() string {
	if info, ok := schema[f]; ok {
		return info.column
	}
	return "unknown"
}

// FactorName returns the short name used in API parameters ("Rainfall").
func (f Field) FactorName() string {
	return schema[f].factor
}

// IsCategorical reports whether the field holds string labels.
func (f Field) IsCategorical() bool {
	switch f {
	case FieldRegion, FieldCrop, FieldSoilType, FieldSeason:
		return true
	}
	return false
}

// IsContinuous reports whether grouping on the field requires quantile binning.
// Year is numeric but discrete and groups by value.
func (f Field) IsContinuous() bool {
	switch f {
	case FieldRainfall, FieldIrrigation, FieldFertilizer, FieldYield:
		return true
	}
	return false
}

var headerIndex = func() map[string]Field {
	idx := make(map[string]Field)
	for f, info := range schema {
		idx[normalizeName(info.column)] = f
		for _, a := range info.aliases {
			idx[normalizeName(a)] = f
		}
	}
	return idx
}()

var factorIndex = func() map[string]Field {
	idx := make(map[string]Field)
	for f, info := range schema {
		idx[info.factor] = f
		idx[info.column] = f
	}
	// historical header of the fertilizer column
	idx["Fertilizer Use (kg/ha)"] = FieldFertilizer
	return idx
}()

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// FieldForHeader resolves a CSV header (canonical or alias, case-insensitive).
func FieldForHeader(header string) (Field, bool) {
	f, ok := headerIndex[normalizeName(header)]
	return f, ok
}

// ResolveFactor maps an API factor name or a column name to its Field.
func ResolveFactor(name string) (Field, error) {
	if f, ok := factorIndex[strings.TrimSpace(name)]; ok {
		return f, nil
	}
	return 0, &UnknownFactorError{Factor: name, ValidFactors: ValidFactors()}
}

// ValidFactors lists the short factor names accepted by ResolveFactor.
func ValidFactors() []string {
	out := make([]string, 0, len(AllFields))
	for _, f := range AllFields {
		out = append(out, f.FactorName())
	}
	sort.Strings(out)
	return out
}
