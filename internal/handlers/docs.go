package handlers

import (
	"net/http"

	"github.com/goccy/go-json"

	"agri-yield-platform/internal/models"
)

type object = map[string]interface{}

func queryParam(name, description string, required bool) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      map[string]string{"type": "string"},
	}
}

func jsonResponse(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func arrayOf(items object) object {
	return object{"type": "array", "items": items}
}

func ref(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

var (
	numberSchema   = object{"type": "number"}
	nullableNumber = object{"type": "number", "nullable": true}
	integerSchema  = object{"type": "integer"}
	stringSchema   = object{"type": "string"}
	stringList     = arrayOf(stringSchema)

	regionParam = queryParam("region", "Agro-climatic zone", false)
	cropParam   = queryParam("crop", "Crop name", false)

	badRequest = jsonResponse("Invalid parameter, unknown factor or insufficient data", ref("Error"))
)

func getOp(summary string, params []object, ok object, withBadRequest bool) object {
	responses := object{"200": ok}
	if withBadRequest {
		responses["400"] = badRequest
	}
	op := object{"summary": summary, "responses": responses}
	if len(params) > 0 {
		op["parameters"] = params
	}
	return object{"get": op}
}

func apiPaths() object {
	return object{
		"/regions":    getOp("List regions", nil, jsonResponse("Sorted distinct regions", stringList), false),
		"/crops":      getOp("List crops", nil, jsonResponse("Sorted distinct crops", stringList), false),
		"/soil-types": getOp("List soil types", nil, jsonResponse("Sorted distinct soil types", stringList), false),
		"/seasons":    getOp("List seasons", nil, jsonResponse("Sorted distinct seasons", stringList), false),
		"/yield-by-region": getOp("Yield grouped by region",
			[]object{cropParam},
			jsonResponse("Groups ordered by descending mean", arrayOf(ref("RegionYield"))), false),
		"/yield-by-factor": getOp("Yield grouped by factor",
			[]object{
				{
					"name":        "factor",
					"in":          "query",
					"description": "Factor to group by",
					"required":    true,
					"schema":      object{"type": "string", "enum": models.ValidFactors()},
				},
				regionParam, cropParam,
			},
			jsonResponse("Category groups or up to five quantile bins", arrayOf(ref("FactorBucket"))), true),
		"/yield-trend": getOp("Yield by year",
			[]object{regionParam, cropParam},
			jsonResponse("Groups ordered by year", arrayOf(ref("YearYield"))), false),
		"/correlation-matrix": getOp("Pearson correlation of rainfall, irrigation, fertilizer and yield",
			[]object{regionParam, cropParam},
			jsonResponse("Nested factor to factor mapping; null where undefined", object{
				"type":                 "object",
				"additionalProperties": object{"type": "object", "additionalProperties": nullableNumber},
			}), false),
		"/factor-impact": getOp("Normalized absolute regression coefficients",
			[]object{regionParam, cropParam},
			jsonResponse("Percent share per factor; empty below ten rows", object{
				"type":                 "object",
				"additionalProperties": numberSchema,
			}), false),
		"/regional-insights": getOp("Narrative insights for a region",
			[]object{queryParam("region", "Agro-climatic zone", true), cropParam},
			jsonResponse("Region insights", ref("RegionInsights")), true),
		"/crop-insights": getOp("Narrative insights for a crop",
			[]object{queryParam("crop", "Crop name", true), regionParam},
			jsonResponse("Crop insights", ref("CropInsights")), true),
		"/improvement-strategies": getOp("Improvement strategies for a region and crop",
			[]object{queryParam("region", "Agro-climatic zone", true), queryParam("crop", "Crop name", true)},
			jsonResponse("Strategy blocks, general block last", arrayOf(ref("StrategyBlock"))), true),
		"/predict-yield": object{
			"post": object{
				"summary": "Predict yield",
				"requestBody": object{
					"required": true,
					"content":  object{"application/json": object{"schema": ref("PredictionRequest")}},
				},
				"responses": object{
					"200": jsonResponse("Point estimate", ref("Prediction")),
					"400": badRequest,
				},
			},
		},
		"/health": getOp("Health check", nil, jsonResponse("Service status with table and cache sizes", object{
			"type": "object",
			"properties": object{
				"status":        stringSchema,
				"timestamp":     stringSchema,
				"rows":          integerSchema,
				"source":        stringSchema,
				"cached_models": integerSchema,
				"model_fits":    integerSchema,
			},
		}), false),
	}
}

func schemas() object {
	props := func(p object) object { return object{"type": "object", "properties": p} }
	return object{
		"Error": props(object{
			"error":         stringSchema,
			"message":       stringSchema,
			"code":          integerSchema,
			"valid_factors": stringList,
		}),
		"RegionYield":  props(object{"region": stringSchema, "mean": nullableNumber, "std": nullableNumber, "count": integerSchema}),
		"FactorBucket": props(object{"bucket": stringSchema, "mean": nullableNumber, "count": integerSchema}),
		"YearYield":    props(object{"year": integerSchema, "mean": nullableNumber, "std": nullableNumber, "count": integerSchema}),
		"PredictionRequest": object{
			"type":     "object",
			"required": []string{"region", "crop", "rainfall", "irrigation", "fertilizer"},
			"properties": object{
				"region":     stringSchema,
				"crop":       stringSchema,
				"rainfall":   numberSchema,
				"irrigation": numberSchema,
				"fertilizer": numberSchema,
			},
		},
		"Prediction": props(object{
			"predicted_yield": numberSchema,
			"unit":            stringSchema,
			"model_type":      object{"type": "string", "enum": []string{"linear_regression", "random_forest"}},
			"training_rows":   integerSchema,
		}),
		"RegionInsights": props(object{
			"region":          stringSchema,
			"crop":            stringSchema,
			"row_count":       integerSchema,
			"average_yield":   nullableNumber,
			"yield_trend":     arrayOf(ref("YearYield")),
			"trend_direction": object{"type": "string", "enum": []string{"increasing", "decreasing", "stable"}},
			"factor_impact":   object{"type": "object", "additionalProperties": numberSchema},
			"dominant_factor": stringSchema,
			"best_soil":       stringSchema,
			"top_crops":       stringList,
			"expected_yield":  numberSchema,
			"summary":         stringList,
			"recommendations": stringList,
		}),
		"CropInsights": props(object{
			"crop":            stringSchema,
			"region":          stringSchema,
			"row_count":       integerSchema,
			"average_yield":   nullableNumber,
			"trend_direction": object{"type": "string", "enum": []string{"increasing", "decreasing", "stable"}},
			"yield_by_region": arrayOf(ref("RegionYield")),
			"best_region":     stringSchema,
			"worst_region":    stringSchema,
			"top_regions":     stringList,
			"factor_impact":   object{"type": "object", "additionalProperties": numberSchema},
			"best_season":     stringSchema,
			"expected_yield":  numberSchema,
			"summary":         stringList,
			"recommendations": stringList,
		}),
		"StrategyBlock": props(object{
			"factor":        stringSchema,
			"impact":        stringSchema,
			"current_value": numberSchema,
			"strategies":    stringList,
		}),
	}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the yield API.
// Every data path is also served under /api.
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	paths := apiPaths()
	paths["/metrics"] = object{
		"get": object{
			"summary": "Prometheus metrics",
			"responses": object{
				"200": object{
					"description": "Prometheus metrics in text format",
					"content":     object{"text/plain": object{"schema": stringSchema}},
				},
			},
		},
	}

	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Agricultural Yield Analytics API",
			"description": "Yield aggregation, factor impact, per-(region, crop) yield prediction and narrative insights",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8000", "description": "Local development server"},
		},
		"paths":      paths,
		"components": object{"schemas": schemas()},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
