package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"agri-yield-platform/internal/models"
	"agri-yield-platform/internal/services"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// YieldHandler serves the yield analytics API
type YieldHandler struct {
	aggregation *services.AggregationService
	predictor   *services.PredictionService
	insights    *services.InsightService
	store       HealthChecker
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// NewYieldHandler creates a new yield handler
func NewYieldHandler(
	aggregation *services.AggregationService,
	predictor *services.PredictionService,
	insights *services.InsightService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *YieldHandler {
	return &YieldHandler{
		aggregation: aggregation,
		predictor:   predictor,
		insights:    insights,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// WithStore makes the health endpoint probe store as well.
func (h *YieldHandler) WithStore(store HealthChecker) *YieldHandler {
	h.store = store
	return h
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	Code         int      `json:"code"`
	ValidFactors []string `json:"valid_factors,omitempty"`
}

// predictYieldBody uses pointers so absent inputs can be told apart from zero.
type predictYieldBody struct {
	Region     string   `json:"region"`
	Crop       string   `json:"crop"`
	Rainfall   *float64 `json:"rainfall"`
	Irrigation *float64 `json:"irrigation"`
	Fertilizer *float64 `json:"fertilizer"`
}

// APIRoot handles GET /api
func (h *YieldHandler) APIRoot(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, r, map[string]string{
		"message": "Welcome to the Agricultural Yield Analysis API",
		"docs":    "/api/docs",
	}, http.StatusOK)
}

func (h *YieldHandler) uniqueValues(field models.Field) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.sendJSON(w, r, h.aggregation.UniqueValues(field), http.StatusOK)
	}
}

// YieldByRegion handles GET /yield-by-region
func (h *YieldHandler) YieldByRegion(w http.ResponseWriter, r *http.Request) {
	crop := query(r, "crop")
	h.sendJSON(w, r, h.aggregation.YieldByRegion(r.Context(), crop), http.StatusOK)
}

// YieldByFactor handles GET /yield-by-factor
func (h *YieldHandler) YieldByFactor(w http.ResponseWriter, r *http.Request) {
	factor := query(r, "factor")
	if factor == "" {
		h.sendServiceError(w, r, &models.ValidationError{Field: "factor", Message: "factor parameter is required"})
		return
	}

	buckets, err := h.aggregation.YieldByFactor(r.Context(), factor, query(r, "region"), query(r, "crop"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, buckets, http.StatusOK)
}

// YieldTrend handles GET /yield-trend
func (h *YieldHandler) YieldTrend(w http.ResponseWriter, r *http.Request) {
	trend := h.aggregation.YieldTrend(r.Context(), query(r, "region"), query(r, "crop"))
	h.sendJSON(w, r, trend, http.StatusOK)
}

// CorrelationMatrix handles GET /correlation-matrix
func (h *YieldHandler) CorrelationMatrix(w http.ResponseWriter, r *http.Request) {
	matrix := h.aggregation.CorrelationMatrix(r.Context(), query(r, "region"), query(r, "crop"))
	h.sendJSON(w, r, matrix, http.StatusOK)
}

// FactorImpact handles GET /factor-impact
func (h *YieldHandler) FactorImpact(w http.ResponseWriter, r *http.Request) {
	impact, err := h.aggregation.FactorImpact(r.Context(), query(r, "region"), query(r, "crop"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, impact, http.StatusOK)
}

// RegionalInsights handles GET /regional-insights
func (h *YieldHandler) RegionalInsights(w http.ResponseWriter, r *http.Request) {
	out, err := h.insights.RegionInsights(r.Context(), query(r, "region"), query(r, "crop"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, out, http.StatusOK)
}

// CropInsights handles GET /crop-insights
func (h *YieldHandler) CropInsights(w http.ResponseWriter, r *http.Request) {
	out, err := h.insights.CropInsights(r.Context(), query(r, "crop"), query(r, "region"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, out, http.StatusOK)
}

// ImprovementStrategies handles GET /improvement-strategies
func (h *YieldHandler) ImprovementStrategies(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.insights.ImprovementStrategies(r.Context(), query(r, "region"), query(r, "crop"))
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, blocks, http.StatusOK)
}

// PredictYield handles POST /predict-yield
func (h *YieldHandler) PredictYield(w http.ResponseWriter, r *http.Request) {
	var body predictYieldBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.sendServiceError(w, r, &models.ValidationError{Field: "body", Message: "invalid JSON body: " + err.Error()})
		return
	}

	inputs := []struct {
		name  string
		value *float64
	}{
		{"rainfall", body.Rainfall},
		{"irrigation", body.Irrigation},
		{"fertilizer", body.Fertilizer},
	}
	for _, in := range inputs {
		if in.value == nil {
			h.sendServiceError(w, r, &models.ValidationError{Field: in.name, Message: in.name + " is required"})
			return
		}
	}

	pred, err := h.predictor.Predict(r.Context(), models.PredictionRequest{
		Region:     body.Region,
		Crop:       body.Crop,
		Rainfall:   *body.Rainfall,
		Irrigation: *body.Irrigation,
		Fertilizer: *body.Fertilizer,
	})
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	h.sendJSON(w, r, pred, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *YieldHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	table := h.aggregation.Table()

	status := map[string]interface{}{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"rows":          table.Len(),
		"source":        table.Source(),
		"cached_models": h.predictor.CachedModels(),
		"model_fits":    h.predictor.Fits(),
	}

	code := http.StatusOK
	if h.store != nil {
		if err := h.store.HealthCheck(ctx); err != nil {
			h.logger.Warn(ctx, "[HEALTH_CHECK_DEGRADED] Record store unreachable", logging.Fields{
				"error": err.Error(),
			})
			status["status"] = "degraded"
			status["store_error"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, r, status, code)
}

func query(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}

// sendJSON sends a JSON response
func (h *YieldHandler) sendJSON(w http.ResponseWriter, r *http.Request, data interface{}, statusCode int) {
	h.metrics.RecordAPIRequest(endpoint(r), r.Method, strconv.Itoa(statusCode))

	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error(r.Context(), "[API_ENCODE_ERROR] Failed to encode response", logging.Fields{
			"endpoint": endpoint(r),
		}, err)
		http.Error(w, `{"error":"Internal Server Error","message":"failed to encode response","code":500}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(payload)
}

// sendServiceError maps a service error onto a status code and error body.
func (h *YieldHandler) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		unknownFactor *models.UnknownFactorError
		insufficient  *models.InsufficientDataError
		validation    *models.ValidationError
	)

	resp := ErrorResponse{Message: err.Error()}
	errorType := "internal_error"
	switch {
	case errors.As(err, &unknownFactor):
		errorType = "unknown_factor"
		resp.Code = http.StatusBadRequest
		resp.ValidFactors = unknownFactor.ValidFactors
	case errors.As(err, &insufficient):
		errorType = "insufficient_data"
		resp.Code = http.StatusBadRequest
	case errors.As(err, &validation):
		errorType = "validation_error"
		resp.Code = http.StatusBadRequest
	default:
		resp.Code = http.StatusInternalServerError
		resp.Message = "internal computation error: " + err.Error()
		h.logger.Error(r.Context(), "[API_INTERNAL_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint(r),
			"method":   r.Method,
		}, err)
	}
	resp.Error = http.StatusText(resp.Code)

	h.metrics.RecordAPIError(errorType, endpoint(r))
	h.sendJSON(w, r, resp, resp.Code)
}

// endpoint labels metrics with the route template rather than the raw path.
func endpoint(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// RegisterRoutes registers every API route at both the bare and /api paths
func (h *YieldHandler) RegisterRoutes(router *mux.Router) {
	for _, prefix := range []string{"", "/api"} {
		router.HandleFunc(prefix+"/regions", h.uniqueValues(models.FieldRegion)).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/crops", h.uniqueValues(models.FieldCrop)).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/soil-types", h.uniqueValues(models.FieldSoilType)).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/seasons", h.uniqueValues(models.FieldSeason)).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/yield-by-region", h.YieldByRegion).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/yield-by-factor", h.YieldByFactor).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/yield-trend", h.YieldTrend).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/correlation-matrix", h.CorrelationMatrix).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/factor-impact", h.FactorImpact).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/regional-insights", h.RegionalInsights).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/crop-insights", h.CropInsights).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/improvement-strategies", h.ImprovementStrategies).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/predict-yield", h.PredictYield).Methods(http.MethodPost)
		router.HandleFunc(prefix+"/health", h.HealthCheck).Methods(http.MethodGet)
	}

	router.HandleFunc("/api", h.APIRoot).Methods(http.MethodGet)
	router.HandleFunc("/api/docs", SwaggerUI).Methods(http.MethodGet)
	router.HandleFunc("/api/docs/openapi.json", OpenAPISpec).Methods(http.MethodGet)
}
