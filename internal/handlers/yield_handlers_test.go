package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/internal/services"
	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

func fixtureRows() []models.Record {
	var rows []models.Record
	add := func(region, crop string, n int, offset float64) {
		for i := 0; i < n; i++ {
			rain := 600 + 25*float64(i%5) + 4*float64(i)
			irr := 30 + float64((i*7)%11)*3
			fert := 90 + float64((i*5)%13)*4
			soil := "Red"
			if i%2 == 0 {
				soil = "Alluvial"
			}
			rows = append(rows, models.Record{
				Region: region, Crop: crop, SoilType: soil, Season: []string{"Kharif", "Rabi", "Zaid"}[i%3],
				Year: 2015 + i%4, Rainfall: rain, Irrigation: irr, Fertilizer: fert,
				Yield: offset + 0.002*rain + 0.01*irr + 0.004*fert,
			})
		}
	}
	add("North", "Rice", 20, 1)
	add("South", "Rice", 12, 0.5)
	add("South", "Wheat", 4, 0.2)
	return rows
}

type fakeStore struct{ err error }

func (f fakeStore) HealthCheck(context.Context) error { return f.err }

func newTestServer(t *testing.T) (*YieldHandler, *mux.Router, *metrics.Collector) {
	t.Helper()

	logger := logging.NewStructuredLogger("handlers-test", "test", logging.DebugLevel)
	logger.SetOutput(io.Discard)
	m := metrics.NewCollector("test", prometheus.NewRegistry())

	table := dataset.New(fixtureRows(), "fixture")
	catalog, err := services.DefaultCatalog()
	require.NoError(t, err)

	agg := services.NewAggregationService(table, logger, m)
	predictor := services.NewPredictionService(table, config.ModelConfig{
		MinRows: 10, ForestMinRows: 50, Trees: 10, Seed: 42, FitTimeout: time.Minute,
	}, logger, m)
	insights := services.NewInsightService(agg, predictor, catalog, config.InsightsConfig{StrategyThreshold: 30}, logger, m)

	h := NewYieldHandler(agg, predictor, insights, logger, m)
	return h, NewRouter(h), m
}

func do(t *testing.T, router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestListEndpoints(t *testing.T) {
	_, router, m := newTestServer(t)

	tests := []struct {
		path string
		want []string
	}{
		{"/regions", []string{"North", "South"}},
		{"/api/regions", []string{"North", "South"}},
		{"/crops", []string{"Rice", "Wheat"}},
		{"/soil-types", []string{"Alluvial", "Red"}},
		{"/api/seasons", []string{"Kharif", "Rabi", "Zaid"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var got []string
			decode(t, rec, &got)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIRequestsTotal.WithLabelValues("/api/regions", "GET", "200")))
}

func TestYieldByRegionEndpoint(t *testing.T) {
	_, router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/yield-by-region?crop=Rice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var groups []models.RegionYield
	decode(t, rec, &groups)
	require.Len(t, groups, 2)
	assert.Equal(t, "North", groups[0].Region)
	assert.Equal(t, 20, groups[0].Count)
	assert.Equal(t, 12, groups[1].Count)
}

func TestYieldByFactorEndpoint(t *testing.T) {
	_, router, m := newTestServer(t)

	t.Run("unknown factor", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/yield-by-factor?factor=Humidity", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		decode(t, rec, &resp)
		assert.Equal(t, http.StatusBadRequest, resp.Code)
		assert.Contains(t, resp.Message, "Humidity")
		assert.Equal(t, models.ValidFactors(), resp.ValidFactors)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("unknown_factor", "/api/yield-by-factor")))
	})

	t.Run("missing factor", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/yield-by-factor", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("binned", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/yield-by-factor?factor=Rainfall&region=North", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var buckets []models.FactorBucket
		decode(t, rec, &buckets)
		assert.NotEmpty(t, buckets)
		assert.LessOrEqual(t, len(buckets), 5)
	})
}

func TestAnalyticsEndpoints(t *testing.T) {
	_, router, _ := newTestServer(t)

	t.Run("trend", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/yield-trend?region=North&crop=Rice", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var trend []models.YearYield
		decode(t, rec, &trend)
		require.Len(t, trend, 4)
		assert.Equal(t, 2015, trend[0].Year)
	})

	t.Run("correlation with undefined entries", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/correlation-matrix?region=Nowhere", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{}`, rec.Body.String())

		rec = do(t, router, http.MethodGet, "/correlation-matrix?crop=Wheat", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var raw map[string]map[string]*float64
		decode(t, rec, &raw)
		require.Contains(t, raw, "Yield")
		require.NotNil(t, raw["Yield"]["Yield"])
		assert.Equal(t, 1.0, *raw["Yield"]["Yield"])
	})

	t.Run("factor impact", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/factor-impact?region=North&crop=Rice", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var impact map[string]float64
		decode(t, rec, &impact)
		require.Len(t, impact, 3)
		sum := 0.0
		for _, v := range impact {
			sum += v
		}
		assert.InDelta(t, 100, sum, 1e-6)

		rec = do(t, router, http.MethodGet, "/factor-impact?region=South&crop=Wheat", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{}`, rec.Body.String())
	})
}

func TestInsightEndpoints(t *testing.T) {
	_, router, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		code int
	}{
		{"regional", "/regional-insights?region=North&crop=Rice", http.StatusOK},
		{"regional missing region", "/regional-insights?crop=Rice", http.StatusBadRequest},
		{"crop", "/api/crop-insights?crop=Rice", http.StatusOK},
		{"crop missing crop", "/crop-insights?region=North", http.StatusBadRequest},
		{"strategies", "/improvement-strategies?region=North&crop=Rice", http.StatusOK},
		{"strategies missing crop", "/improvement-strategies?region=North", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, router, http.MethodGet, "/improvement-strategies?region=North&crop=Rice", nil)
	var blocks []models.StrategyBlock
	decode(t, rec, &blocks)
	require.NotEmpty(t, blocks)
	assert.Equal(t, "General", blocks[len(blocks)-1].Factor)

	rec = do(t, router, http.MethodGet, "/crop-insights?crop=Rice", nil)
	var crop models.CropInsights
	decode(t, rec, &crop)
	assert.Equal(t, "North", crop.BestRegion)
	assert.Equal(t, "South", crop.WorstRegion)
}

func TestPredictYieldEndpoint(t *testing.T) {
	h, router, _ := newTestServer(t)

	t.Run("prediction", func(t *testing.T) {
		body := []byte(`{"region":"North","crop":"Rice","rainfall":650,"irrigation":45,"fertilizer":110}`)
		rec := do(t, router, http.MethodPost, "/api/predict-yield", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var pred models.Prediction
		decode(t, rec, &pred)
		assert.Equal(t, models.YieldUnit, pred.Unit)
		assert.InDelta(t, 1+0.002*650+0.01*45+0.004*110, pred.PredictedYield, 1e-6)
		assert.Equal(t, 1, h.predictor.CachedModels())
	})

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"insufficient data", `{"region":"South","crop":"Wheat","rainfall":650,"irrigation":45,"fertilizer":110}`, "insufficient data"},
		{"missing rainfall", `{"region":"North","crop":"Rice","irrigation":45,"fertilizer":110}`, "rainfall is required"},
		{"missing region", `{"crop":"Rice","rainfall":1,"irrigation":45,"fertilizer":110}`, "region is required"},
		{"malformed", `{"region":`, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/predict-yield", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			decode(t, rec, &resp)
			assert.Contains(t, resp.Message, tt.message)
		})
	}

	rec := do(t, router, http.MethodGet, "/predict-yield", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h, router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	var status map[string]interface{}
	decode(t, rec, &status)
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, float64(len(fixtureRows())), status["rows"])
	assert.Equal(t, "fixture", status["source"])

	rec = do(t, router, http.MethodGet, "/api/health", nil)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	h.WithStore(fakeStore{err: errors.New("connection refused")})
	rec = do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decode(t, rec, &status)
	assert.Equal(t, "degraded", status["status"])
}

func TestDocsEndpoints(t *testing.T) {
	_, router, _ := newTestServer(t)

	rec := do(t, router, http.MethodGet, "/api/docs/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var spec struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	decode(t, rec, &spec)
	assert.Equal(t, "3.0.0", spec.OpenAPI)
	for _, p := range []string{"/regions", "/yield-by-factor", "/predict-yield", "/improvement-strategies", "/health"} {
		assert.Contains(t, spec.Paths, p)
	}

	rec = do(t, router, http.MethodGet, "/api/docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "swagger-ui"))

	rec = do(t, router, http.MethodGet, "/api", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	_, router, m := newTestServer(t)
	router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := do(t, router, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("panic", "/boom")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveConnections))
}
