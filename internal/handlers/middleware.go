package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"agri-yield-platform/pkg/logging"
	"agri-yield-platform/pkg/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request context with the caller's id or a fresh uuid.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// Instrument tracks in-flight requests and per-route latency.
func Instrument(m *metrics.Collector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.ActiveConnections.Inc()
			defer m.ActiveConnections.Dec()

			start := time.Now()
			defer func() {
				m.APIRequestDuration.WithLabelValues(endpoint(r)).Observe(time.Since(start).Seconds())
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Recover turns a handler panic into a 500 response.
func Recover(logger *logging.StructuredLogger, m *metrics.Collector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), "[API_PANIC] Handler panicked", logging.Fields{
					"endpoint": endpoint(r),
					"method":   r.Method,
					"panic":    rec,
				}, nil)
				m.RecordAPIError("panic", endpoint(r))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"Internal Server Error","message":"internal server error","code":500}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter wires middleware and routes for h.
func NewRouter(h *YieldHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestID, Instrument(h.metrics), Recover(h.logger, h.metrics))
	h.RegisterRoutes(router)
	return router
}
