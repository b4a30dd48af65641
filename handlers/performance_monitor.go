package handlers

import (
	"net/http"
	"strconv"
	"time"

	"catalog-hierarchy/services"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// PerformanceMonitor times HTTP requests, exports them to Prometheus and
// flags slow ones.
type PerformanceMonitor struct {
	slowQueryThreshold time.Duration
	logger             services.Logger

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	slow     *prometheus.CounterVec
}

// NewPerformanceMonitor creates a new performance monitor. A nil registerer
// disables the Prometheus collectors.
func NewPerformanceMonitor(slowQueryThreshold time.Duration, logger services.Logger, reg prometheus.Registerer) *PerformanceMonitor {
	if logger == nil {
		logger = services.NewNopLogger()
	}
	pm := &PerformanceMonitor{
		slowQueryThreshold: slowQueryThreshold,
		logger:             logger,
	}
	if reg == nil {
		return pm
	}

	pm.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_hierarchy",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})
	pm.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "catalog_hierarchy",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
	pm.slow = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "catalog_hierarchy",
		Subsystem: "http",
		Name:      "slow_requests_total",
		Help:      "HTTP requests slower than the configured threshold.",
	}, []string{"route", "method"})
	reg.MustRegister(pm.requests, pm.duration, pm.slow)

	return pm
}

// OperationMetrics contains metrics for a single request
type OperationMetrics struct {
	Route      string
	Method     string
	Duration   time.Duration
	StatusCode int
}

// Middleware records every request passing through next. Routes are labelled
// by their mux template so ids do not explode label cardinality.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK, start: start, threshold: pm.slowQueryThreshold}

		next.ServeHTTP(wrapper, r)

		pm.record(OperationMetrics{
			Route:      routeTemplate(r),
			Method:     r.Method,
			Duration:   time.Since(start),
			StatusCode: wrapper.statusCode,
		})
	})
}

func (pm *PerformanceMonitor) record(m OperationMetrics) {
	if pm.requests != nil {
		pm.requests.WithLabelValues(m.Route, m.Method, strconv.Itoa(m.StatusCode)).Inc()
		pm.duration.WithLabelValues(m.Route, m.Method).Observe(m.Duration.Seconds())
	}

	if pm.slowQueryThreshold > 0 && m.Duration > pm.slowQueryThreshold {
		if pm.slow != nil {
			pm.slow.WithLabelValues(m.Route, m.Method).Inc()
		}
		pm.logger.Warn("Slow request",
			services.String("route", m.Route),
			services.String("method", m.Method),
			services.Int("status_code", m.StatusCode),
			services.Duration("duration", m.Duration),
			services.Duration("threshold", pm.slowQueryThreshold))
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// statusRecorder captures the status code and stamps X-Response-Time before
// the header is flushed.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	start       time.Time
	threshold   time.Duration
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.wroteHeader = true
		rw.statusCode = code
		elapsed := time.Since(rw.start)
		rw.Header().Set("X-Response-Time", elapsed.String())
		if rw.threshold > 0 && elapsed > rw.threshold {
			rw.Header().Set("X-Slow-Query", "true")
		}
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
