package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPerformanceMonitor_LabelsByRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPerformanceMonitor(time.Hour, nil, reg)

	router := mux.NewRouter()
	router.Use(pm.Middleware)
	router.HandleFunc("/api/v1/categories/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")
	router.HandleFunc("/api/v1/categories/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods("DELETE")

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/categories/"+id, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Response-Time"))
		assert.Empty(t, w.Header().Get("X-Slow-Query"))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/categories/a", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, 3.0, testutil.ToFloat64(pm.requests.WithLabelValues("/api/v1/categories/{id}", "GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requests.WithLabelValues("/api/v1/categories/{id}", "DELETE", "204")))
	assert.Equal(t, 2, testutil.CollectAndCount(pm.duration))
	assert.Equal(t, 0, testutil.CollectAndCount(pm.slow))
}

func TestPerformanceMonitor_FlagsSlowRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPerformanceMonitor(time.Millisecond, nil, reg)

	handler := pm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/anything", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Slow-Query"))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.slow.WithLabelValues("unmatched", "GET")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.requests.WithLabelValues("unmatched", "GET", "200")))
}

func TestPerformanceMonitor_WithoutRegistry(t *testing.T) {
	pm := NewPerformanceMonitor(time.Nanosecond, nil, nil)

	handler := pm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	})
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Nil(t, pm.requests)
}
