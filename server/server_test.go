package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"catalog-hierarchy/config"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Events.Backend = "none"
	cfg.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	container, err := services.NewServiceFactory(cfg).
		WithLogger(services.NewNopLogger()).
		CreateServices(context.Background())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return NewServer(cfg, container)
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func decodeNode(t *testing.T, w *httptest.ResponseRecorder) models.CategoryNode {
	t.Helper()
	var node models.CategoryNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &node))
	return node
}

func TestServer_CategoryLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, "POST", "/api/v1/categories", map[string]interface{}{"name": "Electronics"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	electronics := decodeNode(t, w)
	assert.Equal(t, "electronics", electronics.MaterializedPath)

	w = do(t, s, "POST", "/api/v1/categories", map[string]interface{}{"parent_id": electronics.ID, "name": "Phones"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	phones := decodeNode(t, w)
	assert.Equal(t, "electronics/phones", phones.MaterializedPath)
	assert.Equal(t, 1, phones.Depth)

	w = do(t, s, "POST", "/api/v1/categories", map[string]interface{}{"name": "Home"})
	require.Equal(t, http.StatusCreated, w.Code)
	home := decodeNode(t, w)

	w = do(t, s, "GET", "/api/v1/categories?path=electronics/phones", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, phones.ID, decodeNode(t, w).ID)

	w = do(t, s, "GET", "/api/v1/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var roots models.NodeListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &roots))
	assert.Equal(t, 2, roots.Count)

	w = do(t, s, "POST", fmt.Sprintf("/api/v1/categories/%s/move", phones.ID), map[string]interface{}{"new_parent_id": home.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var moved models.MoveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &moved))
	assert.Equal(t, "home/phones", moved.Node.MaterializedPath)

	w = do(t, s, "GET", fmt.Sprintf("/api/v1/categories/common-ancestor?a=%s&b=%s", phones.ID, home.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, home.ID, decodeNode(t, w).ID)

	w = do(t, s, "GET", fmt.Sprintf("/api/v1/categories/%s/descendants", home.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var descendants models.NodeListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &descendants))
	assert.Equal(t, 1, descendants.Count)

	w = do(t, s, "DELETE", "/api/v1/categories/"+home.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, "DELETE", "/api/v1/categories/"+phones.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, s, "GET", "/api/v1/categories/"+phones.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, "GET", "/api/v1/hierarchy/validate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report models.ValidationReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 2, report.NodesTotal)
	assert.Empty(t, report.Anomalies)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/health", "/api/v1/health"} {
		w := do(t, s, "GET", path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)

		var health services.SystemHealth
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
		assert.Equal(t, services.HealthStatusHealthy, health.Status)
		assert.Contains(t, health.Components, "store")
		assert.Contains(t, health.Components, "hierarchy")
	}
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, nil)

	do(t, s, "GET", "/api/v1/categories", nil)

	w := do(t, s, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "catalog_hierarchy_http_requests_total")
	assert.Contains(t, w.Body.String(), `route="/api/v1/categories"`)
}

func TestServer_MetricsDisabled(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Performance.MetricsEnabled = false
	})

	w := do(t, s, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_RateLimitsMutationsOnly(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	})

	w := do(t, s, "POST", "/api/v1/categories", map[string]interface{}{"name": "Garden"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, "POST", "/api/v1/categories", map[string]interface{}{"name": "Tools"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "RATE_LIMITED", apiErr.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	for i := 0; i < 3; i++ {
		w = do(t, s, "GET", "/api/v1/categories", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest("OPTIONS", "/api/v1/categories/bulk-move", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}

func TestServer_FixedRoutesWinOverID(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, "GET", "/api/v1/categories/common-ancestor", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var apiErr models.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	assert.Equal(t, "MISSING_FIELD", apiErr.Code)

	w = do(t, s, "POST", "/api/v1/categories", map[string]interface{}{"name": "Garden"})
	require.Equal(t, http.StatusCreated, w.Code)
	garden := decodeNode(t, w)

	w = do(t, s, "PUT", "/api/v1/categories/reorder", map[string]interface{}{"ordered_child_ids": []string{garden.ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ordered models.NodeListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ordered))
	assert.Equal(t, 1, ordered.Count)
}
