package handlers

import (
	"net/http"
	"strconv"
	"time"

	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

const defaultSlowQueryLimit = 20

// MaintenanceHandler serves consistency checks, repairs and cache/query
// diagnostics.
type MaintenanceHandler struct {
	hierarchy HierarchyService
	validate  *validator.Validate
	logger    services.Logger
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(hierarchy HierarchyService, validate *validator.Validate, logger services.Logger) *MaintenanceHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = services.NewNopLogger()
	}
	return &MaintenanceHandler{hierarchy: hierarchy, validate: validate, logger: logger}
}

// ValidateForest handles GET /api/v1/hierarchy/validate
func (h *MaintenanceHandler) ValidateForest(w http.ResponseWriter, r *http.Request) {
	report, err := h.hierarchy.ValidateForest(r.Context())
	if err != nil {
		writeAppErrorResponse(w, h.logger, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}

// Repair handles POST /api/v1/hierarchy/repair. An empty body repairs
// whatever a fresh validation finds.
func (h *MaintenanceHandler) Repair(w http.ResponseWriter, r *http.Request) {
	var req models.RepairRequest
	if err := decodeAndValidate(r, h.validate, &req, true); err != nil {
		writeAppErrorResponse(w, h.logger, err)
		return
	}

	report, err := h.hierarchy.Repair(r.Context(), req.Anomalies)
	if err != nil {
		writeAppErrorResponse(w, h.logger, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}

// ResolveOrphan handles POST /api/v1/hierarchy/orphans/{id}/resolve
func (h *MaintenanceHandler) ResolveOrphan(w http.ResponseWriter, r *http.Request) {
	var req models.OrphanResolution
	if err := decodeAndValidate(r, h.validate, &req, false); err != nil {
		writeAppErrorResponse(w, h.logger, err)
		return
	}

	result, err := h.hierarchy.ResolveOrphan(r.Context(), mux.Vars(r)["id"], req)
	if err != nil {
		writeAppErrorResponse(w, h.logger, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// CacheStats handles GET /api/v1/cache/stats
func (h *MaintenanceHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, h.hierarchy.CacheStats())
}

// ClearCache handles POST /api/v1/cache/clear
func (h *MaintenanceHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.hierarchy.ClearCache(r.Context()); err != nil {
		writeAppErrorResponse(w, h.logger, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message":   "cache cleared successfully",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// QueryStats handles GET /api/v1/stats/queries?limit=
func (h *MaintenanceHandler) QueryStats(w http.ResponseWriter, r *http.Request) {
	limit := defaultSlowQueryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeErrorResponse(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = n
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"stats":        h.hierarchy.QueryStats(),
		"slow_queries": h.hierarchy.SlowQueries(limit),
	})
}
