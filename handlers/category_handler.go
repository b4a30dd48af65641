package handlers

import (
	"context"
	"net/http"

	"catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// HierarchyService is the part of services.HierarchyManager exposed over HTTP.
type HierarchyService interface {
	Get(ctx context.Context, id string) (*models.CategoryNode, error)
	GetByPath(ctx context.Context, path string) (*models.CategoryNode, error)
	Children(ctx context.Context, parentID *string) ([]*models.CategoryNode, error)
	Ancestors(ctx context.Context, nodeID string) ([]*models.CategoryNode, error)
	RootPath(ctx context.Context, nodeID string) ([]*models.CategoryNode, error)
	Descendants(ctx context.Context, nodeID string, maxDepth *int) ([]*models.CategoryNode, error)
	Siblings(ctx context.Context, nodeID string, includeSelf bool) ([]*models.CategoryNode, error)
	CommonAncestor(ctx context.Context, a, b string) (*models.CategoryNode, error)

	Create(ctx context.Context, input models.CreateCategoryInput) (*models.CategoryNode, error)
	Move(ctx context.Context, nodeID string, newParentID *string) (*models.MoveResult, error)
	BulkMove(ctx context.Context, moves []models.MoveRequest) ([]*models.MoveResult, error)
	BulkReparent(ctx context.Context, fromParentID, toParentID *string) ([]*models.MoveResult, error)
	Reorder(ctx context.Context, parentID *string, orderedChildIDs []string) ([]*models.CategoryNode, error)
	Rename(ctx context.Context, nodeID, newName string) (*models.MoveResult, error)
	Delete(ctx context.Context, nodeID string) error

	ValidateForest(ctx context.Context) (*models.ValidationReport, error)
	Repair(ctx context.Context, anomalies []models.Anomaly) (*models.RepairReport, error)
	ResolveOrphan(ctx context.Context, nodeID string, resolution models.OrphanResolution) (*models.MoveResult, error)

	CacheStats() services.CacheStats
	ClearCache(ctx context.Context) error
	QueryStats() services.QueryStatistics
	SlowQueries(limit int) []services.SlowQueryRecord
}

// CategoryHandler handles category traversal and mutation requests
type CategoryHandler struct {
	hierarchy HierarchyService
	validate  *validator.Validate
	logger    services.Logger
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(hierarchy HierarchyService, validate *validator.Validate, logger services.Logger) *CategoryHandler {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = services.NewNopLogger()
	}
	return &CategoryHandler{hierarchy: hierarchy, validate: validate, logger: logger}
}

func (h *CategoryHandler) fail(w http.ResponseWriter, err error) {
	writeAppErrorResponse(w, h.logger, err)
}

func (h *CategoryHandler) writeNodes(w http.ResponseWriter, nodes []*models.CategoryNode, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.NewNodeListResponse(nodes))
}

// ListCategories handles GET /api/v1/categories. Without parameters it lists
// the roots; ?parent_id= lists children and ?path= resolves a single node.
func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if path := r.URL.Query().Get("path"); path != "" {
		node, err := h.hierarchy.GetByPath(r.Context(), path)
		if err != nil {
			h.fail(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, node)
		return
	}

	nodes, err := h.hierarchy.Children(r.Context(), optionalIDParam(r, "parent_id"))
	h.writeNodes(w, nodes, err)
}

// CreateCategory handles POST /api/v1/categories
func (h *CategoryHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCategoryRequest
	if err := decodeAndValidate(r, h.validate, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	node, err := h.hierarchy.Create(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, node)
}

// GetCategory handles GET /api/v1/categories/{id}
func (h *CategoryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	node, err := h.hierarchy.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, node)
}

// RenameCategory handles PATCH /api/v1/categories/{id}
func (h *CategoryHandler) RenameCategory(w http.ResponseWriter, r *http.Request) {
	var req models.RenameCategoryRequest
	if err := decodeAndValidate(r, h.validate, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	result, err := h.hierarchy.Rename(r.Context(), mux.Vars(r)["id"], req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// DeleteCategory handles DELETE /api/v1/categories/{id}
func (h *CategoryHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.hierarchy.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAncestors handles GET /api/v1/categories/{id}/ancestors
func (h *CategoryHandler) GetAncestors(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.hierarchy.Ancestors(r.Context(), mux.Vars(r)["id"])
	h.writeNodes(w, nodes, err)
}

// GetRootPath handles GET /api/v1/categories/{id}/root-path
func (h *CategoryHandler) GetRootPath(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.hierarchy.RootPath(r.Context(), mux.Vars(r)["id"])
	h.writeNodes(w, nodes, err)
}

// GetDescendants handles GET /api/v1/categories/{id}/descendants?max_depth=
func (h *CategoryHandler) GetDescendants(w http.ResponseWriter, r *http.Request) {
	maxDepth, err := optionalIntParam(r, "max_depth")
	if err != nil {
		h.fail(w, err)
		return
	}

	nodes, err := h.hierarchy.Descendants(r.Context(), mux.Vars(r)["id"], maxDepth)
	h.writeNodes(w, nodes, err)
}

// GetSiblings handles GET /api/v1/categories/{id}/siblings?include_self=
func (h *CategoryHandler) GetSiblings(w http.ResponseWriter, r *http.Request) {
	includeSelf, err := boolParam(r, "include_self")
	if err != nil {
		h.fail(w, err)
		return
	}

	nodes, err := h.hierarchy.Siblings(r.Context(), mux.Vars(r)["id"], includeSelf)
	h.writeNodes(w, nodes, err)
}

// GetCommonAncestor handles GET /api/v1/categories/common-ancestor?a=&b=
func (h *CategoryHandler) GetCommonAncestor(w http.ResponseWriter, r *http.Request) {
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		h.fail(w, errors.NewValidationError(errors.ErrCodeMissingField, "Both a and b are required", nil))
		return
	}

	node, err := h.hierarchy.CommonAncestor(r.Context(), a, b)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, node)
}

// MoveCategory handles POST /api/v1/categories/{id}/move
func (h *CategoryHandler) MoveCategory(w http.ResponseWriter, r *http.Request) {
	var req models.MoveCategoryRequest
	if err := decodeAndValidate(r, h.validate, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	result, err := h.hierarchy.Move(r.Context(), mux.Vars(r)["id"], req.NewParentID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

// BulkMove handles POST /api/v1/categories/bulk-move
func (h *CategoryHandler) BulkMove(w http.ResponseWriter, r *http.Request) {
	var req models.BulkMoveRequest
	if err := decodeAndValidate(r, h.validate, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	results, err := h.hierarchy.BulkMove(r.Context(), req.Moves)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, bulkMoveResponse(results))
}

// BulkReparent handles POST /api/v1/categories/bulk-reparent
func (h *CategoryHandler) BulkReparent(w http.ResponseWriter, r *http.Request) {
	var req models.BulkReparentRequest
	if err := decodeAndValidate(r, h.validate, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	results, err := h.hierarchy.BulkReparent(r.Context(), req.FromParentID, req.ToParentID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, bulkMoveResponse(results))
}

// ReorderChildren handles PUT /api/v1/categories/reorder
func (h *CategoryHandler) ReorderChildren(w http.ResponseWriter, r *http.Request) {
	var req models.ReorderRequest
	if err := decodeAndValidate(r, h.validate, &req, false); err != nil {
		h.fail(w, err)
		return
	}

	nodes, err := h.hierarchy.Reorder(r.Context(), req.ParentID, req.OrderedChildIDs)
	h.writeNodes(w, nodes, err)
}

func bulkMoveResponse(results []*models.MoveResult) models.BulkMoveResponse {
	resp := models.BulkMoveResponse{Changes: []models.PathChange{}}
	for _, res := range results {
		if len(res.Changes) == 0 {
			continue
		}
		resp.Moved++
		resp.Changes = append(resp.Changes, res.Changes...)
	}
	return resp
}
