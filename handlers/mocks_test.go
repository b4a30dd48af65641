package handlers

import (
	"context"

	"catalog-hierarchy/models"
	"catalog-hierarchy/services"

	"github.com/stretchr/testify/mock"
)

// MockHierarchyService for testing handlers
type MockHierarchyService struct {
	mock.Mock
}

func (m *MockHierarchyService) nodes(args mock.Arguments) ([]*models.CategoryNode, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.CategoryNode), args.Error(1)
}

func (m *MockHierarchyService) node(args mock.Arguments) (*models.CategoryNode, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CategoryNode), args.Error(1)
}

func (m *MockHierarchyService) moveResult(args mock.Arguments) (*models.MoveResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MoveResult), args.Error(1)
}

func (m *MockHierarchyService) moveResults(args mock.Arguments) ([]*models.MoveResult, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.MoveResult), args.Error(1)
}

func (m *MockHierarchyService) Get(ctx context.Context, id string) (*models.CategoryNode, error) {
	return m.node(m.Called(ctx, id))
}

func (m *MockHierarchyService) GetByPath(ctx context.Context, path string) (*models.CategoryNode, error) {
	return m.node(m.Called(ctx, path))
}

func (m *MockHierarchyService) Children(ctx context.Context, parentID *string) ([]*models.CategoryNode, error) {
	return m.nodes(m.Called(ctx, parentID))
}

func (m *MockHierarchyService) Ancestors(ctx context.Context, nodeID string) ([]*models.CategoryNode, error) {
	return m.nodes(m.Called(ctx, nodeID))
}

func (m *MockHierarchyService) RootPath(ctx context.Context, nodeID string) ([]*models.CategoryNode, error) {
	return m.nodes(m.Called(ctx, nodeID))
}

func (m *MockHierarchyService) Descendants(ctx context.Context, nodeID string, maxDepth *int) ([]*models.CategoryNode, error) {
	return m.nodes(m.Called(ctx, nodeID, maxDepth))
}

func (m *MockHierarchyService) Siblings(ctx context.Context, nodeID string, includeSelf bool) ([]*models.CategoryNode, error) {
	return m.nodes(m.Called(ctx, nodeID, includeSelf))
}

func (m *MockHierarchyService) CommonAncestor(ctx context.Context, a, b string) (*models.CategoryNode, error) {
	return m.node(m.Called(ctx, a, b))
}

func (m *MockHierarchyService) Create(ctx context.Context, input models.CreateCategoryInput) (*models.CategoryNode, error) {
	return m.node(m.Called(ctx, input))
}

func (m *MockHierarchyService) Move(ctx context.Context, nodeID string, newParentID *string) (*models.MoveResult, error) {
	return m.moveResult(m.Called(ctx, nodeID, newParentID))
}

func (m *MockHierarchyService) BulkMove(ctx context.Context, moves []models.MoveRequest) ([]*models.MoveResult, error) {
	return m.moveResults(m.Called(ctx, moves))
}

func (m *MockHierarchyService) BulkReparent(ctx context.Context, fromParentID, toParentID *string) ([]*models.MoveResult, error) {
	return m.moveResults(m.Called(ctx, fromParentID, toParentID))
}

func (m *MockHierarchyService) Reorder(ctx context.Context, parentID *string, orderedChildIDs []string) ([]*models.CategoryNode, error) {
	return m.nodes(m.Called(ctx, parentID, orderedChildIDs))
}

func (m *MockHierarchyService) Rename(ctx context.Context, nodeID, newName string) (*models.MoveResult, error) {
	return m.moveResult(m.Called(ctx, nodeID, newName))
}

func (m *MockHierarchyService) Delete(ctx context.Context, nodeID string) error {
	return m.Called(ctx, nodeID).Error(0)
}

func (m *MockHierarchyService) ValidateForest(ctx context.Context) (*models.ValidationReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ValidationReport), args.Error(1)
}

func (m *MockHierarchyService) Repair(ctx context.Context, anomalies []models.Anomaly) (*models.RepairReport, error) {
	args := m.Called(ctx, anomalies)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RepairReport), args.Error(1)
}

func (m *MockHierarchyService) ResolveOrphan(ctx context.Context, nodeID string, resolution models.OrphanResolution) (*models.MoveResult, error) {
	return m.moveResult(m.Called(ctx, nodeID, resolution))
}

func (m *MockHierarchyService) CacheStats() services.CacheStats {
	return m.Called().Get(0).(services.CacheStats)
}

func (m *MockHierarchyService) ClearCache(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockHierarchyService) QueryStats() services.QueryStatistics {
	return m.Called().Get(0).(services.QueryStatistics)
}

func (m *MockHierarchyService) SlowQueries(limit int) []services.SlowQueryRecord {
	return m.Called(limit).Get(0).([]services.SlowQueryRecord)
}

func testNode(id, parent, name, path string, depth int) *models.CategoryNode {
	return &models.CategoryNode{
		ID:               id,
		ParentID:         models.StringPtr(parent),
		Name:             name,
		MaterializedPath: path,
		Depth:            depth,
	}
}
