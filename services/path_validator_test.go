package services

import (
	"context"
	"testing"

	"catalog-hierarchy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anomalyKinds(anomalies []models.Anomaly) map[string]models.AnomalyKind {
	out := make(map[string]models.AnomalyKind, len(anomalies))
	for _, a := range anomalies {
		out[a.NodeID] = a.Kind
	}
	return out
}

func TestPathValidator_CleanForest(t *testing.T) {
	validator := NewPathValidator(catalogStore(), nil, nil)

	report, err := validator.ValidateForest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.NodesTotal)
	assert.Empty(t, report.Anomalies)
	assert.Empty(t, report.CountByKind)
	assert.False(t, report.CheckTime.IsZero())
}

func TestPathValidator_PathMismatch(t *testing.T) {
	store := catalogStore()
	store.Seed(node("s", "p", "Smartphones", "electronics/phones/smart", 2, 0))

	report, err := NewPathValidator(store, nil, nil).ValidateForest(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Anomalies, 1)
	a := report.Anomalies[0]
	assert.Equal(t, models.AnomalyPathMismatch, a.Kind)
	assert.Equal(t, "s", a.NodeID)
	assert.Equal(t, "electronics/phones/smartphones", a.Expected)
	assert.Equal(t, "electronics/phones/smart", a.Actual)
	assert.Equal(t, 1, report.CountByKind[models.AnomalyPathMismatch])
}

func TestPathValidator_RenamedParentDrift(t *testing.T) {
	store := catalogStore()
	// The name changed but the stored paths were never rewritten.
	store.Seed(node("p", "e", "Mobile Phones", "electronics/phones", 1, 0))

	report, err := NewPathValidator(store, nil, nil).ValidateForest(context.Background())
	require.NoError(t, err)

	kinds := anomalyKinds(report.Anomalies)
	assert.Equal(t, models.AnomalyPathMismatch, kinds["p"])
	assert.Equal(t, models.AnomalyPathMismatch, kinds["s"])
	assert.Len(t, report.Anomalies, 2)
}

func TestPathValidator_DepthMismatch(t *testing.T) {
	store := catalogStore()
	store.Seed(node("k", "h", "Kitchen", "home/kitchen", 3, 0))

	report, err := NewPathValidator(store, nil, nil).ValidateForest(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Anomalies, 1)
	a := report.Anomalies[0]
	assert.Equal(t, models.AnomalyDepthMismatch, a.Kind)
	assert.Equal(t, "1", a.Expected)
	assert.Equal(t, "3", a.Actual)
}

func TestPathValidator_Orphan(t *testing.T) {
	store := catalogStore()
	store.Seed(
		node("o", "gone", "Orphan", "gone/orphan", 1, 0),
		node("oc", "o", "Child", "gone/orphan/child", 2, 0),
	)
	validator := NewPathValidator(store, nil, nil)
	ctx := context.Background()

	report, err := validator.ValidateForest(ctx)
	require.NoError(t, err)

	// Only the node whose parent is missing is reported.
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, models.AnomalyOrphanNode, report.Anomalies[0].Kind)
	assert.Equal(t, "o", report.Anomalies[0].NodeID)

	child, err := store.GetNode(ctx, "oc")
	require.NoError(t, err)
	anomalies, err := validator.ValidateNode(ctx, child)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyOrphanNode, anomalies[0].Kind)
	assert.Equal(t, "o", anomalies[0].NodeID)
}

func TestPathValidator_ParentCycle(t *testing.T) {
	store := catalogStore()
	store.Seed(
		node("c1", "c2", "Loop A", "loop-a", 0, 0),
		node("c2", "c1", "Loop B", "loop-b", 0, 0),
		node("c3", "c1", "Below", "loop-a/below", 1, 0),
	)

	report, err := NewPathValidator(store, nil, nil).ValidateForest(context.Background())
	require.NoError(t, err)

	kinds := anomalyKinds(report.Anomalies)
	assert.Equal(t, models.AnomalyParentCycle, kinds["c1"])
	assert.Equal(t, models.AnomalyParentCycle, kinds["c2"])
	assert.NotContains(t, kinds, "c3")
	assert.Equal(t, 2, report.CountByKind[models.AnomalyParentCycle])
}

func TestPathValidator_SortOrderCollision(t *testing.T) {
	store := catalogStore()
	store.Seed(node("x", "e", "Audio", "electronics/audio", 1, 0))

	report, err := NewPathValidator(store, nil, nil).ValidateForest(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Anomalies, 1)
	a := report.Anomalies[0]
	assert.Equal(t, models.AnomalySortOrderCollision, a.Kind)
	assert.Equal(t, "x", a.NodeID)
	require.NotNil(t, a.ParentID)
	assert.Equal(t, "e", *a.ParentID)
	assert.Contains(t, a.Actual, "shared with p")
}

func TestPathValidator_ValidateNode(t *testing.T) {
	store := catalogStore()
	validator := NewPathValidator(store, nil, nil)
	ctx := context.Background()

	s, err := store.GetNode(ctx, "s")
	require.NoError(t, err)
	anomalies, err := validator.ValidateNode(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, anomalies)

	drifted := s.Clone()
	drifted.MaterializedPath = "electronics/smartphones"
	drifted.Depth = 1
	anomalies, err = validator.ValidateNode(ctx, drifted)
	require.NoError(t, err)
	kinds := make([]models.AnomalyKind, 0, len(anomalies))
	for _, a := range anomalies {
		kinds = append(kinds, a.Kind)
	}
	assert.ElementsMatch(t, []models.AnomalyKind{models.AnomalyPathMismatch, models.AnomalyDepthMismatch}, kinds)
}

func TestExpectedSegment_FallsBackToStoredSegment(t *testing.T) {
	assert.Equal(t, "phones", expectedSegment(node("p", "e", "Phones", "electronics/whatever", 1, 0)))
	assert.Equal(t, "legacy", expectedSegment(node("l", "", "???", "legacy", 0, 0)))
	assert.Equal(t, "l", expectedSegment(node("l", "", "???", "", 0, 0)))
}
