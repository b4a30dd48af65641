package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"catalog-hierarchy/database"
	"catalog-hierarchy/models"

	"go.opentelemetry.io/otel/attribute"
)

// PathValidator checks stored paths and depths against the parent_id chain.
// It never writes.
type PathValidator struct {
	store   database.TreeReader
	logger  Logger
	metrics *HierarchyMetrics
}

func NewPathValidator(store database.TreeReader, logger Logger, metrics *HierarchyMetrics) *PathValidator {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &PathValidator{store: store, logger: logger, metrics: metrics}
}

// ValidateNode compares one node with the path implied by its ancestors' names.
// A broken chain is reported as an orphan anomaly naming the node whose parent
// is missing.
func (v *PathValidator) ValidateNode(ctx context.Context, node *models.CategoryNode) ([]models.Anomaly, error) {
	res, err := newReaderResolver(v.store).resolve(ctx, node)
	if err != nil {
		return nil, err
	}

	switch res.status {
	case chainOrphan, chainUnderOrphan:
		orphan := node
		if res.culprit != node.ID {
			if orphan, err = v.store.GetNode(ctx, res.culprit); err != nil {
				return nil, err
			}
		}
		return []models.Anomaly{orphanAnomaly(orphan)}, nil
	case chainCycle, chainUnderCycle:
		return []models.Anomaly{cycleAnomaly(node, res.culprit)}, nil
	}

	return compareNode(node, res), nil
}

// ValidateForest scans every node. Descendants of an orphan or of a parent
// cycle are not reported separately.
func (v *PathValidator) ValidateForest(ctx context.Context) (*models.ValidationReport, error) {
	ctx, span := startSpan(ctx, "validate_forest")
	start := time.Now()

	nodes, err := v.store.ListAll(ctx)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	anomalies, err := findAnomalies(ctx, nodes)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	report := &models.ValidationReport{
		CheckTime:   start.UTC(),
		NodesTotal:  len(nodes),
		Anomalies:   anomalies,
		CountByKind: make(map[models.AnomalyKind]int),
	}
	for _, a := range anomalies {
		report.CountByKind[a.Kind]++
	}
	report.Duration = time.Since(start)

	v.metrics.AnomaliesFound(report.CountByKind)
	span.SetAttributes(
		attribute.Int("nodes", len(nodes)),
		attribute.Int("anomalies", len(anomalies)))
	endSpan(span, nil)

	if len(anomalies) > 0 {
		v.logger.Warn("Forest validation found anomalies",
			Int("nodes", len(nodes)),
			Int("anomalies", len(anomalies)),
			Duration("duration", report.Duration))
	} else {
		v.logger.Debug("Forest validation clean",
			Int("nodes", len(nodes)),
			Duration("duration", report.Duration))
	}

	return report, nil
}

// findAnomalies is shared with the repairer, which runs it on a transaction snapshot.
func findAnomalies(ctx context.Context, nodes []*models.CategoryNode) ([]models.Anomaly, error) {
	byID := make(map[string]*models.CategoryNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	resolver := newSnapshotResolver(byID)

	anomalies := make([]models.Anomaly, 0)
	for _, n := range nodes {
		res, err := resolver.resolve(ctx, n)
		if err != nil {
			return nil, err
		}
		switch res.status {
		case chainOK:
			anomalies = append(anomalies, compareNode(n, res)...)
		case chainOrphan:
			anomalies = append(anomalies, orphanAnomaly(n))
		case chainCycle:
			anomalies = append(anomalies, cycleAnomaly(n, res.culprit))
		}
	}

	return append(anomalies, sortOrderCollisions(nodes)...), nil
}

func compareNode(n *models.CategoryNode, res chainResolution) []models.Anomaly {
	var out []models.Anomaly
	if n.MaterializedPath != res.path {
		out = append(out, models.Anomaly{
			Kind:     models.AnomalyPathMismatch,
			NodeID:   n.ID,
			ParentID: n.ParentID,
			Expected: res.path,
			Actual:   n.MaterializedPath,
		})
	}
	if n.Depth != res.depth {
		out = append(out, models.Anomaly{
			Kind:     models.AnomalyDepthMismatch,
			NodeID:   n.ID,
			ParentID: n.ParentID,
			Expected: strconv.Itoa(res.depth),
			Actual:   strconv.Itoa(n.Depth),
		})
	}
	return out
}

func orphanAnomaly(n *models.CategoryNode) models.Anomaly {
	return models.Anomaly{
		Kind:     models.AnomalyOrphanNode,
		NodeID:   n.ID,
		ParentID: n.ParentID,
		Expected: "parent " + n.ParentKey(),
		Actual:   "missing",
	}
}

func cycleAnomaly(n *models.CategoryNode, through string) models.Anomaly {
	return models.Anomaly{
		Kind:     models.AnomalyParentCycle,
		NodeID:   n.ID,
		ParentID: n.ParentID,
		Expected: "acyclic parent chain",
		Actual:   "cycle through " + through,
	}
}

// sortOrderCollisions reports every child that shares its sort_order with an
// earlier sibling in (sort_order, id) order.
func sortOrderCollisions(nodes []*models.CategoryNode) []models.Anomaly {
	groups := make(map[string][]*models.CategoryNode)
	var keys []string
	for _, n := range nodes {
		k := n.ParentKey()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], n)
	}
	sort.Strings(keys)

	var out []models.Anomaly
	for _, k := range keys {
		siblings := groups[k]
		database.SortSiblings(siblings)
		for i := 1; i < len(siblings); i++ {
			first := siblings[i-1]
			if siblings[i].SortOrder != first.SortOrder {
				continue
			}
			out = append(out, models.Anomaly{
				Kind:     models.AnomalySortOrderCollision,
				NodeID:   siblings[i].ID,
				ParentID: siblings[i].ParentID,
				Expected: "unique sort_order",
				Actual:   fmt.Sprintf("sort_order %d shared with %s", first.SortOrder, first.ID),
			})
		}
	}
	return out
}
