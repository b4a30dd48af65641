package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"catalog-hierarchy/database"
	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"
)

// PathRepairerConfig carries the collaborators shared with the manager.
type PathRepairerConfig struct {
	Cache      HierarchyCache
	Publisher  EventPublisher
	Dependents DependentItemChecker
	MaxDepth   int
	Timeout    time.Duration
	Logger     Logger
	Metrics    *HierarchyMetrics
}

// PathRepairer rewrites drifted rows and applies operator decisions for
// orphans. Every run is a single transaction over the whole forest.
type PathRepairer struct {
	runner     *mutationRunner
	store      database.TreeStore
	dependents DependentItemChecker
	maxDepth   int
	logger     Logger
	metrics    *HierarchyMetrics
}

func NewPathRepairer(store database.TreeStore, cfg PathRepairerConfig) *PathRepairer {
	if cfg.Logger == nil {
		cfg.Logger = NewNopLogger()
	}
	if cfg.Dependents == nil {
		cfg.Dependents = NoDependentItems{}
	}

	return &PathRepairer{
		runner: &mutationRunner{
			store:     store,
			cache:     cfg.Cache,
			publisher: cfg.Publisher,
			logger:    cfg.Logger,
			metrics:   cfg.Metrics,
			timeout:   cfg.Timeout,
		},
		store:      store,
		dependents: cfg.Dependents,
		maxDepth:   cfg.MaxDepth,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Repair fixes path, depth and sort order anomalies. Orphans and parent
// cycles are reported back as unrepairable. Rows are written ancestor first
// and only rows whose stored values differ are counted, so repairing the same
// anomalies twice reports zero the second time.
func (r *PathRepairer) Repair(ctx context.Context, anomalies []models.Anomaly) (*models.RepairReport, error) {
	start := time.Now()
	var report *models.RepairReport

	prepare := func(ctx context.Context) ([]string, error) {
		return []string{""}, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		nodes, err := tx.ListAll(ctx)
		if err != nil {
			return nil, err
		}

		plan := newRepairPlan(nodes)
		if err := plan.build(ctx, anomalies); err != nil {
			return nil, err
		}
		report = plan.report(start)

		if len(plan.pending) == 0 {
			return &mutationOutcome{noop: true}, nil
		}

		updates := plan.orderedUpdates()
		if err := tx.Update(ctx, updates...); err != nil {
			return nil, err
		}

		event := NewHierarchyEvent(models.EventForestRepaired, nodeIDs(updates), "", "", plan.changes)
		return &mutationOutcome{touched: []string{""}, events: []models.HierarchyEvent{event}}, nil
	}

	if err := r.runner.run(ctx, "repair", prepare, apply); err != nil {
		r.logger.Error("Repair failed", err, Int("anomalies", len(anomalies)))
		return nil, err
	}

	report.Duration = time.Since(start)
	for kind, n := range report.RepairedByKind {
		r.metrics.Repaired(kind, n)
	}
	r.logger.Info("Repair finished",
		Int("anomalies", len(anomalies)),
		Int("repaired", report.RepairedCount),
		Int("unrepairable", len(report.Unrepairable)),
		Duration("duration", report.Duration))

	return report, nil
}

// ResolveOrphan applies an explicit operator decision to a node whose parent
// no longer exists. Reparenting rewrites the node's subtree like a move;
// deleting follows the normal delete preconditions.
func (r *PathRepairer) ResolveOrphan(ctx context.Context, nodeID string, resolution models.OrphanResolution) (*models.MoveResult, error) {
	switch resolution.Action {
	case models.OrphanActionReparent:
		return r.reparentOrphan(ctx, nodeID, resolution.NewParentID)
	case models.OrphanActionDelete:
		var deleted *models.CategoryNode
		err := r.runner.run(ctx, "resolve_orphan_delete",
			func(ctx context.Context) ([]string, error) {
				orphan, err := r.loadOrphan(ctx, r.store, nodeID)
				if err != nil {
					return nil, err
				}
				deleted = orphan
				return []string{orphan.MaterializedPath}, nil
			},
			func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
				if _, err := reloadUnchanged(ctx, tx, nodeID, deleted.MaterializedPath); err != nil {
					return nil, err
				}
				if _, err := r.loadOrphan(ctx, tx, nodeID); err != nil {
					return nil, err
				}
				if err := checkDeletable(ctx, tx, r.dependents, nodeID); err != nil {
					return nil, err
				}
				if err := tx.Delete(ctx, nodeID); err != nil {
					return nil, err
				}
				event := NewHierarchyEvent(models.EventNodeDeleted, []string{nodeID}, deleted.MaterializedPath, "", nil)
				return &mutationOutcome{
					touched: []string{deleted.MaterializedPath},
					events:  []models.HierarchyEvent{event},
				}, nil
			})
		if err != nil {
			return nil, err
		}
		return &models.MoveResult{Node: deleted}, nil
	default:
		return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "Unknown orphan action", nil).
			WithDetails("action %q", resolution.Action)
	}
}

func (r *PathRepairer) reparentOrphan(ctx context.Context, nodeID string, newParentID *string) (*models.MoveResult, error) {
	var (
		orphan     *models.CategoryNode
		parentPath string
		newPath    string
		result     *models.MoveResult
	)

	prepare := func(ctx context.Context) ([]string, error) {
		var err error
		if orphan, err = r.loadOrphan(ctx, r.store, nodeID); err != nil {
			return nil, err
		}
		if newParentID != nil && *newParentID == nodeID {
			return nil, apperrors.NewCyclicMoveError(nodeID, *newParentID)
		}
		if _, parentPath, err = parentPathOf(ctx, r.store, newParentID); err != nil {
			return nil, err
		}
		seg, err := segmentFor(orphan.Name)
		if err != nil {
			return nil, err
		}
		if newPath, err = pathcodec.Child(parentPath, seg); err != nil {
			return nil, apperrors.NewInvalidSegmentError(seg, err)
		}
		return []string{orphan.MaterializedPath, newPath, database.SiblingScope(newParentID)}, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		node, err := reloadUnchanged(ctx, tx, nodeID, orphan.MaterializedPath)
		if err != nil {
			return nil, err
		}
		if _, err := r.loadOrphan(ctx, tx, nodeID); err != nil {
			return nil, err
		}
		if newParentID != nil {
			if _, err := reloadUnchanged(ctx, tx, *newParentID, parentPath); err != nil {
				return nil, err
			}
			if err := r.checkNotBelow(ctx, tx, *newParentID, nodeID); err != nil {
				return nil, err
			}
		}
		if err := ensureFreePath(ctx, tx, newPath, nodeID); err != nil {
			return nil, err
		}

		descendants, err := tx.GetSubtree(ctx, node.MaterializedPath)
		if err != nil {
			return nil, err
		}
		updated, changes, err := relocateSubtree(node, descendants, newPath)
		if err != nil {
			return nil, err
		}
		if err := checkMaxDepth(r.maxDepth, updated...); err != nil {
			return nil, err
		}

		siblings, err := tx.GetChildren(ctx, newParentID)
		if err != nil {
			return nil, err
		}
		updated[0].ParentID = newParentID
		if sortOrderTaken(siblings, node.SortOrder, nodeID) {
			updated[0].SortOrder = nextSortOrder(siblings, nodeID)
		}

		if err := tx.Update(ctx, updated...); err != nil {
			return nil, err
		}

		result = &models.MoveResult{Node: updated[0], Changes: changes}
		event := NewHierarchyEvent(models.EventNodeMoved, []string{nodeID}, node.MaterializedPath, newPath, changes)
		return &mutationOutcome{
			touched: []string{node.MaterializedPath, newPath},
			events:  []models.HierarchyEvent{event},
		}, nil
	}

	if err := r.runner.run(ctx, "resolve_orphan_reparent", prepare, apply); err != nil {
		return nil, err
	}
	return result, nil
}

// loadOrphan returns the node when its parent is missing, NOT_AN_ORPHAN otherwise.
func (r *PathRepairer) loadOrphan(ctx context.Context, reader database.TreeReader, nodeID string) (*models.CategoryNode, error) {
	node, err := reader.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node.ParentID == nil {
		return nil, apperrors.NewNotAnOrphanError(nodeID)
	}
	_, err = reader.GetNode(ctx, *node.ParentID)
	switch {
	case err == nil:
		return nil, apperrors.NewNotAnOrphanError(nodeID)
	case apperrors.Is(err, apperrors.ErrNodeNotFound):
		return node, nil
	default:
		return nil, err
	}
}

// checkNotBelow walks the parent_id chain of candidate and rejects it when the
// chain reaches nodeID. Orphan subtrees may have stale paths, so the chain is
// the only reliable signal here.
func (r *PathRepairer) checkNotBelow(ctx context.Context, reader database.TreeReader, candidate, nodeID string) error {
	seen := make(map[string]bool)
	cur := &candidate
	for cur != nil {
		if *cur == nodeID {
			return apperrors.NewCyclicMoveError(nodeID, candidate)
		}
		if seen[*cur] {
			return nil
		}
		seen[*cur] = true

		n, err := reader.GetNode(ctx, *cur)
		if apperrors.Is(err, apperrors.ErrNodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cur = n.ParentID
	}
	return nil
}

// repairPlan computes the rows a repair run rewrites from one snapshot.
type repairPlan struct {
	nodes    []*models.CategoryNode
	byID     map[string]*models.CategoryNode
	children map[string][]*models.CategoryNode
	resolver *chainResolver

	pending      map[string]*models.CategoryNode
	byKind       map[models.AnomalyKind]int
	unrepairable []models.UnrepairableAnomaly
	changes      []models.PathChange
}

func newRepairPlan(nodes []*models.CategoryNode) *repairPlan {
	p := &repairPlan{
		nodes:    nodes,
		byID:     make(map[string]*models.CategoryNode, len(nodes)),
		children: make(map[string][]*models.CategoryNode),
		pending:  make(map[string]*models.CategoryNode),
		byKind:   make(map[models.AnomalyKind]int),
	}
	for _, n := range nodes {
		p.byID[n.ID] = n
		p.children[n.ParentKey()] = append(p.children[n.ParentKey()], n)
	}
	p.resolver = newSnapshotResolver(p.byID)
	return p
}

func (p *repairPlan) build(ctx context.Context, anomalies []models.Anomaly) error {
	targets := make(map[string]models.Anomaly)
	var targetOrder []string
	groups := make(map[string]bool)
	var groupOrder []string

	for _, a := range anomalies {
		switch a.Kind {
		case models.AnomalyPathMismatch, models.AnomalyDepthMismatch:
			if _, ok := p.byID[a.NodeID]; !ok {
				p.reject(a, "node no longer exists")
				continue
			}
			if _, dup := targets[a.NodeID]; !dup {
				targets[a.NodeID] = a
				targetOrder = append(targetOrder, a.NodeID)
			}
		case models.AnomalySortOrderCollision:
			key := ""
			if a.ParentID != nil {
				key = *a.ParentID
			}
			if !groups[key] {
				groups[key] = true
				groupOrder = append(groupOrder, key)
			}
		case models.AnomalyOrphanNode:
			p.reject(a, "parent is missing; resolve the orphan explicitly")
		case models.AnomalyParentCycle:
			p.reject(a, "parent chain loops; an operator must break the cycle")
		default:
			p.reject(a, "unknown anomaly kind")
		}
	}

	if err := p.planPaths(ctx, targets, targetOrder); err != nil {
		return err
	}
	p.planSortOrders(groupOrder)
	return nil
}

// planPaths recomputes every target and everything below it by parent_id.
func (p *repairPlan) planPaths(ctx context.Context, targets map[string]models.Anomaly, order []string) error {
	visited := make(map[string]bool)
	var candidates []*models.CategoryNode

	queue := append([]string(nil), order...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		candidates = append(candidates, p.byID[id])
		for _, child := range p.children[id] {
			queue = append(queue, child.ID)
		}
	}

	kinds := make(map[string]models.AnomalyKind)
	for _, n := range candidates {
		res, err := p.resolver.resolve(ctx, n)
		if err != nil {
			return err
		}
		if res.status != chainOK {
			if a, ok := targets[n.ID]; ok {
				p.reject(a, "ancestor chain is broken")
			}
			continue
		}
		if n.MaterializedPath == res.path && n.Depth == res.depth {
			continue
		}

		c := n.Clone()
		kind := models.AnomalyDepthMismatch
		if c.MaterializedPath != res.path {
			kind = models.AnomalyPathMismatch
		}
		c.MaterializedPath = res.path
		c.Depth = res.depth
		p.pending[n.ID] = c
		kinds[n.ID] = kind
	}

	p.dropPathCollisions(targets)

	for id, c := range p.pending {
		p.byKind[kinds[id]]++
		p.changes = append(p.changes, pathChange(p.byID[id], c))
	}
	sort.Slice(p.changes, func(i, j int) bool {
		return pathcodec.Compare(p.changes[i].NewPath, p.changes[j].NewPath) < 0
	})
	return nil
}

// dropPathCollisions removes rewrites whose target path another node keeps,
// together with every rewrite nested below them. A dropped node stays at its
// stored path, which may block yet another rewrite, so it runs until no
// collision is left.
func (p *repairPlan) dropPathCollisions(targets map[string]models.Anomaly) {
	for {
		owners := make(map[string][]string)
		for _, n := range p.nodes {
			path := n.MaterializedPath
			if c, ok := p.pending[n.ID]; ok {
				path = c.MaterializedPath
			}
			owners[path] = append(owners[path], n.ID)
		}

		collided := make([]string, 0)
		for path, ids := range owners {
			if len(ids) > 1 {
				collided = append(collided, path)
			}
		}
		sort.Strings(collided)

		var dropped []string
		for _, path := range collided {
			ids := owners[path]
			sort.Strings(ids)
			for _, id := range ids {
				if _, ok := p.pending[id]; !ok {
					continue
				}
				a, ok := targets[id]
				if !ok {
					a = models.Anomaly{
						Kind:     models.AnomalyPathMismatch,
						NodeID:   id,
						ParentID: p.byID[id].ParentID,
						Expected: path,
						Actual:   p.byID[id].MaterializedPath,
					}
				}
				p.reject(a, fmt.Sprintf("expected path %q is already used by another node", path))
				delete(p.pending, id)
				dropped = append(dropped, id)
			}
		}
		if len(dropped) == 0 {
			return
		}

		queue := dropped
		seen := make(map[string]bool)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			seen[id] = true
			for _, child := range p.children[id] {
				if _, ok := p.pending[child.ID]; ok {
					if a, ok := targets[child.ID]; ok {
						p.reject(a, "an ancestor's expected path is already used by another node")
					}
					delete(p.pending, child.ID)
				}
				queue = append(queue, child.ID)
			}
		}
	}
}

// planSortOrders renumbers each colliding sibling group 0..n-1 in (sort_order, id) order.
func (p *repairPlan) planSortOrders(groups []string) {
	for _, key := range groups {
		siblings := append([]*models.CategoryNode(nil), p.children[key]...)
		database.SortSiblings(siblings)

		collides := false
		for i := 1; i < len(siblings); i++ {
			if siblings[i].SortOrder == siblings[i-1].SortOrder {
				collides = true
				break
			}
		}
		if !collides {
			continue
		}

		for i, s := range siblings {
			if s.SortOrder == i {
				continue
			}
			c, ok := p.pending[s.ID]
			if !ok {
				c = s.Clone()
				p.pending[s.ID] = c
			}
			c.SortOrder = i
			p.byKind[models.AnomalySortOrderCollision]++
		}
	}
}

func (p *repairPlan) reject(a models.Anomaly, reason string) {
	p.unrepairable = append(p.unrepairable, models.UnrepairableAnomaly{Anomaly: a, Reason: reason})
}

// orderedUpdates lists rewritten rows ancestor first.
func (p *repairPlan) orderedUpdates() []*models.CategoryNode {
	out := make([]*models.CategoryNode, 0, len(p.pending))
	for _, c := range p.pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (p *repairPlan) report(start time.Time) *models.RepairReport {
	unrepairable := p.unrepairable
	if unrepairable == nil {
		unrepairable = []models.UnrepairableAnomaly{}
	}
	return &models.RepairReport{
		RepairTime:     start.UTC(),
		RepairedCount:  len(p.pending),
		RepairedByKind: p.byKind,
		Unrepairable:   unrepairable,
	}
}
