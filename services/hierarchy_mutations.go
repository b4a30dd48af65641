package services

import (
	"context"
	"fmt"
	"strings"

	"catalog-hierarchy/database"
	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"

	"github.com/google/uuid"
)

// Create inserts a new node under input.ParentID, or as a root when nil.
// A sort order already used by a sibling places the node after the last one.
func (m *HierarchyManager) Create(ctx context.Context, input models.CreateCategoryInput) (*models.CategoryNode, error) {
	var (
		created    *models.CategoryNode
		parentPath string
		newPath    string
		id         = input.ID
		name       = strings.TrimSpace(input.Name)
	)

	prepare := func(ctx context.Context) ([]string, error) {
		if input.SortOrder < 0 {
			return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidRange, "sort_order must not be negative", nil)
		}
		seg, err := segmentFor(name)
		if err != nil {
			return nil, err
		}
		if _, parentPath, err = parentPathOf(ctx, m.store, input.ParentID); err != nil {
			return nil, err
		}
		if newPath, err = pathcodec.Child(parentPath, seg); err != nil {
			return nil, apperrors.NewInvalidSegmentError(seg, err)
		}
		if err := checkMaxDepth(m.maxDepth, &models.CategoryNode{Depth: pathcodec.DepthOf(newPath)}); err != nil {
			return nil, err
		}
		if id == "" {
			id = uuid.NewString()
		}
		return []string{newPath, database.SiblingScope(input.ParentID)}, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		if input.ParentID != nil {
			if _, err := reloadUnchanged(ctx, tx, *input.ParentID, parentPath); err != nil {
				return nil, err
			}
		}
		if err := ensureFreePath(ctx, tx, newPath, ""); err != nil {
			return nil, err
		}
		siblings, err := tx.GetChildren(ctx, input.ParentID)
		if err != nil {
			return nil, err
		}

		node := &models.CategoryNode{
			ID:               id,
			ParentID:         input.ParentID,
			Name:             name,
			MaterializedPath: newPath,
			Depth:            pathcodec.DepthOf(newPath),
			SortOrder:        input.SortOrder,
		}
		if sortOrderTaken(siblings, node.SortOrder, id) {
			node.SortOrder = nextSortOrder(siblings, id)
		}
		if err := tx.Insert(ctx, node); err != nil {
			return nil, err
		}

		created = node
		event := NewHierarchyEvent(models.EventNodeCreated, []string{id}, "", newPath, nil)
		return &mutationOutcome{touched: []string{newPath}, events: []models.HierarchyEvent{event}}, nil
	}

	if err := m.runner.run(ctx, "create", prepare, apply); err != nil {
		return nil, err
	}
	return created, nil
}

// movePlan is a move validated against committed state before locking.
type movePlan struct {
	node        *models.CategoryNode
	newParentID *string
	newPath     string
	noop        bool
}

func (m *HierarchyManager) planMove(ctx context.Context, nodeID string, newParentID *string) (*movePlan, error) {
	if newParentID != nil && *newParentID == nodeID {
		return nil, apperrors.NewCyclicMoveError(nodeID, *newParentID)
	}

	node, err := m.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if models.SameParent(node.ParentID, newParentID) {
		return &movePlan{node: node, newParentID: newParentID, newPath: node.MaterializedPath, noop: true}, nil
	}

	_, parentPath, err := parentPathOf(ctx, m.store, newParentID)
	if err != nil {
		return nil, err
	}
	if pathcodec.IsDescendantPath(parentPath, node.MaterializedPath) {
		return nil, apperrors.NewCyclicMoveError(nodeID, *newParentID)
	}

	newPath, err := pathcodec.Child(parentPath, expectedSegment(node))
	if err != nil {
		return nil, apperrors.NewInvalidSegmentError(node.Name, err)
	}
	return &movePlan{node: node, newParentID: newParentID, newPath: newPath}, nil
}

// applyMove performs one planned move against the transaction's current
// state. The target parent is re-read so that earlier moves of the same batch
// are honored; the resulting path must still fall inside the locked scopes.
func (m *HierarchyManager) applyMove(ctx context.Context, tx database.TreeTx, plan *movePlan, scopes []string) (*models.MoveResult, error) {
	node, err := reloadUnchanged(ctx, tx, plan.node.ID, plan.node.MaterializedPath)
	if err != nil {
		return nil, err
	}
	if !models.SameParent(node.ParentID, plan.node.ParentID) {
		return nil, apperrors.NewConcurrentModificationError(node.MaterializedPath, nil).
			WithDetails("parent of %s changed", node.ID)
	}
	if plan.noop {
		return &models.MoveResult{Node: node, Changes: []models.PathChange{}}, nil
	}

	parentPath := ""
	if plan.newParentID != nil {
		parent, err := tx.GetNode(ctx, *plan.newParentID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNodeNotFound) {
				return nil, apperrors.NewConcurrentModificationError(plan.newPath, err)
			}
			return nil, err
		}
		if parent.ID == node.ID || pathcodec.IsDescendantPath(parent.MaterializedPath, node.MaterializedPath) {
			return nil, apperrors.NewCyclicMoveError(node.ID, parent.ID)
		}
		parentPath = parent.MaterializedPath
	}

	newPath, err := pathcodec.Child(parentPath, expectedSegment(node))
	if err != nil {
		return nil, apperrors.NewInvalidSegmentError(node.Name, err)
	}
	if !coveredBy(newPath, scopes) {
		return nil, apperrors.NewConcurrentModificationError(plan.newPath, nil).
			WithDetails("target path moved to %q", newPath)
	}
	if err := ensureFreePath(ctx, tx, newPath, node.ID); err != nil {
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
	if err := checkMaxDepth(m.maxDepth, updated...); err != nil {
		return nil, err
	}

	siblings, err := tx.GetChildren(ctx, plan.newParentID)
	if err != nil {
		return nil, err
	}
	updated[0].ParentID = plan.newParentID
	if sortOrderTaken(siblings, node.SortOrder, node.ID) {
		updated[0].SortOrder = nextSortOrder(siblings, node.ID)
	}

	if err := tx.Update(ctx, updated...); err != nil {
		return nil, err
	}
	return &models.MoveResult{Node: updated[0], Changes: changes}, nil
}

// Move re-parents a node and rewrites the paths of its whole subtree. A nil
// newParentID promotes the node to a root. Moving to the current parent
// returns the node unchanged.
func (m *HierarchyManager) Move(ctx context.Context, nodeID string, newParentID *string) (*models.MoveResult, error) {
	var (
		plan   *movePlan
		scopes []string
		result *models.MoveResult
	)

	prepare := func(ctx context.Context) ([]string, error) {
		var err error
		if plan, err = m.planMove(ctx, nodeID, newParentID); err != nil {
			return nil, err
		}
		if plan.noop {
			result = &models.MoveResult{Node: plan.node, Changes: []models.PathChange{}}
			return nil, nil
		}
		scopes = []string{plan.node.MaterializedPath, plan.newPath, database.SiblingScope(newParentID)}
		return scopes, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		res, err := m.applyMove(ctx, tx, plan, scopes)
		if err != nil {
			return nil, err
		}
		result = res
		event := NewHierarchyEvent(models.EventNodeMoved, []string{nodeID}, plan.node.MaterializedPath, res.Node.MaterializedPath, res.Changes)
		return &mutationOutcome{
			touched: []string{plan.node.MaterializedPath, res.Node.MaterializedPath},
			events:  []models.HierarchyEvent{event},
		}, nil
	}

	if err := m.runner.run(ctx, "move", prepare, apply); err != nil {
		return nil, err
	}
	return result, nil
}

// BulkMove applies every move in one transaction, in request order, against
// the evolving state. Moves of the same node or of nodes in an
// ancestor/descendant relation reject the whole batch.
func (m *HierarchyManager) BulkMove(ctx context.Context, moves []models.MoveRequest) ([]*models.MoveResult, error) {
	var (
		plans   []*movePlan
		scopes  []string
		results []*models.MoveResult
	)

	prepare := func(ctx context.Context) ([]string, error) {
		if len(moves) == 0 {
			return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidInput, "Bulk move requires at least one move", nil)
		}

		plans = make([]*movePlan, 0, len(moves))
		for _, mv := range moves {
			plan, err := m.planMove(ctx, mv.NodeID, mv.NewParentID)
			if err != nil {
				return nil, err
			}
			for _, earlier := range plans {
				if overlappingNodes(earlier.node, plan.node) {
					return nil, apperrors.NewOverlappingMoveBatchError(earlier.node.ID, plan.node.ID)
				}
			}
			plans = append(plans, plan)
		}

		scopes = make([]string, 0, 3*len(plans))
		for _, plan := range plans {
			scopes = append(scopes, plan.node.MaterializedPath)
			if !plan.noop {
				scopes = append(scopes, plan.newPath, database.SiblingScope(plan.newParentID))
			}
		}
		return scopes, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		results = make([]*models.MoveResult, 0, len(plans))
		outcome := &mutationOutcome{noop: true}

		for _, plan := range plans {
			res, err := m.applyMove(ctx, tx, plan, scopes)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
			if plan.noop {
				continue
			}

			outcome.noop = false
			outcome.touched = append(outcome.touched, plan.node.MaterializedPath, res.Node.MaterializedPath)
			outcome.events = append(outcome.events, NewHierarchyEvent(models.EventNodeMoved,
				[]string{plan.node.ID}, plan.node.MaterializedPath, res.Node.MaterializedPath, res.Changes))
		}
		return outcome, nil
	}

	if err := m.runner.run(ctx, "bulk_move", prepare, apply); err != nil {
		return nil, err
	}
	return results, nil
}

// BulkReparent moves every child of fromParentID under toParentID as one batch.
func (m *HierarchyManager) BulkReparent(ctx context.Context, fromParentID, toParentID *string) ([]*models.MoveResult, error) {
	if models.SameParent(fromParentID, toParentID) {
		return []*models.MoveResult{}, nil
	}
	if _, _, err := parentPathOf(ctx, m.store, fromParentID); err != nil {
		return nil, err
	}

	children, err := m.store.GetChildren(ctx, fromParentID)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return []*models.MoveResult{}, nil
	}

	moves := make([]models.MoveRequest, len(children))
	for i, c := range children {
		moves[i] = models.MoveRequest{NodeID: c.ID, NewParentID: toParentID}
	}
	return m.BulkMove(ctx, moves)
}

// Reorder assigns sort orders 0..n-1 to the children of parentID in the given
// order. The list must name exactly the current children.
func (m *HierarchyManager) Reorder(ctx context.Context, parentID *string, orderedChildIDs []string) ([]*models.CategoryNode, error) {
	var (
		expected map[string]string
		result   []*models.CategoryNode
	)

	prepare := func(ctx context.Context) ([]string, error) {
		if _, _, err := parentPathOf(ctx, m.store, parentID); err != nil {
			return nil, err
		}
		children, err := m.store.GetChildren(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if err := sameChildSet(children, orderedChildIDs); err != nil {
			return nil, err
		}
		if len(children) == 0 {
			result = []*models.CategoryNode{}
			return nil, nil
		}

		expected = make(map[string]string, len(children))
		scopes := make([]string, 0, len(children)+1)
		scopes = append(scopes, database.SiblingScope(parentID))
		for _, c := range children {
			expected[c.ID] = c.MaterializedPath
			scopes = append(scopes, c.MaterializedPath)
		}
		if parentID == nil {
			return []string{""}, nil
		}
		return scopes, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		current, err := tx.GetChildren(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if err := sameChildSet(current, orderedChildIDs); err != nil {
			return nil, apperrors.NewConcurrentModificationError("children", err)
		}

		byID := make(map[string]*models.CategoryNode, len(current))
		for _, c := range current {
			if c.MaterializedPath != expected[c.ID] {
				return nil, apperrors.NewConcurrentModificationError(expected[c.ID], nil)
			}
			byID[c.ID] = c
		}

		result = make([]*models.CategoryNode, len(orderedChildIDs))
		var changed []*models.CategoryNode
		touched := make([]string, 0, len(orderedChildIDs))
		for i, id := range orderedChildIDs {
			c := byID[id]
			if c.SortOrder != i {
				c.SortOrder = i
				changed = append(changed, c)
				touched = append(touched, c.MaterializedPath)
			}
			result[i] = c
		}
		if len(changed) == 0 {
			return &mutationOutcome{noop: true}, nil
		}
		if err := tx.Update(ctx, changed...); err != nil {
			return nil, err
		}

		event := NewHierarchyEvent(models.EventNodesReordered, append([]string(nil), orderedChildIDs...), "", "", nil)
		return &mutationOutcome{touched: touched, events: []models.HierarchyEvent{event}}, nil
	}

	if err := m.runner.run(ctx, "reorder", prepare, apply); err != nil {
		return nil, err
	}
	return result, nil
}

// Rename changes a node's display name. When the derived segment changes the
// subtree is rewritten exactly like a move in place.
func (m *HierarchyManager) Rename(ctx context.Context, nodeID, newName string) (*models.MoveResult, error) {
	var (
		node    *models.CategoryNode
		newPath string
		result  *models.MoveResult
		name    = strings.TrimSpace(newName)
	)

	prepare := func(ctx context.Context) ([]string, error) {
		seg, err := segmentFor(name)
		if err != nil {
			return nil, err
		}
		if node, err = m.store.GetNode(ctx, nodeID); err != nil {
			return nil, err
		}
		if node.Name == name {
			result = &models.MoveResult{Node: node, Changes: []models.PathChange{}}
			return nil, nil
		}
		if newPath, err = pathcodec.Child(pathcodec.Parent(node.MaterializedPath), seg); err != nil {
			return nil, apperrors.NewInvalidSegmentError(seg, err)
		}
		return []string{node.MaterializedPath, newPath}, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		current, err := reloadUnchanged(ctx, tx, nodeID, node.MaterializedPath)
		if err != nil {
			return nil, err
		}
		if err := ensureFreePath(ctx, tx, newPath, nodeID); err != nil {
			return nil, err
		}

		var descendants []*models.CategoryNode
		if newPath != current.MaterializedPath {
			if descendants, err = tx.GetSubtree(ctx, current.MaterializedPath); err != nil {
				return nil, err
			}
		}
		updated, changes, err := relocateSubtree(current, descendants, newPath)
		if err != nil {
			return nil, err
		}
		updated[0].Name = name
		if newPath == current.MaterializedPath {
			changes = []models.PathChange{}
		}

		if err := tx.Update(ctx, updated...); err != nil {
			return nil, err
		}

		result = &models.MoveResult{Node: updated[0], Changes: changes}
		event := NewHierarchyEvent(models.EventNodeRenamed, []string{nodeID}, current.MaterializedPath, newPath, changes)
		return &mutationOutcome{
			touched: []string{current.MaterializedPath, newPath},
			events:  []models.HierarchyEvent{event},
		}, nil
	}

	if err := m.runner.run(ctx, "rename", prepare, apply); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a leaf node that nothing depends on.
func (m *HierarchyManager) Delete(ctx context.Context, nodeID string) error {
	var node *models.CategoryNode

	prepare := func(ctx context.Context) ([]string, error) {
		var err error
		if node, err = m.store.GetNode(ctx, nodeID); err != nil {
			return nil, err
		}
		return []string{node.MaterializedPath}, nil
	}

	apply := func(ctx context.Context, tx database.TreeTx) (*mutationOutcome, error) {
		if _, err := reloadUnchanged(ctx, tx, nodeID, node.MaterializedPath); err != nil {
			return nil, err
		}
		if err := checkDeletable(ctx, tx, m.dependents, nodeID); err != nil {
			return nil, err
		}
		if err := tx.Delete(ctx, nodeID); err != nil {
			return nil, err
		}

		event := NewHierarchyEvent(models.EventNodeDeleted, []string{nodeID}, node.MaterializedPath, "", nil)
		return &mutationOutcome{touched: []string{node.MaterializedPath}, events: []models.HierarchyEvent{event}}, nil
	}

	return m.runner.run(ctx, "delete", prepare, apply)
}

// checkDeletable fails closed: a dependent check that errors blocks the delete.
func checkDeletable(ctx context.Context, tx database.TreeReader, dependents DependentItemChecker, nodeID string) error {
	children, err := tx.CountChildren(ctx, nodeID)
	if err != nil {
		return err
	}
	if children > 0 {
		return apperrors.NewNodeHasChildrenError(nodeID, children)
	}

	has, err := dependents.HasDependentItems(ctx, nodeID)
	if err != nil {
		return apperrors.NewExternalServiceError(apperrors.ErrCodeProcessingError, "Dependent item check failed", err).
			WithDetails("node %s", nodeID)
	}
	if has {
		return apperrors.NewDependentItemsExistError(nodeID)
	}
	return nil
}

func overlappingNodes(a, b *models.CategoryNode) bool {
	return a.ID == b.ID ||
		a.MaterializedPath == b.MaterializedPath ||
		pathcodec.IsDescendantPath(a.MaterializedPath, b.MaterializedPath) ||
		pathcodec.IsDescendantPath(b.MaterializedPath, a.MaterializedPath)
}

func coveredBy(path string, scopes []string) bool {
	for _, s := range scopes {
		if s == "" || path == s || pathcodec.IsDescendantPath(path, s) {
			return true
		}
	}
	return false
}

func sameChildSet(children []*models.CategoryNode, ordered []string) error {
	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if seen[id] {
			return apperrors.NewIncompleteReorderSetError(fmt.Sprintf("duplicate id %s", id))
		}
		seen[id] = true
	}

	current := make(map[string]bool, len(children))
	for _, c := range children {
		current[c.ID] = true
		if !seen[c.ID] {
			return apperrors.NewIncompleteReorderSetError(fmt.Sprintf("missing child %s", c.ID))
		}
	}
	for _, id := range ordered {
		if !current[id] {
			return apperrors.NewIncompleteReorderSetError(fmt.Sprintf("%s is not a child", id))
		}
	}
	return nil
}
