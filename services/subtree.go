package services

import (
	"context"

	"catalog-hierarchy/database"
	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"
)

// relocateSubtree returns updated copies of root and its descendants with the
// root placed at newPath. Only paths and depths change; the caller adjusts the
// root's parent, name or sort order on the first element.
func relocateSubtree(root *models.CategoryNode, descendants []*models.CategoryNode, newPath string) ([]*models.CategoryNode, []models.PathChange, error) {
	oldPath := root.MaterializedPath
	updated := make([]*models.CategoryNode, 0, len(descendants)+1)
	changes := make([]models.PathChange, 0, len(descendants)+1)

	moved := root.Clone()
	moved.MaterializedPath = newPath
	moved.Depth = pathcodec.DepthOf(newPath)
	updated = append(updated, moved)
	changes = append(changes, pathChange(root, moved))

	for _, d := range descendants {
		p, err := pathcodec.Rebase(d.MaterializedPath, oldPath, newPath)
		if err != nil {
			return nil, nil, apperrors.NewMalformedPathError(d.MaterializedPath, err)
		}
		c := d.Clone()
		c.MaterializedPath = p
		c.Depth = pathcodec.DepthOf(p)
		updated = append(updated, c)
		changes = append(changes, pathChange(d, c))
	}

	return updated, changes, nil
}

func pathChange(before, after *models.CategoryNode) models.PathChange {
	return models.PathChange{
		NodeID:   after.ID,
		OldPath:  before.MaterializedPath,
		NewPath:  after.MaterializedPath,
		OldDepth: before.Depth,
		NewDepth: after.Depth,
	}
}

// checkMaxDepth rejects nodes nested deeper than maxDepth. Zero disables the check.
func checkMaxDepth(maxDepth int, nodes ...*models.CategoryNode) error {
	if maxDepth <= 0 {
		return nil
	}
	for _, n := range nodes {
		if n.Depth > maxDepth {
			return apperrors.NewMaxDepthExceededError(n.Depth, maxDepth)
		}
	}
	return nil
}

// ensureFreePath fails with DUPLICATE_SIBLING_NAME when path belongs to a node
// other than ownerID.
func ensureFreePath(ctx context.Context, reader database.TreeReader, path, ownerID string) error {
	existing, err := reader.GetNodeByPath(ctx, path)
	if apperrors.Is(err, apperrors.ErrNodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != ownerID {
		return apperrors.NewDuplicateSiblingNameError(pathcodec.LastSegment(path))
	}
	return nil
}

// reloadUnchanged re-reads a node inside the lock and fails with
// CONCURRENT_MODIFICATION when its path moved since validation.
func reloadUnchanged(ctx context.Context, reader database.TreeReader, id, expectedPath string) (*models.CategoryNode, error) {
	n, err := reader.GetNode(ctx, id)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNodeNotFound) {
			return nil, apperrors.NewConcurrentModificationError(expectedPath, err)
		}
		return nil, err
	}
	if n.MaterializedPath != expectedPath {
		return nil, apperrors.NewConcurrentModificationError(expectedPath, nil).
			WithDetails("node %s moved from %q to %q", id, expectedPath, n.MaterializedPath)
	}
	return n, nil
}

// nextSortOrder returns one past the highest sort order among siblings,
// ignoring the node being placed.
func nextSortOrder(siblings []*models.CategoryNode, placing string) int {
	next := 0
	for _, s := range siblings {
		if s.ID != placing && s.SortOrder >= next {
			next = s.SortOrder + 1
		}
	}
	return next
}

func sortOrderTaken(siblings []*models.CategoryNode, order int, placing string) bool {
	for _, s := range siblings {
		if s.ID != placing && s.SortOrder == order {
			return true
		}
	}
	return false
}

func nodeIDs(nodes []*models.CategoryNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func parentPathOf(ctx context.Context, reader database.TreeReader, parentID *string) (*models.CategoryNode, string, error) {
	if parentID == nil {
		return nil, "", nil
	}
	parent, err := reader.GetNode(ctx, *parentID)
	if err != nil {
		return nil, "", err
	}
	return parent, parent.MaterializedPath, nil
}

func segmentFor(name string) (string, error) {
	seg, err := pathcodec.Segment(name)
	if err != nil {
		return "", apperrors.NewInvalidSegmentError(name, err)
	}
	return seg, nil
}
