package database

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"
)

// TreeReader is the read side shared by stores and their transactions.
// Every method returns copies; callers may mutate them freely.
type TreeReader interface {
	// GetNode returns NODE_NOT_FOUND when id does not resolve.
	GetNode(ctx context.Context, id string) (*models.CategoryNode, error)
	GetNodeByPath(ctx context.Context, path string) (*models.CategoryNode, error)
	// GetNodesByPaths resolves a batch of paths. Missing paths are skipped.
	GetNodesByPaths(ctx context.Context, paths []string) ([]*models.CategoryNode, error)
	// GetChildren returns direct children ordered by sort_order then id.
	// A nil parent returns the roots.
	GetChildren(ctx context.Context, parentID *string) ([]*models.CategoryNode, error)
	CountChildren(ctx context.Context, id string) (int, error)
	// GetSubtree returns strict descendants of rootPath in pre-order.
	GetSubtree(ctx context.Context, rootPath string) ([]*models.CategoryNode, error)
	// ListAll returns the whole forest in pre-order.
	ListAll(ctx context.Context) ([]*models.CategoryNode, error)
}

// TreeTx is a transaction against the tree. Writes become visible to other
// readers only when the enclosing WithinTx returns nil.
type TreeTx interface {
	TreeReader
	Insert(ctx context.Context, node *models.CategoryNode) error
	Update(ctx context.Context, nodes ...*models.CategoryNode) error
	Delete(ctx context.Context, id string) error
}

// TreeStore persists the category forest.
type TreeStore interface {
	TreeReader

	// WithinTx runs fn in a snapshot-isolated transaction after locking every
	// subtree scope. A scope is a materialized path or a SiblingScope; the
	// empty scope locks the whole forest. Overlapping scopes held by another transaction make the
	// call wait up to the store's lock timeout and then fail with
	// CONCURRENT_MODIFICATION. If fn returns an error or ctx expires, nothing
	// is committed.
	WithinTx(ctx context.Context, scopes []string, fn func(ctx context.Context, tx TreeTx) error) error

	Ping(ctx context.Context) error
}

const siblingScopePrefix = "#siblings:"

// SiblingScope is the lock scope guarding the sort orders of one sibling
// group. It never overlaps a materialized path except the empty forest scope.
func SiblingScope(parentID *string) string {
	if parentID == nil {
		return siblingScopePrefix
	}
	return siblingScopePrefix + url.PathEscape(*parentID)
}

func isSiblingScope(scope string) bool {
	return strings.HasPrefix(scope, siblingScopePrefix)
}

// SortPreOrder orders nodes segment-wise by path, which is pre-order traversal.
func SortPreOrder(nodes []*models.CategoryNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return pathcodec.Compare(nodes[i].MaterializedPath, nodes[j].MaterializedPath) < 0
	})
}

// SortSiblings orders nodes by sort_order with id as tie-break.
func SortSiblings(nodes []*models.CategoryNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// normalizeScopes sorts scopes and drops duplicates and scopes covered by
// another one in the list. Sorted acquisition keeps lock order stable.
func normalizeScopes(scopes []string) []string {
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)

	out := make([]string, 0, len(sorted))
	for _, s := range sorted {
		if s == "" {
			return []string{""}
		}
		covered := false
		for _, kept := range out {
			if s == kept || pathcodec.IsDescendantPath(s, kept) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, s)
		}
	}
	return out
}
