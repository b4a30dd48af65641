package services

import (
	"context"
	"strconv"
	"time"

	"catalog-hierarchy/database"
	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// DependentItemChecker reports whether something outside the hierarchy, such
// as listings, still references a category.
type DependentItemChecker interface {
	HasDependentItems(ctx context.Context, nodeID string) (bool, error)
}

// NoDependentItems is the default checker; nothing depends on categories.
type NoDependentItems struct{}

func (NoDependentItems) HasDependentItems(ctx context.Context, nodeID string) (bool, error) {
	return false, nil
}

// Option configures a HierarchyManager.
type Option func(*HierarchyManager)

func WithLogger(logger Logger) Option {
	return func(m *HierarchyManager) { m.logger = logger }
}

func WithMetrics(metrics *HierarchyMetrics) Option {
	return func(m *HierarchyManager) { m.metrics = metrics }
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(m *HierarchyManager) { m.publisher = publisher }
}

func WithDependentItemChecker(checker DependentItemChecker) Option {
	return func(m *HierarchyManager) { m.dependents = checker }
}

func WithQueryMonitor(monitor QueryPerformanceMonitor) Option {
	return func(m *HierarchyManager) { m.monitor = monitor }
}

// WithMaxDepth rejects mutations that would place a node deeper than max.
// Zero disables the limit.
func WithMaxDepth(max int) Option {
	return func(m *HierarchyManager) { m.maxDepth = max }
}

// WithMutationTimeout bounds every mutation, lock wait included.
func WithMutationTimeout(d time.Duration) Option {
	return func(m *HierarchyManager) { m.mutationTimeout = d }
}

// HierarchyManager is the entry point for category traversal and mutation.
// Traversals read committed state without locks and go through the cache;
// mutations lock the affected subtrees, commit, invalidate and publish before
// returning.
type HierarchyManager struct {
	store      database.TreeStore
	cache      HierarchyCache
	publisher  EventPublisher
	dependents DependentItemChecker
	logger     Logger
	metrics    *HierarchyMetrics
	monitor    QueryPerformanceMonitor

	maxDepth        int
	mutationTimeout time.Duration

	runner    *mutationRunner
	validator *PathValidator
	repairer  *PathRepairer
	fills     singleflight.Group
}

// NewHierarchyManager wires a manager. cache may be nil to disable caching.
func NewHierarchyManager(store database.TreeStore, cache HierarchyCache, opts ...Option) *HierarchyManager {
	m := &HierarchyManager{
		store:      store,
		cache:      cache,
		dependents: NoDependentItems{},
		logger:     NewNopLogger(),
		monitor:    NewNoOpMonitor(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.runner = &mutationRunner{
		store:     store,
		cache:     cache,
		publisher: m.publisher,
		logger:    m.logger,
		metrics:   m.metrics,
		timeout:   m.mutationTimeout,
	}
	m.validator = NewPathValidator(store, m.logger, m.metrics)
	m.repairer = NewPathRepairer(store, PathRepairerConfig{
		Cache:      cache,
		Publisher:  m.publisher,
		Dependents: m.dependents,
		MaxDepth:   m.maxDepth,
		Timeout:    m.mutationTimeout,
		Logger:     m.logger,
		Metrics:    m.metrics,
	})

	return m
}

// Get returns a single node.
func (m *HierarchyManager) Get(ctx context.Context, id string) (*models.CategoryNode, error) {
	nodes, err := m.traverse(ctx, "get", CacheKey{Kind: CacheKindNode, NodeID: id},
		func(ctx context.Context) ([]*models.CategoryNode, []string, error) {
			n, err := m.store.GetNode(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			return []*models.CategoryNode{n}, []string{n.MaterializedPath}, nil
		})
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// GetByPath resolves a materialized path to its node.
func (m *HierarchyManager) GetByPath(ctx context.Context, path string) (*models.CategoryNode, error) {
	if _, err := pathcodec.Decode(path); err != nil {
		return nil, apperrors.NewMalformedPathError(path, err)
	}

	nodes, err := m.traverse(ctx, "get_by_path", CacheKey{Kind: CacheKindByPath, Param: path},
		func(ctx context.Context) ([]*models.CategoryNode, []string, error) {
			n, err := m.store.GetNodeByPath(ctx, path)
			if err != nil {
				return nil, nil, err
			}
			return []*models.CategoryNode{n}, []string{path}, nil
		})
	if err != nil {
		return nil, err
	}
	return nodes[0], nil
}

// Children lists direct children in sibling order. A nil parent lists the roots.
func (m *HierarchyManager) Children(ctx context.Context, parentID *string) ([]*models.CategoryNode, error) {
	key := CacheKey{Kind: CacheKindChildren}
	if parentID != nil {
		key.NodeID = *parentID
	}

	return m.traverse(ctx, "children", key,
		func(ctx context.Context) ([]*models.CategoryNode, []string, error) {
			_, scope, err := parentPathOf(ctx, m.store, parentID)
			if err != nil {
				return nil, nil, err
			}
			children, err := m.store.GetChildren(ctx, parentID)
			if err != nil {
				return nil, nil, err
			}
			return children, []string{scope}, nil
		})
}

// Ancestors returns the chain from the root down to and including the node.
func (m *HierarchyManager) Ancestors(ctx context.Context, nodeID string) ([]*models.CategoryNode, error) {
	return m.traverse(ctx, "ancestors", CacheKey{Kind: CacheKindAncestors, NodeID: nodeID},
		func(ctx context.Context) ([]*models.CategoryNode, []string, error) {
			n, err := m.store.GetNode(ctx, nodeID)
			if err != nil {
				return nil, nil, err
			}
			prefixes, err := pathcodec.Prefixes(n.MaterializedPath)
			if err != nil {
				return nil, nil, apperrors.NewMalformedPathError(n.MaterializedPath, err)
			}
			chain, err := m.store.GetNodesByPaths(ctx, prefixes)
			if err != nil {
				return nil, nil, err
			}
			database.SortPreOrder(chain)
			if len(chain) != len(prefixes) {
				m.logger.Warn("Ancestor chain incomplete",
					String("node_id", nodeID),
					String("path", n.MaterializedPath),
					Int("found", len(chain)),
					Int("expected", len(prefixes)))
			}
			return chain, []string{n.MaterializedPath}, nil
		})
}

// RootPath is the node's ancestor chain, root first.
func (m *HierarchyManager) RootPath(ctx context.Context, nodeID string) ([]*models.CategoryNode, error) {
	return m.Ancestors(ctx, nodeID)
}

// Descendants returns strict descendants in pre-order. maxDepth limits how
// many levels below the node are included; nil means all.
func (m *HierarchyManager) Descendants(ctx context.Context, nodeID string, maxDepth *int) ([]*models.CategoryNode, error) {
	param := "all"
	if maxDepth != nil {
		if *maxDepth < 0 {
			return nil, apperrors.NewValidationError(apperrors.ErrCodeInvalidRange, "max_depth must not be negative", nil)
		}
		param = strconv.Itoa(*maxDepth)
	}

	return m.traverse(ctx, "descendants", CacheKey{Kind: CacheKindDescendants, NodeID: nodeID, Param: param},
		func(ctx context.Context) ([]*models.CategoryNode, []string, error) {
			n, err := m.store.GetNode(ctx, nodeID)
			if err != nil {
				return nil, nil, err
			}
			subtree, err := m.store.GetSubtree(ctx, n.MaterializedPath)
			if err != nil {
				return nil, nil, err
			}
			if maxDepth != nil {
				limit := n.Depth + *maxDepth
				kept := subtree[:0]
				for _, d := range subtree {
					if d.Depth <= limit {
						kept = append(kept, d)
					}
				}
				subtree = kept
			}
			return subtree, []string{n.MaterializedPath}, nil
		})
}

// Siblings returns the nodes sharing the node's parent in sibling order.
func (m *HierarchyManager) Siblings(ctx context.Context, nodeID string, includeSelf bool) ([]*models.CategoryNode, error) {
	all, err := m.traverse(ctx, "siblings", CacheKey{Kind: CacheKindSiblings, NodeID: nodeID},
		func(ctx context.Context) ([]*models.CategoryNode, []string, error) {
			n, err := m.store.GetNode(ctx, nodeID)
			if err != nil {
				return nil, nil, err
			}
			group, err := m.store.GetChildren(ctx, n.ParentID)
			if err != nil {
				return nil, nil, err
			}
			return group, []string{pathcodec.Parent(n.MaterializedPath)}, nil
		})
	if err != nil {
		return nil, err
	}
	if includeSelf {
		return all, nil
	}

	out := make([]*models.CategoryNode, 0, len(all))
	for _, s := range all {
		if s.ID != nodeID {
			out = append(out, s)
		}
	}
	return out, nil
}

// CommonAncestor returns the deepest node on both nodes' root paths. A node
// counts as its own ancestor, so for a node and its descendant the node
// itself is returned.
func (m *HierarchyManager) CommonAncestor(ctx context.Context, a, b string) (*models.CategoryNode, error) {
	nodeA, err := m.Get(ctx, a)
	if err != nil {
		return nil, err
	}
	nodeB, err := m.Get(ctx, b)
	if err != nil {
		return nil, err
	}

	prefix, err := pathcodec.CommonPrefix(nodeA.MaterializedPath, nodeB.MaterializedPath)
	if err != nil {
		return nil, apperrors.NewMalformedPathError(nodeA.MaterializedPath+" | "+nodeB.MaterializedPath, err)
	}
	if prefix == "" {
		return nil, apperrors.NewNoCommonAncestorError(a, b)
	}
	return m.GetByPath(ctx, prefix)
}

// ValidateNode checks one node against its parent chain.
func (m *HierarchyManager) ValidateNode(ctx context.Context, nodeID string) ([]models.Anomaly, error) {
	n, err := m.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return m.validator.ValidateNode(ctx, n)
}

// ValidateForest reports every anomaly in the stored forest.
func (m *HierarchyManager) ValidateForest(ctx context.Context) (*models.ValidationReport, error) {
	return m.validator.ValidateForest(ctx)
}

// Repair fixes the given anomalies. With none given the forest is validated first.
func (m *HierarchyManager) Repair(ctx context.Context, anomalies []models.Anomaly) (*models.RepairReport, error) {
	if len(anomalies) == 0 {
		report, err := m.validator.ValidateForest(ctx)
		if err != nil {
			return nil, err
		}
		anomalies = report.Anomalies
	}
	return m.repairer.Repair(ctx, anomalies)
}

// ResolveOrphan applies an operator decision to an orphaned node.
func (m *HierarchyManager) ResolveOrphan(ctx context.Context, nodeID string, resolution models.OrphanResolution) (*models.MoveResult, error) {
	return m.repairer.ResolveOrphan(ctx, nodeID, resolution)
}

// CacheStats exposes the traversal cache counters.
func (m *HierarchyManager) CacheStats() CacheStats {
	if m.cache == nil {
		return CacheStats{Backend: "disabled"}
	}
	stats := m.cache.GetStats()
	m.metrics.SetCacheEntries(stats.Size)
	return stats
}

// ClearCache drops every cached traversal.
func (m *HierarchyManager) ClearCache(ctx context.Context) error {
	if m.cache == nil {
		return nil
	}
	return m.cache.Clear(ctx)
}

// QueryStats exposes traversal latency statistics.
func (m *HierarchyManager) QueryStats() QueryStatistics {
	return m.monitor.GetQueryStats()
}

// SlowQueries returns the most recent slow traversals.
func (m *HierarchyManager) SlowQueries(limit int) []SlowQueryRecord {
	return m.monitor.GetSlowQueries(limit)
}

// traversalFillTimeout bounds a shared store read, which outlives the caller
// that started it.
const traversalFillTimeout = 30 * time.Second

type loadFunc func(ctx context.Context) (nodes []*models.CategoryNode, scopes []string, err error)

// traverse serves key from the cache or loads it. Concurrent misses on the
// same key share one store read. The generation is taken before the read so
// that an invalidation landing in between makes the Put a no-op.
func (m *HierarchyManager) traverse(ctx context.Context, op string, key CacheKey, load loadFunc) ([]*models.CategoryNode, error) {
	start := time.Now()
	ctx, span := startSpan(ctx, op, attribute.String("cache.key", key.String()))

	if m.cache != nil {
		if nodes, ok := m.cache.Get(ctx, key); ok {
			m.metrics.CacheLookup(true)
			span.SetAttributes(attribute.Bool("cache.hit", true))
			endSpan(span, nil)
			return nodes, nil
		}
		m.metrics.CacheLookup(false)
	}

	fill := m.fills.DoChan(key.String(), func() (interface{}, error) {
		// The read is shared by every caller waiting on key, so it must not
		// die with whichever caller happened to start it.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traversalFillTimeout)
		defer cancel()

		var generation uint64
		cacheable := false
		if m.cache != nil {
			g, err := m.cache.Generation(ctx)
			if err == nil {
				generation, cacheable = g, true
			} else {
				m.logger.Debug("Cache generation unavailable", String("error", err.Error()))
			}
		}

		nodes, scopes, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if nodes == nil {
			nodes = []*models.CategoryNode{}
		}
		if cacheable {
			m.cache.Put(ctx, key, scopes, nodes, generation)
		}
		return nodes, nil
	})

	var (
		v   interface{}
		err error
	)
	select {
	case res := <-fill:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = apperrors.FromContext(ctx.Err(), op)
	}

	elapsed := time.Since(start)
	m.metrics.ObserveTraversal(op, elapsed)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}

	nodes := cloneNodes(v.([]*models.CategoryNode))
	m.monitor.RecordQuery(op, elapsed, len(nodes))
	endSpan(span, nil)
	return nodes, nil
}
