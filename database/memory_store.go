package database

import (
	"context"
	"sync"
	"time"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"
)

// MemoryTreeStore keeps the forest in id-addressed maps. Transactions buffer
// their writes and swap them in under the write lock on commit, so readers
// never observe a partial mutation.
type MemoryTreeStore struct {
	mu     sync.RWMutex
	nodes  map[string]*models.CategoryNode
	byPath map[string]string

	locker      *SubtreeLocker
	lockTimeout time.Duration
	now         func() time.Time
}

// NewMemoryTreeStore creates an empty store. lockTimeout bounds the wait for
// overlapping subtree locks; zero waits until ctx ends.
func NewMemoryTreeStore(lockTimeout time.Duration) *MemoryTreeStore {
	return &MemoryTreeStore{
		nodes:       make(map[string]*models.CategoryNode),
		byPath:      make(map[string]string),
		locker:      NewSubtreeLocker(),
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Seed loads nodes as-is, bypassing every check. Intended for fixtures and
// for reproducing drifted data.
func (s *MemoryTreeStore) Seed(nodes ...*models.CategoryNode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range nodes {
		c := n.Clone()
		if old, ok := s.nodes[c.ID]; ok && s.byPath[old.MaterializedPath] == c.ID {
			delete(s.byPath, old.MaterializedPath)
		}
		s.nodes[c.ID] = c
		s.byPath[c.MaterializedPath] = c.ID
	}
}

// Len returns the number of stored nodes.
func (s *MemoryTreeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Ping always succeeds.
func (s *MemoryTreeStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryTreeStore) GetNode(ctx context.Context, id string) (*models.CategoryNode, error) {
	return s.view(nil).getNode(id)
}

func (s *MemoryTreeStore) GetNodeByPath(ctx context.Context, path string) (*models.CategoryNode, error) {
	return s.view(nil).getNodeByPath(path)
}

func (s *MemoryTreeStore) GetNodesByPaths(ctx context.Context, paths []string) ([]*models.CategoryNode, error) {
	return s.view(nil).getNodesByPaths(paths), nil
}

func (s *MemoryTreeStore) GetChildren(ctx context.Context, parentID *string) ([]*models.CategoryNode, error) {
	return s.view(nil).getChildren(parentID), nil
}

func (s *MemoryTreeStore) CountChildren(ctx context.Context, id string) (int, error) {
	return len(s.view(nil).getChildren(&id)), nil
}

func (s *MemoryTreeStore) GetSubtree(ctx context.Context, rootPath string) ([]*models.CategoryNode, error) {
	return s.view(nil).getSubtree(rootPath), nil
}

func (s *MemoryTreeStore) ListAll(ctx context.Context) ([]*models.CategoryNode, error) {
	return s.view(nil).listAll(), nil
}

// WithinTx implements TreeStore.
func (s *MemoryTreeStore) WithinTx(ctx context.Context, scopes []string, fn func(ctx context.Context, tx TreeTx) error) error {
	release, err := s.locker.Acquire(ctx, scopes, s.lockTimeout)
	if err != nil {
		return err
	}
	defer release()

	tx := &memoryTx{store: s, writes: make(map[string]*models.CategoryNode)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext(err, "commit")
	}
	return s.commit(tx.writes)
}

// commit applies buffered writes atomically. A nil entry marks a deletion.
func (s *MemoryTreeStore) commit(writes map[string]*models.CategoryNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := make(map[string]string, len(writes))
	for id, n := range writes {
		if n == nil {
			continue
		}
		if other, ok := claimed[n.MaterializedPath]; ok && other != id {
			return apperrors.NewDuplicateSiblingNameError(pathcodec.LastSegment(n.MaterializedPath))
		}
		claimed[n.MaterializedPath] = id
	}
	for path, id := range claimed {
		owner, ok := s.byPath[path]
		if !ok || owner == id {
			continue
		}
		if _, touched := writes[owner]; !touched {
			return apperrors.NewDuplicateSiblingNameError(pathcodec.LastSegment(path))
		}
	}

	for id := range writes {
		if old, ok := s.nodes[id]; ok && s.byPath[old.MaterializedPath] == id {
			delete(s.byPath, old.MaterializedPath)
		}
	}
	for id, n := range writes {
		if n == nil {
			delete(s.nodes, id)
			continue
		}
		s.nodes[id] = n
		s.byPath[n.MaterializedPath] = id
	}
	return nil
}

// view builds a read view over committed state plus an optional write overlay.
func (s *MemoryTreeStore) view(overlay map[string]*models.CategoryNode) memoryView {
	return memoryView{store: s, overlay: overlay}
}

type memoryView struct {
	store   *MemoryTreeStore
	overlay map[string]*models.CategoryNode
}

func (v memoryView) lookup(id string) (*models.CategoryNode, bool) {
	if n, ok := v.overlay[id]; ok {
		return n, n != nil
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	n, ok := v.store.nodes[id]
	return n, ok
}

func (v memoryView) getNode(id string) (*models.CategoryNode, error) {
	n, ok := v.lookup(id)
	if !ok {
		return nil, apperrors.NewNodeNotFoundError(id)
	}
	return n.Clone(), nil
}

func (v memoryView) getNodeByPath(path string) (*models.CategoryNode, error) {
	nodes := v.getNodesByPaths([]string{path})
	if len(nodes) == 0 {
		return nil, apperrors.NewNotFoundError(apperrors.ErrCodeNodeNotFound, "Category node not found", nil).
			WithDetails("path %q", path)
	}
	return nodes[0], nil
}

func (v memoryView) getNodesByPaths(paths []string) []*models.CategoryNode {
	if len(v.overlay) == 0 {
		v.store.mu.RLock()
		defer v.store.mu.RUnlock()

		out := make([]*models.CategoryNode, 0, len(paths))
		for _, p := range paths {
			if id, ok := v.store.byPath[p]; ok {
				out = append(out, v.store.nodes[id].Clone())
			}
		}
		return out
	}

	wanted := make(map[string]bool, len(paths))
	for _, p := range paths {
		wanted[p] = true
	}
	return v.scan(func(n *models.CategoryNode) bool { return wanted[n.MaterializedPath] })
}

func (v memoryView) getChildren(parentID *string) []*models.CategoryNode {
	children := v.scan(func(n *models.CategoryNode) bool { return models.SameParent(n.ParentID, parentID) })
	SortSiblings(children)
	return children
}

func (v memoryView) getSubtree(rootPath string) []*models.CategoryNode {
	nodes := v.scan(func(n *models.CategoryNode) bool {
		return pathcodec.IsDescendantPath(n.MaterializedPath, rootPath)
	})
	SortPreOrder(nodes)
	return nodes
}

func (v memoryView) listAll() []*models.CategoryNode {
	nodes := v.scan(func(*models.CategoryNode) bool { return true })
	SortPreOrder(nodes)
	return nodes
}

// scan returns clones of every visible node matching pred.
func (v memoryView) scan(pred func(*models.CategoryNode) bool) []*models.CategoryNode {
	var out []*models.CategoryNode

	v.store.mu.RLock()
	for id, n := range v.store.nodes {
		if _, shadowed := v.overlay[id]; shadowed {
			continue
		}
		if pred(n) {
			out = append(out, n.Clone())
		}
	}
	v.store.mu.RUnlock()

	for _, n := range v.overlay {
		if n != nil && pred(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

type memoryTx struct {
	store  *MemoryTreeStore
	writes map[string]*models.CategoryNode
}

func (tx *memoryTx) view() memoryView {
	return tx.store.view(tx.writes)
}

func (tx *memoryTx) GetNode(ctx context.Context, id string) (*models.CategoryNode, error) {
	return tx.view().getNode(id)
}

func (tx *memoryTx) GetNodeByPath(ctx context.Context, path string) (*models.CategoryNode, error) {
	return tx.view().getNodeByPath(path)
}

func (tx *memoryTx) GetNodesByPaths(ctx context.Context, paths []string) ([]*models.CategoryNode, error) {
	return tx.view().getNodesByPaths(paths), nil
}

func (tx *memoryTx) GetChildren(ctx context.Context, parentID *string) ([]*models.CategoryNode, error) {
	return tx.view().getChildren(parentID), nil
}

func (tx *memoryTx) CountChildren(ctx context.Context, id string) (int, error) {
	return len(tx.view().getChildren(&id)), nil
}

func (tx *memoryTx) GetSubtree(ctx context.Context, rootPath string) ([]*models.CategoryNode, error) {
	return tx.view().getSubtree(rootPath), nil
}

func (tx *memoryTx) ListAll(ctx context.Context) ([]*models.CategoryNode, error) {
	return tx.view().listAll(), nil
}

func (tx *memoryTx) Insert(ctx context.Context, node *models.CategoryNode) error {
	if _, exists := tx.view().lookup(node.ID); exists {
		return apperrors.NewConflictError(apperrors.ErrCodeResourceConflict, "Category node already exists", nil).
			WithDetails("node %s", node.ID)
	}

	c := node.Clone()
	now := tx.store.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	tx.writes[c.ID] = c

	node.CreatedAt, node.UpdatedAt = c.CreatedAt, c.UpdatedAt
	return nil
}

func (tx *memoryTx) Update(ctx context.Context, nodes ...*models.CategoryNode) error {
	now := tx.store.now()
	for _, node := range nodes {
		if _, exists := tx.view().lookup(node.ID); !exists {
			return apperrors.NewNodeNotFoundError(node.ID)
		}
		c := node.Clone()
		c.UpdatedAt = now
		tx.writes[c.ID] = c
		node.UpdatedAt = now
	}
	return nil
}

func (tx *memoryTx) Delete(ctx context.Context, id string) error {
	if _, exists := tx.view().lookup(id); !exists {
		return apperrors.NewNodeNotFoundError(id)
	}
	tx.writes[id] = nil
	return nil
}
