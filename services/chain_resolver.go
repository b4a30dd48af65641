package services

import (
	"context"

	apperrors "catalog-hierarchy/errors"
	"catalog-hierarchy/models"
	"catalog-hierarchy/pathcodec"
)

type chainStatus int

const (
	chainOK chainStatus = iota
	// the node's own parent is missing
	chainOrphan
	chainUnderOrphan
	// the node sits on a parent_id loop
	chainCycle
	chainUnderCycle
)

// chainResolution is the path and depth a node should have given its
// parent_id chain and the names along it.
type chainResolution struct {
	path   string
	depth  int
	status chainStatus
	// culprit is the orphan or a cycle member responsible for a broken chain
	culprit string
}

type nodeLookup func(ctx context.Context, id string) (*models.CategoryNode, bool, error)

// chainResolver computes expected paths bottom-up with memoization, so a
// whole forest resolves in linear time.
type chainResolver struct {
	lookup nodeLookup
	done   map[string]chainResolution
}

func newChainResolver(lookup nodeLookup) *chainResolver {
	return &chainResolver{lookup: lookup, done: make(map[string]chainResolution)}
}

// newSnapshotResolver resolves against an in-memory set of nodes.
func newSnapshotResolver(byID map[string]*models.CategoryNode) *chainResolver {
	return newChainResolver(func(_ context.Context, id string) (*models.CategoryNode, bool, error) {
		n, ok := byID[id]
		return n, ok, nil
	})
}

// newReaderResolver resolves by fetching nodes one at a time.
func newReaderResolver(reader interface {
	GetNode(ctx context.Context, id string) (*models.CategoryNode, error)
}) *chainResolver {
	return newChainResolver(func(ctx context.Context, id string) (*models.CategoryNode, bool, error) {
		n, err := reader.GetNode(ctx, id)
		if apperrors.Is(err, apperrors.ErrNodeNotFound) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return n, true, nil
	})
}

func (r *chainResolver) resolve(ctx context.Context, node *models.CategoryNode) (chainResolution, error) {
	if res, ok := r.done[node.ID]; ok {
		return res, nil
	}

	var chain []*models.CategoryNode
	onChain := make(map[string]int)
	var base chainResolution
	hasBase := false

	cur := node
	for {
		if res, ok := r.done[cur.ID]; ok {
			base, hasBase = res, true
			break
		}
		if idx, seen := onChain[cur.ID]; seen {
			for _, n := range chain[idx:] {
				r.done[n.ID] = chainResolution{status: chainCycle, culprit: cur.ID}
			}
			chain = chain[:idx]
			base, hasBase = chainResolution{status: chainCycle, culprit: cur.ID}, true
			break
		}

		onChain[cur.ID] = len(chain)
		chain = append(chain, cur)
		if cur.ParentID == nil {
			break
		}

		parent, ok, err := r.lookup(ctx, *cur.ParentID)
		if err != nil {
			return chainResolution{}, err
		}
		if !ok {
			r.done[cur.ID] = chainResolution{status: chainOrphan, culprit: cur.ID}
			chain = chain[:len(chain)-1]
			base, hasBase = r.done[cur.ID], true
			break
		}
		cur = parent
	}

	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		seg := expectedSegment(n)

		var above chainResolution
		switch {
		case i < len(chain)-1:
			above = r.done[chain[i+1].ID]
		case hasBase:
			above = base
		default:
			r.done[n.ID] = chainResolution{path: seg, depth: 0, status: chainOK}
			continue
		}

		switch above.status {
		case chainOK:
			r.done[n.ID] = chainResolution{
				path:   above.path + pathcodec.Delimiter + seg,
				depth:  above.depth + 1,
				status: chainOK,
			}
		case chainOrphan, chainUnderOrphan:
			r.done[n.ID] = chainResolution{status: chainUnderOrphan, culprit: above.culprit}
		default:
			r.done[n.ID] = chainResolution{status: chainUnderCycle, culprit: above.culprit}
		}
	}

	return r.done[node.ID], nil
}

// expectedSegment derives the segment from the name. Rows whose names no
// longer slug cleanly keep their stored segment.
func expectedSegment(n *models.CategoryNode) string {
	if seg, err := pathcodec.Segment(n.Name); err == nil {
		return seg
	}
	if seg := pathcodec.LastSegment(n.MaterializedPath); seg != "" {
		return seg
	}
	return n.ID
}
