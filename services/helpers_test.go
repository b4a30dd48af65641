package services

import (
	"context"
	"sync"
	"time"

	"catalog-hierarchy/database"
	"catalog-hierarchy/models"
)

func node(id, parent, name, path string, depth, sortOrder int) *models.CategoryNode {
	return &models.CategoryNode{
		ID:               id,
		ParentID:         models.StringPtr(parent),
		Name:             name,
		MaterializedPath: path,
		Depth:            depth,
		SortOrder:        sortOrder,
	}
}

// catalogStore seeds:
//
//	electronics (e)
//	  phones (p)
//	    smartphones (s)
//	  tv-audio (t)
//	home (h)
//	  kitchen (k)
func catalogStore() *database.MemoryTreeStore {
	store := database.NewMemoryTreeStore(50 * time.Millisecond)
	store.Seed(
		node("e", "", "Electronics", "electronics", 0, 0),
		node("p", "e", "Phones", "electronics/phones", 1, 0),
		node("s", "p", "Smartphones", "electronics/phones/smartphones", 2, 0),
		node("t", "e", "TV & Audio", "electronics/tv-audio", 1, 1),
		node("h", "", "Home", "home", 0, 1),
		node("k", "h", "Kitchen", "home/kitchen", 1, 0),
	)
	return store
}

func ids(nodes []*models.CategoryNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func paths(nodes []*models.CategoryNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.MaterializedPath
	}
	return out
}

// recordingPublisher collects published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.HierarchyEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event models.HierarchyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}
