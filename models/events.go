package models

import "time"

// EventType enumerates hierarchy domain events.
type EventType string

const (
	EventNodeCreated    EventType = "node_created"
	EventNodeMoved      EventType = "node_moved"
	EventNodeRenamed    EventType = "node_renamed"
	EventNodesReordered EventType = "nodes_reordered"
	EventNodeDeleted    EventType = "node_deleted"
	EventForestRepaired EventType = "forest_repaired"
)

// HierarchyEvent is emitted after every committed mutation.
type HierarchyEvent struct {
	ID         string       `json:"id"`
	Type       EventType    `json:"type"`
	NodeIDs    []string     `json:"node_ids"`
	OldPath    string       `json:"old_path,omitempty"`
	NewPath    string       `json:"new_path,omitempty"`
	Changes    []PathChange `json:"changes,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}
