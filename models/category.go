package models

import "time"

// CategoryNode is one node of the category forest. Nodes reference their parent
// by id only; the materialized path is derived from the parent chain.
type CategoryNode struct {
	ID               string    `json:"id" db:"id"`
	ParentID         *string   `json:"parent_id" db:"parent_id"`
	Name             string    `json:"name" db:"name"`
	MaterializedPath string    `json:"materialized_path" db:"materialized_path"`
	Depth            int       `json:"depth" db:"depth"`
	SortOrder        int       `json:"sort_order" db:"sort_order"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// IsRoot reports whether the node has no parent.
func (n *CategoryNode) IsRoot() bool {
	return n.ParentID == nil
}

// Clone returns a deep copy, including the parent pointer.
func (n *CategoryNode) Clone() *CategoryNode {
	if n == nil {
		return nil
	}
	c := *n
	if n.ParentID != nil {
		p := *n.ParentID
		c.ParentID = &p
	}
	return &c
}

// ParentKey returns the parent id, or "" for roots. Useful as a map key.
func (n *CategoryNode) ParentKey() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SameParent compares two optional parent ids.
func SameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CreateCategoryInput describes a new node. ID is generated when empty.
type CreateCategoryInput struct {
	ID        string  `json:"id,omitempty" validate:"omitempty,max=64"`
	ParentID  *string `json:"parent_id,omitempty"`
	Name      string  `json:"name" validate:"required,max=255"`
	SortOrder int     `json:"sort_order" validate:"gte=0"`
}

// MoveRequest moves NodeID under NewParentID. A nil parent promotes the node to a root.
type MoveRequest struct {
	NodeID      string  `json:"node_id" validate:"required"`
	NewParentID *string `json:"new_parent_id"`
}

// PathChange records one node whose path was rewritten.
type PathChange struct {
	NodeID   string `json:"node_id"`
	OldPath  string `json:"old_path"`
	NewPath  string `json:"new_path"`
	OldDepth int    `json:"old_depth"`
	NewDepth int    `json:"new_depth"`
}

// MoveResult summarizes a committed move.
type MoveResult struct {
	Node    *CategoryNode `json:"node"`
	Changes []PathChange  `json:"changes"`
}
