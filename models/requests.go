package models

// Request structures for the category HTTP API

// CreateCategoryRequest represents a create request body
type CreateCategoryRequest = CreateCategoryInput

// RenameCategoryRequest represents a rename request body
type RenameCategoryRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

// MoveCategoryRequest represents a single move request body
type MoveCategoryRequest struct {
	NewParentID *string `json:"new_parent_id"`
}

// BulkMoveRequest represents a batch of moves applied atomically
type BulkMoveRequest struct {
	Moves []MoveRequest `json:"moves" validate:"required,min=1,max=1000,dive"`
}

// BulkReparentRequest moves every child of FromParentID under ToParentID
type BulkReparentRequest struct {
	FromParentID *string `json:"from_parent_id"`
	ToParentID   *string `json:"to_parent_id"`
}

// ReorderRequest assigns sibling order under ParentID
type ReorderRequest struct {
	ParentID        *string  `json:"parent_id"`
	OrderedChildIDs []string `json:"ordered_child_ids" validate:"required,dive,required"`
}

// RepairRequest optionally restricts a repair run to explicit anomalies.
// When Anomalies is empty the forest is validated first.
type RepairRequest struct {
	Anomalies []Anomaly `json:"anomalies,omitempty"`
}
