package models

import "time"

// AnomalyKind is the closed set of consistency findings.
type AnomalyKind string

const (
	AnomalyPathMismatch       AnomalyKind = "path_mismatch"
	AnomalyDepthMismatch      AnomalyKind = "depth_mismatch"
	AnomalyOrphanNode         AnomalyKind = "orphan_node"
	AnomalySortOrderCollision AnomalyKind = "sort_order_collision"
	AnomalyParentCycle        AnomalyKind = "parent_cycle"
)

// Repairable reports whether the repairer may fix this kind without an operator.
func (k AnomalyKind) Repairable() bool {
	switch k {
	case AnomalyPathMismatch, AnomalyDepthMismatch, AnomalySortOrderCollision:
		return true
	default:
		return false
	}
}

// Anomaly is a deviation between stored data and the invariant it should satisfy.
// For sort order collisions NodeID is one of the colliding children and ParentID
// names the affected sibling group.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	NodeID   string      `json:"node_id"`
	ParentID *string     `json:"parent_id,omitempty"`
	Expected string      `json:"expected"`
	Actual   string      `json:"actual"`
}

// UnrepairableAnomaly pairs an anomaly with the reason it was not fixed.
type UnrepairableAnomaly struct {
	Anomaly Anomaly `json:"anomaly"`
	Reason  string  `json:"reason"`
}

// RepairReport summarizes one repair run.
type RepairReport struct {
	RepairTime     time.Time             `json:"repair_time"`
	RepairedCount  int                   `json:"repaired_count"`
	RepairedByKind map[AnomalyKind]int   `json:"repaired_by_kind"`
	Unrepairable   []UnrepairableAnomaly `json:"unrepairable"`
	Duration       time.Duration         `json:"duration"`
}

// ValidationReport is the result of validating the whole forest.
type ValidationReport struct {
	CheckTime   time.Time           `json:"check_time"`
	NodesTotal  int                 `json:"nodes_total"`
	Anomalies   []Anomaly           `json:"anomalies"`
	CountByKind map[AnomalyKind]int `json:"count_by_kind"`
	Duration    time.Duration       `json:"duration"`
}

// OrphanAction is the operator's choice for an orphaned node.
type OrphanAction string

const (
	OrphanActionReparent OrphanAction = "reparent"
	OrphanActionDelete   OrphanAction = "delete"
)

// OrphanResolution is an explicit operator decision for one orphan.
// NewParentID nil with the reparent action promotes the orphan to a root.
type OrphanResolution struct {
	Action      OrphanAction `json:"action" validate:"required,oneof=reparent delete"`
	NewParentID *string      `json:"new_parent_id,omitempty"`
}
