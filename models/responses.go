package models

// APIError represents standardized error response
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NodeListResponse wraps an ordered list of nodes
type NodeListResponse struct {
	Nodes []*CategoryNode `json:"nodes"`
	Count int             `json:"count"`
}

// NewNodeListResponse builds a list response, never encoding a null list
func NewNodeListResponse(nodes []*CategoryNode) NodeListResponse {
	if nodes == nil {
		nodes = []*CategoryNode{}
	}
	return NodeListResponse{Nodes: nodes, Count: len(nodes)}
}

// BulkMoveResponse lists every rewritten path of a committed batch
type BulkMoveResponse struct {
	Moved   int          `json:"moved"`
	Changes []PathChange `json:"changes"`
}
