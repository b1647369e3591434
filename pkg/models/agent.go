package models

import "time"

// AggregateStatus describes how a set of child results rolled up.
type AggregateStatus string

const (
	// AggregateCompleted means every child succeeded.
	AggregateCompleted AggregateStatus = "completed"
	// AggregatePartial means some, but not all, children succeeded.
	AggregatePartial AggregateStatus = "partial"
	// AggregateFailed means no child succeeded.
	AggregateFailed AggregateStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s AggregateStatus) Valid() bool {
	switch s {
	case AggregateCompleted, AggregatePartial, AggregateFailed:
		return true
	default:
		return false
	}
}

// AgentResult is the consolidated outcome of one agent node, including
// the synthesis of any child results.
type AgentResult struct {
	// Status is the aggregate outcome across the node and its children.
	Status AggregateStatus `json:"status"`
	// Summary is the consolidated free-text summary.
	Summary string `json:"summary,omitempty"`
	// Artifacts is the merged artifact list across the node and its children.
	Artifacts []string `json:"artifacts,omitempty"`
	// Error contains the failure message if nothing succeeded.
	Error string `json:"error,omitempty"`
	// ChildrenSpawned is how many children this node fanned out to.
	ChildrenSpawned int `json:"children_spawned,omitempty"`
	// ChildrenSucceeded is how many of those children succeeded.
	ChildrenSucceeded int `json:"children_succeeded,omitempty"`
}

// AgentNode is one node in a spawn hierarchy. Nodes live in an arena
// indexed by ID; a parent holds the ordered IDs of its children and a
// child holds its parent's ID for lookup only. Ownership belongs to the
// arena, never to the ID references.
type AgentNode struct {
	// ID is the unique identifier for this agent node.
	ID string `json:"id"`
	// Role is the specialization tag for this node (e.g. "code", "research").
	Role string `json:"role"`
	// Goal is the work this node is responsible for.
	Goal string `json:"goal"`
	// ParentID is the spawning node's ID, empty for the root.
	ParentID string `json:"parent_id,omitempty"`
	// Depth is the recursion depth; the root is 0.
	Depth int `json:"depth"`
	// Status is the node's execution state.
	Status TaskStatus `json:"status"`
	// ChildIDs lists spawned children in spawn order.
	ChildIDs []string `json:"child_ids,omitempty"`
	// Result is the aggregated outcome, set when the node is terminal.
	Result *AgentResult `json:"result,omitempty"`
	// CreatedAt is when the node was created.
	CreatedAt time.Time `json:"created_at"`
}
