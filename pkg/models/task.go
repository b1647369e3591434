// Package models defines the shared data model for the taskforge engine.
package models

import "time"

// TaskStatus represents the current state of a task node.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been considered yet.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates every dependency is complete and the task is eligible to run.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusRunning indicates the task is being executed.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task's executor call failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusSkipped indicates the task was never run because a dependency did not complete.
	TaskStatusSkipped TaskStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning,
		TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this status.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusSkipped:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic pending -> ready -> running -> {completed, failed, skipped}
// ordering. Terminal states admit no transitions.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case TaskStatusPending:
		return next == TaskStatusReady || next == TaskStatusSkipped
	case TaskStatusReady:
		return next == TaskStatusRunning || next == TaskStatusSkipped
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// Complexity is the planner's estimate of how involved a task is.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	default:
		return false
	}
}

// TaskResult holds the output of a single executed task node.
type TaskResult struct {
	// Output is the executor's free-text output.
	Output string `json:"output,omitempty"`
	// Artifacts lists files or resources produced by the task.
	Artifacts []string `json:"artifacts,omitempty"`
	// Error contains the failure message if the task failed.
	Error string `json:"error,omitempty"`
	// Score is the quality score from refinement, if the task went through it.
	Score *float64 `json:"score,omitempty"`
}

// TaskNode represents a unit of work in the dependency graph.
// Nodes are created when a plan is parsed and mutated only by the
// execution coordinator; once a terminal status is reached the node
// is never modified again.
type TaskNode struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// AcceptanceCriteria defines the criteria for task completion.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	// Priority orders tasks that become ready at the same time. Lower is more urgent.
	Priority int `json:"priority"`
	// Complexity is the planner's complexity estimate.
	Complexity Complexity `json:"complexity,omitempty"`
	// Critical marks a task whose failure halts the remaining run.
	Critical bool `json:"critical,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// SkipReason explains why the task was skipped, if it was.
	SkipReason string `json:"skip_reason,omitempty"`
	// Result is the execution outcome, set once the task is terminal.
	Result *TaskResult `json:"result,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when execution began, if it did.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Duration returns the wall-clock execution time of the task, or zero if
// the task never ran to a terminal status.
func (t *TaskNode) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}
