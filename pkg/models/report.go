package models

import "time"

// RunStatus is the overall outcome of a goal-level run.
type RunStatus string

const (
	// RunCompleted means every required stage and task completed.
	RunCompleted RunStatus = "completed"
	// RunPartial means the run exhausted its turn budget before completion.
	RunPartial RunStatus = "partial"
	// RunFailed means a stage or critical task explicitly failed.
	RunFailed RunStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunCompleted, RunPartial, RunFailed:
		return true
	default:
		return false
	}
}

// ReportCounts aggregates terminal task statuses for a run.
type ReportCounts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// TaskRecord is the audit record for one task node, nested to mirror
// the task hierarchy. Records are write-once per run.
type TaskRecord struct {
	// ID is the task node's ID.
	ID string `json:"id"`
	// Title is the task's title.
	Title string `json:"title"`
	// Status is the task's terminal status.
	Status TaskStatus `json:"status"`
	// DurationMillis is the execution wall-clock time in milliseconds.
	DurationMillis int64 `json:"duration_ms"`
	// Artifacts lists what the task produced.
	Artifacts []string `json:"artifacts,omitempty"`
	// Score is the refinement quality score, if the task was quality-gated.
	Score *float64 `json:"score,omitempty"`
	// Children holds records for sub-work spawned under this task.
	Children []TaskRecord `json:"children,omitempty"`
}

// RunReport is the structured audit output for one run.
type RunReport struct {
	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`
	// Goal is the user-provided goal the run worked toward.
	Goal string `json:"goal"`
	// Status is the overall run outcome.
	Status RunStatus `json:"status"`
	// Stages records the dialogue stages the run went through.
	Stages []DialogueStage `json:"stages,omitempty"`
	// Tasks holds the per-task audit records.
	Tasks []TaskRecord `json:"tasks,omitempty"`
	// Counts aggregates terminal task statuses.
	Counts ReportCounts `json:"counts"`
	// Artifacts is the merged artifact list across the run.
	Artifacts []string `json:"artifacts,omitempty"`
	// Summary is the final human-readable report text.
	Summary string `json:"summary,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the run finished.
	EndedAt time.Time `json:"ended_at"`
}
