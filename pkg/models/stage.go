package models

import "time"

// StageType identifies a stage in the dialogue pipeline.
type StageType string

const (
	StageAnalysis  StageType = "analysis"
	StagePlanning  StageType = "planning"
	StageExecution StageType = "execution"
	StageReview    StageType = "review"
	StageSummary   StageType = "summary"
)

// Valid returns true if the stage type is a known value.
func (t StageType) Valid() bool {
	switch t {
	case StageAnalysis, StagePlanning, StageExecution, StageReview, StageSummary:
		return true
	default:
		return false
	}
}

// StageStatus is the lifecycle state of a dialogue stage.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

// Valid returns true if the stage status is a known value.
func (s StageStatus) Valid() bool {
	switch s {
	case StagePending, StageInProgress, StageCompleted, StageFailed:
		return true
	default:
		return false
	}
}

// DialogueStage records one stage of a goal-level run. The turn counter
// is only meaningful for the execution stage.
type DialogueStage struct {
	// ID is the unique identifier for this stage.
	ID string `json:"id"`
	// Type is which pipeline stage this is.
	Type StageType `json:"type"`
	// Status is the stage's lifecycle state.
	Status StageStatus `json:"status"`
	// Turns is the number of progress calls issued (execution stage only).
	Turns int `json:"turns,omitempty"`
	// Detail carries a short human-readable note about the stage outcome.
	Detail string `json:"detail,omitempty"`
	// StartedAt is when the stage entered in_progress.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the stage reached a terminal status.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}
