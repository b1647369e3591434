package models

import "time"

// ReviewVerdict is a reviewer's structured decision on an artifact.
type ReviewVerdict string

const (
	// VerdictApproved means the artifact meets the requirements.
	VerdictApproved ReviewVerdict = "approved"
	// VerdictNeedsRevision means the artifact must be refined again.
	VerdictNeedsRevision ReviewVerdict = "needs_revision"
)

// Valid returns true if the verdict is a known value.
func (v ReviewVerdict) Valid() bool {
	return v == VerdictApproved || v == VerdictNeedsRevision
}

// RefinementAttempt records one iteration of the implement-review-refine
// loop. Attempts are append-only: once written they are never mutated.
type RefinementAttempt struct {
	// Iteration is the 0-based loop index this attempt belongs to.
	Iteration int `json:"iteration"`
	// Artifact is a snapshot of the artifact at this iteration.
	Artifact string `json:"artifact"`
	// Verdict is the reviewer's structured decision.
	Verdict ReviewVerdict `json:"verdict"`
	// Score is the reviewer's quality score (0-10).
	Score float64 `json:"score"`
	// Feedback is the reviewer's revision feedback.
	Feedback string `json:"feedback,omitempty"`
	// CreatedAt is when the attempt was recorded.
	CreatedAt time.Time `json:"created_at"`
}
