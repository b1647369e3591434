package refine

import (
	"context"
	"fmt"
	"testing"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/pkg/models"
)

// scriptedReviewer approves at a fixed iteration, or never.
type scriptedReviewer struct {
	calls     int
	approveAt int // -1 means never
	failAt    int // -1 means never
}

func (r *scriptedReviewer) Review(ctx context.Context, req collab.ReviewRequest) (*collab.ReviewResponse, error) {
	call := r.calls
	r.calls++
	if r.failAt >= 0 && call == r.failAt {
		return nil, fmt.Errorf("reviewer unreachable")
	}
	if r.approveAt >= 0 && call == r.approveAt {
		return &collab.ReviewResponse{Verdict: models.VerdictApproved, Score: 9.0}, nil
	}
	return &collab.ReviewResponse{
		Verdict:  models.VerdictNeedsRevision,
		Score:    4.0,
		Feedback: fmt.Sprintf("revise round %d", call),
	}, nil
}

type countingImplementer struct {
	implements int
	refines    int
	failRefine bool
}

func (i *countingImplementer) Implement(ctx context.Context, description string, requirements []string) (string, error) {
	i.implements++
	return "v0", nil
}

func (i *countingImplementer) Refine(ctx context.Context, artifact, feedback string) (string, error) {
	i.refines++
	if i.failRefine {
		return "", fmt.Errorf("implementer unreachable")
	}
	return fmt.Sprintf("%s+r%d", artifact, i.refines), nil
}

func TestApprovedAfterRevisions(t *testing.T) {
	reviewer := &scriptedReviewer{approveAt: 2, failAt: -1}
	impl := &countingImplementer{}
	loop := New(impl, reviewer, Config{MaxIterations: 3}, nil)

	result, err := loop.Refine(context.Background(), "v0", []string{"req"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Approved() {
		t.Fatalf("expected approval, got %s", result.Outcome)
	}
	if result.Iterations != 2 {
		t.Errorf("expected approval at iteration 2, got %d", result.Iterations)
	}
	if result.Score != 9.0 {
		t.Errorf("expected final score 9.0, got %v", result.Score)
	}
	if impl.refines != 2 {
		t.Errorf("expected 2 refine calls, got %d", impl.refines)
	}
	if len(result.Attempts) != 3 {
		t.Errorf("expected 3 recorded attempts, got %d", len(result.Attempts))
	}
	for i, a := range result.Attempts {
		if a.Iteration != i {
			t.Errorf("attempt %d has iteration %d", i, a.Iteration)
		}
	}
}

func TestImmediateApprovalSkipsRefine(t *testing.T) {
	reviewer := &scriptedReviewer{approveAt: 0, failAt: -1}
	impl := &countingImplementer{}
	loop := New(impl, reviewer, Config{MaxIterations: 3}, nil)

	result, err := loop.Refine(context.Background(), "v0", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Iterations != 0 || impl.refines != 0 {
		t.Errorf("expected zero-iteration approval, got iterations=%d refines=%d",
			result.Iterations, impl.refines)
	}
}

func TestBudgetExhaustedKeepsLastArtifact(t *testing.T) {
	reviewer := &scriptedReviewer{approveAt: -1, failAt: -1}
	impl := &countingImplementer{}
	loop := New(impl, reviewer, Config{MaxIterations: 2}, nil)

	result, err := loop.Refine(context.Background(), "v0", nil)
	if err != nil {
		t.Fatalf("budget exhaustion must not be an error: %v", err)
	}
	if result.Outcome != OutcomeExhausted {
		t.Fatalf("expected exhausted, got %s", result.Outcome)
	}
	if result.Iterations != 2 {
		t.Errorf("expected final iteration 2, got %d", result.Iterations)
	}
	// MaxIterations+1 reviews, MaxIterations refines.
	if reviewer.calls != 3 {
		t.Errorf("expected 3 reviewer calls, got %d", reviewer.calls)
	}
	if impl.refines != 2 {
		t.Errorf("expected 2 refine calls, got %d", impl.refines)
	}
	if result.Artifact != "v0+r1+r2" {
		t.Errorf("expected last revised artifact, got %q", result.Artifact)
	}
	if result.Score != 4.0 {
		t.Errorf("expected last score retained, got %v", result.Score)
	}
}

func TestReviewerFailureAbortsLoop(t *testing.T) {
	reviewer := &scriptedReviewer{approveAt: -1, failAt: 1}
	impl := &countingImplementer{}
	loop := New(impl, reviewer, Config{MaxIterations: 5}, nil)

	result, err := loop.Refine(context.Background(), "v0", nil)
	if err == nil {
		t.Fatal("expected collaborator failure error")
	}
	if result != nil {
		t.Errorf("collaborator failure must not produce a result, got %+v", result)
	}
}

func TestImplementerFailureAbortsLoop(t *testing.T) {
	reviewer := &scriptedReviewer{approveAt: -1, failAt: -1}
	impl := &countingImplementer{failRefine: true}
	loop := New(impl, reviewer, Config{MaxIterations: 5}, nil)

	if _, err := loop.Refine(context.Background(), "v0", nil); err == nil {
		t.Fatal("expected collaborator failure error")
	}
}

func TestProduceRunsImplementerFirst(t *testing.T) {
	reviewer := &scriptedReviewer{approveAt: 0, failAt: -1}
	impl := &countingImplementer{}
	loop := New(impl, reviewer, Config{MaxIterations: 1}, nil)

	result, err := loop.Produce(context.Background(), "write a doc", []string{"clear"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if impl.implements != 1 {
		t.Errorf("expected one Implement call, got %d", impl.implements)
	}
	if result.Artifact != "v0" {
		t.Errorf("expected initial artifact approved, got %q", result.Artifact)
	}
}

func TestZeroBudgetReviewsOnce(t *testing.T) {
	reviewer := &scriptedReviewer{approveAt: -1, failAt: -1}
	impl := &countingImplementer{}
	loop := New(impl, reviewer, Config{MaxIterations: 0}, nil)

	result, err := loop.Refine(context.Background(), "v0", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != OutcomeExhausted || reviewer.calls != 1 || impl.refines != 0 {
		t.Errorf("expected single review and no refine, got outcome=%s reviews=%d refines=%d",
			result.Outcome, reviewer.calls, impl.refines)
	}
}
