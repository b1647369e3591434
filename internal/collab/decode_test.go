package collab

import (
	"testing"

	"github.com/mbenham/taskforge/pkg/models"
)

func TestDecodeObjectWithSurroundingProse(t *testing.T) {
	response := `Here is the result you asked for:
{"outcome": "completed", "output": "done", "artifacts": ["a.txt"]}
Let me know if you need anything else.`

	var resp TaskResponse
	if err := DecodeObject(response, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Outcome != OutcomeCompleted {
		t.Errorf("expected completed outcome, got %q", resp.Outcome)
	}
	if len(resp.Artifacts) != 1 || resp.Artifacts[0] != "a.txt" {
		t.Errorf("unexpected artifacts: %v", resp.Artifacts)
	}
}

func TestDecodeObjectNoJSON(t *testing.T) {
	var resp TaskResponse
	if err := DecodeObject("I finished the task, everything looks good.", &resp); err == nil {
		t.Fatal("expected error for prose without JSON")
	}
}

func TestDecodeObjectUnknownFields(t *testing.T) {
	var resp TaskResponse
	err := DecodeObject(`{"outcome": "completed", "confidence": 0.9}`, &resp)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidatePlan(t *testing.T) {
	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{
			name:    "empty plan",
			plan:    Plan{},
			wantErr: true,
		},
		{
			name: "valid",
			plan: Plan{Tasks: []PlannedTask{
				{ID: "t1", Title: "First"},
				{ID: "t2", Title: "Second", DependsOn: []string{"t1"}, Complexity: models.ComplexityHigh},
			}},
			wantErr: false,
		},
		{
			name: "missing id",
			plan: Plan{Tasks: []PlannedTask{
				{Title: "Anonymous"},
			}},
			wantErr: true,
		},
		{
			name: "duplicate id",
			plan: Plan{Tasks: []PlannedTask{
				{ID: "t1"}, {ID: "t1"},
			}},
			wantErr: true,
		},
		{
			name: "unknown dependency",
			plan: Plan{Tasks: []PlannedTask{
				{ID: "t1", DependsOn: []string{"t9"}},
			}},
			wantErr: true,
		},
		{
			name: "bad complexity",
			plan: Plan{Tasks: []PlannedTask{
				{ID: "t1", Complexity: "extreme"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePlan(&tt.plan)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePlan() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTaskResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    TaskResponse
		wantErr bool
	}{
		{"completed", TaskResponse{Outcome: OutcomeCompleted}, false},
		{"failed", TaskResponse{Outcome: OutcomeFailed, Error: "boom"}, false},
		{"unknown outcome", TaskResponse{Outcome: "partial"}, true},
		{"needs info without request", TaskResponse{Outcome: OutcomeNeedsInfo}, true},
		{"needs info bad type", TaskResponse{Outcome: OutcomeNeedsInfo, Info: &InfoRequest{Type: "guess", Query: "q"}}, true},
		{"needs info empty query", TaskResponse{Outcome: OutcomeNeedsInfo, Info: &InfoRequest{Type: InfoWebSearch}}, true},
		{"needs info valid", TaskResponse{Outcome: OutcomeNeedsInfo, Info: &InfoRequest{Type: InfoResearch, Query: "q"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTaskResponse(&tt.resp)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTaskResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReview(t *testing.T) {
	ok := ReviewResponse{Verdict: models.VerdictApproved, Score: 8.5}
	if err := ValidateReview(&ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !ok.Approved() {
		t.Error("expected approved verdict to report Approved")
	}

	bad := []ReviewResponse{
		{Verdict: "looks good", Score: 5},
		{Verdict: models.VerdictNeedsRevision, Score: -1},
		{Verdict: models.VerdictNeedsRevision, Score: 11},
	}
	for _, resp := range bad {
		if err := ValidateReview(&resp); err == nil {
			t.Errorf("expected error for %+v", resp)
		}
	}
}

func TestUnavailableError(t *testing.T) {
	err := Unavailable("planner", errDummy{})
	if !IsUnavailable(err) {
		t.Error("expected wrapped error to report unavailable")
	}
	if IsUnavailable(errDummy{}) {
		t.Error("expected plain error not to report unavailable")
	}
}

type errDummy struct{}

func (errDummy) Error() string { return "dummy" }
