// Package collab defines the contracts for the external collaborators
// the engine drives: planning, execution, review, synthesis, information
// lookup, and summarization. The engine treats every collaborator as an
// opaque request/response call; transport is an implementation detail of
// the adapter behind the interface.
package collab

import (
	"context"

	"github.com/mbenham/taskforge/pkg/models"
)

// InfoRequestType classifies the information an executor can ask for
// mid-run. The set is closed; adapters must reject anything else.
type InfoRequestType string

const (
	InfoWebSearch     InfoRequestType = "web_search"
	InfoResearch      InfoRequestType = "research"
	InfoClarification InfoRequestType = "clarification"
	InfoExamples      InfoRequestType = "examples"
	InfoAdvice        InfoRequestType = "advice"
)

// Valid returns true if the request type is a known value.
func (t InfoRequestType) Valid() bool {
	switch t {
	case InfoWebSearch, InfoResearch, InfoClarification, InfoExamples, InfoAdvice:
		return true
	default:
		return false
	}
}

// InfoRequest is a typed mid-execution information request.
type InfoRequest struct {
	Type  InfoRequestType `json:"type"`
	Query string          `json:"query"`
}

// InfoResponse is the information provider's answer.
type InfoResponse struct {
	Content string   `json:"content"`
	Sources []string `json:"sources,omitempty"`
}

// PlannedTask is one work item in a planner-produced plan.
type PlannedTask struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Priority           int               `json:"priority"`
	Complexity         models.Complexity `json:"complexity,omitempty"`
	Critical           bool              `json:"critical,omitempty"`
	DependsOn          []string          `json:"depends_on,omitempty"`
	AcceptanceCriteria string            `json:"acceptance_criteria,omitempty"`
}

// Plan is the planner's full output for a goal. The task list and its
// dependency map must describe an acyclic graph; the engine validates
// this before executing anything.
type Plan struct {
	Tasks []PlannedTask `json:"tasks"`
}

// DecomposeRequest asks the planner whether a single unit of work should
// fan out into specialized sub-work.
type DecomposeRequest struct {
	// Goal is the work being considered for decomposition.
	Goal string `json:"goal"`
	// Role is the requesting agent node's role tag.
	Role string `json:"role"`
	// Context is inherited context from the parent node.
	Context string `json:"context,omitempty"`
	// Depth and MaxDepth tell the planner how much headroom remains.
	Depth    int `json:"depth"`
	MaxDepth int `json:"max_depth"`
}

// SubTask is one child work item in a decomposition.
type SubTask struct {
	Role    string `json:"role"`
	Goal    string `json:"goal"`
	Context string `json:"context,omitempty"`
}

// Decomposition is the planner's decomposition decision.
type Decomposition struct {
	// Decompose is false when the work should be executed directly.
	Decompose bool `json:"decompose"`
	// SubTasks is the child work, present only when Decompose is true.
	SubTasks []SubTask `json:"sub_tasks,omitempty"`
}

// TaskRequest is one executor invocation.
type TaskRequest struct {
	// TaskID identifies the task node being executed, if any.
	TaskID string `json:"task_id,omitempty"`
	// Description is the work to perform.
	Description string `json:"description"`
	// Context is accumulated context relevant to the work.
	Context string `json:"context,omitempty"`
	// AcceptanceCriteria defines what done means for this work.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
}

// TaskOutcome is the executor's structured status signal.
type TaskOutcome string

const (
	// OutcomeCompleted means the work finished successfully.
	OutcomeCompleted TaskOutcome = "completed"
	// OutcomeFailed means the work explicitly failed.
	OutcomeFailed TaskOutcome = "failed"
	// OutcomeNeedsInfo means the executor requires information before
	// it can make further progress.
	OutcomeNeedsInfo TaskOutcome = "needs_info"
)

// Valid returns true if the outcome is a known value.
func (o TaskOutcome) Valid() bool {
	switch o {
	case OutcomeCompleted, OutcomeFailed, OutcomeNeedsInfo:
		return true
	default:
		return false
	}
}

// TaskResponse is the executor's structured result.
type TaskResponse struct {
	Outcome   TaskOutcome  `json:"outcome"`
	Output    string       `json:"output,omitempty"`
	Artifacts []string     `json:"artifacts,omitempty"`
	Error     string       `json:"error,omitempty"`
	Info      *InfoRequest `json:"info_request,omitempty"`
}

// ReviewRequest asks a reviewer to assess an artifact against a
// requirements list.
type ReviewRequest struct {
	Artifact     string   `json:"artifact"`
	Requirements []string `json:"requirements"`
}

// ReviewResponse is the reviewer's structured verdict. Approval is
// decided by the Verdict field alone; the engine never infers it from
// feedback prose.
type ReviewResponse struct {
	Verdict     models.ReviewVerdict `json:"verdict"`
	Score       float64              `json:"score"`
	Feedback    string               `json:"feedback,omitempty"`
	Issues      []string             `json:"issues,omitempty"`
	Suggestions []string             `json:"suggestions,omitempty"`
}

// Approved reports whether the verdict is an explicit approval.
func (r *ReviewResponse) Approved() bool {
	return r.Verdict == models.VerdictApproved
}

// ChildResult is one child's outcome handed to the synthesizer.
type ChildResult struct {
	Role      string   `json:"role"`
	Goal      string   `json:"goal"`
	Success   bool     `json:"success"`
	Summary   string   `json:"summary,omitempty"`
	Artifacts []string `json:"artifacts,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Synthesis is the consolidated parent-level result merged from child
// results.
type Synthesis struct {
	Summary   string   `json:"summary"`
	Artifacts []string `json:"artifacts,omitempty"`
}

// Analysis is the analysis collaborator's findings for a goal: the one
// typed information request needed before planning can start.
type Analysis struct {
	Findings string      `json:"findings,omitempty"`
	Request  InfoRequest `json:"request"`
}

// Planner builds plans and makes decomposition decisions.
type Planner interface {
	// BuildPlan produces the full task plan for a goal.
	BuildPlan(ctx context.Context, goal, context_ string) (*Plan, error)
	// ProposeDecomposition decides whether one unit of work should fan
	// out into sub-work.
	ProposeDecomposition(ctx context.Context, req DecomposeRequest) (*Decomposition, error)
}

// Executor performs one unit of work.
type Executor interface {
	Execute(ctx context.Context, req TaskRequest) (*TaskResponse, error)
}

// Implementer produces and refines quality-gated artifacts.
type Implementer interface {
	// Implement produces the initial artifact for a requirements list.
	Implement(ctx context.Context, description string, requirements []string) (string, error)
	// Refine revises an artifact using reviewer feedback.
	Refine(ctx context.Context, artifact, feedback string) (string, error)
}

// Reviewer assesses artifacts against requirements.
type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (*ReviewResponse, error)
}

// Synthesizer merges child results into one coherent parent result.
type Synthesizer interface {
	Synthesize(ctx context.Context, results []ChildResult) (*Synthesis, error)
}

// InfoProvider answers typed information requests.
type InfoProvider interface {
	Provide(ctx context.Context, req InfoRequest) (*InfoResponse, error)
}

// Analyst determines what information is needed before planning.
type Analyst interface {
	Analyze(ctx context.Context, goal string) (*Analysis, error)
}

// Summarizer produces the final human-readable report for a run.
type Summarizer interface {
	Summarize(ctx context.Context, report *models.RunReport) (string, error)
}

// Set bundles one of each collaborator role. The engine resolves roles
// once at construction; nothing is dispatched by string tag at call time.
type Set struct {
	Planner     Planner
	Executor    Executor
	Implementer Implementer
	Reviewer    Reviewer
	Synthesizer Synthesizer
	Info        InfoProvider
	Analyst     Analyst
	Summarizer  Summarizer
}
