package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbenham/taskforge/pkg/models"
)

// Claude implements every collaborator role against the Anthropic API.
// Each call is one message round-trip with a strict JSON contract; a
// response that fails to decode is reported as ErrUnavailable, never
// guessed at.
type Claude struct {
	client *Client
}

// NewClaude creates the Claude-backed collaborator set around a client.
func NewClaude(client *Client) *Claude {
	return &Claude{client: client}
}

// NewClaudeSet bundles one Claude instance into every collaborator role.
func NewClaudeSet(client *Client) *Set {
	c := NewClaude(client)
	return &Set{
		Planner:     c,
		Executor:    c,
		Implementer: c,
		Reviewer:    c,
		Synthesizer: c,
		Info:        c,
		Analyst:     c,
		Summarizer:  c,
	}
}

const planSystem = `You are a planning agent. You break a goal into discrete tasks
with explicit dependencies. The dependency graph you produce must be acyclic.
Respond ONLY with JSON, no other text.`

const planPrompt = `GOAL:
%s

CONTEXT:
%s

Produce a task plan. Each task needs a short unique id (e.g. "t1"), a title,
a description, a priority (integer, lower = more urgent), a complexity
("low", "medium" or "high"), acceptance criteria, and the ids of tasks it
depends on. Mark a task "critical": true only if the rest of the plan is
pointless without it.

OUTPUT FORMAT (JSON):
{
  "tasks": [
    {
      "id": "t1",
      "title": "...",
      "description": "...",
      "priority": 1,
      "complexity": "low|medium|high",
      "critical": false,
      "depends_on": [],
      "acceptance_criteria": "..."
    }
  ]
}`

// BuildPlan implements Planner.
func (c *Claude) BuildPlan(ctx context.Context, goal, context_ string) (*Plan, error) {
	out, err := c.client.Complete(ctx, planSystem, fmt.Sprintf(planPrompt, goal, orNone(context_)))
	if err != nil {
		return nil, Unavailable("planner", err)
	}

	var plan Plan
	if err := DecodeObject(out, &plan); err != nil {
		return nil, Unavailable("planner", err)
	}
	if err := ValidatePlan(&plan); err != nil {
		return nil, Unavailable("planner", err)
	}
	return &plan, nil
}

const decomposePrompt = `You are a %s agent deciding whether to split a unit of work
into sub-work for specialized sub-agents.

WORK:
%s

CONTEXT:
%s

CURRENT DEPTH: %d
MAX DEPTH: %d

Split only when the work has distinct components that benefit from different
specializations. Otherwise decline and the work will be executed directly.

OUTPUT FORMAT (JSON):
{
  "decompose": true,
  "sub_tasks": [
    {"role": "code|doc|qa|research|data", "goal": "...", "context": "..."}
  ]
}

Respond ONLY with JSON. Use {"decompose": false} to decline.`

// ProposeDecomposition implements Planner.
func (c *Claude) ProposeDecomposition(ctx context.Context, req DecomposeRequest) (*Decomposition, error) {
	prompt := fmt.Sprintf(decomposePrompt, req.Role, req.Goal, orNone(req.Context), req.Depth, req.MaxDepth)
	out, err := c.client.Complete(ctx, "", prompt)
	if err != nil {
		return nil, Unavailable("planner", err)
	}

	var dec Decomposition
	if err := DecodeObject(out, &dec); err != nil {
		return nil, Unavailable("planner", err)
	}
	if dec.Decompose && len(dec.SubTasks) == 0 {
		return nil, Unavailable("planner", fmt.Errorf("decomposition with no sub-tasks"))
	}
	return &dec, nil
}

const executePrompt = `Execute the following task and report the outcome.

TASK:
%s

CONTEXT:
%s

ACCEPTANCE CRITERIA:
%s

If you cannot make progress without more information, set the outcome to
"needs_info" and include a typed request. Request types: web_search,
research, clarification, examples, advice.

OUTPUT FORMAT (JSON):
{
  "outcome": "completed|failed|needs_info",
  "output": "what you did",
  "artifacts": ["files or resources produced"],
  "error": "failure message if failed",
  "info_request": {"type": "...", "query": "..."}
}

Respond ONLY with JSON.`

// Execute implements Executor.
func (c *Claude) Execute(ctx context.Context, req TaskRequest) (*TaskResponse, error) {
	prompt := fmt.Sprintf(executePrompt, req.Description, orNone(req.Context), orNone(req.AcceptanceCriteria))
	out, err := c.client.Complete(ctx, "", prompt)
	if err != nil {
		return nil, Unavailable("executor", err)
	}

	var resp TaskResponse
	if err := DecodeObject(out, &resp); err != nil {
		return nil, Unavailable("executor", err)
	}
	if err := ValidateTaskResponse(&resp); err != nil {
		return nil, Unavailable("executor", err)
	}
	return &resp, nil
}

const implementPrompt = `Produce an artifact satisfying these requirements.

TASK:
%s

REQUIREMENTS:
%s

OUTPUT FORMAT (JSON):
{"artifact": "the complete artifact content"}

Respond ONLY with JSON.`

const refinePrompt = `Revise the artifact below to address the reviewer feedback.
Keep everything that was not criticized.

ARTIFACT:
%s

FEEDBACK:
%s

OUTPUT FORMAT (JSON):
{"artifact": "the complete revised artifact"}

Respond ONLY with JSON.`

type artifactResponse struct {
	Artifact string `json:"artifact"`
}

// Implement implements Implementer.
func (c *Claude) Implement(ctx context.Context, description string, requirements []string) (string, error) {
	prompt := fmt.Sprintf(implementPrompt, description, bulleted(requirements))
	out, err := c.client.Complete(ctx, "", prompt)
	if err != nil {
		return "", Unavailable("implementer", err)
	}

	var resp artifactResponse
	if err := DecodeObject(out, &resp); err != nil {
		return "", Unavailable("implementer", err)
	}
	if resp.Artifact == "" {
		return "", Unavailable("implementer", fmt.Errorf("empty artifact"))
	}
	return resp.Artifact, nil
}

// Refine implements Implementer.
func (c *Claude) Refine(ctx context.Context, artifact, feedback string) (string, error) {
	out, err := c.client.Complete(ctx, "", fmt.Sprintf(refinePrompt, artifact, feedback))
	if err != nil {
		return "", Unavailable("implementer", err)
	}

	var resp artifactResponse
	if err := DecodeObject(out, &resp); err != nil {
		return "", Unavailable("implementer", err)
	}
	if resp.Artifact == "" {
		return "", Unavailable("implementer", fmt.Errorf("empty artifact"))
	}
	return resp.Artifact, nil
}

const reviewPrompt = `Review the artifact against the requirements. Be strict:
approve only if every requirement is met.

ARTIFACT:
%s

REQUIREMENTS:
%s

OUTPUT FORMAT (JSON):
{
  "verdict": "approved|needs_revision",
  "score": 0.0,
  "feedback": "how to fix the issues, or praise if approved",
  "issues": ["..."],
  "suggestions": ["..."]
}

The score is 0-10. Respond ONLY with JSON.`

// Review implements Reviewer.
func (c *Claude) Review(ctx context.Context, req ReviewRequest) (*ReviewResponse, error) {
	prompt := fmt.Sprintf(reviewPrompt, req.Artifact, bulleted(req.Requirements))
	out, err := c.client.Complete(ctx, "", prompt)
	if err != nil {
		return nil, Unavailable("reviewer", err)
	}

	var resp ReviewResponse
	if err := DecodeObject(out, &resp); err != nil {
		return nil, Unavailable("reviewer", err)
	}
	if err := ValidateReview(&resp); err != nil {
		return nil, Unavailable("reviewer", err)
	}
	return &resp, nil
}

const synthesizePrompt = `Synthesize the results below into one coherent summary of
what was accomplished, with a consolidated artifact list.

CHILD RESULTS:
%s

OUTPUT FORMAT (JSON):
{"summary": "...", "artifacts": ["..."]}

Respond ONLY with JSON.`

// Synthesize implements Synthesizer.
func (c *Claude) Synthesize(ctx context.Context, results []ChildResult) (*Synthesis, error) {
	encoded, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, Unavailable("synthesizer", err)
	}

	out, err := c.client.Complete(ctx, "", fmt.Sprintf(synthesizePrompt, encoded))
	if err != nil {
		return nil, Unavailable("synthesizer", err)
	}

	var syn Synthesis
	if err := DecodeObject(out, &syn); err != nil {
		return nil, Unavailable("synthesizer", err)
	}
	return &syn, nil
}

const providePrompt = `Answer the following %s request.

QUERY:
%s

OUTPUT FORMAT (JSON):
{"content": "your answer", "sources": ["references, if any"]}

Respond ONLY with JSON.`

// Provide implements InfoProvider.
func (c *Claude) Provide(ctx context.Context, req InfoRequest) (*InfoResponse, error) {
	if !req.Type.Valid() {
		return nil, Unavailable("info", fmt.Errorf("unknown request type %q", req.Type))
	}

	out, err := c.client.Complete(ctx, "", fmt.Sprintf(providePrompt, req.Type, req.Query))
	if err != nil {
		return nil, Unavailable("info", err)
	}

	var resp InfoResponse
	if err := DecodeObject(out, &resp); err != nil {
		return nil, Unavailable("info", err)
	}
	return &resp, nil
}

const analyzePrompt = `Analyze this goal and decide what single piece of information
is most needed before a plan can be built for it.

GOAL:
%s

Request types: web_search, research, clarification, examples, advice.

OUTPUT FORMAT (JSON):
{"findings": "what you understand about the goal", "request": {"type": "...", "query": "..."}}

Respond ONLY with JSON.`

// Analyze implements Analyst.
func (c *Claude) Analyze(ctx context.Context, goal string) (*Analysis, error) {
	out, err := c.client.Complete(ctx, "", fmt.Sprintf(analyzePrompt, goal))
	if err != nil {
		return nil, Unavailable("analyst", err)
	}

	var analysis Analysis
	if err := DecodeObject(out, &analysis); err != nil {
		return nil, Unavailable("analyst", err)
	}
	if !analysis.Request.Type.Valid() {
		return nil, Unavailable("analyst", fmt.Errorf("unknown request type %q", analysis.Request.Type))
	}
	return &analysis, nil
}

const summarizePrompt = `Write a final report for the run described below. Cover what
was accomplished, what failed or was skipped, and the artifacts produced.
Plain text, no JSON.

RUN:
%s`

// Summarize implements Summarizer.
func (c *Claude) Summarize(ctx context.Context, report *models.RunReport) (string, error) {
	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", Unavailable("summarizer", err)
	}

	out, err := c.client.Complete(ctx, "", fmt.Sprintf(summarizePrompt, encoded))
	if err != nil {
		return "", Unavailable("summarizer", err)
	}
	return strings.TrimSpace(out), nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func bulleted(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, item := range items {
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
