// Package dialogue drives a goal through the fixed stage pipeline:
// analysis, planning, a bounded execution loop, a conditional review,
// and a final summary. Stages run in order exactly once; the execution
// loop is the only stage with internal iteration.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/internal/graph"
	"github.com/mbenham/taskforge/pkg/models"
)

// ProgressRunner makes one turn of incremental progress against the
// plan. The engine backs this with the execution coordinator; tests
// back it with scripts.
type ProgressRunner interface {
	Progress(ctx context.Context, goal string, plan *collab.Plan, context_ string, turn int) (*collab.TaskResponse, error)
}

// Config bounds the stage machine.
type Config struct {
	// MaxTurns caps the execution loop's progress calls.
	MaxTurns int `mapstructure:"max_turns"`
	// PerCallTimeout bounds each collaborator call.
	PerCallTimeout time.Duration `mapstructure:"per_call_timeout"`
}

// Result is the terminal state of one stage machine run.
type Result struct {
	// Status is the overall outcome: completed, partial on turn budget
	// exhaustion, failed when any stage explicitly failed.
	Status models.RunStatus
	// Stages records every stage in pipeline order.
	Stages []models.DialogueStage
	// Plan is the task plan the planning stage produced, if it got
	// that far.
	Plan *collab.Plan
	// Artifacts lists everything the execution loop produced.
	Artifacts []string
	// Context is the accumulated running context at the end of the run.
	Context string
	// Review holds the reviewer's assessment when the review stage ran.
	Review *collab.ReviewResponse
	// Summary is the final human-readable report text.
	Summary string
}

// Machine is the dialogue stage machine for one goal. It is not safe
// for concurrent use; the running context is mutated only between
// collaborator calls by the single coordinating flow.
type Machine struct {
	analyst  collab.Analyst
	info     collab.InfoProvider
	planner  collab.Planner
	runner   ProgressRunner
	reviewer collab.Reviewer
	summary  collab.Summarizer
	cfg      Config
	logger   *zap.Logger
}

// New creates a Machine. A nil logger is replaced with a no-op logger.
func New(analyst collab.Analyst, info collab.InfoProvider, planner collab.Planner,
	runner ProgressRunner, reviewer collab.Reviewer, summary collab.Summarizer,
	cfg Config, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTurns < 1 {
		cfg.MaxTurns = 1
	}
	return &Machine{
		analyst:  analyst,
		info:     info,
		planner:  planner,
		runner:   runner,
		reviewer: reviewer,
		summary:  summary,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run drives the goal through every stage. Stage failures surface in
// the result's status, never as an error; the error return is reserved
// for context cancellation.
func (m *Machine) Run(ctx context.Context, goal string) (*Result, error) {
	result := &Result{Status: models.RunCompleted}

	m.runAnalysis(ctx, goal, result)
	if result.Status != models.RunFailed {
		m.runPlanning(ctx, goal, result)
	}
	if result.Status != models.RunFailed {
		m.runExecution(ctx, goal, result)
	}
	if result.Status != models.RunFailed && len(result.Artifacts) > 0 {
		m.runReview(ctx, result)
	}
	if result.Status != models.RunFailed {
		m.runSummary(ctx, goal, result)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (m *Machine) runAnalysis(ctx context.Context, goal string, result *Result) {
	stage := m.beginStage(result, models.StageAnalysis)

	callCtx, cancel := m.callContext(ctx)
	analysis, err := m.analyst.Analyze(callCtx, goal)
	cancel()
	if err != nil {
		m.failStage(stage, result, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	if analysis.Findings != "" {
		m.appendContext(result, "Analysis findings", analysis.Findings)
	}

	if analysis.Request.Query != "" {
		callCtx, cancel := m.callContext(ctx)
		answer, err := m.info.Provide(callCtx, analysis.Request)
		cancel()
		if err != nil {
			m.failStage(stage, result, fmt.Sprintf("information lookup failed: %v", err))
			return
		}
		m.appendContext(result,
			fmt.Sprintf("Answer to %s request %q", analysis.Request.Type, analysis.Request.Query),
			answer.Content)
	}

	m.completeStage(stage, "")
}

func (m *Machine) runPlanning(ctx context.Context, goal string, result *Result) {
	stage := m.beginStage(result, models.StagePlanning)

	callCtx, cancel := m.callContext(ctx)
	plan, err := m.planner.BuildPlan(callCtx, goal, result.Context)
	cancel()
	if err != nil {
		m.failStage(stage, result, fmt.Sprintf("planning failed: %v", err))
		return
	}

	// The plan must describe an acyclic graph before anything executes.
	if err := planGraph(plan); err != nil {
		m.failStage(stage, result, fmt.Sprintf("planner produced an invalid graph: %v", err))
		return
	}

	result.Plan = plan
	m.completeStage(stage, fmt.Sprintf("%d tasks planned", len(plan.Tasks)))
}

// planGraph builds and validates the dependency graph a plan describes.
func planGraph(plan *collab.Plan) error {
	nodes := make([]*models.TaskNode, len(plan.Tasks))
	for i, t := range plan.Tasks {
		nodes[i] = &models.TaskNode{
			ID:        t.ID,
			Title:     t.Title,
			Status:    models.TaskStatusPending,
			DependsOn: t.DependsOn,
		}
	}
	g, err := graph.Build(nodes)
	if err != nil {
		return err
	}
	return g.Validate()
}

func (m *Machine) runExecution(ctx context.Context, goal string, result *Result) {
	stage := m.beginStage(result, models.StageExecution)

	for turn := 0; turn < m.cfg.MaxTurns; turn++ {
		stage.Turns = turn + 1

		// The runner bounds its own collaborator calls; a single-call
		// timeout here would strangle composite runners.
		resp, err := m.runner.Progress(ctx, goal, result.Plan, result.Context, turn)
		if err != nil {
			m.failStage(stage, result, fmt.Sprintf("progress turn %d failed: %v", turn, err))
			return
		}

		switch resp.Outcome {
		case collab.OutcomeCompleted:
			result.Artifacts = append(result.Artifacts, resp.Artifacts...)
			if resp.Output != "" {
				m.appendContext(result, fmt.Sprintf("Turn %d result", turn), resp.Output)
			}
			m.completeStage(stage, fmt.Sprintf("completed in %d turns", stage.Turns))
			return

		case collab.OutcomeFailed:
			result.Artifacts = append(result.Artifacts, resp.Artifacts...)
			m.failStage(stage, result, fmt.Sprintf("execution failed: %s", resp.Error))
			return

		case collab.OutcomeNeedsInfo:
			if resp.Info == nil || !resp.Info.Type.Valid() {
				m.failStage(stage, result, "malformed information request")
				return
			}
			infoCtx, cancel := m.callContext(ctx)
			answer, err := m.info.Provide(infoCtx, *resp.Info)
			cancel()
			if err != nil {
				m.failStage(stage, result, fmt.Sprintf("information lookup failed: %v", err))
				return
			}
			m.appendContext(result,
				fmt.Sprintf("Answer to %s request %q", resp.Info.Type, resp.Info.Query),
				answer.Content)
			// The lookup itself consumed no extra turn; the loop
			// continues with the answer in context.

		default:
			m.failStage(stage, result, fmt.Sprintf("unknown progress outcome %q", resp.Outcome))
			return
		}
	}

	// Turn budget exhausted without completion or failure.
	m.logger.Warn("turn budget exhausted", zap.Int("turns", m.cfg.MaxTurns))
	now := time.Now()
	stage.Status = models.StageCompleted
	stage.Detail = fmt.Sprintf("turn budget of %d exhausted", m.cfg.MaxTurns)
	stage.EndedAt = &now
	result.Status = models.RunPartial
}

func (m *Machine) runReview(ctx context.Context, result *Result) {
	stage := m.beginStage(result, models.StageReview)

	callCtx, cancel := m.callContext(ctx)
	review, err := m.reviewer.Review(callCtx, collab.ReviewRequest{
		Artifact:     strings.Join(result.Artifacts, "\n"),
		Requirements: planRequirements(result.Plan),
	})
	cancel()
	if err != nil {
		m.failStage(stage, result, fmt.Sprintf("review failed: %v", err))
		return
	}

	// The verdict is recorded but never re-enters the execution loop.
	result.Review = review
	m.completeStage(stage, fmt.Sprintf("verdict %s, score %.1f", review.Verdict, review.Score))
}

// planRequirements flattens the plan into reviewable requirements.
func planRequirements(plan *collab.Plan) []string {
	if plan == nil {
		return nil
	}
	reqs := make([]string, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		req := t.Title
		if t.AcceptanceCriteria != "" {
			req = fmt.Sprintf("%s: %s", t.Title, t.AcceptanceCriteria)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func (m *Machine) runSummary(ctx context.Context, goal string, result *Result) {
	stage := m.beginStage(result, models.StageSummary)

	report := &models.RunReport{
		Goal:      goal,
		Status:    result.Status,
		Stages:    result.Stages,
		Artifacts: result.Artifacts,
	}

	callCtx, cancel := m.callContext(ctx)
	summary, err := m.summary.Summarize(callCtx, report)
	cancel()
	if err != nil {
		m.failStage(stage, result, fmt.Sprintf("summary failed: %v", err))
		return
	}

	result.Summary = summary
	m.completeStage(stage, "")
}

// beginStage appends a new in-progress stage record.
func (m *Machine) beginStage(result *Result, typ models.StageType) *models.DialogueStage {
	now := time.Now()
	result.Stages = append(result.Stages, models.DialogueStage{
		ID:        uuid.NewString(),
		Type:      typ,
		Status:    models.StageInProgress,
		StartedAt: &now,
	})
	stage := &result.Stages[len(result.Stages)-1]
	m.logger.Info("stage started", zap.String("stage", string(typ)))
	return stage
}

func (m *Machine) completeStage(stage *models.DialogueStage, detail string) {
	now := time.Now()
	stage.Status = models.StageCompleted
	stage.Detail = detail
	stage.EndedAt = &now
	m.logger.Info("stage completed",
		zap.String("stage", string(stage.Type)), zap.String("detail", detail))
}

func (m *Machine) failStage(stage *models.DialogueStage, result *Result, detail string) {
	now := time.Now()
	stage.Status = models.StageFailed
	stage.Detail = detail
	stage.EndedAt = &now
	result.Status = models.RunFailed
	m.logger.Error("stage failed",
		zap.String("stage", string(stage.Type)), zap.String("detail", detail))
}

func (m *Machine) appendContext(result *Result, label, content string) {
	entry := fmt.Sprintf("%s:\n%s", label, content)
	if result.Context == "" {
		result.Context = entry
		return
	}
	result.Context = result.Context + "\n\n" + entry
}

func (m *Machine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.PerCallTimeout > 0 {
		return context.WithTimeout(ctx, m.cfg.PerCallTimeout)
	}
	return context.WithCancel(ctx)
}
