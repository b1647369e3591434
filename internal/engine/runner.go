package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/internal/coordinator"
	"github.com/mbenham/taskforge/internal/graph"
	"github.com/mbenham/taskforge/pkg/models"
)

// planRunner backs the dialogue machine's execution loop with the
// execution coordinator: one progress turn runs the whole remaining
// plan in dependency order.
type planRunner struct {
	executor *taskExecutor
	info     collab.InfoProvider
	cfg      coordinator.Config
	logger   *zap.Logger

	mu     sync.Mutex
	report *coordinator.Report
}

func newPlanRunner(executor *taskExecutor, info collab.InfoProvider, cfg coordinator.Config, logger *zap.Logger) *planRunner {
	return &planRunner{executor: executor, info: info, cfg: cfg, logger: logger}
}

func (r *planRunner) Progress(ctx context.Context, goal string, plan *collab.Plan, context_ string, turn int) (*collab.TaskResponse, error) {
	if plan == nil || len(plan.Tasks) == 0 {
		return &collab.TaskResponse{
			Outcome: collab.OutcomeCompleted,
			Output:  "nothing to execute",
		}, nil
	}

	g, err := graphFromPlan(plan)
	if err != nil {
		return nil, fmt.Errorf("building task graph: %w", err)
	}

	coord := coordinator.New(r.executor, r.info, r.cfg, r.logger)
	report, err := coord.Run(ctx, g)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.report = report
	r.mu.Unlock()

	var artifacts []string
	var failures []string
	for _, node := range report.Tasks {
		if node.Result != nil {
			artifacts = append(artifacts, node.Result.Artifacts...)
		}
		if node.Status == models.TaskStatusFailed {
			failures = append(failures, node.ID)
		}
	}

	if report.Halted {
		return &collab.TaskResponse{
			Outcome:   collab.OutcomeFailed,
			Artifacts: artifacts,
			Error:     fmt.Sprintf("critical task %s failed", report.HaltedBy),
		}, nil
	}

	output := fmt.Sprintf("%d completed, %d failed, %d skipped",
		report.Counts.Completed, report.Counts.Failed, report.Counts.Skipped)
	if len(failures) > 0 {
		output += "; failed tasks: " + strings.Join(failures, ", ")
	}
	return &collab.TaskResponse{
		Outcome:   collab.OutcomeCompleted,
		Output:    output,
		Artifacts: artifacts,
	}, nil
}

// lastReport returns the most recent coordinator report, if any turn ran.
func (r *planRunner) lastReport() *coordinator.Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// graphFromPlan converts planner output into a validated task graph.
func graphFromPlan(plan *collab.Plan) (*graph.TaskGraph, error) {
	nodes := make([]*models.TaskNode, len(plan.Tasks))
	for i, t := range plan.Tasks {
		nodes[i] = &models.TaskNode{
			ID:                 t.ID,
			Title:              t.Title,
			Description:        t.Description,
			AcceptanceCriteria: t.AcceptanceCriteria,
			Priority:           t.Priority,
			Complexity:         t.Complexity,
			Critical:           t.Critical,
			DependsOn:          t.DependsOn,
			Status:             models.TaskStatusPending,
		}
	}
	g, err := graph.Build(nodes)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
