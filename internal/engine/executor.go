package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/internal/refine"
	"github.com/mbenham/taskforge/internal/spawner"
	"github.com/mbenham/taskforge/pkg/models"
)

// taskExecutor is the executor the coordinator drives for each task
// node. It runs the task through the spawner, which may fan it out into
// child agents, and quality-gates the output through the refinement
// loop when the task carries acceptance criteria.
type taskExecutor struct {
	spawner *spawner.Spawner
	refiner *refine.Loop
	emitter *Emitter
	runID   string
	logger  *zap.Logger

	mu     sync.Mutex
	roots  map[string]string   // task ID -> root agent node ID
	scores map[string]*float64 // task ID -> refinement score
}

func newTaskExecutor(sp *spawner.Spawner, refiner *refine.Loop, emitter *Emitter, runID string, logger *zap.Logger) *taskExecutor {
	return &taskExecutor{
		spawner: sp,
		refiner: refiner,
		emitter: emitter,
		runID:   runID,
		logger:  logger,
		roots:   make(map[string]string),
		scores:  make(map[string]*float64),
	}
}

func (t *taskExecutor) Execute(ctx context.Context, req collab.TaskRequest) (*collab.TaskResponse, error) {
	t.emitter.Emit(Event{Type: EventTaskStarted, RunID: t.runID, Subject: req.TaskID})

	root, result, err := t.spawner.RunRooted(ctx, "task", req.Description, req.Context)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.roots[req.TaskID] = root.ID
	t.mu.Unlock()

	if result.ChildrenSpawned > 0 {
		t.emitter.Emit(Event{Type: EventAgentSpawned, RunID: t.runID, Subject: req.TaskID})
	}

	resp := &collab.TaskResponse{
		Output:    result.Summary,
		Artifacts: result.Artifacts,
	}
	if result.Status == models.AggregateFailed {
		resp.Outcome = collab.OutcomeFailed
		resp.Error = result.Error
		t.emitter.Emit(Event{Type: EventTaskFinished, RunID: t.runID, Subject: req.TaskID, Message: "failed"})
		return resp, nil
	}
	resp.Outcome = collab.OutcomeCompleted

	// Quality gate: tasks with acceptance criteria run their output
	// through the refinement loop. Budget exhaustion keeps the
	// best-effort artifact; only an unreachable collaborator fails the
	// task.
	if req.AcceptanceCriteria != "" && resp.Output != "" && t.refiner != nil {
		refined, err := t.refiner.Refine(ctx, resp.Output, []string{req.AcceptanceCriteria})
		if err != nil {
			return nil, err
		}
		resp.Output = refined.Artifact
		score := refined.Score
		t.mu.Lock()
		t.scores[req.TaskID] = &score
		t.mu.Unlock()
		if !refined.Approved() {
			t.logger.Warn("task output not approved within budget",
				zap.String("task", req.TaskID),
				zap.Float64("score", refined.Score))
		}
	}

	t.emitter.Emit(Event{Type: EventTaskFinished, RunID: t.runID, Subject: req.TaskID, Message: "completed"})
	return resp, nil
}

// rootFor returns the root agent node ID recorded for a task.
func (t *taskExecutor) rootFor(taskID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roots[taskID]
}

// scoreFor returns the refinement score recorded for a task, if any.
func (t *taskExecutor) scoreFor(taskID string) *float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scores[taskID]
}
