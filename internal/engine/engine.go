// Package engine wires the dialogue stage machine, execution
// coordinator, agent spawner, and refinement loop into one runnable
// unit, and records the finished run in the audit store.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/internal/config"
	"github.com/mbenham/taskforge/internal/coordinator"
	"github.com/mbenham/taskforge/internal/dialogue"
	"github.com/mbenham/taskforge/internal/refine"
	"github.com/mbenham/taskforge/internal/spawner"
	"github.com/mbenham/taskforge/internal/state"
	"github.com/mbenham/taskforge/pkg/models"
)

// Options configures an Engine.
type Options struct {
	// Collaborators supplies one implementation per role.
	Collaborators *collab.Set
	// Limits is the shared bound bundle.
	Limits config.LimitsConfig
	// Workers tunes the coordinator's worker allocation.
	Workers coordinator.WorkerPolicy
	// Strategy selects sequential or parallel task execution.
	Strategy coordinator.Strategy
	// Store receives the finished run report. Optional.
	Store *state.Store
	// Emitter receives engine events. Optional.
	Emitter *Emitter
	// Logger is the process logger. Optional.
	Logger *zap.Logger
}

// Engine runs goals end to end.
type Engine struct {
	collabs  *collab.Set
	limits   config.LimitsConfig
	workers  coordinator.WorkerPolicy
	strategy coordinator.Strategy
	store    *state.Store
	emitter  *Emitter
	logger   *zap.Logger
}

// New creates an Engine from options, filling in safe defaults for the
// optional fields.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = NewEmitter(100, logger)
	}
	strategy := opts.Strategy
	if !strategy.Valid() {
		strategy = coordinator.StrategyParallel
	}
	return &Engine{
		collabs:  opts.Collaborators,
		limits:   opts.Limits,
		workers:  opts.Workers,
		strategy: strategy,
		store:    opts.Store,
		emitter:  emitter,
		logger:   logger,
	}
}

// Events returns the engine's event stream.
func (e *Engine) Events() <-chan Event {
	return e.emitter.Events()
}

// Run drives one goal through the full pipeline and returns its audit
// report. The report is also persisted when a store is configured.
func (e *Engine) Run(ctx context.Context, goal string) (*models.RunReport, error) {
	runID := uuid.New().String()[:8]
	started := time.Now()

	e.logger.Info("run started", zap.String("run", runID), zap.String("goal", goal))
	e.emitter.Emit(Event{Type: EventRunStarted, RunID: runID, Message: goal})

	sp := spawner.New(e.collabs.Planner, e.collabs.Executor, e.collabs.Synthesizer, spawner.Config{
		MaxDepth:         e.limits.MaxDepth,
		ConcurrencyLimit: e.limits.ConcurrencyLimit,
		PerCallTimeout:   e.limits.PerCallTimeout,
	}, e.logger)

	refiner := refine.New(e.collabs.Implementer, e.collabs.Reviewer, refine.Config{
		MaxIterations:  e.limits.MaxIterations,
		PerCallTimeout: e.limits.PerCallTimeout,
	}, e.logger)

	executor := newTaskExecutor(sp, refiner, e.emitter, runID, e.logger)
	runner := newPlanRunner(executor, e.collabs.Info, coordinator.Config{
		Strategy:         e.strategy,
		ConcurrencyLimit: e.limits.ConcurrencyLimit,
		PerCallTimeout:   e.limits.PerCallTimeout,
		Workers:          e.workers,
	}, e.logger)

	machine := dialogue.New(e.collabs.Analyst, e.collabs.Info, e.collabs.Planner,
		runner, e.collabs.Reviewer, e.collabs.Summarizer, dialogue.Config{
			MaxTurns:       e.limits.MaxTurns,
			PerCallTimeout: e.limits.PerCallTimeout,
		}, e.logger)

	result, err := machine.Run(ctx, goal)

	report := e.assembleReport(runID, goal, started, result, runner, executor, sp)

	if result.Status == models.RunFailed {
		e.emitter.Emit(Event{Type: EventRunFailed, RunID: runID})
	} else {
		e.emitter.Emit(Event{Type: EventRunFinished, RunID: runID, Message: string(result.Status)})
	}
	e.logger.Info("run finished",
		zap.String("run", runID),
		zap.String("status", string(report.Status)),
		zap.Duration("elapsed", report.EndedAt.Sub(report.StartedAt)))

	if e.store != nil {
		if saveErr := e.store.SaveReport(report); saveErr != nil {
			e.logger.Error("saving run report", zap.String("run", runID), zap.Error(saveErr))
			if err == nil {
				err = saveErr
			}
		}
	}

	return report, err
}

// assembleReport rolls the dialogue result, coordinator report, and
// spawn hierarchy into one audit record.
func (e *Engine) assembleReport(runID, goal string, started time.Time,
	result *dialogue.Result, runner *planRunner, executor *taskExecutor, sp *spawner.Spawner) *models.RunReport {

	report := &models.RunReport{
		RunID:     runID,
		Goal:      goal,
		Status:    result.Status,
		Stages:    result.Stages,
		Artifacts: result.Artifacts,
		Summary:   result.Summary,
		StartedAt: started,
		EndedAt:   time.Now(),
	}

	coordReport := runner.lastReport()
	if coordReport == nil {
		return report
	}
	report.Counts = coordReport.Counts

	arena := sp.Arena()
	for _, node := range coordReport.Tasks {
		rec := models.TaskRecord{
			ID:             node.ID,
			Title:          node.Title,
			Status:         node.Status,
			DurationMillis: node.Duration().Milliseconds(),
			Score:          executor.scoreFor(node.ID),
		}
		if node.Result != nil {
			rec.Artifacts = node.Result.Artifacts
		}
		if rootID := executor.rootFor(node.ID); rootID != "" {
			rec.Children = agentRecords(arena, rootID)
		}
		report.Tasks = append(report.Tasks, rec)
	}
	return report
}

// agentRecords converts the spawn hierarchy under a root into nested
// task records. The root itself is the task's own execution and is not
// repeated; only spawned children appear.
func agentRecords(arena *spawner.Arena, rootID string) []models.TaskRecord {
	children := arena.Children(rootID)
	records := make([]models.TaskRecord, 0, len(children))
	for _, child := range children {
		rec := models.TaskRecord{
			ID:     child.ID,
			Title:  child.Role + ": " + child.Goal,
			Status: child.Status,
		}
		if child.Result != nil {
			rec.Artifacts = child.Result.Artifacts
		}
		rec.Children = agentRecords(arena, child.ID)
		records = append(records, rec)
	}
	return records
}
