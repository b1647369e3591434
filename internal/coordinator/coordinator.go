// Package coordinator walks a validated task graph, dispatching each
// node to an executor collaborator while honoring dependency order,
// skip propagation, and critical-failure halting.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/internal/graph"
	"github.com/mbenham/taskforge/pkg/models"
)

// Strategy selects how the coordinator walks the graph.
type Strategy string

const (
	// StrategySequential processes nodes one at a time in topological order.
	StrategySequential Strategy = "sequential"
	// StrategyParallel processes topological layers with bounded concurrency.
	StrategyParallel Strategy = "parallel"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	return s == StrategySequential || s == StrategyParallel
}

// Config contains the coordinator's execution parameters.
type Config struct {
	// Strategy is the graph walking strategy.
	Strategy Strategy
	// ConcurrencyLimit caps simultaneously in-flight executor calls
	// under the parallel strategy.
	ConcurrencyLimit int
	// PerCallTimeout bounds each executor call; a timeout fails that
	// node only, never the whole run.
	PerCallTimeout time.Duration
	// Workers tunes how many workers a group of eligible tasks gets.
	Workers WorkerPolicy
}

// Report is the coordinator's final output: the full node list with
// status, artifacts and timing, plus aggregate counts.
type Report struct {
	// Tasks lists every node in the graph, ordered by ID.
	Tasks []*models.TaskNode
	// Counts aggregates terminal statuses.
	Counts models.ReportCounts
	// Halted is true if a critical task failure stopped the run early.
	Halted bool
	// HaltedBy is the critical task that caused the halt.
	HaltedBy string
}

// Coordinator executes a validated task graph.
type Coordinator struct {
	executor collab.Executor
	info     collab.InfoProvider // optional, serves one lookup per node
	cfg      Config
	logger   *zap.Logger
}

// New creates a Coordinator. The info provider may be nil, in which
// case an executor asking for information fails that node.
func New(executor collab.Executor, info collab.InfoProvider, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySequential
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 1
	}
	return &Coordinator{executor: executor, info: info, cfg: cfg, logger: logger}
}

// Run executes the graph under the configured strategy. The graph must
// already have passed Validate; Run re-checks and refuses to start on a
// structurally invalid graph without touching any node.
func (c *Coordinator) Run(ctx context.Context, g *graph.TaskGraph) (*Report, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	var haltedBy string
	switch c.cfg.Strategy {
	case StrategyParallel:
		haltedBy = c.runParallel(ctx, g)
	default:
		haltedBy = c.runSequential(ctx, g)
	}

	return c.report(g, haltedBy), nil
}

// runSequential walks nodes one at a time in topological order. It
// returns the ID of the critical task that halted the run, if any.
func (c *Coordinator) runSequential(ctx context.Context, g *graph.TaskGraph) string {
	for _, id := range g.TopologicalOrder() {
		node := g.Node(id)
		if node.Status.Terminal() {
			continue
		}

		if !c.dependenciesCompleted(g, node) {
			c.skipTransitively(g, node.ID, "unmet dependency")
			continue
		}

		c.executeNode(ctx, node)

		if node.Status == models.TaskStatusFailed {
			c.skipDependents(g, node.ID)
			if node.Critical {
				c.haltRemaining(g, node.ID)
				return node.ID
			}
		}
	}
	return ""
}

// runParallel walks topological layers, executing each layer's eligible
// nodes with bounded concurrency and joining the whole layer before
// advancing. It returns the ID of the critical task that halted the
// run, if any.
func (c *Coordinator) runParallel(ctx context.Context, g *graph.TaskGraph) string {
	for _, layer := range g.Layers() {
		var eligible []*models.TaskNode
		for _, id := range layer {
			node := g.Node(id)
			if node.Status.Terminal() {
				continue
			}
			if !c.dependenciesCompleted(g, node) {
				c.skipTransitively(g, node.ID, "unmet dependency")
				continue
			}
			eligible = append(eligible, node)
		}
		if len(eligible) == 0 {
			continue
		}

		workers := c.cfg.Workers.WorkersFor(eligible, c.cfg.ConcurrencyLimit)
		c.logger.Debug("executing layer",
			zap.Int("eligible", len(eligible)),
			zap.Int("workers", workers))

		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for _, node := range eligible {
			wg.Add(1)
			go func(node *models.TaskNode) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				c.executeNode(ctx, node)
			}(node)
		}
		// Hard join: the layer completes as a unit.
		wg.Wait()

		for _, node := range eligible {
			if node.Status != models.TaskStatusFailed {
				continue
			}
			c.skipDependents(g, node.ID)
			if node.Critical {
				c.haltRemaining(g, node.ID)
				return node.ID
			}
		}
	}
	return ""
}

// dependenciesCompleted reports whether every dependency of the node is
// terminally completed.
func (c *Coordinator) dependenciesCompleted(g *graph.TaskGraph, node *models.TaskNode) bool {
	for _, depID := range g.Dependencies(node.ID) {
		if g.Node(depID).Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// executeNode runs one node through the executor and records the
// terminal status. Executor errors become a failed status, never a
// coordinator error.
func (c *Coordinator) executeNode(ctx context.Context, node *models.TaskNode) {
	c.transition(node, models.TaskStatusReady)
	c.transition(node, models.TaskStatusRunning)
	now := time.Now()
	node.StartedAt = &now

	resp, err := c.callExecutor(ctx, node, "")
	if err == nil && resp.Outcome == collab.OutcomeNeedsInfo {
		resp, err = c.serveInfoRequest(ctx, node, resp.Info)
	}

	end := time.Now()
	node.CompletedAt = &end

	switch {
	case err != nil:
		c.logger.Warn("task failed", zap.String("task", node.ID), zap.Error(err))
		c.transition(node, models.TaskStatusFailed)
		node.Result = &models.TaskResult{Error: err.Error()}
	case resp.Outcome == collab.OutcomeCompleted:
		c.transition(node, models.TaskStatusCompleted)
		node.Result = &models.TaskResult{Output: resp.Output, Artifacts: resp.Artifacts}
	default:
		c.logger.Warn("task reported failure", zap.String("task", node.ID), zap.String("error", resp.Error))
		c.transition(node, models.TaskStatusFailed)
		node.Result = &models.TaskResult{Output: resp.Output, Error: resp.Error}
	}
}

// callExecutor issues one executor call under the per-call timeout.
func (c *Coordinator) callExecutor(ctx context.Context, node *models.TaskNode, extraContext string) (*collab.TaskResponse, error) {
	callCtx := ctx
	if c.cfg.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.PerCallTimeout)
		defer cancel()
	}
	return c.executor.Execute(callCtx, collab.TaskRequest{
		TaskID:             node.ID,
		Description:        node.Description,
		Context:            extraContext,
		AcceptanceCriteria: node.AcceptanceCriteria,
	})
}

// serveInfoRequest answers a single mid-task information request and
// re-executes the node with the answer in context. Only one round is
// served per node; a second request fails the node.
func (c *Coordinator) serveInfoRequest(ctx context.Context, node *models.TaskNode, req *collab.InfoRequest) (*collab.TaskResponse, error) {
	if c.info == nil {
		return nil, fmt.Errorf("executor requested %s but no information provider is configured", req.Type)
	}

	infoCtx := ctx
	if c.cfg.PerCallTimeout > 0 {
		var cancel context.CancelFunc
		infoCtx, cancel = context.WithTimeout(ctx, c.cfg.PerCallTimeout)
		defer cancel()
	}
	answer, err := c.info.Provide(infoCtx, *req)
	if err != nil {
		return nil, err
	}

	resp, err := c.callExecutor(ctx, node, fmt.Sprintf("Answer to your %s request %q:\n%s", req.Type, req.Query, answer.Content))
	if err != nil {
		return nil, err
	}
	if resp.Outcome == collab.OutcomeNeedsInfo {
		return nil, fmt.Errorf("executor requested information twice for task %s", node.ID)
	}
	return resp, nil
}

// skipDependents transitively skips every dependent of a failed or
// skipped node so none of them is ever considered for execution.
func (c *Coordinator) skipDependents(g *graph.TaskGraph, id string) {
	for _, depID := range g.Dependents(id) {
		c.skipTransitively(g, depID, "unmet dependency")
	}
}

// skipTransitively marks a node skipped and propagates to its dependents.
func (c *Coordinator) skipTransitively(g *graph.TaskGraph, id, reason string) {
	node := g.Node(id)
	if node.Status.Terminal() {
		return
	}
	c.markSkipped(node, reason)
	for _, depID := range g.Dependents(id) {
		c.skipTransitively(g, depID, reason)
	}
}

// haltRemaining skips every non-terminal node after a critical failure.
func (c *Coordinator) haltRemaining(g *graph.TaskGraph, failedID string) {
	c.logger.Warn("critical task failed, halting run", zap.String("task", failedID))
	reason := fmt.Sprintf("halted: critical task %s failed", failedID)
	for _, node := range g.Nodes() {
		if !node.Status.Terminal() {
			c.markSkipped(node, reason)
		}
	}
}

func (c *Coordinator) markSkipped(node *models.TaskNode, reason string) {
	c.transition(node, models.TaskStatusSkipped)
	node.SkipReason = reason
	now := time.Now()
	node.CompletedAt = &now
}

// transition applies a status change, enforcing the monotonic ordering.
// An illegal transition indicates a coordinator bug, not a runtime
// condition, so it panics.
func (c *Coordinator) transition(node *models.TaskNode, next models.TaskStatus) {
	if !node.Status.CanTransitionTo(next) {
		panic(fmt.Sprintf("coordinator: illegal transition %s -> %s for task %s", node.Status, next, node.ID))
	}
	node.Status = next
}

// report assembles the final run report from terminal node states.
func (c *Coordinator) report(g *graph.TaskGraph, haltedBy string) *Report {
	r := &Report{
		Tasks:    g.Nodes(),
		Halted:   haltedBy != "",
		HaltedBy: haltedBy,
	}
	for _, node := range r.Tasks {
		switch node.Status {
		case models.TaskStatusCompleted:
			r.Counts.Completed++
		case models.TaskStatusFailed:
			r.Counts.Failed++
		case models.TaskStatusSkipped:
			r.Counts.Skipped++
		}
	}
	return r
}
