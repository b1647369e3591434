// Package spawner fans one unit of work out into a bounded hierarchy of
// agent nodes. A node asks the planner whether its goal should
// decompose; if so it spawns children, runs them concurrently, joins
// all of them, and synthesizes their results into one parent result.
// At the depth bound the question is never asked and the node executes
// directly.
package spawner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/pkg/models"
)

// Config bounds the spawn hierarchy.
type Config struct {
	// MaxDepth is the deepest level a node may occupy. A node at this
	// depth executes directly; it never spawns.
	MaxDepth int `mapstructure:"max_depth"`
	// ConcurrencyLimit caps simultaneously running children per node.
	ConcurrencyLimit int `mapstructure:"concurrency_limit"`
	// PerCallTimeout bounds each collaborator call.
	PerCallTimeout time.Duration `mapstructure:"per_call_timeout"`
}

// Spawner executes work items, optionally decomposing them into child
// agents. One Spawner serves one run; its arena accumulates every node
// created along the way for later reporting.
type Spawner struct {
	planner  collab.Planner
	executor collab.Executor
	synth    collab.Synthesizer
	arena    *Arena
	cfg      Config
	logger   *zap.Logger
}

// New creates a Spawner. A nil logger is replaced with a no-op logger.
func New(planner collab.Planner, executor collab.Executor, synth collab.Synthesizer, cfg Config, logger *zap.Logger) *Spawner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.ConcurrencyLimit < 1 {
		cfg.ConcurrencyLimit = 1
	}
	return &Spawner{
		planner:  planner,
		executor: executor,
		synth:    synth,
		arena:    NewArena(),
		cfg:      cfg,
		logger:   logger,
	}
}

// Arena exposes the node arena for reporting.
func (s *Spawner) Arena() *Arena {
	return s.arena
}

// Run executes one unit of work as the root of a spawn hierarchy and
// returns its consolidated result. The returned error is non-nil only
// for context cancellation; collaborator failures surface as a failed
// result, not an error.
func (s *Spawner) Run(ctx context.Context, role, goal, inherited string) (*models.AgentResult, error) {
	_, result, err := s.RunRooted(ctx, role, goal, inherited)
	return result, err
}

// RunRooted is Run plus the root node, for callers that need to walk
// the spawned hierarchy afterwards.
func (s *Spawner) RunRooted(ctx context.Context, role, goal, inherited string) (*models.AgentNode, *models.AgentResult, error) {
	root := s.newNode(role, goal, "", 0)
	result := s.runNode(ctx, root, inherited)
	if err := ctx.Err(); err != nil {
		return root, result, err
	}
	return root, result, nil
}

// newNode creates and registers an agent node. Depth is clamped by the
// callers: children are only ever created by a node strictly below the
// bound, so no node exceeds MaxDepth.
func (s *Spawner) newNode(role, goal, parentID string, depth int) *models.AgentNode {
	node := &models.AgentNode{
		ID:        uuid.NewString(),
		Role:      role,
		Goal:      goal,
		ParentID:  parentID,
		Depth:     depth,
		Status:    models.TaskStatusPending,
		CreatedAt: time.Now(),
	}
	s.arena.Add(node)
	return node
}

func (s *Spawner) runNode(ctx context.Context, node *models.AgentNode, inherited string) *models.AgentResult {
	node.Status = models.TaskStatusRunning

	var result *models.AgentResult
	if node.Depth >= s.cfg.MaxDepth {
		result = s.executeDirect(ctx, node, inherited)
	} else {
		result = s.maybeDecompose(ctx, node, inherited)
	}

	node.Result = result
	if result.Status == models.AggregateFailed {
		node.Status = models.TaskStatusFailed
	} else {
		node.Status = models.TaskStatusCompleted
	}
	return result
}

// maybeDecompose consults the planner and either fans out or falls back
// to direct execution. A planner failure is not fatal to the node; the
// work still runs directly.
func (s *Spawner) maybeDecompose(ctx context.Context, node *models.AgentNode, inherited string) *models.AgentResult {
	callCtx, cancel := s.callContext(ctx)
	decomposition, err := s.planner.ProposeDecomposition(callCtx, collab.DecomposeRequest{
		Goal:     node.Goal,
		Role:     node.Role,
		Context:  inherited,
		Depth:    node.Depth,
		MaxDepth: s.cfg.MaxDepth,
	})
	cancel()
	if err != nil {
		s.logger.Warn("decomposition consult failed, executing directly",
			zap.String("node", node.ID), zap.Error(err))
		return s.executeDirect(ctx, node, inherited)
	}
	if !decomposition.Decompose || len(decomposition.SubTasks) == 0 {
		return s.executeDirect(ctx, node, inherited)
	}
	return s.spawnChildren(ctx, node, decomposition.SubTasks, inherited)
}

// spawnChildren runs the child work concurrently, joins every child,
// then synthesizes the results. No child outlives this call.
func (s *Spawner) spawnChildren(ctx context.Context, node *models.AgentNode, subtasks []collab.SubTask, inherited string) *models.AgentResult {
	children := make([]*models.AgentNode, len(subtasks))
	for i, st := range subtasks {
		child := s.newNode(st.Role, st.Goal, node.ID, node.Depth+1)
		node.ChildIDs = append(node.ChildIDs, child.ID)
		children[i] = child
	}

	s.logger.Info("spawning children",
		zap.String("node", node.ID),
		zap.Int("count", len(children)),
		zap.Int("depth", node.Depth+1))

	childContexts := make([]string, len(subtasks))
	for i, st := range subtasks {
		childContexts[i] = inheritContext(inherited, node, st)
	}

	results := make([]*models.AgentResult, len(children))
	sem := make(chan struct{}, s.cfg.ConcurrencyLimit)
	var wg sync.WaitGroup
	for i, child := range children {
		wg.Add(1)
		go func(i int, child *models.AgentNode) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.runNode(ctx, child, childContexts[i])
		}(i, child)
	}
	wg.Wait()

	childResults := make([]collab.ChildResult, len(children))
	succeeded := 0
	for i, child := range children {
		res := results[i]
		success := res.Status != models.AggregateFailed
		if success {
			succeeded++
		}
		childResults[i] = collab.ChildResult{
			Role:      child.Role,
			Goal:      child.Goal,
			Success:   success,
			Summary:   res.Summary,
			Artifacts: res.Artifacts,
			Error:     res.Error,
		}
	}

	status := models.AggregateCompleted
	switch {
	case succeeded == 0:
		status = models.AggregateFailed
	case succeeded < len(children):
		status = models.AggregatePartial
	}

	synthesis := s.synthesize(ctx, node, childResults)
	result := &models.AgentResult{
		Status:            status,
		Summary:           synthesis.Summary,
		Artifacts:         synthesis.Artifacts,
		ChildrenSpawned:   len(children),
		ChildrenSucceeded: succeeded,
	}
	if status == models.AggregateFailed {
		result.Error = fmt.Sprintf("all %d children failed", len(children))
	}
	return result
}

// synthesize always produces a consolidated summary, falling back to a
// local merge when the synthesis collaborator is unavailable.
func (s *Spawner) synthesize(ctx context.Context, node *models.AgentNode, results []collab.ChildResult) *collab.Synthesis {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	synthesis, err := s.synth.Synthesize(callCtx, results)
	if err == nil {
		return synthesis
	}
	s.logger.Warn("synthesis failed, merging locally",
		zap.String("node", node.ID), zap.Error(err))

	var parts []string
	var artifacts []string
	for _, r := range results {
		if r.Summary != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", r.Role, r.Summary))
		}
		artifacts = append(artifacts, r.Artifacts...)
	}
	return &collab.Synthesis{
		Summary:   strings.Join(parts, "\n"),
		Artifacts: artifacts,
	}
}

// executeDirect delegates the node's goal straight to the executor.
func (s *Spawner) executeDirect(ctx context.Context, node *models.AgentNode, inherited string) *models.AgentResult {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	resp, err := s.executor.Execute(callCtx, collab.TaskRequest{
		TaskID:      node.ID,
		Description: node.Goal,
		Context:     inherited,
	})
	if err != nil {
		return &models.AgentResult{
			Status: models.AggregateFailed,
			Error:  err.Error(),
		}
	}
	switch resp.Outcome {
	case collab.OutcomeCompleted:
		return &models.AgentResult{
			Status:    models.AggregateCompleted,
			Summary:   resp.Output,
			Artifacts: resp.Artifacts,
		}
	case collab.OutcomeNeedsInfo:
		// Spawned children have no information channel.
		return &models.AgentResult{
			Status: models.AggregateFailed,
			Error:  "executor requested information during spawned execution",
		}
	default:
		return &models.AgentResult{
			Status:  models.AggregateFailed,
			Summary: resp.Output,
			Error:   resp.Error,
		}
	}
}

func (s *Spawner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.PerCallTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.PerCallTimeout)
	}
	return context.WithCancel(ctx)
}

// inheritContext derives a child's context from the parent's goal and
// any explicit context the decomposition attached.
func inheritContext(inherited string, parent *models.AgentNode, st collab.SubTask) string {
	var b strings.Builder
	if inherited != "" {
		b.WriteString(inherited)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Parent goal: %s", parent.Goal)
	if st.Context != "" {
		b.WriteString("\n")
		b.WriteString(st.Context)
	}
	return b.String()
}
