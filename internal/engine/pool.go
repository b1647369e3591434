package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mbenham/taskforge/pkg/models"
)

// Pool runs multiple goals concurrently, each on its own Engine run,
// and aggregates their events onto one channel.
type Pool struct {
	opts Options

	mu      sync.RWMutex
	active  map[string]context.CancelFunc
	results map[string]*models.RunReport

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a Pool sharing one set of engine options across runs.
func NewPool(opts Options) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		opts:    opts,
		active:  make(map[string]context.CancelFunc),
		results: make(map[string]*models.RunReport),
		events:  make(chan Event, 100),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Events returns the aggregated event stream across all runs.
func (p *Pool) Events() <-chan Event {
	return p.events
}

// Submit starts a run for the goal and returns once it is underway.
// The returned handle identifies the run in Cancel and Report.
func (p *Pool) Submit(goal string) (string, error) {
	if p.opts.Collaborators == nil {
		return "", fmt.Errorf("collaborators are required")
	}

	opts := p.opts
	opts.Emitter = NewEmitter(100, p.logger)
	eng := New(opts)

	runCtx, cancel := context.WithCancel(p.ctx)
	handle := uuid.New().String()[:8]

	p.mu.Lock()
	p.active[handle] = cancel
	p.mu.Unlock()

	// Forward this run's events onto the aggregate channel.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for ev := range eng.Events() {
			select {
			case p.events <- ev:
			case <-p.ctx.Done():
				return
			}
		}
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		report, err := eng.Run(runCtx, goal)
		if err != nil {
			p.logger.Error("pooled run failed", zap.String("handle", handle), zap.Error(err))
		}
		opts.Emitter.Close()

		p.mu.Lock()
		delete(p.active, handle)
		p.results[handle] = report
		p.mu.Unlock()
	}()

	return handle, nil
}

// Cancel stops a single run. Unknown handles are a no-op.
func (p *Pool) Cancel(handle string) {
	p.mu.RLock()
	cancel := p.active[handle]
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Report returns the finished report for a handle, or nil if the run
// is still active or unknown.
func (p *Pool) Report(handle string) *models.RunReport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.results[handle]
}

// ActiveCount returns the number of runs currently in flight.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}

// Wait blocks until every submitted run has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown cancels all active runs and waits for them to finish.
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	close(p.events)
}
