// Package refine runs the bounded implement, review, revise cycle that
// quality-gates an artifact. The loop ends in exactly one of three
// ways: the reviewer approves, the iteration budget runs out, or a
// collaborator call fails outright.
package refine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/pkg/models"
)

// Outcome is how a refinement loop terminated.
type Outcome string

const (
	// OutcomeApproved means the reviewer accepted the artifact.
	OutcomeApproved Outcome = "approved"
	// OutcomeExhausted means the iteration budget ran out without
	// approval. This is an expected terminal state, not an error; the
	// last artifact and score are retained.
	OutcomeExhausted Outcome = "exhausted"
)

// Result is the terminal state of one refinement loop.
type Result struct {
	// Outcome is how the loop ended.
	Outcome Outcome
	// Artifact is the final artifact, approved or best-effort.
	Artifact string
	// Score is the last quality score the reviewer assigned.
	Score float64
	// Iterations is the 0-based iteration the loop ended on.
	Iterations int
	// Attempts records every iteration in order.
	Attempts []models.RefinementAttempt
}

// Approved reports whether the loop ended in approval.
func (r *Result) Approved() bool {
	return r.Outcome == OutcomeApproved
}

// Config bounds the loop.
type Config struct {
	// MaxIterations is the highest iteration index the loop may reach.
	// The reviewer is called at most MaxIterations+1 times.
	MaxIterations int `mapstructure:"max_iterations"`
	// PerCallTimeout bounds each collaborator call.
	PerCallTimeout time.Duration `mapstructure:"per_call_timeout"`
}

// Loop drives an implementer and a reviewer through the refine cycle.
type Loop struct {
	impl     collab.Implementer
	reviewer collab.Reviewer
	cfg      Config
	logger   *zap.Logger
}

// New creates a Loop. A nil logger is replaced with a no-op logger.
func New(impl collab.Implementer, reviewer collab.Reviewer, cfg Config, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxIterations < 0 {
		cfg.MaxIterations = 0
	}
	return &Loop{impl: impl, reviewer: reviewer, cfg: cfg, logger: logger}
}

// Produce asks the implementer for an initial artifact and refines it.
// A collaborator failure is returned as an error, never folded into a
// Result; budget exhaustion is a Result, never an error.
func (l *Loop) Produce(ctx context.Context, description string, requirements []string) (*Result, error) {
	callCtx, cancel := l.callContext(ctx)
	artifact, err := l.impl.Implement(callCtx, description, requirements)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("initial implementation: %w", err)
	}
	return l.Refine(ctx, artifact, requirements)
}

// Refine runs the review-revise cycle on an existing artifact.
func (l *Loop) Refine(ctx context.Context, artifact string, requirements []string) (*Result, error) {
	var attempts []models.RefinementAttempt

	for iteration := 0; ; iteration++ {
		callCtx, cancel := l.callContext(ctx)
		review, err := l.reviewer.Review(callCtx, collab.ReviewRequest{
			Artifact:     artifact,
			Requirements: requirements,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("review at iteration %d: %w", iteration, err)
		}

		attempts = append(attempts, models.RefinementAttempt{
			Iteration: iteration,
			Artifact:  artifact,
			Verdict:   review.Verdict,
			Score:     review.Score,
			Feedback:  review.Feedback,
			CreatedAt: time.Now(),
		})

		if review.Approved() {
			l.logger.Info("artifact approved",
				zap.Int("iteration", iteration),
				zap.Float64("score", review.Score))
			return &Result{
				Outcome:    OutcomeApproved,
				Artifact:   artifact,
				Score:      review.Score,
				Iterations: iteration,
				Attempts:   attempts,
			}, nil
		}

		if iteration == l.cfg.MaxIterations {
			l.logger.Warn("refinement budget exhausted",
				zap.Int("iterations", iteration),
				zap.Float64("last_score", review.Score))
			return &Result{
				Outcome:    OutcomeExhausted,
				Artifact:   artifact,
				Score:      review.Score,
				Iterations: iteration,
				Attempts:   attempts,
			}, nil
		}

		callCtx, cancel = l.callContext(ctx)
		artifact, err = l.impl.Refine(callCtx, artifact, review.Feedback)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("refine at iteration %d: %w", iteration, err)
		}
	}
}

func (l *Loop) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.cfg.PerCallTimeout > 0 {
		return context.WithTimeout(ctx, l.cfg.PerCallTimeout)
	}
	return context.WithCancel(ctx)
}
