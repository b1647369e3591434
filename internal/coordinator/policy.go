package coordinator

import "github.com/mbenham/taskforge/pkg/models"

// WorkerPolicy decides how many workers a group of simultaneously
// eligible tasks gets. The thresholds are configuration, not constants:
// the split heuristic has no firm rationale, so it must stay tunable.
type WorkerPolicy struct {
	// BaseWorkers is the worker count for a small, simple group.
	BaseWorkers int `mapstructure:"base_workers"`
	// GroupSizeThreshold is the group size above which the group gets
	// BoostedWorkers instead of BaseWorkers.
	GroupSizeThreshold int `mapstructure:"group_size_threshold"`
	// BoostOnHighComplexity also boosts any group containing a task the
	// planner flagged as high complexity.
	BoostOnHighComplexity bool `mapstructure:"boost_on_high_complexity"`
	// BoostedWorkers is the worker count for large or complex groups.
	BoostedWorkers int `mapstructure:"boosted_workers"`
}

// DefaultWorkerPolicy mirrors the historical behavior: one worker per
// group, two when the group has more than two tasks or contains
// high-complexity work.
func DefaultWorkerPolicy() WorkerPolicy {
	return WorkerPolicy{
		BaseWorkers:           1,
		GroupSizeThreshold:    2,
		BoostOnHighComplexity: true,
		BoostedWorkers:        2,
	}
}

// WorkersFor returns the worker count for a task group, capped at both
// the group size and the coordinator's concurrency limit.
func (p WorkerPolicy) WorkersFor(group []*models.TaskNode, limit int) int {
	workers := p.BaseWorkers
	if workers < 1 {
		workers = 1
	}

	boost := len(group) > p.GroupSizeThreshold
	if !boost && p.BoostOnHighComplexity {
		for _, task := range group {
			if task.Complexity == models.ComplexityHigh {
				boost = true
				break
			}
		}
	}
	if boost && p.BoostedWorkers > workers {
		workers = p.BoostedWorkers
	}

	if workers > len(group) {
		workers = len(group)
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}
