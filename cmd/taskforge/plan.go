package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/pkg/models"
)

// planFile is the on-disk YAML shape of a handwritten plan.
type planFile struct {
	Goal  string `yaml:"goal"`
	Tasks []struct {
		ID                 string   `yaml:"id"`
		Title              string   `yaml:"title"`
		Description        string   `yaml:"description"`
		Priority           int      `yaml:"priority"`
		Complexity         string   `yaml:"complexity"`
		Critical           bool     `yaml:"critical"`
		DependsOn          []string `yaml:"depends_on"`
		AcceptanceCriteria string   `yaml:"acceptance_criteria"`
	} `yaml:"tasks"`
}

// loadPlanFile reads a YAML plan and converts it to planner output.
func loadPlanFile(path string) (string, *collab.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading plan file: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return "", nil, fmt.Errorf("parsing plan file %s: %w", path, err)
	}
	if len(pf.Tasks) == 0 {
		return "", nil, fmt.Errorf("plan file %s contains no tasks", path)
	}

	plan := &collab.Plan{}
	for _, t := range pf.Tasks {
		complexity := models.Complexity(t.Complexity)
		if t.Complexity != "" && !complexity.Valid() {
			return "", nil, fmt.Errorf("task %s: unknown complexity %q", t.ID, t.Complexity)
		}
		plan.Tasks = append(plan.Tasks, collab.PlannedTask{
			ID:                 t.ID,
			Title:              t.Title,
			Description:        t.Description,
			Priority:           t.Priority,
			Complexity:         complexity,
			Critical:           t.Critical,
			DependsOn:          t.DependsOn,
			AcceptanceCriteria: t.AcceptanceCriteria,
		})
	}
	if err := collab.ValidatePlan(plan); err != nil {
		return "", nil, fmt.Errorf("plan file %s: %w", path, err)
	}
	return pf.Goal, plan, nil
}

// fixedPlanner serves a preloaded plan instead of asking the planning
// collaborator, while still delegating decomposition decisions to it.
type fixedPlanner struct {
	plan     *collab.Plan
	delegate collab.Planner
}

func (p *fixedPlanner) BuildPlan(ctx context.Context, goal, context_ string) (*collab.Plan, error) {
	return p.plan, nil
}

func (p *fixedPlanner) ProposeDecomposition(ctx context.Context, req collab.DecomposeRequest) (*collab.Decomposition, error) {
	return p.delegate.ProposeDecomposition(ctx, req)
}
