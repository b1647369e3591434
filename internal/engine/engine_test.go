package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/internal/config"
	"github.com/mbenham/taskforge/internal/coordinator"
	"github.com/mbenham/taskforge/internal/state"
	"github.com/mbenham/taskforge/pkg/models"
)

// stubCollabs implements every collaborator role with scriptable
// behavior for end-to-end engine tests.
type stubCollabs struct {
	mu           sync.Mutex
	executed     []string
	failTask     string
	decompose    map[string][]collab.SubTask
	approveScore float64
}

func (s *stubCollabs) Analyze(ctx context.Context, goal string) (*collab.Analysis, error) {
	return &collab.Analysis{
		Findings: "goal is clear",
		Request:  collab.InfoRequest{Type: collab.InfoResearch, Query: "background"},
	}, nil
}

func (s *stubCollabs) Provide(ctx context.Context, req collab.InfoRequest) (*collab.InfoResponse, error) {
	return &collab.InfoResponse{Content: "info: " + req.Query}, nil
}

func (s *stubCollabs) BuildPlan(ctx context.Context, goal, context_ string) (*collab.Plan, error) {
	return &collab.Plan{Tasks: []collab.PlannedTask{
		{ID: "t1", Title: "first", Description: "do first"},
		{ID: "t2", Title: "second", Description: "do second", DependsOn: []string{"t1"},
			AcceptanceCriteria: "must be correct"},
	}}, nil
}

func (s *stubCollabs) ProposeDecomposition(ctx context.Context, req collab.DecomposeRequest) (*collab.Decomposition, error) {
	if subs, ok := s.decompose[req.Goal]; ok {
		return &collab.Decomposition{Decompose: true, SubTasks: subs}, nil
	}
	return &collab.Decomposition{Decompose: false}, nil
}

func (s *stubCollabs) Execute(ctx context.Context, req collab.TaskRequest) (*collab.TaskResponse, error) {
	s.mu.Lock()
	s.executed = append(s.executed, req.Description)
	s.mu.Unlock()
	if req.Description == s.failTask {
		return &collab.TaskResponse{Outcome: collab.OutcomeFailed, Error: "scripted failure"}, nil
	}
	return &collab.TaskResponse{
		Outcome:   collab.OutcomeCompleted,
		Output:    "did " + req.Description,
		Artifacts: []string{req.Description + ".out"},
	}, nil
}

func (s *stubCollabs) Implement(ctx context.Context, description string, requirements []string) (string, error) {
	return "artifact-v0", nil
}

func (s *stubCollabs) Refine(ctx context.Context, artifact, feedback string) (string, error) {
	return artifact + "+", nil
}

func (s *stubCollabs) Review(ctx context.Context, req collab.ReviewRequest) (*collab.ReviewResponse, error) {
	return &collab.ReviewResponse{Verdict: models.VerdictApproved, Score: s.approveScore}, nil
}

func (s *stubCollabs) Synthesize(ctx context.Context, results []collab.ChildResult) (*collab.Synthesis, error) {
	var artifacts []string
	for _, r := range results {
		artifacts = append(artifacts, r.Artifacts...)
	}
	return &collab.Synthesis{Summary: fmt.Sprintf("synthesized %d", len(results)), Artifacts: artifacts}, nil
}

func (s *stubCollabs) Summarize(ctx context.Context, report *models.RunReport) (string, error) {
	return "run summary", nil
}

func (s *stubCollabs) set() *collab.Set {
	return &collab.Set{
		Planner:     s,
		Executor:    s,
		Implementer: s,
		Reviewer:    s,
		Synthesizer: s,
		Info:        s,
		Analyst:     s,
		Summarizer:  s,
	}
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{
		MaxDepth:         1,
		MaxIterations:    2,
		MaxTurns:         5,
		ConcurrencyLimit: 2,
	}
}

func TestEngineRunEndToEnd(t *testing.T) {
	stub := &stubCollabs{approveScore: 9.0}
	eng := New(Options{
		Collaborators: stub.set(),
		Limits:        testLimits(),
		Strategy:      coordinator.StrategySequential,
	})

	report, err := eng.Run(context.Background(), "ship the feature")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.RunCompleted {
		t.Fatalf("expected completed run, got %s", report.Status)
	}
	if report.RunID == "" {
		t.Error("run must have an ID")
	}
	if report.Counts.Completed != 2 || report.Counts.Failed != 0 {
		t.Errorf("unexpected counts: %+v", report.Counts)
	}
	if len(report.Stages) != 5 {
		t.Errorf("expected 5 stages, got %d", len(report.Stages))
	}
	if len(report.Tasks) != 2 {
		t.Fatalf("expected 2 task records, got %d", len(report.Tasks))
	}
	if report.Summary != "run summary" {
		t.Errorf("unexpected summary %q", report.Summary)
	}

	// t2 carried acceptance criteria and was quality-gated.
	var t2 *models.TaskRecord
	for i := range report.Tasks {
		if report.Tasks[i].ID == "t2" {
			t2 = &report.Tasks[i]
		}
	}
	if t2 == nil {
		t.Fatal("t2 record missing")
	}
	if t2.Score == nil || *t2.Score != 9.0 {
		t.Errorf("expected refinement score on t2, got %v", t2.Score)
	}
}

func TestEngineRecordsSpawnedChildren(t *testing.T) {
	stub := &stubCollabs{
		approveScore: 9.0,
		decompose: map[string][]collab.SubTask{
			"do first": {{Role: "a", Goal: "piece one"}, {Role: "b", Goal: "piece two"}},
		},
	}
	eng := New(Options{
		Collaborators: stub.set(),
		Limits:        testLimits(),
		Strategy:      coordinator.StrategySequential,
	})

	report, err := eng.Run(context.Background(), "goal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var t1 *models.TaskRecord
	for i := range report.Tasks {
		if report.Tasks[i].ID == "t1" {
			t1 = &report.Tasks[i]
		}
	}
	if t1 == nil {
		t.Fatal("t1 record missing")
	}
	if len(t1.Children) != 2 {
		t.Fatalf("expected 2 child records under t1, got %d", len(t1.Children))
	}
	for _, child := range t1.Children {
		if child.Status != models.TaskStatusCompleted {
			t.Errorf("child %s not completed: %s", child.ID, child.Status)
		}
	}
}

func TestEngineCriticalTaskFailureFailsRun(t *testing.T) {
	stub := &stubCollabs{approveScore: 9.0, failTask: "do first"}
	eng := New(Options{
		Collaborators: stub.set(),
		Limits:        testLimits(),
		Strategy:      coordinator.StrategySequential,
	})

	// t2 depends on t1, so t1's failure skips it; the run reports the
	// failure without erroring.
	report, err := eng.Run(context.Background(), "goal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Counts.Failed != 1 || report.Counts.Skipped != 1 {
		t.Errorf("unexpected counts: %+v", report.Counts)
	}
}

func TestEnginePersistsReport(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	stub := &stubCollabs{approveScore: 9.0}
	eng := New(Options{
		Collaborators: stub.set(),
		Limits:        testLimits(),
		Strategy:      coordinator.StrategySequential,
		Store:         store,
	})

	report, err := eng.Run(context.Background(), "persisted goal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.GetReport(report.RunID)
	if err != nil {
		t.Fatalf("report not persisted: %v", err)
	}
	if loaded.Goal != "persisted goal" || loaded.Status != models.RunCompleted {
		t.Errorf("unexpected persisted report: %+v", loaded)
	}
	if len(loaded.Tasks) != 2 {
		t.Errorf("task records not persisted: %d", len(loaded.Tasks))
	}
}

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	stub := &stubCollabs{approveScore: 9.0}
	emitter := NewEmitter(100, nil)
	eng := New(Options{
		Collaborators: stub.set(),
		Limits:        testLimits(),
		Strategy:      coordinator.StrategySequential,
		Emitter:       emitter,
	})

	if _, err := eng.Run(context.Background(), "goal"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	emitter.Close()

	seen := map[EventType]bool{}
	for ev := range emitter.Events() {
		seen[ev.Type] = true
	}
	for _, want := range []EventType{EventRunStarted, EventTaskStarted, EventTaskFinished, EventRunFinished} {
		if !seen[want] {
			t.Errorf("missing event %s", want)
		}
	}
}

func TestPoolRunsGoalsConcurrently(t *testing.T) {
	stub := &stubCollabs{approveScore: 9.0}
	pool := NewPool(Options{
		Collaborators: stub.set(),
		Limits:        testLimits(),
		Strategy:      coordinator.StrategySequential,
	})

	h1, err := pool.Submit("goal one")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := pool.Submit("goal two")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("handles must be distinct")
	}

	pool.Wait()

	for _, h := range []string{h1, h2} {
		report := pool.Report(h)
		if report == nil {
			t.Fatalf("no report for %s", h)
		}
		if report.Status != models.RunCompleted {
			t.Errorf("run %s not completed: %s", h, report.Status)
		}
	}
	if pool.ActiveCount() != 0 {
		t.Errorf("expected no active runs, got %d", pool.ActiveCount())
	}
}
