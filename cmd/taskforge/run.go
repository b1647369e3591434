package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mbenham/taskforge/internal/config"
	"github.com/mbenham/taskforge/internal/coordinator"
	"github.com/mbenham/taskforge/internal/engine"
	"github.com/mbenham/taskforge/internal/state"
	"github.com/mbenham/taskforge/pkg/models"
)

var (
	runPlanFile string
	runStrategy string
	runNoStore  bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a goal through the orchestration pipeline",
	Long: `Run drives a goal end to end: analysis, planning, dependency-ordered
task execution, review, and summary. The finished run is recorded in
the audit store.

With --plan, the planning collaborator is bypassed and the tasks come
from a YAML plan file instead. The goal argument is then optional; the
plan file's goal field is used when present.

Examples:
  taskforge run "add rate limiting to the API"
  taskforge run --plan plan.yaml
  taskforge run --strategy sequential "migrate the schema"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runPlanFile, "plan", "", "YAML plan file to execute instead of asking the planner")
	runCmd.Flags().StringVar(&runStrategy, "strategy", "parallel", "Execution strategy: sequential or parallel")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "Skip recording the run in the audit store")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	strategy := coordinator.Strategy(runStrategy)
	if !strategy.Valid() {
		return fmt.Errorf("unknown strategy %q (want sequential or parallel)", runStrategy)
	}

	goal := ""
	if len(args) > 0 {
		goal = args[0]
	}

	collabs, err := createCollaborators(cfg)
	if err != nil {
		return err
	}

	if runPlanFile != "" {
		planGoal, plan, err := loadPlanFile(runPlanFile)
		if err != nil {
			return err
		}
		if goal == "" {
			goal = planGoal
		}
		collabs.Planner = &fixedPlanner{plan: plan, delegate: collabs.Planner}
	}
	if goal == "" {
		return fmt.Errorf("a goal is required (as an argument or in the plan file)")
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var store *state.Store
	if !runNoStore {
		store, err = state.Open(cfg.Storage.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		defer store.Close()
	}

	eng := engine.New(engine.Options{
		Collaborators: collabs,
		Limits:        cfg.Limits,
		Workers: coordinator.WorkerPolicy{
			BaseWorkers:           cfg.Workers.BaseWorkers,
			GroupSizeThreshold:    cfg.Workers.GroupSizeThreshold,
			BoostOnHighComplexity: cfg.Workers.BoostOnHighComplexity,
			BoostedWorkers:        cfg.Workers.BoostedWorkers,
		},
		Strategy: strategy,
		Store:    store,
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go watchForStop(ctx, cancel, logger)

	report, err := eng.Run(ctx, goal)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	printReport(report)
	if report.Status == models.RunFailed {
		os.Exit(1)
	}
	return nil
}

// watchForStop cancels the run on SIGINT/SIGTERM or the stop signal
// file.
func watchForStop(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	watcher, err := engine.NewSignalWatcher(cwd)
	if err != nil {
		watcher = nil
	} else {
		defer watcher.Close()
		watcher.Clear()
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			logger.Warn("signal received, cancelling run", zap.String("signal", sig.String()))
			cancel()
			return
		case <-ticker.C:
			if watcher != nil && watcher.ShouldStop() {
				logger.Warn("stop file detected, cancelling run")
				cancel()
				return
			}
		}
	}
}

// printReport writes a colorized run summary to stdout.
func printReport(report *models.RunReport) {
	statusColor := color.New(color.FgGreen)
	switch report.Status {
	case models.RunPartial:
		statusColor = color.New(color.FgYellow)
	case models.RunFailed:
		statusColor = color.New(color.FgRed)
	}

	fmt.Printf("\nRun %s  %s\n", report.RunID, statusColor.Sprint(strings.ToUpper(string(report.Status))))
	fmt.Printf("Goal: %s\n", report.Goal)
	fmt.Printf("Elapsed: %s\n", report.EndedAt.Sub(report.StartedAt).Round(time.Second))
	fmt.Printf("Tasks: %d completed, %d failed, %d skipped\n",
		report.Counts.Completed, report.Counts.Failed, report.Counts.Skipped)

	if len(report.Tasks) > 0 {
		fmt.Println()
		for _, task := range report.Tasks {
			printTaskRecord(task, 0)
		}
	}
	if report.Summary != "" {
		fmt.Printf("\n%s\n", report.Summary)
	}
}

func printTaskRecord(rec models.TaskRecord, depth int) {
	indent := strings.Repeat("  ", depth)
	mark := color.GreenString("ok")
	switch rec.Status {
	case models.TaskStatusFailed:
		mark = color.RedString("fail")
	case models.TaskStatusSkipped:
		mark = color.YellowString("skip")
	}
	line := fmt.Sprintf("%s[%s] %s", indent, mark, rec.Title)
	if rec.Score != nil {
		line += fmt.Sprintf(" (score %.1f)", *rec.Score)
	}
	fmt.Println(line)
	for _, child := range rec.Children {
		printTaskRecord(child, depth+1)
	}
}
