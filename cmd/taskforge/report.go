package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mbenham/taskforge/internal/config"
	"github.com/mbenham/taskforge/internal/state"
	"github.com/mbenham/taskforge/pkg/models"
)

var reportLimit int

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Show recorded runs",
	Long: `Without arguments, lists recent runs from the audit store.
With a run ID, shows that run's full report: stages, the task tree
with timing and scores, and the final summary.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "Maximum number of runs to list")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := state.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening audit store: %w", err)
	}
	defer store.Close()

	if len(args) == 0 {
		return listRuns(store)
	}
	return showRun(store, args[0])
}

func listRuns(store *state.Store) error {
	runs, err := store.ListRuns(reportLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs. Run 'taskforge run <goal>' to start one.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %-9s  %d/%d/%d  %s\n",
			run.RunID,
			run.StartedAt.Format("2006-01-02 15:04"),
			colorStatus(run.Status),
			run.Counts.Completed, run.Counts.Failed, run.Counts.Skipped,
			truncate(run.Goal, 60))
	}
	return nil
}

func showRun(store *state.Store, runID string) error {
	report, err := store.GetReport(runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s  %s\n", report.RunID, colorStatus(report.Status))
	fmt.Printf("Goal: %s\n", report.Goal)
	fmt.Printf("Started: %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Printf("Elapsed: %s\n", report.EndedAt.Sub(report.StartedAt).Round(time.Second))

	if len(report.Stages) > 0 {
		fmt.Println("\nStages:")
		for _, stage := range report.Stages {
			line := fmt.Sprintf("  %-10s %s", stage.Type, stage.Status)
			if stage.Turns > 0 {
				line += fmt.Sprintf(" (%d turns)", stage.Turns)
			}
			if stage.Detail != "" {
				line += "  " + stage.Detail
			}
			fmt.Println(line)
		}
	}

	if len(report.Tasks) > 0 {
		fmt.Println("\nTasks:")
		for _, task := range report.Tasks {
			printStoredTask(task, 1)
		}
	}

	if report.Summary != "" {
		fmt.Printf("\n%s\n", report.Summary)
	}
	return nil
}

func printStoredTask(rec models.TaskRecord, depth int) {
	indent := strings.Repeat("  ", depth)
	line := fmt.Sprintf("%s%s  %s", indent, colorTaskStatus(rec.Status), rec.Title)
	if rec.DurationMillis > 0 {
		line += fmt.Sprintf("  %s", (time.Duration(rec.DurationMillis) * time.Millisecond).Round(time.Millisecond))
	}
	if rec.Score != nil {
		line += fmt.Sprintf("  score %.1f", *rec.Score)
	}
	fmt.Println(line)
	for _, child := range rec.Children {
		printStoredTask(child, depth+1)
	}
}

func colorStatus(status models.RunStatus) string {
	switch status {
	case models.RunCompleted:
		return color.GreenString(string(status))
	case models.RunPartial:
		return color.YellowString(string(status))
	default:
		return color.RedString(string(status))
	}
}

func colorTaskStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return color.GreenString("%-9s", string(status))
	case models.TaskStatusSkipped:
		return color.YellowString("%-9s", string(status))
	case models.TaskStatusFailed:
		return color.RedString("%-9s", string(status))
	default:
		return fmt.Sprintf("%-9s", string(status))
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
