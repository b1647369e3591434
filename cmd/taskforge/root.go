package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskforge",
	Short: "Goal-driven task orchestration engine",
	Long: `Taskforge turns a goal into a dependency-ordered task plan and
drives it to completion through AI collaborators.

A run moves through fixed stages: analysis, planning, a bounded
execution loop, a conditional review, and a final summary. Tasks may
fan out into hierarchies of specialized agents, and quality-gated
outputs pass through a bounded refinement loop before they count as
done. Every run leaves a structured audit report.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}
