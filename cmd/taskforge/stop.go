package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbenham/taskforge/internal/engine"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running taskforge process to stop",
	Long: `Stop writes a signal file that a run started in this directory
watches for. The running process cancels its in-flight work and
records the run as it stands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		watcher, err := engine.NewSignalWatcher(cwd)
		if err != nil {
			return fmt.Errorf("prepare signal directory: %w", err)
		}
		defer watcher.Close()

		if err := watcher.SendStop(); err != nil {
			return fmt.Errorf("write stop signal: %w", err)
		}
		fmt.Println("Stop signal sent.")
		return nil
	},
}
