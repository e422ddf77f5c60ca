package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "taskloom",
	Short: "Dynamic task-orchestration engine",
	Long: `Taskloom executes jobs whose tasks form a dependency graph that grows
while the job runs: handlers may decompose their work into child tasks,
and the engine schedules, bounds, and settles the whole graph.

Jobs are defined in YAML or JSON files and can be run directly, submitted
over HTTP, or dropped into a watched spool directory.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}
