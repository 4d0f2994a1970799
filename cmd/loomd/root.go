package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "loomd",
	Short: "Agent orchestration engine",
	Long: `loomd drives a local language model through a multi-agent workflow
that executes engineering tasks end to end.

A directed graph of specialised sub-agents (Planner, Questioner,
Tinkerer, Judge) cooperates through a persistent task store with an
explicit dependency DAG, an append-only comment audit trail, and
git-backed durability.

Available commands:
  run      Run the orchestrator against the project's task store
  status   Show the current session and task state
  agents   List the loaded agent definitions
  init     Initialize loom in a project
  config   View or modify configuration
  version  Show version information

Use "loomd [command] --help" for more information about a command.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version()
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(agentsCmd)
}
