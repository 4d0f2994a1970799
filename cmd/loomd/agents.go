package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loomharness/loom/internal/config"
	"github.com/loomharness/loom/internal/registry"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the loaded agent definitions",
	Long: `Load every *.md agent definition from the project's .loom/agents
directory and the configured agents directory (project definitions win
on a name clash) and print its name, description, tools, and iteration cap.`,
	RunE: runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	projectAgentsDir := filepath.Join(".loom", "agents")
	reg, err := registry.New(context.Background(), projectAgentsDir, cfg.Registry.AgentsDir)
	if err != nil {
		return fmt.Errorf("load agent registry from %s and %s: %w", projectAgentsDir, cfg.Registry.AgentsDir, err)
	}

	defs := reg.All()
	if len(defs) == 0 {
		fmt.Printf("No agent definitions found in %s or %s\nRun 'loomd init' to create the defaults.\n", projectAgentsDir, cfg.Registry.AgentsDir)
		return nil
	}

	for _, def := range defs {
		fmt.Printf("%s\n", def.Name)
		fmt.Printf("  description: %s\n", def.Description)
		fmt.Printf("  tools: %s\n", strings.Join(def.Tools, ", "))
		fmt.Printf("  max_iterations: %d\n", def.MaxIterations)
		if def.ConversationMode {
			fmt.Println("  conversation_mode: true")
		}
		fmt.Printf("  source: %s\n\n", def.SourcePath)
	}

	return nil
}
