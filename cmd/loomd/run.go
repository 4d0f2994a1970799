package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loomharness/loom/internal/agent"
	"github.com/loomharness/loom/internal/config"
	"github.com/loomharness/loom/internal/git"
	"github.com/loomharness/loom/internal/orchestrator"
	"github.com/loomharness/loom/internal/persistence"
	"github.com/loomharness/loom/internal/registry"
	"github.com/loomharness/loom/internal/scheduler"
	"github.com/loomharness/loom/internal/state"
	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/internal/streampipe"
	"github.com/loomharness/loom/internal/tools"
	"github.com/loomharness/loom/pkg/models"
)

var (
	runSyncBranch string
	runNoSync     bool
)

var runCmd = &cobra.Command{
	Use:   "run [task title]",
	Short: "Run the orchestrator against the project's task store",
	Long: `Drive the Planner/Questioner/Tinkerer/Judge loop to completion.

If a task title is given, it is created as a new top-level task before
the loop starts. Task state is hydrated from .tasks/*.jsonl on startup
and synced back to it (export + git commit) when the loop terminates.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runSyncBranch, "sync-branch", "", "Commit .tasks/ snapshots onto this branch instead of the current one")
	runCmd.Flags().BoolVar(&runNoSync, "no-sync", false, "Skip exporting and committing .tasks/ state on exit")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open task database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate task database: %w", err)
	}

	st := store.New()
	sched := scheduler.New(st)

	tasksDir := filepath.Join(cwd, ".tasks")
	if _, err := os.Stat(tasksDir); err == nil {
		taskResult, err := persistence.ImportTasks(st, tasksDir)
		if err != nil {
			return fmt.Errorf("import %s/tasks.jsonl: %w", tasksDir, err)
		}
		depResult, err := persistence.ImportDependencies(st, tasksDir)
		if err != nil {
			return fmt.Errorf("import %s/dependencies.jsonl: %w", tasksDir, err)
		}
		printStatus("✓", fmt.Sprintf("Hydrated %d tasks, %d dependencies from %s", taskResult.Created, depResult.Created, tasksDir), color.FgGreen)
	}

	if title := strings.TrimSpace(strings.Join(args, " ")); title != "" {
		id, err := st.CreateTask(store.CreateTaskParams{Title: title, TaskType: models.TaskTypeTask})
		if err != nil {
			return fmt.Errorf("create task %q: %w", title, err)
		}
		printStatus("✓", fmt.Sprintf("Created task %s: %q", id, title), color.FgGreen)
	}

	session, err := sched.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if err := db.CreateSessionRow(session); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	printStatus("✓", fmt.Sprintf("Started session %s", session.ID), color.FgGreen)

	if task, err := sched.AdoptOrphanedTask(); err == nil && task != nil {
		printStatus("✓", fmt.Sprintf("Adopted orphaned in-progress task %s", task.ID), color.FgGreen)
	}

	ctx := context.Background()
	projectAgentsDir := filepath.Join(cwd, ".loom", "agents")
	reg, err := registry.New(ctx, projectAgentsDir, cfg.Registry.AgentsDir)
	if err != nil {
		return fmt.Errorf("load agent registry from %s and %s: %w", projectAgentsDir, cfg.Registry.AgentsDir, err)
	}
	if len(reg.All()) == 0 {
		return fmt.Errorf("no agent definitions found in %s or %s; run 'loomd init' first", projectAgentsDir, cfg.Registry.AgentsDir)
	}

	client, err := chatClient(cfg)
	if err != nil {
		return fmt.Errorf("build chat client: %w", err)
	}

	toolRegistry := tools.New(st, sched)

	newExec := func(role orchestrator.CommandType, def registry.Definition) *agent.Executor {
		return agent.NewExecutor(client, toolRegistry, def.Name)
	}

	orch := orchestrator.New(st, sched, reg, newExec)

	done := make(chan struct{})
	go renderEvents(orch, done)

	startCmd := orchestrator.Command{Type: orchestrator.StartQuestioner, Display: "Questioner"}
	if len(st.ListTasks(store.ListFilter{})) == 0 {
		startCmd = orchestrator.Command{Type: orchestrator.StartPlanner, Display: "Planner"}
	}
	orch.Enqueue(startCmd)

	runErr := orch.Run(ctx)
	close(done)
	<-renderDone

	if runErr != nil {
		return fmt.Errorf("orchestrator run: %w", runErr)
	}

	if runNoSync {
		return nil
	}
	return syncTasks(st, sched, cwd, tasksDir)
}

var renderDone = make(chan struct{})

// renderEvents prints orchestrator progress to the terminal as it runs,
// streaming each agent invocation's chunks and tool events while it is
// in flight. Grounded on the teacher's LiveStreamer (drain-until-closed
// over a bounded channel), narrowed to a plain line-oriented terminal
// consumer instead of a ring-buffered TUI pane.
func renderEvents(orch *orchestrator.Orchestrator, done <-chan struct{}) {
	defer close(renderDone)
	stopping := false
	for {
		if stopping {
			select {
			case ev, ok := <-orch.Events():
				if !ok {
					return
				}
				printEvent(orch, ev)
			default:
				return
			}
			continue
		}
		select {
		case <-done:
			stopping = true
		case ev, ok := <-orch.Events():
			if !ok {
				return
			}
			printEvent(orch, ev)
		}
	}
}

func printEvent(orch *orchestrator.Orchestrator, ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventAgentStarted:
		fmt.Printf("\n%s %s\n", color.CyanString("▶"), ev.Message)
		go streamCurrentPipeline(orch)
	case orchestrator.EventAgentFinished:
		fmt.Printf("%s %s\n", color.GreenString("✓"), ev.Message)
	case orchestrator.EventKickback:
		fmt.Printf("%s %s\n", color.YellowString("↩"), ev.Message)
	case orchestrator.EventTerminated:
		fmt.Printf("%s nothing ready; stopping\n", color.MagentaString("■"))
	}
}

// streamCurrentPipeline drains the pipeline of the invocation that just
// started, printing content deltas and tool call outcomes as they
// arrive. The pipeline reference can lag the EventAgentStarted it
// follows by a few scheduler ticks, so it polls briefly before giving up.
func streamCurrentPipeline(orch *orchestrator.Orchestrator) {
	var pipe = orch.CurrentPipeline()
	for i := 0; pipe == nil && i < 50; i++ {
		time.Sleep(10 * time.Millisecond)
		pipe = orch.CurrentPipeline()
	}
	if pipe == nil {
		return
	}

	toolEvents := pipe.ToolEvents()
	chunks := pipe.Chunks()
	for chunks != nil || toolEvents != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if c.Content != "" {
				fmt.Print(c.Content)
			}
		case e, ok := <-toolEvents:
			if !ok {
				toolEvents = nil
				continue
			}
			if e.Kind == streampipe.ToolEventComplete {
				mark := color.GreenString("ok")
				if !e.Success {
					mark = color.RedString("fail")
				}
				fmt.Printf("\n  %s %s (%dms)\n", e.Name, mark, e.DurationMs)
			}
		}
	}
}

// chatClient builds the ChatClient every executor shares, picking the
// hosted Anthropic backend over the local chat_stream server when an API
// key is set or use_aws_bedrock is enabled (spec.md §4.5's escalation path).
func chatClient(cfg *config.Config) (agent.ChatClient, error) {
	if cfg.Anthropic.APIKey != "" || cfg.Anthropic.UseAWSBedrock {
		return agent.NewRemoteClient(agent.RemoteClientConfig{
			Model:         cfg.Anthropic.Model,
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
	}
	return agent.NewLocalClient(cfg.LocalModel.BaseURL), nil
}

// syncTasks exports the task graph to .tasks/*.jsonl, writes
// SESSION_STATE.md, and commits the result so a fresh clone can recover
// without the SQLite database (spec.md §4.3).
func syncTasks(st *store.Store, sched *scheduler.Scheduler, repoRoot, tasksDir string) error {
	var runner git.Runner
	if _, err := os.Stat(filepath.Join(repoRoot, ".git")); err == nil {
		runner = git.NewRunner(repoRoot)
	}

	result, err := persistence.SyncAll(st, sched, runner, persistence.SyncOptions{
		Dir:        tasksDir,
		SyncBranch: runSyncBranch,
	})
	if err != nil {
		return fmt.Errorf("sync task state: %w", err)
	}

	if result.Committed {
		printStatus("✓", fmt.Sprintf("Committed %d tasks, %d dependencies to %s", result.Tasks.Written, result.Dependencies.Written, tasksDir), color.FgGreen)
	} else {
		printStatus("✓", fmt.Sprintf("Exported %d tasks, %d dependencies to %s", result.Tasks.Written, result.Dependencies.Written, tasksDir), color.FgGreen)
	}
	return nil
}
