package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initNoGit bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a loom project",
	Long: `Initialize a directory for use with loom.

This command sets up everything needed to run loomd:
  - Verifies git is installed
  - Initializes a git repository if needed
  - Creates .loom/ with a project config and a default agents/ directory

The directory argument is optional and defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initNoGit, "no-git", false, "Skip git initialization")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}
	if err := os.Chdir(absPath); err != nil {
		return fmt.Errorf("changing to directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing loom in %s...\n\n", absPath)

	loomDir := filepath.Join(absPath, ".loom")
	if _, err := os.Stat(loomDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	if err := checkGitInstalled(); err != nil {
		printStatus("✗", "Git not found", color.FgRed)
		return err
	}
	printStatus("✓", "Git found", color.FgGreen)

	if !initNoGit {
		if err := initGitRepo(absPath); err != nil {
			return err
		}
	} else {
		fmt.Println("Skipping git initialization (--no-git flag)")
	}

	agentsDir := filepath.Join(loomDir, "agents")
	if err := os.MkdirAll(agentsDir, 0755); err != nil {
		return fmt.Errorf("creating .loom/agents directory: %w", err)
	}
	if err := writeDefaultAgents(agentsDir); err != nil {
		return fmt.Errorf("writing default agent definitions: %w", err)
	}
	printStatus("✓", "Created .loom/agents with Planner/Questioner/Tinkerer/Judge", color.FgGreen)

	if err := createProjectConfig(loomDir); err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	printStatus("✓", "Created .loom/config.yaml template", color.FgGreen)

	if !initNoGit {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus("✓", "Updated .gitignore with loom entries", color.FgGreen)
	}

	fmt.Printf("\n%s loom initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Point local_model.base_url at a running chat_stream server")
	fmt.Println("     loomd config local_model.base_url http://localhost:11434")
	fmt.Println("  2. Start the orchestrator:")
	fmt.Println("     loomd run \"your task here\"")
	fmt.Println("  3. Learn more:")
	fmt.Println("     loomd --help")

	return nil
}

func checkGitInstalled() error {
	if _, err := exec.LookPath("git"); err != nil {
		return fmt.Errorf("git not found in PATH\n\n" +
			"loom requires git to commit task-store snapshots.\n\n" +
			"Install git with:\n" +
			"  - macOS: brew install git\n" +
			"  - Ubuntu/Debian: sudo apt-get install git\n" +
			"  - Other: https://git-scm.com/downloads")
	}
	return nil
}

func initGitRepo(repoPath string) error {
	gitDir := filepath.Join(repoPath, ".git")
	if _, err := os.Stat(gitDir); os.IsNotExist(err) {
		cmd := exec.Command("git", "init")
		cmd.Dir = repoPath
		if output, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("git init failed: %s\n%s", err, string(output))
		}
		printStatus("✓", "Initialized git repository", color.FgGreen)
	} else {
		printStatus("✓", "Git repository exists", color.FgGreen)
	}

	hasCommits, err := hasAnyCommits(repoPath)
	if err != nil {
		return fmt.Errorf("checking for commits: %w", err)
	}
	if !hasCommits {
		if err := ensureInitialCommit(repoPath); err != nil {
			return fmt.Errorf("creating initial commit: %w", err)
		}
		printStatus("✓", "Created initial commit", color.FgGreen)
	} else {
		printStatus("✓", "Git repository has commits", color.FgGreen)
	}
	return nil
}

func hasAnyCommits(repoPath string) (bool, error) {
	cmd := exec.Command("git", "rev-list", "-n", "1", "--all")
	cmd.Dir = repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 128 {
			return false, nil
		}
		return false, fmt.Errorf("git rev-list failed: %s", string(output))
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

func ensureInitialCommit(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		content := "# loom\n.loom/logs/\nloomd\n"
		if err := os.WriteFile(gitignorePath, []byte(content), 0644); err != nil {
			return fmt.Errorf("creating .gitignore: %w", err)
		}
	}

	addCmd := exec.Command("git", "add", ".")
	addCmd.Dir = repoPath
	if output, err := addCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git add failed: %s\n%s", err, string(output))
	}

	commitCmd := exec.Command("git", "commit", "--allow-empty", "-m", "Initial commit")
	commitCmd.Dir = repoPath
	if output, err := commitCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git commit failed: %s\n%s", err, string(output))
	}
	return nil
}

// updateGitignore adds loom entries to .gitignore if not present.
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	entries := []string{".loom/logs/", "loomd"}

	needsUpdate := false
	for _, entry := range entries {
		if !strings.Contains(existingContent, entry) {
			needsUpdate = true
			break
		}
	}
	if !needsUpdate {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)
	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}
	newContent.WriteString("\n# loom\n")
	for _, entry := range entries {
		if !strings.Contains(existingContent, entry) {
			newContent.WriteString(entry + "\n")
		}
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// createProjectConfig writes a commented .loom/config.yaml template.
func createProjectConfig(loomDir string) error {
	configPath := filepath.Join(loomDir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	template := `# loom project configuration
# This file overrides defaults from ~/.config/loom/config.yaml

# local_model:
#   base_url: http://localhost:11434
#   model: qwen2.5-coder:32b
#   num_ctx: 32768
#   num_predict: 4096

# defaults:
#   max_iterations: 10
#   max_tool_depth: 5
#   token_budget: 100000
`
	return os.WriteFile(configPath, []byte(template), 0644)
}

// defaultAgent names one default agent file and its frontmatter/body.
type defaultAgent struct {
	name             string
	description      string
	tools            string
	maxIterations    int
	conversationMode bool
	body             string
}

var defaultAgents = []defaultAgent{
	{
		name:          "planner",
		description:   "Breaks broad or blocked tasks into ready, independently buildable children",
		tools:         "create_task, add_dependency, update_task_type, update_status, add_comment, get_ready_tasks",
		maxIterations: 8,
		body: `You are the Planner. You receive a task that is either brand new, too
broad to build directly, or was kicked back to you with a BLOCKED: or
REJECTED: reason attached.

Decide whether the task can be built as-is. If it can, leave it alone.
If it can't, convert it to a molecule with update_task_type and create
its child tasks with create_task, wiring add_dependency edges so each
child only becomes ready once its true prerequisites complete. Narrow
each child enough that the Tinkerer can finish it in one sitting.

When you are done, the blocked task's comment trail should make clear
what you changed and why.`,
	},
	{
		name:          "questioner",
		description:   "Decides whether the current task is ready to build or needs replanning",
		tools:         "update_status, add_comment, get_current_task, get_ready_tasks",
		maxIterations: 5,
		body: `You are the Questioner. Look at the current task. If its scope,
acceptance criteria, or dependencies are unclear or too broad for one
Tinkerer pass, mark it blocked with update_status and leave a comment
starting with "BLOCKED: " explaining exactly what is missing.

If the task is concrete enough to build, leave its status untouched
and say so briefly in a comment. Never implement the task yourself.`,
	},
	{
		name:             "tinkerer",
		description:      "Implements the current task or reports why it cannot proceed",
		tools:            "update_status, add_comment, get_current_task",
		maxIterations:    15,
		conversationMode: true,
		body: `You are the Tinkerer. Implement the current task to completion.

If partway through you discover a missing dependency, unclear
requirement, or a prerequisite that doesn't exist yet, mark the task
blocked with update_status and leave a comment starting with
"BLOCKED: " describing what you found. Otherwise finish the work and
leave a comment starting with "SUMMARY: " describing what changed.

If you are resumed after a REJECTED: comment from the Judge, address
the specific feedback before reporting back.`,
	},
	{
		name:          "judge",
		description:   "Reviews a finished task and approves or rejects it",
		tools:         "add_comment, get_current_task",
		maxIterations: 5,
		body: `You are the Judge. Review the current task's recent comments and
decide whether the work satisfies the task. If it does not, leave a
comment starting with "REJECTED: " explaining precisely what is wrong
and what the Tinkerer should fix.

If it does, leave a comment starting with "APPROVED: " summarizing
what was verified. Do not modify task status; the orchestrator routes
based on your comment alone.`,
	},
}

// writeDefaultAgents writes loom's four built-in agent definitions into
// dir, skipping any file that already exists.
func writeDefaultAgents(dir string) error {
	for _, a := range defaultAgents {
		path := filepath.Join(dir, a.name+".md")
		if _, err := os.Stat(path); err == nil {
			continue
		}

		var fm strings.Builder
		fmt.Fprintf(&fm, "---\nname: %s\ndescription: %s\ntools: %s\nmax_iterations: %d\n",
			a.name, a.description, a.tools, a.maxIterations)
		if a.conversationMode {
			fm.WriteString("conversation_mode: true\n")
		}
		fm.WriteString("---\n")
		fm.WriteString(strings.TrimSpace(a.body))
		fm.WriteString("\n")

		if err := os.WriteFile(path, []byte(fm.String()), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
