package git

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")

	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("hello\n"), 0644); err != nil {
		t.Fatalf("write README: %v", err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestExecRunner_AddAndCommit(t *testing.T) {
	dir := newTestRepo(t)
	r := NewRunner(dir)

	if err := os.WriteFile(filepath.Join(dir, "tasks.jsonl"), []byte(`{"id":"a1b2c3d4"}`+"\n"), 0644); err != nil {
		t.Fatalf("write tasks.jsonl: %v", err)
	}

	if err := r.Add("tasks.jsonl"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Commit("sync tasks"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	hasChanges, err := r.HasChanges()
	if err != nil {
		t.Fatalf("HasChanges: %v", err)
	}
	if hasChanges {
		t.Error("HasChanges = true after commit, want false")
	}
}

func TestExecRunner_CommitNothingToCommit(t *testing.T) {
	dir := newTestRepo(t)
	r := NewRunner(dir)

	err := r.Commit("empty commit")
	if err == nil {
		t.Fatal("Commit with nothing staged returned nil error, want exit status 1")
	}
}

func TestExecRunner_CurrentBranch(t *testing.T) {
	dir := newTestRepo(t)
	r := NewRunner(dir)

	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch == "" {
		t.Error("CurrentBranch returned empty string")
	}
}

func TestExecRunner_BranchExists(t *testing.T) {
	dir := newTestRepo(t)
	r := NewRunner(dir)

	exists, err := r.BranchExists("loom-sync")
	if err != nil {
		t.Fatalf("BranchExists: %v", err)
	}
	if exists {
		t.Error("BranchExists(loom-sync) = true before creation")
	}

	if err := r.CreateAndCheckoutBranch("loom-sync"); err != nil {
		t.Fatalf("CreateAndCheckoutBranch: %v", err)
	}

	exists, err = r.BranchExists("loom-sync")
	if err != nil {
		t.Fatalf("BranchExists: %v", err)
	}
	if !exists {
		t.Error("BranchExists(loom-sync) = false after creation")
	}
}
