package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRegistry_New_LoadsInitialDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "planner.md", "planner")

	reg, err := New(context.Background(), dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	def, ok := reg.Get("planner")
	if !ok {
		t.Fatal("expected planner to be registered")
	}
	if def.Name != "planner" {
		t.Errorf("Name = %q, want planner", def.Name)
	}
	if len(reg.All()) != 1 {
		t.Errorf("All() = %d entries, want 1", len(reg.All()))
	}
}

func TestRegistry_Get_UnknownNameIsNotFound(t *testing.T) {
	reg, err := New(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := reg.Get("nonexistent"); ok {
		t.Fatal("expected nonexistent agent to be absent")
	}
}

func TestRegistry_Watch_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "planner.md", "planner")

	reg, err := New(context.Background(), dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := reg.Watch(ctx); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	writeAgentFile(t, dir, "judge.md", "judge")

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := reg.Get("judge"); ok {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for registry to pick up new agent file")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestRegistry_Reload_KeepsPreviousSetOnTotalFailure(t *testing.T) {
	dir := t.TempDir()
	writeAgentFile(t, dir, "planner.md", "planner")

	reg, err := New(context.Background(), dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	os.Remove(filepath.Join(dir, "planner.md"))
	os.WriteFile(filepath.Join(dir, "broken.md"), []byte("not valid frontmatter"), 0o644)

	// reload via the unexported path (Watch isn't running here); a
	// directory with only unparseable files yields zero loaded
	// definitions and a non-nil error, which must not panic.
	if err := reg.reload(context.Background()); err == nil {
		t.Fatal("expected error reloading an all-broken directory")
	}
	if _, ok := reg.Get("planner"); !ok {
		t.Fatal("expected previous definitions to survive a failed reload")
	}
}
