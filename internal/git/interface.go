// Package git provides a narrow interface over the git operations
// sync_all needs (spec.md §4.3): staging and committing the exported
// task state, and optionally routing those commits onto a separate sync
// branch so they don't pollute the working branch's history. The
// worktree operations are part of the interface but sync_all does not
// call them.
package git

// CommitOperations stages and commits changes.
type CommitOperations interface {
	// Add stages the specified paths for commit.
	Add(paths ...string) error
	// Commit creates a new commit with the given message.
	Commit(message string) error
	// HasChanges returns true if there are uncommitted changes.
	HasChanges() (bool, error)
}

// BranchOperations supports routing task commits onto a dedicated branch.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// CreateAndCheckoutBranch creates and switches to a new branch.
	CreateAndCheckoutBranch(name string) error
	// CheckoutBranch switches to the specified branch.
	CheckoutBranch(name string) error
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
}

// WorktreeOperations supports an isolated worktree for the sync branch so
// task commits can be made without disturbing the caller's working tree.
type WorktreeOperations interface {
	// WorktreeAdd creates a new worktree at path for the given branch.
	WorktreeAdd(path, branch string) error
	// WorktreeRemove removes the worktree at path.
	WorktreeRemove(path string) error
	// WorktreeList returns the paths of existing worktrees.
	WorktreeList() ([]string, error)
}

// Runner is the complete interface for the git operations loom's
// persistence layer uses. Consumers should prefer the focused
// sub-interfaces where possible.
type Runner interface {
	CommitOperations
	BranchOperations
	WorktreeOperations
	// Run executes an arbitrary git command with the given arguments.
	Run(args ...string) (string, error)
}
