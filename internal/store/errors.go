package store

import "errors"

// Store-layer sentinel errors (spec.md §7). Wrap with fmt.Errorf("%w", ...)
// at the call site when extra context is useful; callers should compare
// with errors.Is against these values, never by string.
var (
	ErrTaskNotFound             = errors.New("task not found")
	ErrTaskIDCollision          = errors.New("task id collision")
	ErrSourceMissing            = errors.New("dependency source task missing")
	ErrDestMissing              = errors.New("dependency destination task missing")
	ErrSelfDependency           = errors.New("self dependency rejected")
	ErrDuplicateEdge            = errors.New("duplicate dependency edge")
	ErrCircularDependency       = errors.New("circular dependency rejected")
	ErrDependencyNotFound       = errors.New("dependency edge not found")
	ErrCannotChangeWispType     = errors.New("cannot change task_type to or from wisp")
	ErrCannotSetMoleculeCurrent = errors.New("cannot set a molecule task as current")
	ErrTaskNotStartable         = errors.New("task is not in a startable status")
	ErrInvalidTitle             = errors.New("task title must not be empty")
)
