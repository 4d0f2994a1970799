// Package store implements the in-memory task and dependency graph that
// backs loom's scheduler and orchestrator (spec.md §4.1). It owns all
// tasks and edges, enforces the invariants in spec.md §3, and exposes a
// cached ready-queue.
//
// Generalized from the teacher's internal/graph package (single-edge-type
// DAG with DFS cycle detection) to the spec's four dependency types,
// where only "blocks" edges affect scheduling.
package store

import (
	"sync"
	"time"

	"github.com/loomharness/loom/pkg/models"
)

// edgeKey uniquely identifies a (src, dst, type) triple for duplicate
// detection, per spec.md invariant 6.
type edgeKey struct {
	src string
	dst string
	typ models.DependencyType
}

// Store is the in-memory task and dependency graph. All exported methods
// are safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	tasks map[string]*models.Task
	edges map[edgeKey]models.Dependency

	// outByType[t][src] lists destinations of edges of type t out of src.
	outByType map[models.DependencyType]map[string][]string
	// inByType[t][dst] lists sources of edges of type t into dst.
	inByType map[models.DependencyType]map[string][]string

	// readyCache holds the last computed ready queue. readyDirty is set
	// on any mutation that could change readiness and cleared on rebuild,
	// per spec.md §9's "dirty-flag + rebuild" design note.
	readyCache []string
	readyDirty bool

	// debugLog is an optional logging hook, matching the teacher's
	// graph.go no-op-by-default pattern.
	debugLog func(format string, args ...interface{})

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New creates an empty Store.
func New() *Store {
	s := &Store{
		tasks:      make(map[string]*models.Task),
		edges:      make(map[edgeKey]models.Dependency),
		outByType:  make(map[models.DependencyType]map[string][]string),
		inByType:   make(map[models.DependencyType]map[string][]string),
		readyDirty: true,
		debugLog:   func(format string, args ...interface{}) {},
		now:        time.Now,
	}
	for _, t := range []models.DependencyType{
		models.DependencyBlocks, models.DependencyParent,
		models.DependencyRelated, models.DependencyDiscovered,
	} {
		s.outByType[t] = make(map[string][]string)
		s.inByType[t] = make(map[string][]string)
	}
	return s
}

// SetDebugLog installs a logging hook used for diagnostics on hot paths.
func (s *Store) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		s.debugLog = fn
	}
}

// SetClock overrides the time source; intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// markReadyDirty invalidates the ready-queue cache. Must be called with
// the lock held.
func (s *Store) markReadyDirty() {
	s.readyDirty = true
}

// isBlockingSource reports whether a task's status counts as "still
// blocking" for the purposes of blocked_by_count (spec.md invariant 1):
// any status other than completed/cancelled blocks dependents.
func isBlockingSource(status models.TaskStatus) bool {
	return status != models.TaskStatusCompleted && status != models.TaskStatusCancelled
}

// hasCycleFrom runs a DFS from start following outgoing "blocks" edges,
// reporting whether target is reachable. Must be called with the lock
// held (read or write).
func (s *Store) hasCycleFrom(start, target string) bool {
	visited := make(map[string]bool)
	var visit func(id string) bool
	visit = func(id string) bool {
		if id == target {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, next := range s.outByType[models.DependencyBlocks][id] {
			if visit(next) {
				return true
			}
		}
		return false
	}
	return visit(start)
}
