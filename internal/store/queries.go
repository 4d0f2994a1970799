package store

import (
	"fmt"
	"sort"

	"github.com/loomharness/loom/pkg/models"
)

// GetTask returns a deep copy of a task by ID.
func (s *Store) GetTask(id string) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// ListDependencies returns every edge in the store, sorted by
// (src, dst, type) for a stable export diff.
func (s *Store) ListDependencies() []models.Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Dependency, 0, len(s.edges))
	for _, edge := range s.edges {
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SrcID != out[j].SrcID {
			return out[i].SrcID < out[j].SrcID
		}
		if out[i].DstID != out[j].DstID {
			return out[i].DstID < out[j].DstID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// ListFilter narrows ListTasks. Zero values mean "no filter" on that field.
type ListFilter struct {
	Status   models.TaskStatus
	TaskType models.TaskType
	Label    string
}

// ListTasks returns all tasks matching filter, sorted by ID for
// deterministic output.
func (s *Store) ListTasks(filter ListFilter) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, task := range s.tasks {
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.TaskType != "" && task.TaskType != filter.TaskType {
			continue
		}
		if filter.Label != "" && !hasLabel(task.Labels, filter.Label) {
			continue
		}
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func hasLabel(labels []string, target string) bool {
	for _, l := range labels {
		if l == target {
			return true
		}
	}
	return false
}

// GetChildren returns tasks whose ParentID is id, sorted by ID.
func (s *Store) GetChildren(id string) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, task := range s.tasks {
		if task.ParentID == id {
			out = append(out, task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetSiblings returns tasks that share id's ParentID, excluding id itself.
func (s *Store) GetSiblings(id string) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	var out []*models.Task
	for otherID, other := range s.tasks {
		if otherID == id {
			continue
		}
		if other.ParentID == task.ParentID {
			out = append(out, other.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetBlockedBy returns the IDs of tasks that block id (incoming "blocks"
// edges), sorted.
func (s *Store) GetBlockedBy(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.inByType[models.DependencyBlocks][id])
}

// GetBlocking returns the IDs of tasks that id blocks (outgoing "blocks"
// edges), sorted.
func (s *Store) GetBlocking(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedCopy(s.outByType[models.DependencyBlocks][id])
}

func sortedCopy(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	out := append([]string(nil), list...)
	sort.Strings(out)
	return out
}

// GetReadyTasks returns tasks that are pending with blocked_by_count zero,
// excluding molecule-type tasks (which are containers, not executable
// work). The result is cached and rebuilt lazily on the next call after
// any mutation (spec.md §9's dirty-flag design note).
func (s *Store) GetReadyTasks() []*models.Task {
	s.mu.Lock()
	if s.readyDirty {
		s.rebuildReadyCache()
	}
	ids := append([]string(nil), s.readyCache...)
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			out = append(out, task.Clone())
		}
	}
	return out
}

// rebuildReadyCache recomputes readyCache, ordered by (priority asc,
// created_at asc) to match scheduler.ElectionOrder's election order. Must
// be called with the write lock held.
func (s *Store) rebuildReadyCache() {
	var ready []string
	for id, task := range s.tasks {
		if task.Status == models.TaskStatusPending && task.BlockedByCount == 0 &&
			task.TaskType != models.TaskTypeMolecule {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		ti, tj := s.tasks[ready[i]], s.tasks[ready[j]]
		if ti.Priority != tj.Priority {
			return ti.Priority < tj.Priority
		}
		return ti.CreatedAt.Before(tj.CreatedAt)
	})
	s.readyCache = ready
	s.readyDirty = false
	s.debugLog("[store.rebuildReadyCache] %d ready tasks", len(ready))
}

// TraverseDependencies performs a breadth-first walk outward from id along
// edges of the given type (or all types if typ is ""), up to maxDepth
// hops, treating edges as undirected. Returns visited task IDs excluding
// id itself, in BFS discovery order.
func (s *Store) TraverseDependencies(id string, typ models.DependencyType, maxDepth int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	types := []models.DependencyType{typ}
	if typ == "" {
		types = []models.DependencyType{
			models.DependencyBlocks, models.DependencyParent,
			models.DependencyRelated, models.DependencyDiscovered,
		}
	}

	visited := map[string]bool{id: true}
	frontier := []string{id}
	var order []string

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, cur := range frontier {
			var neighbors []string
			for _, t := range types {
				neighbors = append(neighbors, s.outByType[t][cur]...)
				neighbors = append(neighbors, s.inByType[t][cur]...)
			}
			sort.Strings(neighbors)
			for _, n := range neighbors {
				if !visited[n] {
					visited[n] = true
					order = append(order, n)
					next = append(next, n)
				}
			}
		}
		frontier = next
	}
	return order, nil
}

// GetTasksWithCommentPrefix returns tasks having at least one comment
// whose content starts with prefix, sorted by ID. Used by the
// orchestrator to scan for protocol markers like "BLOCKED:" or
// "APPROVED:" (spec.md §4.4).
func (s *Store) GetTasksWithCommentPrefix(prefix string) []*models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Task
	for _, task := range s.tasks {
		for _, c := range task.Comments {
			if len(c.Content) >= len(prefix) && c.Content[:len(prefix)] == prefix {
				out = append(out, task.Clone())
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EpicSummary reports a status breakdown over a molecule's children.
type EpicSummary struct {
	MoleculeID string
	Total      int
	ByStatus   map[models.TaskStatus]int
}

// GetEpicSummary computes a status breakdown over a molecule task's
// children.
func (s *Store) GetEpicSummary(moleculeID string) (EpicSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	molecule, ok := s.tasks[moleculeID]
	if !ok {
		return EpicSummary{}, fmt.Errorf("%w: %s", ErrTaskNotFound, moleculeID)
	}
	if molecule.TaskType != models.TaskTypeMolecule {
		return EpicSummary{}, fmt.Errorf("task %s is not a molecule", moleculeID)
	}

	summary := EpicSummary{MoleculeID: moleculeID, ByStatus: make(map[models.TaskStatus]int)}
	for _, task := range s.tasks {
		if task.ParentID == moleculeID {
			summary.Total++
			summary.ByStatus[task.Status]++
		}
	}
	return summary, nil
}

// GetOpenAtDepth layers non-terminal tasks by BFS distance from the ready
// frontier along "blocks" edges (layer 0 = currently ready), and returns
// the IDs at exactly the requested depth, sorted. This mirrors Kahn's
// algorithm's layering but starts from the live ready set rather than
// from in-degree-zero nodes, since completed/cancelled tasks don't count
// toward blocking (spec.md §4.1).
func (s *Store) GetOpenAtDepth(depth int) []string {
	s.mu.Lock()
	if s.readyDirty {
		s.rebuildReadyCache()
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if depth < 0 {
		return nil
	}

	visited := make(map[string]bool)
	frontier := append([]string(nil), s.readyCache...)
	for _, id := range frontier {
		visited[id] = true
	}

	for d := 0; d < depth; d++ {
		var next []string
		for _, id := range frontier {
			for _, dep := range s.outByType[models.DependencyBlocks][id] {
				if visited[dep] {
					continue
				}
				task, ok := s.tasks[dep]
				if !ok || task.Status == models.TaskStatusCompleted || task.Status == models.TaskStatusCancelled {
					continue
				}
				if !allBlockersVisited(s, dep, visited) {
					continue
				}
				visited[dep] = true
				next = append(next, dep)
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}

	sort.Strings(frontier)
	return frontier
}

// allBlockersVisited reports whether every task blocking dep has already
// been placed in an earlier layer, so dep is only surfaced once all of
// its prerequisites have a defined depth.
func allBlockersVisited(s *Store, dep string, visited map[string]bool) bool {
	for _, blocker := range s.inByType[models.DependencyBlocks][dep] {
		if !visited[blocker] {
			if task, ok := s.tasks[blocker]; ok &&
				task.Status != models.TaskStatusCompleted && task.Status != models.TaskStatusCancelled {
				return false
			}
		}
	}
	return true
}
