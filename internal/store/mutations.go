package store

import (
	"fmt"
	"time"

	"github.com/loomharness/loom/pkg/models"
)

// CreateTaskParams holds the inputs to CreateTask. BlockedByEdges lists
// other task IDs that block this new task ("blocks" edges pointing at it),
// allowing a task to be created already-blocked atomically.
//
// ID, CreatedAt, and UpdatedAt are normally left zero so CreateTask derives
// them itself; ImportTasks sets all three when replaying a task read back
// from tasks.jsonl, so a re-hydrated store assigns the row its original ID
// and timestamps instead of minting a new hash and a fresh creation time.
type CreateTaskParams struct {
	ID             string
	Title          string
	Description    string
	Priority       models.Priority
	TaskType       models.TaskType
	Labels         []string
	ParentID       string
	BlockedByEdges []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateTask inserts the task (generating an ID unless params.ID is set)
// and wires any declared incoming "blocks" edges atomically (spec.md
// §4.1). If params.ID is set and already in use, returns
// ErrTaskIDCollision rather than silently minting a different ID.
func (s *Store) CreateTask(params CreateTaskParams) (string, error) {
	if params.Title == "" {
		return "", ErrInvalidTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var id string
	if params.ID != "" {
		if _, exists := s.tasks[params.ID]; exists {
			return "", fmt.Errorf("%w: %s", ErrTaskIDCollision, params.ID)
		}
		id = params.ID
	} else {
		for attempt := 0; ; attempt++ {
			candidate := generateID(params.Title, now.UnixNano(), attempt)
			if _, exists := s.tasks[candidate]; !exists {
				id = candidate
				break
			}
			s.debugLog("[store.CreateTask] id collision for %q, retrying (attempt %d)", params.Title, attempt)
		}
	}

	priority := params.Priority
	taskType := params.TaskType
	if taskType == "" {
		taskType = models.TaskTypeTask
	}

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := params.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	task := &models.Task{
		ID:          id,
		ParentID:    params.ParentID,
		Title:       params.Title,
		Description: params.Description,
		Status:      models.TaskStatusPending,
		Priority:    priority,
		TaskType:    taskType,
		Labels:      append([]string(nil), params.Labels...),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
	s.tasks[id] = task

	for _, srcID := range params.BlockedByEdges {
		if _, exists := s.tasks[srcID]; !exists {
			delete(s.tasks, id)
			return "", fmt.Errorf("%w: %s", ErrSourceMissing, srcID)
		}
		s.insertEdge(srcID, id, models.DependencyBlocks, 1.0)
		if isBlockingSource(s.tasks[srcID].Status) {
			task.BlockedByCount++
		}
	}

	if task.BlockedByCount > 0 {
		task.Status = models.TaskStatusBlocked
	}

	s.markReadyDirty()
	s.debugLog("[store.CreateTask] created %s %q type=%s priority=%d blocked_by=%d",
		id, params.Title, taskType, priority, task.BlockedByCount)
	return id, nil
}

// insertEdge records an edge in both the flat map and the type-indexed
// adjacency maps. Caller must hold the write lock and have already
// checked for duplicates.
func (s *Store) insertEdge(src, dst string, typ models.DependencyType, weight float64) {
	key := edgeKey{src: src, dst: dst, typ: typ}
	s.edges[key] = models.Dependency{SrcID: src, DstID: dst, Type: typ, Weight: weight}
	s.outByType[typ][src] = append(s.outByType[typ][src], dst)
	s.inByType[typ][dst] = append(s.inByType[typ][dst], src)
}

// removeEdge is the inverse of insertEdge. Caller must hold the write lock.
func (s *Store) removeEdge(src, dst string, typ models.DependencyType) {
	key := edgeKey{src: src, dst: dst, typ: typ}
	delete(s.edges, key)
	s.outByType[typ][src] = removeString(s.outByType[typ][src], dst)
	s.inByType[typ][dst] = removeString(s.inByType[typ][dst], src)
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// AddDependency adds a directed edge src -> dst of the given type
// (spec.md §4.1). For "blocks" edges it runs a cycle check and updates
// dst's blocked_by_count / status.
func (s *Store) AddDependency(src, dst string, typ models.DependencyType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcTask, ok := s.tasks[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceMissing, src)
	}
	dstTask, ok := s.tasks[dst]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestMissing, dst)
	}
	if src == dst {
		return fmt.Errorf("%w: %s", ErrSelfDependency, src)
	}
	if _, exists := s.edges[edgeKey{src: src, dst: dst, typ: typ}]; exists {
		return fmt.Errorf("%w: %s->%s (%s)", ErrDuplicateEdge, src, dst, typ)
	}

	if typ == models.DependencyBlocks {
		// A cycle would exist if, following existing "blocks" edges from
		// dst, we can already reach src (spec.md §4.1).
		if s.hasCycleFrom(dst, src) {
			return fmt.Errorf("%w: %s->%s", ErrCircularDependency, src, dst)
		}
	}

	s.insertEdge(src, dst, typ, 1.0)

	if typ == models.DependencyBlocks && isBlockingSource(srcTask.Status) {
		dstTask.BlockedByCount++
		if dstTask.Status == models.TaskStatusPending {
			dstTask.Status = models.TaskStatusBlocked
			dstTask.UpdatedAt = s.now()
		}
	}

	s.markReadyDirty()
	return nil
}

// RemoveDependency deletes an edge and, for "blocks" edges, reverses the
// blocked_by_count bookkeeping, transitioning dst back to pending if the
// count reaches zero.
func (s *Store) RemoveDependency(src, dst string, typ models.DependencyType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey{src: src, dst: dst, typ: typ}
	edge, exists := s.edges[key]
	if !exists {
		return fmt.Errorf("%w: %s->%s (%s)", ErrDependencyNotFound, src, dst, typ)
	}
	_ = edge

	srcTask := s.tasks[src]
	dstTask, ok := s.tasks[dst]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDestMissing, dst)
	}

	s.removeEdge(src, dst, typ)

	if typ == models.DependencyBlocks && srcTask != nil && isBlockingSource(srcTask.Status) {
		if dstTask.BlockedByCount > 0 {
			dstTask.BlockedByCount--
		}
		if dstTask.BlockedByCount == 0 && dstTask.Status == models.TaskStatusBlocked {
			dstTask.Status = models.TaskStatusPending
			dstTask.UpdatedAt = s.now()
		}
	}

	s.markReadyDirty()
	return nil
}

// CompleteResult reports the outcome of CompleteTask.
type CompleteResult struct {
	ID        string
	Unblocked []string
}

// CompleteTask marks a task completed, cascades unblocking to its
// dependents, and removes the now-resolved "blocks" edges (spec.md §4.1).
func (s *Store) CompleteTask(id string) (CompleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return CompleteResult{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	now := s.now()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	task.UpdatedAt = now

	var unblocked []string
	dependents := append([]string(nil), s.outByType[models.DependencyBlocks][id]...)
	for _, depID := range dependents {
		depTask, ok := s.tasks[depID]
		if !ok {
			continue
		}
		if depTask.BlockedByCount > 0 {
			depTask.BlockedByCount--
		}
		if depTask.BlockedByCount == 0 && depTask.Status == models.TaskStatusBlocked {
			depTask.Status = models.TaskStatusPending
			depTask.UpdatedAt = now
			unblocked = append(unblocked, depID)
		}
		s.removeEdge(id, depID, models.DependencyBlocks)
	}

	s.markReadyDirty()
	s.debugLog("[store.CompleteTask] completed %s, unblocked %v", id, unblocked)
	return CompleteResult{ID: id, Unblocked: unblocked}, nil
}

// UpdateStatus sets a task's status directly. Used by the orchestrator
// for transitions not covered by CompleteTask (e.g. in_progress, blocked
// via Questioner, cancelled).
func (s *Store) UpdateStatus(id string, status models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	task.Status = status
	task.UpdatedAt = s.now()
	if status == models.TaskStatusCompleted && task.CompletedAt == nil {
		now := s.now()
		task.CompletedAt = &now
	}
	s.markReadyDirty()
	return nil
}

// UpdatePriority changes a task's priority.
func (s *Store) UpdatePriority(id string, priority models.Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	task.Priority = priority
	task.UpdatedAt = s.now()
	s.markReadyDirty()
	return nil
}

// UpdateTitle changes a task's title.
func (s *Store) UpdateTitle(id, title string) error {
	if title == "" {
		return ErrInvalidTitle
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	task.Title = title
	task.UpdatedAt = s.now()
	return nil
}

// UpdateTaskType changes a task's type. Transitions to or from "wisp" are
// rejected (spec.md invariant 7: wisps are immutable with respect to
// task_type).
func (s *Store) UpdateTaskType(id string, taskType models.TaskType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.TaskType == models.TaskTypeWisp || taskType == models.TaskTypeWisp {
		return ErrCannotChangeWispType
	}
	task.TaskType = taskType
	task.UpdatedAt = s.now()
	s.markReadyDirty()
	return nil
}

// AddComment appends a comment to a task's audit trail. Comments are
// never mutated or removed once appended.
func (s *Store) AddComment(id, agent, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	task.Comments = append(task.Comments, models.Comment{
		Agent:     agent,
		Content:   content,
		Timestamp: s.now(),
	})
	task.UpdatedAt = s.now()
	return nil
}
