package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomharness/loom/internal/agent"
	"github.com/loomharness/loom/internal/registry"
	"github.com/loomharness/loom/internal/scheduler"
	"github.com/loomharness/loom/internal/store"
	"github.com/loomharness/loom/internal/streampipe"
)

// ExecutorFactory builds the ChatClient-backed Executor for one role.
// Supplied by the caller (cmd/loomd) so the orchestrator stays agnostic
// of which model backend or tool registry each role uses.
type ExecutorFactory func(role CommandType, def registry.Definition) *agent.Executor

// Orchestrator owns the FIFO command queue and the routing table that
// decides what runs next. Grounded on the teacher's Orchestrator (the
// events channel, the one-thread-at-a-time tick discipline) with the
// decompose/graph/scheduler/merge pipeline replaced by route() (spec.md
// §4.4); agent execution itself is delegated to per-role agent.Executor
// instances built by newExec.
type Orchestrator struct {
	store    *store.Store
	sched    *scheduler.Scheduler
	registry *registry.Registry
	newExec  ExecutorFactory

	emitter *EventEmitter

	mu          sync.Mutex
	queue       []Command
	executors   map[CommandType]*agent.Executor
	currentPipe *streampipe.Pipeline
	running     bool
	stopped     bool
}

// New creates an Orchestrator over s, sched, and reg. newExec builds the
// agent.Executor for a role the first time it is needed; the orchestrator
// caches and reuses it across invocations so conversation-mode agents can
// Resume their history.
func New(s *store.Store, sched *scheduler.Scheduler, reg *registry.Registry, newExec ExecutorFactory) *Orchestrator {
	return &Orchestrator{
		store:     s,
		sched:     sched,
		registry:  reg,
		newExec:   newExec,
		emitter:   NewEventEmitter(64),
		executors: make(map[CommandType]*agent.Executor),
	}
}

// Events returns the orchestrator's progress event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Enqueue appends a command to the FIFO queue. Used to kick off the loop
// with its first command.
func (o *Orchestrator) Enqueue(cmd Command) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, cmd)
}

// Stop requests the loop to stop accepting further ticks. An in-flight
// agent invocation is not interrupted; cancel its pipeline separately if
// that is required.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
}

// Tick implements spec.md §4.4's main-loop step: if an agent is already
// running, the queue is empty, or the orchestrator was stopped, it
// returns immediately; otherwise it pops the oldest command, runs it to
// completion, and routes the next command onto the queue.
func (o *Orchestrator) Tick(ctx context.Context) error {
	o.mu.Lock()
	if o.stopped || o.running || len(o.queue) == 0 {
		o.mu.Unlock()
		return nil
	}
	cmd := o.queue[0]
	o.queue = o.queue[1:]
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.emitter.Emit(Event{Type: EventAgentStarted, Agent: cmd.Type, Message: cmd.Display})

	result, taskID, err := o.dispatch(ctx, cmd)
	if err != nil {
		return fmt.Errorf("dispatch %s: %w", cmd.Type, err)
	}
	o.emitter.Emit(Event{Type: EventAgentFinished, Agent: cmd.Type, Message: string(result.Status)})

	decision := route(o.store, cmd.Type, taskID)
	if decision.Terminate {
		o.emitter.Emit(Event{Type: EventTerminated})
		return nil
	}
	if decision.Command.Prompt != "" && decision.Command.Type == StartPlanner {
		o.emitter.Emit(Event{Type: EventKickback, Agent: decision.Command.Type, Message: decision.Command.Prompt})
	}

	o.mu.Lock()
	o.queue = append(o.queue, decision.Command)
	o.mu.Unlock()
	return nil
}

// Run drives Tick in a loop until the queue drains with no agent running,
// or ctx is cancelled. Intended for a headless/batch run; an interactive
// harness should call Tick itself from its own render loop (spec.md
// §4.4's "lets the UI loop interleave dispatch with rendering").
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		o.mu.Lock()
		empty := len(o.queue) == 0 && !o.running
		stopped := o.stopped
		o.mu.Unlock()
		if stopped || empty {
			return nil
		}

		if err := o.Tick(ctx); err != nil {
			return err
		}
	}
}

// dispatch resolves cmd.Type's agent.Executor and runs it, returning the
// task that was elected as current at the time of dispatch (empty when no
// current task is set), whichever agent ran.
func (o *Orchestrator) dispatch(ctx context.Context, cmd Command) (agent.Result, string, error) {
	def, ok := o.registry.Get(cmd.Type.agentName())
	if !ok {
		return agent.Result{}, "", fmt.Errorf("no agent definition registered for %q", cmd.Type)
	}

	exec := o.executorFor(cmd.Type, def)
	caps := agent.Capabilities{
		AllowedTools:     def.Tools,
		MaxIterations:    def.MaxIterations,
		ConversationMode: def.ConversationMode,
	}

	pipe := streampipe.New(streampipe.DefaultCapacity)
	o.mu.Lock()
	o.currentPipe = pipe
	o.mu.Unlock()

	taskID := ""
	if task := o.sched.GetCurrentTask(); task != nil {
		taskID = task.ID
	}

	var result agent.Result
	var err error
	if def.ConversationMode && exec.GetMessageHistoryLen() > 0 {
		result, err = exec.Resume(ctx, caps, cmd.Prompt, pipe)
	} else {
		result, err = exec.Run(ctx, caps, def.SystemPrompt, cmd.Prompt, pipe)
	}
	return result, taskID, err
}

// CurrentPipeline returns the streampipe.Pipeline of the agent invocation
// currently in flight, or nil if none is running. A UI consumer reads
// from it to render live progress.
func (o *Orchestrator) CurrentPipeline() *streampipe.Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.currentPipe
}

func (o *Orchestrator) executorFor(role CommandType, def registry.Definition) *agent.Executor {
	o.mu.Lock()
	defer o.mu.Unlock()
	if exec, ok := o.executors[role]; ok {
		return exec
	}
	exec := o.newExec(role, def)
	o.executors[role] = exec
	return exec
}
