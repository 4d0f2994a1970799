// Package orchestrator drives the Planner/Questioner/Tinkerer/Judge loop
// (spec.md §4.4): a FIFO queue of agent command events, routed by a fixed
// table keyed on which agent just finished and the resulting task-graph
// state. Grounded on the teacher's internal/orchestrator package (the
// OrchestratorEvent/events-channel plumbing), with the
// decompose/graph/scheduler/merge pipeline it drove replaced entirely by
// this routing table.
package orchestrator

// CommandType names which sub-agent a Command starts.
type CommandType string

const (
	StartPlanner    CommandType = "planner"
	StartQuestioner CommandType = "questioner"
	StartTinkerer   CommandType = "tinkerer"
	StartJudge      CommandType = "judge"
)

// Command is one FIFO queue entry: which agent to run next, the prompt to
// hand it, and a short human-readable label for progress display.
type Command struct {
	Type    CommandType
	Prompt  string
	Display string
}

func (c CommandType) agentName() string {
	return string(c)
}
