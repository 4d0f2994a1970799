// Package tui provides loom's streaming terminal view: a single Bubble
// Tea program, StreamConsumer, that renders one agent invocation's
// streampipe.Pipeline as it runs — accumulated content lines plus a
// trailing log of tool call start/complete events.
//
// Narrowed from the teacher's multi-panel TUI (task list, agent grid,
// dependency graph, escalation review) down to the one pane spec.md's
// `stream_chunks`/`tool_events` contract calls for; cmd/loomd's own run
// command uses a plainer line-oriented renderer for headless/piped
// output, while this package is for an interactive terminal that wants
// the Bubble Tea rendering instead.
//
// Usage:
//
//	pipe := streampipe.New(streampipe.DefaultCapacity)
//	go func() { _ = tui.RunStreamConsumer("tinkerer", pipe) }()
package tui
