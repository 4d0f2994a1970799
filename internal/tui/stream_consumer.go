package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loomharness/loom/internal/streampipe"
)

// toolEventMsg and doneMsg carry the pipeline's parallel tool-event queue
// and its terminal signal into the Bubble Tea update loop alongside
// LiveStreamUpdateMsg.
type toolEventMsg streampipe.ToolEvent
type doneMsg struct{}

// StreamConsumer is a single-pane Bubble Tea program that renders one
// agent invocation's streampipe.Pipeline: accumulated content lines via
// LiveStreamer, and a trailing log of tool call start/complete events.
// Narrowed from the teacher's multi-panel implement/interactive TUIs
// (task list, agent grid, graph view, log filter) down to the one pane
// spec.md's streaming contract actually calls for; the teacher's
// panel-switching, retry, and escalation interactions have no analogue
// here since loom's pipeline is a single producer, not a fleet of
// worktree agents.
type StreamConsumer struct {
	label     string
	streamer  *LiveStreamer
	toolLines []string
	width     int
	height    int
	done      bool

	headerStyle lipgloss.Style
	toolStyle   lipgloss.Style
	hintStyle   lipgloss.Style
}

// NewStreamConsumer creates a StreamConsumer for one invocation labeled
// label (e.g. the agent role), backed by a fresh LiveStreamer.
func NewStreamConsumer(label string) *StreamConsumer {
	return &StreamConsumer{
		label:    label,
		streamer: NewLiveStreamer(DefaultBufferSize),
		width:    80,
		height:   24,

		headerStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		toolStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		hintStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Init satisfies tea.Model.
func (c *StreamConsumer) Init() tea.Cmd {
	return nil
}

// Update satisfies tea.Model.
func (c *StreamConsumer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = m.Width
		c.height = m.Height
		return c, nil
	case tea.KeyMsg:
		if m.String() == "q" || m.String() == "ctrl+c" {
			return c, tea.Quit
		}
		return c, nil
	case streampipe.Chunk:
		if m.Done {
			c.streamer.Flush()
			return c, nil
		}
		return c, c.streamer.Stream(m)
	case toolEventMsg:
		c.toolLines = append(c.toolLines, formatToolEvent(streampipe.ToolEvent(m)))
		return c, nil
	case doneMsg:
		c.streamer.Flush()
		c.done = true
		return c, nil
	case LiveStreamUpdateMsg:
		return c, nil
	default:
		return c, nil
	}
}

// View satisfies tea.Model.
func (c *StreamConsumer) View() string {
	var b strings.Builder
	fmt.Fprintln(&b, c.headerStyle.Render(c.label))

	lines := c.streamer.Lines()
	start := 0
	contentHeight := c.height - 4
	if contentHeight < 1 {
		contentHeight = 1
	}
	if len(lines) > contentHeight {
		start = len(lines) - contentHeight
	}
	for _, line := range lines[start:] {
		fmt.Fprintln(&b, line)
	}

	for _, line := range c.toolLines {
		fmt.Fprintln(&b, c.toolStyle.Render(line))
	}

	if c.done {
		fmt.Fprintln(&b, c.hintStyle.Render("done — press q to exit"))
	} else {
		fmt.Fprintln(&b, c.hintStyle.Render("q to quit"))
	}
	return b.String()
}

func formatToolEvent(e streampipe.ToolEvent) string {
	switch e.Kind {
	case streampipe.ToolEventStart:
		return fmt.Sprintf("→ %s", e.Name)
	case streampipe.ToolEventComplete:
		mark := "ok"
		if !e.Success {
			mark = "fail"
		}
		return fmt.Sprintf("✓ %s %s (%dms)", e.Name, mark, e.DurationMs)
	default:
		return ""
	}
}

// RunStreamConsumer builds and runs a Bubble Tea program over pipe,
// forwarding its chunks and tool events into the program until the
// pipeline closes, then sending doneMsg. Blocks until the program exits
// (user pressed q, or the pipeline finished and the program was told to
// quit by its caller).
func RunStreamConsumer(label string, pipe *streampipe.Pipeline) error {
	model := NewStreamConsumer(label)
	program := tea.NewProgram(model)

	go forwardPipeline(program, pipe)

	_, err := program.Run()
	return err
}

func forwardPipeline(program *tea.Program, pipe *streampipe.Pipeline) {
	chunks := pipe.Chunks()
	toolEvents := pipe.ToolEvents()
	for chunks != nil || toolEvents != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			program.Send(c)
		case e, ok := <-toolEvents:
			if !ok {
				toolEvents = nil
				continue
			}
			program.Send(toolEventMsg(e))
		}
	}
	program.Send(doneMsg{})
}
