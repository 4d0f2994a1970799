// Package streampipe implements the bounded handoff between an agent
// worker and the UI thread (spec.md §4.6): a FIFO stream of {thinking?,
// content?, done} chunks, and a parallel queue of tool start/complete
// events, both backed by fixed-capacity buffered channels rather than an
// unbounded growth path.
package streampipe

import "sync"

// DefaultCapacity mirrors the teacher's RingBuffer default, sized for a
// terminal UI consumer that drains continuously rather than in bursts.
const DefaultCapacity = 256

// Chunk is a single unit of agent output. Exactly one of Thinking or
// Content is normally populated; Done, when true, terminates the stream
// for one agent invocation and carries no other field.
type Chunk struct {
	Thinking string
	Content  string
	Done     bool
}

// ToolEventKind distinguishes the two points in a tool call the UI
// renders as distinct visual elements.
type ToolEventKind string

const (
	ToolEventStart    ToolEventKind = "tool_start"
	ToolEventComplete ToolEventKind = "tool_complete"
)

// ToolEvent carries an owned copy of everything the UI needs to render
// one tool call; the consumer is responsible for it after receipt.
type ToolEvent struct {
	Kind       ToolEventKind
	Name       string
	Success    bool
	DurationMs int64
	Args       string
	Result     string
	Size       int
}

// Pipeline is the per-invocation channel pair an AgentExecutor writes to
// and a UI consumer reads from. It is safe for one writer and one reader
// used concurrently, matching the worker/UI thread split of spec.md §5.
type Pipeline struct {
	chunks     chan Chunk
	toolEvents chan ToolEvent

	mu        sync.Mutex
	cancelled bool
	closed    bool
}

// New creates a Pipeline with the given channel capacity. A non-positive
// capacity falls back to DefaultCapacity.
func New(capacity int) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Pipeline{
		chunks:     make(chan Chunk, capacity),
		toolEvents: make(chan ToolEvent, capacity),
	}
}

// Chunks returns the read side of the chunk stream.
func (p *Pipeline) Chunks() <-chan Chunk {
	return p.chunks
}

// ToolEvents returns the read side of the tool event stream.
func (p *Pipeline) ToolEvents() <-chan ToolEvent {
	return p.toolEvents
}

// Cancel sets the cooperative cancellation flag. The executor observes
// it between iterations and after each tool call (spec.md §5); Cancel
// itself does not close the pipeline or emit a done chunk.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
}

// Cancelled reports whether Cancel has been called.
func (p *Pipeline) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

// SendChunk delivers a chunk to the UI consumer, preserving production
// order. It is a no-op once the pipeline has been closed.
func (p *Pipeline) SendChunk(c Chunk) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.chunks <- c
}

// SendToolEvent delivers a tool event on the parallel queue. It is a
// no-op once the pipeline has been closed.
func (p *Pipeline) SendToolEvent(e ToolEvent) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}
	p.toolEvents <- e
}

// Finish sends the terminal done chunk and closes both channels. It must
// be called exactly once per invocation, even on error or cancellation,
// so the UI consumer's range loop always terminates (spec.md §4.6).
func (p *Pipeline) Finish() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.chunks <- Chunk{Done: true}
	close(p.chunks)
	close(p.toolEvents)
}
