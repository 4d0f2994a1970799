package tui

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/loomharness/loom/internal/streampipe"
)

// DefaultBufferSize is the default size for the ring buffer.
const DefaultBufferSize = 10000

// DefaultRateLimit is the default rate limit for updates.
const DefaultRateLimit = 16 * time.Millisecond // ~60 FPS

// RingBuffer provides efficient fixed-size line storage with O(1) operations.
// When the buffer is full, the oldest lines are automatically discarded.
type RingBuffer struct {
	data  []string
	size  int
	head  int // Write position (next write goes here)
	tail  int // Read position (oldest element)
	count int // Number of elements currently stored
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RingBuffer{
		data: make([]string, capacity),
		size: capacity,
	}
}

// Append adds a line to the buffer. If the buffer is full, the oldest line is overwritten.
func (rb *RingBuffer) Append(line string) {
	rb.data[rb.head] = line
	rb.head = (rb.head + 1) % rb.size

	if rb.count < rb.size {
		rb.count++
	} else {
		// Buffer is full, move tail forward (discard oldest)
		rb.tail = (rb.tail + 1) % rb.size
	}
}

// Lines returns all lines in the buffer in order from oldest to newest.
func (rb *RingBuffer) Lines() []string {
	if rb.count == 0 {
		return nil
	}

	result := make([]string, rb.count)
	for i := 0; i < rb.count; i++ {
		idx := (rb.tail + i) % rb.size
		result[i] = rb.data[idx]
	}
	return result
}

// Count returns the number of lines currently in the buffer.
func (rb *RingBuffer) Count() int {
	return rb.count
}

// Clear removes all lines from the buffer.
func (rb *RingBuffer) Clear() {
	rb.head = 0
	rb.tail = 0
	rb.count = 0
}

// Capacity returns the maximum number of lines the buffer can hold.
func (rb *RingBuffer) Capacity() int {
	return rb.size
}

// LiveStreamUpdateMsg is sent when the LiveStreamer has new content to display.
type LiveStreamUpdateMsg struct{}

// LiveStreamer accumulates a streampipe.Pipeline's content chunks into a
// RingBuffer of complete lines, with rate-limited UI update commands.
// Adapted from the teacher's agent.APIStreamEvent-driven LiveStreamer to
// consume streampipe.Chunk instead, since loom's executor emits chunks
// directly rather than raw Anthropic SSE events.
type LiveStreamer struct {
	buffer     *RingBuffer
	autoScroll bool
	rateLimit  time.Duration
	lastUpdate time.Time
	mu         sync.Mutex

	// textBuffer accumulates text until a newline is received.
	textBuffer strings.Builder
}

// NewLiveStreamer creates a new LiveStreamer.
func NewLiveStreamer(bufferSize int) *LiveStreamer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &LiveStreamer{
		buffer:     NewRingBuffer(bufferSize),
		autoScroll: true,
		rateLimit:  DefaultRateLimit,
	}
}

// Stream processes one chunk and returns a tea.Cmd if a rate-limit window
// has elapsed since the last UI update. Thinking deltas are appended with
// no special treatment; the caller decides whether to render them
// differently by inspecting chunk.Thinking directly if needed.
func (ls *LiveStreamer) Stream(chunk streampipe.Chunk) tea.Cmd {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	text := chunk.Content
	if text == "" {
		text = chunk.Thinking
	}
	if text == "" {
		return nil
	}

	ls.textBuffer.WriteString(text)
	buffered := ls.textBuffer.String()

	for {
		idx := strings.Index(buffered, "\n")
		if idx == -1 {
			break
		}
		line := buffered[:idx]
		buffered = buffered[idx+1:]
		ls.buffer.Append(line)
	}

	ls.textBuffer.Reset()
	ls.textBuffer.WriteString(buffered)

	now := time.Now()
	if now.Sub(ls.lastUpdate) < ls.rateLimit {
		return nil
	}
	ls.lastUpdate = now

	return func() tea.Msg {
		return LiveStreamUpdateMsg{}
	}
}

// Flush flushes any remaining partial line in the text buffer to the ring buffer.
func (ls *LiveStreamer) Flush() {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.textBuffer.Len() > 0 {
		ls.buffer.Append(ls.textBuffer.String())
		ls.textBuffer.Reset()
	}
}

// Lines returns all lines currently in the buffer.
func (ls *LiveStreamer) Lines() []string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.buffer.Lines()
}

// SetAutoScroll enables or disables auto-scrolling.
func (ls *LiveStreamer) SetAutoScroll(enabled bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.autoScroll = enabled
}

// IsAutoScroll returns whether auto-scroll is currently enabled.
func (ls *LiveStreamer) IsAutoScroll() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.autoScroll
}

// ToggleAutoScroll toggles the auto-scroll setting and returns the new state.
func (ls *LiveStreamer) ToggleAutoScroll() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.autoScroll = !ls.autoScroll
	return ls.autoScroll
}

// Clear clears the buffer and text buffer.
func (ls *LiveStreamer) Clear() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.buffer.Clear()
	ls.textBuffer.Reset()
}

// LineCount returns the number of lines in the buffer.
func (ls *LiveStreamer) LineCount() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.buffer.Count()
}
