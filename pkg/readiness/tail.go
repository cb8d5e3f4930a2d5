package readiness

import (
	"strings"
	"sync"
)

// DefaultTailSize is how many output lines are kept for error reports.
const DefaultTailSize = 30

// Tail keeps the last lines of the server output. It is safe for concurrent use.
type Tail struct {
	mu    sync.Mutex
	lines []string
	start int
	count int
}

// NewTail creates a tail holding up to size lines.
func NewTail(size int) *Tail {
	if size <= 0 {
		size = DefaultTailSize
	}
	return &Tail{lines: make([]string, size)}
}

// Accept adds a line, dropping the oldest one when full.
func (t *Tail) Accept(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count < len(t.lines) {
		t.lines[(t.start+t.count)%len(t.lines)] = line
		t.count++
		return
	}
	t.lines[t.start] = line
	t.start = (t.start + 1) % len(t.lines)
}

// Lines returns the retained lines, oldest first.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, t.count)
	for i := 0; i < t.count; i++ {
		out[i] = t.lines[(t.start+i)%len(t.lines)]
	}
	return out
}

// Len returns the number of retained lines.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// String returns the retained lines joined by newlines.
func (t *Tail) String() string {
	return strings.Join(t.Lines(), "\n")
}
