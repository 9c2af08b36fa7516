package taillog

import (
	"strings"
	"sync"
	"unicode"
)

// maxLineLength bounds a single recorded line so an engine error body
// cannot balloon the diagnostics tail.
const maxLineLength = 200

// Tail retains the most recent diagnostic lines, discarding the oldest
// once capacity is reached. It is safe for concurrent use.
type Tail struct {
	lock     sync.Mutex
	lines    []string
	capacity int
	next     int
	size     int
}

// NewTail creates a tail retaining at most capacity lines.
func NewTail(capacity int) *Tail {
	if capacity < 1 {
		capacity = 1
	}
	return &Tail{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

// Append records a line, evicting the oldest line when full.
func (t *Tail) Append(line string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.lines[t.next] = sanitize(line)
	t.next = (t.next + 1) % t.capacity
	if t.size < t.capacity {
		t.size++
	}
}

// Lines returns the retained lines, oldest first.
func (t *Tail) Lines() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	out := make([]string, 0, t.size)
	start := t.next - t.size
	if start < 0 {
		start += t.capacity
	}
	for i := 0; i < t.size; i++ {
		out = append(out, t.lines[(start+i)%t.capacity])
	}
	return out
}

// sanitize escapes control characters so an arbitrary error string from a
// remote engine cannot inject fake lines into the tail, and truncates
// overlong lines.
func sanitize(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\n':
			result.WriteString("\\n")
		case r == '\r':
			result.WriteString("\\r")
		case r == '\t':
			result.WriteString("\\t")
		case r == '\\':
			result.WriteString("\\\\")
		case unicode.IsControl(r) || !unicode.IsPrint(r):
			result.WriteString("?")
		default:
			result.WriteRune(r)
		}
	}

	if result.Len() > maxLineLength {
		return result.String()[:maxLineLength] + "...[truncated]"
	}
	return result.String()
}
