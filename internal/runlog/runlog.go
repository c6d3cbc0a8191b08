// Package runlog keeps a bounded in-memory tail of the process log so the
// dashboard can show recent activity without touching log files.
package runlog

import (
	"strings"
	"sync"
)

// DefaultCapacity bounds the retained tail.
const DefaultCapacity = 500

// Buffer is a fixed-capacity ring of log lines. It satisfies io.Writer so
// it can be teed with the standard logger's output.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool

	// partial holds an unterminated trailing fragment between writes.
	partial strings.Builder
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{lines: make([]string, capacity)}
}

// Write splits the payload on newlines and appends complete lines to the
// ring. It never fails; the logger must not be able to error out.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range string(p) {
		if c == '\n' {
			b.append(b.partial.String())
			b.partial.Reset()
			continue
		}
		b.partial.WriteRune(c)
	}
	return len(p), nil
}

func (b *Buffer) append(line string) {
	if line == "" {
		return
	}
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

// Recent returns up to n retained lines, oldest first. n <= 0 returns the
// whole tail.
func (b *Buffer) Recent(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered []string
	if b.full {
		ordered = append(ordered, b.lines[b.next:]...)
		ordered = append(ordered, b.lines[:b.next]...)
	} else {
		ordered = append(ordered, b.lines[:b.next]...)
	}
	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out
}
