package builder

import (
	"bytes"
	"strings"
	"sync"
)

// OutputCapture keeps the tail of tool output, last maxLines lines. Safe for concurrent writes,
// stdout and stderr of the same process write into it in parallel.
type OutputCapture struct {
	mu       sync.Mutex
	maxLines int
	lines    []string
	partial  []byte
}

// NewOutputCapture makes capture limited to the last maxLines lines, 0 disables capturing
func NewOutputCapture(maxLines int) *OutputCapture {
	return &OutputCapture{maxLines: maxLines}
}

// Write collects complete lines, an unterminated tail waits for the next write or String call
func (o *OutputCapture) Write(p []byte) (int, error) {
	if o.maxLines <= 0 {
		return len(p), nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	data := append(append([]byte(nil), o.partial...), p...)
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		o.add(string(bytes.TrimRight(data[:idx], "\r")))
		data = data[idx+1:]
	}
	o.partial = append([]byte(nil), data...)
	return len(p), nil
}

// String returns captured lines joined with new line
func (o *OutputCapture) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	lines := o.lines
	if len(o.partial) > 0 {
		lines = append(append([]string(nil), lines...), string(o.partial))
		if len(lines) > o.maxLines {
			lines = lines[len(lines)-o.maxLines:]
		}
	}
	return strings.Join(lines, "\n")
}

func (o *OutputCapture) add(line string) {
	if line == "" {
		return
	}
	if len(o.lines) >= o.maxLines {
		o.lines = o.lines[1:]
	}
	o.lines = append(o.lines, line)
}
