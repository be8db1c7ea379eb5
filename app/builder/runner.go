package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	log "github.com/go-pkgz/lgr"
)

// ToolError returned when packaging tool exits with non-zero code or can't be started
type ToolError struct {
	Command  string
	ExitCode int
	Output   string // tail of combined stdout and stderr
	Err      error
}

func (e *ToolError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command failed: %s\n%v", e.Command, e.Err)
	}
	return fmt.Sprintf("command failed: %s\n%v\nOutput: %s", e.Command, e.Err, e.Output)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExecRunner runs packaging tool as a child process
type ExecRunner struct {
	Tool        string   // tool binary, i.e. bubblewrap
	Env         []string // extra environment, appended to the inherited one
	MaxLogLines int      // lines of output kept for errors and history
	Repeater    Repeater // nil means single attempt
	LogOutput   bool     // mirror tool output to log
}

// Run executes tool with args in dir and returns captured output
func (r *ExecRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	command := strings.TrimSpace(r.Tool + " " + strings.Join(args, " "))
	var output string

	attempt := func() error {
		capture := NewOutputCapture(r.MaxLogLines)
		writers := []io.Writer{capture}
		if r.LogOutput {
			writers = append(writers, newLogWriter(r.Tool))
		}
		out := io.MultiWriter(writers...)

		cmd := exec.CommandContext(ctx, r.Tool, args...) //nolint:gosec // tool is set by operator
		cmd.Dir = dir
		cmd.Stdout = out
		cmd.Stderr = out
		if len(r.Env) > 0 {
			cmd.Env = append(cmd.Environ(), r.Env...)
		}

		log.Printf("[INFO] run %q in %s", command, dir)
		err := cmd.Run()
		output = capture.String()
		if err == nil {
			return nil
		}

		toolErr := &ToolError{Command: command, ExitCode: -1, Output: output, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			toolErr.ExitCode = exitErr.ExitCode()
		}
		return toolErr
	}

	if r.Repeater == nil {
		return output, attempt()
	}
	err := r.Repeater.Do(ctx, attempt)
	return output, err
}

// logWriter sends each complete line of tool output to the log with {tool} prefix
type logWriter struct {
	mu     sync.Mutex
	prefix string
	buf    []byte
}

func newLogWriter(tool string) *logWriter {
	return &logWriter{prefix: "{" + tool + "} "}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		if line := strings.TrimRight(string(w.buf[:idx]), "\r"); line != "" {
			log.Printf("[DEBUG] %s%s", w.prefix, line)
		}
		w.buf = w.buf[idx+1:]
	}
	return len(p), nil
}
