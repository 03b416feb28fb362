package dispatch

import (
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// Handle identifies one spawned worker process. The dispatcher reaps the
// process in the background; Done closes once the exit status is known.
type Handle struct {
	ID     string
	TaskID int64

	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exitCode int
}

// Result is the terminal outcome of one worker process.
type Result struct {
	TaskID   int64
	PID      int
	ExitCode int
}

func newHandle(taskID int64, cmd *exec.Cmd) *Handle {
	return &Handle{
		ID:     uuid.NewString(),
		TaskID: taskID,
		cmd:    cmd,
		done:   make(chan struct{}),
	}
}

// PID returns the worker's operating-system process id.
func (h *Handle) PID() int {
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Done closes once the worker has exited and its exit code is recorded.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitCode returns the worker's exit status. Valid only after Done closes.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

func (h *Handle) finish(code int) {
	h.mu.Lock()
	h.exitCode = code
	h.mu.Unlock()
	close(h.done)
}
