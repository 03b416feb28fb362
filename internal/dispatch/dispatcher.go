package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"cryptq/internal/journal"
	"cryptq/internal/logging"
	"cryptq/internal/queue"
	"cryptq/internal/task"
)

// Dispatcher pairs queue submission with worker process creation. In the
// default mode every dispatched task gets its own short-lived process that
// performs exactly one take-and-execute cycle; pool mode keeps N persistent
// workers looping on the queue instead.
type Dispatcher struct {
	runID      string
	qm         *queue.Manager
	store      *journal.Store
	logger     *slog.Logger
	workerArgv []string

	mu      sync.Mutex
	handles []*Handle
}

// Option customizes dispatcher construction.
type Option func(*Dispatcher)

// WithWorkerCommand overrides the argv used to spawn workers. Tests point
// this at a stub binary; the default re-executes the current binary with the
// worker subcommand.
func WithWorkerCommand(argv ...string) Option {
	return func(d *Dispatcher) {
		d.workerArgv = append([]string{}, argv...)
	}
}

// New builds a dispatcher for one run. The runID doubles as the shared
// segment name workers attach to.
func New(runID string, qm *queue.Manager, store *journal.Store, logger *slog.Logger, opts ...Option) (*Dispatcher, error) {
	if qm == nil || store == nil {
		return nil, errors.New("dispatcher requires a queue manager and a journal store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Dispatcher{
		runID:  runID,
		qm:     qm,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "dispatch"), logging.String(logging.FieldRunID, runID)),
	}
	for _, opt := range opts {
		opt(d)
	}
	if len(d.workerArgv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker binary: %w", err)
		}
		d.workerArgv = []string{exe, "worker"}
	}
	return d, nil
}

// Dispatch journals the task, submits it to the shared queue, and spawns one
// worker process for it. The caller gets the handle back immediately; it
// does not block on worker completion.
func (d *Dispatcher) Dispatch(ctx context.Context, rec task.Record) (*Handle, error) {
	journaled, err := d.store.AddTask(ctx, d.runID, rec)
	if err != nil {
		return nil, err
	}

	if err := d.qm.Submit(ctx, rec); err != nil {
		if markErr := d.store.MarkFailed(ctx, journaled.ID, err.Error()); markErr != nil {
			d.logger.Warn("journal mark failed", logging.Error(markErr))
		}
		return nil, fmt.Errorf("submit task: %w", err)
	}

	handle, err := d.spawn(ctx, journaled.ID, false)
	if err != nil {
		if markErr := d.store.MarkFailed(ctx, journaled.ID, err.Error()); markErr != nil {
			d.logger.Warn("journal mark failed", logging.Error(markErr))
		}
		return nil, err
	}
	return handle, nil
}

// StartPool spawns n persistent workers that loop on the queue until each
// consumes a stop frame. Used when the configuration sets worker_pool > 0.
func (d *Dispatcher) StartPool(ctx context.Context, n int) ([]*Handle, error) {
	handles := make([]*Handle, 0, n)
	for i := 0; i < n; i++ {
		handle, err := d.spawn(ctx, 0, true)
		if err != nil {
			return handles, fmt.Errorf("start pool worker %d: %w", i+1, err)
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

// Submit journals a task and places it on the queue without spawning a
// process. Pool mode only; per-task attribution of results is traded away
// for worker reuse.
func (d *Dispatcher) Submit(ctx context.Context, rec task.Record) (int64, error) {
	journaled, err := d.store.AddTask(ctx, d.runID, rec)
	if err != nil {
		return 0, err
	}
	if err := d.qm.Submit(ctx, rec); err != nil {
		if markErr := d.store.MarkFailed(ctx, journaled.ID, err.Error()); markErr != nil {
			d.logger.Warn("journal mark failed", logging.Error(markErr))
		}
		return 0, fmt.Errorf("submit task: %w", err)
	}
	if err := d.store.MarkDispatched(ctx, journaled.ID, 0); err != nil {
		d.logger.Warn("journal mark dispatched", logging.Error(err))
	}
	return journaled.ID, nil
}

// Drain submits one stop frame per pool worker so each loop exits after the
// last real task.
func (d *Dispatcher) Drain(ctx context.Context, workers int) error {
	for i := 0; i < workers; i++ {
		if err := d.qm.SubmitStop(ctx); err != nil {
			return fmt.Errorf("submit stop frame: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) spawn(ctx context.Context, taskID int64, loop bool) (*Handle, error) {
	args := append(append([]string{}, d.workerArgv[1:]...), "--segment", d.runID)
	if loop {
		args = append(args, "--loop")
	}

	cmd := exec.Command(d.workerArgv[0], args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn worker: %w", err)
	}

	handle := newHandle(taskID, cmd)
	d.logger.Info("worker spawned",
		logging.Int(logging.FieldWorkerPID, handle.PID()),
		logging.Int64(logging.FieldTaskID, taskID),
		logging.Bool("loop", loop))

	if taskID != 0 {
		if err := d.store.MarkDispatched(ctx, taskID, handle.PID()); err != nil {
			d.logger.Warn("journal mark dispatched", logging.Error(err))
		}
	}

	d.mu.Lock()
	d.handles = append(d.handles, handle)
	d.mu.Unlock()

	go d.reap(handle)
	return handle, nil
}

func (d *Dispatcher) reap(handle *Handle) {
	err := handle.cmd.Wait()
	code := 0
	message := ""
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			message = exitMessage(code)
		} else {
			code = -1
			message = err.Error()
		}
	}
	handle.finish(code)

	if handle.TaskID != 0 {
		ctx := context.Background()
		if markErr := d.store.MarkResult(ctx, handle.TaskID, code, message); markErr != nil {
			d.logger.Warn("journal mark result", logging.Error(markErr))
		}
	}
	if code != 0 {
		d.logger.Warn("worker exited with failure",
			logging.Int(logging.FieldWorkerPID, handle.PID()),
			logging.Int64(logging.FieldTaskID, handle.TaskID),
			logging.Int("exit_code", code))
	}
}

// Wait blocks until every spawned worker has exited and returns their
// results in spawn order.
func (d *Dispatcher) Wait() []Result {
	d.mu.Lock()
	handles := append([]*Handle{}, d.handles...)
	d.mu.Unlock()

	results := make([]Result, 0, len(handles))
	for _, handle := range handles {
		<-handle.Done()
		results = append(results, Result{
			TaskID:   handle.TaskID,
			PID:      handle.PID(),
			ExitCode: handle.ExitCode(),
		})
	}
	return results
}

func exitMessage(code int) string {
	switch code {
	case 0:
		return ""
	case 1:
		return "transform failure"
	case 2:
		return "malformed task record"
	case 3:
		return "attach failure"
	case 4:
		return "invalid configuration"
	default:
		return fmt.Sprintf("worker exited with code %d", code)
	}
}
