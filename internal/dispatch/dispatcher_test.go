//go:build linux

package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"cryptq/internal/dispatch"
	"cryptq/internal/journal"
	"cryptq/internal/queue"
	"cryptq/internal/shm"
	"cryptq/internal/task"
	"cryptq/internal/testsupport"
)

type fixture struct {
	runID string
	qm    *queue.Manager
	store *journal.Store
	seg   *shm.Segment
}

func newFixture(t *testing.T, opts queue.Options) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	runID := uuid.NewString()
	seg, err := shm.Create(runID, cfg.Queue.Capacity, cfg.Queue.SlotSize)
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	t.Cleanup(func() {
		_ = seg.Close()
		_ = shm.Remove(runID)
	})

	if _, err := store.BeginRun(context.Background(), runID, "ENCRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	return &fixture{
		runID: runID,
		qm:    queue.New(seg, opts),
		store: store,
		seg:   seg,
	}
}

func newDispatcher(t *testing.T, f *fixture, argv ...string) *dispatch.Dispatcher {
	t.Helper()

	d, err := dispatch.New(f.runID, f.qm, f.store, nil, dispatch.WithWorkerCommand(argv...))
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}
	return d
}

func TestDispatchSpawnsWorkerAndRecordsSuccess(t *testing.T) {
	f := newFixture(t, queue.Options{})
	d := newDispatcher(t, f, "/bin/sh", "-c", "exit 0")

	rec := task.Record{Path: "/data/a.bin", Action: task.ActionEncrypt}
	handle, err := d.Dispatch(context.Background(), rec)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if handle.PID() <= 0 {
		t.Fatalf("worker PID = %d", handle.PID())
	}

	results := d.Wait()
	if len(results) != 1 {
		t.Fatalf("Wait returned %d results, want 1", len(results))
	}
	if results[0].ExitCode != 0 {
		t.Fatalf("exit code = %d, want 0", results[0].ExitCode)
	}

	got, err := f.store.GetTask(context.Background(), handle.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != journal.StatusCompleted {
		t.Fatalf("task status = %q, want completed", got.Status)
	}
	if got.WorkerPID != handle.PID() {
		t.Fatalf("journaled PID %d, spawned PID %d", got.WorkerPID, handle.PID())
	}

	// The stub never consumed the queue; the submitted frame is still there.
	if f.qm.Size() != 1 {
		t.Fatalf("queue size = %d, want 1", f.qm.Size())
	}
}

func TestDispatchRecordsWorkerFailure(t *testing.T) {
	f := newFixture(t, queue.Options{})
	d := newDispatcher(t, f, "/bin/sh", "-c", "exit 1")

	handle, err := d.Dispatch(context.Background(), task.Record{Path: "/data/a.bin", Action: task.ActionEncrypt})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	results := d.Wait()
	if results[0].ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", results[0].ExitCode)
	}

	got, err := f.store.GetTask(context.Background(), handle.TaskID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != journal.StatusFailed {
		t.Fatalf("task status = %q, want failed", got.Status)
	}
	if got.ErrorMessage != "transform failure" {
		t.Fatalf("error message = %q", got.ErrorMessage)
	}
}

func TestDispatchMarksFailedWhenSubmitTimesOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	runID := uuid.NewString()
	seg, err := shm.Create(runID, 1, 128)
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	t.Cleanup(func() {
		_ = seg.Close()
		_ = shm.Remove(runID)
	})
	if _, err := store.BeginRun(context.Background(), runID, "ENCRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	qm := queue.New(seg, queue.Options{SubmitTimeout: 50 * time.Millisecond})
	d, err := dispatch.New(runID, qm, store, nil, dispatch.WithWorkerCommand("/bin/sh", "-c", "exit 0"))
	if err != nil {
		t.Fatalf("dispatch.New: %v", err)
	}

	ctx := context.Background()
	rec := task.Record{Path: "/data/a.bin", Action: task.ActionEncrypt}
	if _, err := d.Dispatch(ctx, rec); err != nil {
		t.Fatalf("first Dispatch: %v", err)
	}
	if _, err := d.Dispatch(ctx, rec); err == nil {
		t.Fatal("expected Dispatch into full ring to fail")
	}

	tasks, err := store.ListTasks(ctx, runID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("journal holds %d tasks, want 2", len(tasks))
	}
	if tasks[1].Status != journal.StatusFailed {
		t.Fatalf("second task status = %q, want failed", tasks[1].Status)
	}
	d.Wait()
}

func TestPoolSubmitAndDrain(t *testing.T) {
	f := newFixture(t, queue.Options{})
	d := newDispatcher(t, f, "/bin/sh", "-c", "exit 0")
	ctx := context.Background()

	handles, err := d.StartPool(ctx, 2)
	if err != nil {
		t.Fatalf("StartPool: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("StartPool returned %d handles, want 2", len(handles))
	}

	for i := 0; i < 3; i++ {
		if _, err := d.Submit(ctx, task.Record{Path: "/data/file", Action: task.ActionEncrypt}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := d.Drain(ctx, len(handles)); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	// 3 tasks plus 2 stop frames; the stubs consume nothing.
	if f.qm.Size() != 5 {
		t.Fatalf("queue size = %d, want 5", f.qm.Size())
	}

	d.Wait()

	resolved, err := f.store.ResolveDispatched(ctx, f.runID, true, "")
	if err != nil {
		t.Fatalf("ResolveDispatched: %v", err)
	}
	if resolved != 3 {
		t.Fatalf("resolved %d tasks, want 3", resolved)
	}
}

func TestNewRequiresQueueAndStore(t *testing.T) {
	if _, err := dispatch.New("run", nil, nil, nil); err == nil {
		t.Fatal("expected constructor to reject nil collaborators")
	}
}
