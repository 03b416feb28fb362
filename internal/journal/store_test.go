package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"cryptq/internal/journal"
	"cryptq/internal/task"
	"cryptq/internal/testsupport"
)

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	run, err := store.BeginRun(ctx, "run-1", "ENCRYPT", "/data/in")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if run.ID != "run-1" || run.Action != "ENCRYPT" || run.Source != "/data/in" {
		t.Fatalf("unexpected run: %+v", run)
	}

	if err := store.FinishRun(ctx, "run-1"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("ListRuns returned %d runs, want 1", len(runs))
	}
	if runs[0].FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
	if runs[0].FinishedAt.Before(runs[0].StartedAt) {
		t.Fatal("finished_at precedes started_at")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if _, err := store.BeginRun(ctx, "run-1", "DECRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	journaled, err := store.AddTask(ctx, "run-1", task.Record{Path: "/data/a.bin", Action: task.ActionDecrypt})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if journaled.Status != journal.StatusPending {
		t.Fatalf("new task status = %q, want pending", journaled.Status)
	}

	if err := store.MarkDispatched(ctx, journaled.ID, 4242); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	got, err := store.GetTask(ctx, journaled.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != journal.StatusDispatched || got.WorkerPID != 4242 {
		t.Fatalf("after dispatch: %+v", got)
	}

	if err := store.MarkResult(ctx, journaled.ID, 0, ""); err != nil {
		t.Fatalf("MarkResult: %v", err)
	}
	got, err = store.GetTask(ctx, journaled.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != journal.StatusCompleted || got.ExitCode != 0 {
		t.Fatalf("after success: %+v", got)
	}
}

func TestMarkResultFailureAndMarkFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if _, err := store.BeginRun(ctx, "run-1", "ENCRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	failed, err := store.AddTask(ctx, "run-1", task.Record{Path: "/data/a.bin", Action: task.ActionEncrypt})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := store.MarkResult(ctx, failed.ID, 1, "transform failure"); err != nil {
		t.Fatalf("MarkResult: %v", err)
	}
	got, err := store.GetTask(ctx, failed.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != journal.StatusFailed || got.ExitCode != 1 || got.ErrorMessage != "transform failure" {
		t.Fatalf("after failure: %+v", got)
	}

	never, err := store.AddTask(ctx, "run-1", task.Record{Path: "/data/b.bin", Action: task.ActionEncrypt})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := store.MarkFailed(ctx, never.ID, "submit task: timeout"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, err = store.GetTask(ctx, never.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != journal.StatusFailed || got.ErrorMessage != "submit task: timeout" {
		t.Fatalf("after MarkFailed: %+v", got)
	}
}

func TestUpdateMissingTaskReturnsNoRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	if err := store.MarkDispatched(context.Background(), 999, 1); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("MarkDispatched on missing task = %v, want sql.ErrNoRows", err)
	}
}

func TestSummarizeCountsByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if _, err := store.BeginRun(ctx, "run-1", "ENCRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	var ids []int64
	for i := 0; i < 4; i++ {
		journaled, err := store.AddTask(ctx, "run-1", task.Record{Path: "/data/file", Action: task.ActionEncrypt})
		if err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		ids = append(ids, journaled.ID)
	}

	if err := store.MarkResult(ctx, ids[0], 0, ""); err != nil {
		t.Fatalf("MarkResult: %v", err)
	}
	if err := store.MarkResult(ctx, ids[1], 1, "transform failure"); err != nil {
		t.Fatalf("MarkResult: %v", err)
	}
	if err := store.MarkDispatched(ctx, ids[2], 77); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}

	summary, err := store.Summarize(ctx, "run-1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	want := journal.Summary{Total: 4, Pending: 2, Completed: 1, Failed: 1}
	if summary != want {
		t.Fatalf("Summarize = %+v, want %+v", summary, want)
	}
}

func TestResolveDispatchedCollectively(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if _, err := store.BeginRun(ctx, "run-1", "ENCRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	for i := 0; i < 3; i++ {
		journaled, err := store.AddTask(ctx, "run-1", task.Record{Path: "/data/file", Action: task.ActionEncrypt})
		if err != nil {
			t.Fatalf("AddTask: %v", err)
		}
		if err := store.MarkDispatched(ctx, journaled.ID, 0); err != nil {
			t.Fatalf("MarkDispatched: %v", err)
		}
	}

	resolved, err := store.ResolveDispatched(ctx, "run-1", true, "ignored")
	if err != nil {
		t.Fatalf("ResolveDispatched: %v", err)
	}
	if resolved != 3 {
		t.Fatalf("resolved %d tasks, want 3", resolved)
	}

	summary, err := store.Summarize(ctx, "run-1")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.Completed != 3 || summary.Pending != 0 {
		t.Fatalf("after resolve: %+v", summary)
	}

	// Nothing left in dispatched state: a second resolve is a no-op.
	resolved, err = store.ResolveDispatched(ctx, "run-1", false, "late failure")
	if err != nil {
		t.Fatalf("second ResolveDispatched: %v", err)
	}
	if resolved != 0 {
		t.Fatalf("second resolve touched %d tasks, want 0", resolved)
	}
}

func TestClearRemovesRunsAndCascadesTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if _, err := store.BeginRun(ctx, "run-1", "ENCRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	journaled, err := store.AddTask(ctx, "run-1", task.Record{Path: "/data/file", Action: task.ActionEncrypt})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Clear removed %d runs, want 1", removed)
	}

	if _, err := store.GetTask(ctx, journaled.ID); err == nil {
		t.Fatal("expected task to be gone after Clear")
	}
	tasks, err := store.ListTasks(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("tasks survived Clear: %d", len(tasks))
	}
}

func TestReopenPersistsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	ctx := context.Background()

	if _, err := store.BeginRun(ctx, "run-1", "ENCRYPT", "/data"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := journal.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	runs, err := reopened.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("history lost across reopen: %+v", runs)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := journal.ParseStatus(" Completed "); !ok || status != journal.StatusCompleted {
		t.Fatalf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := journal.ParseStatus("exploded"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}
