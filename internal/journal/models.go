package journal

import (
	"strings"
	"time"
)

// TaskStatus represents the lifecycle of a journaled task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusDispatched TaskStatus = "dispatched"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

var allStatuses = []TaskStatus{
	StatusPending,
	StatusDispatched,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[TaskStatus]struct{} {
	set := make(map[TaskStatus]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus converts a string into a known TaskStatus.
func ParseStatus(value string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Run records one invocation of `cryptq run`: the segment/run identifier,
// what was requested, and when it started and finished.
type Run struct {
	ID         string
	Action     string
	Source     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Task records one dispatched unit of work and its outcome as reported by
// the worker's exit status.
type Task struct {
	ID           int64
	RunID        string
	Path         string
	Action       string
	Status       TaskStatus
	WorkerPID    int
	ExitCode     int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary aggregates task counts for one run.
type Summary struct {
	Total     int
	Pending   int
	Completed int
	Failed    int
}
