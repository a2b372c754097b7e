// Package scheduler implements the bounded-parallelism task runner:
// a semaphore-capped pool of goroutines running Task functions with
// exponential-backoff retry, per-task timeout, and cooperative
// cancellation.
package scheduler

import (
	"context"
	"time"

	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// TaskPriority orders tasks within a batch; higher runs first.
type TaskPriority int

const (
	PriorityLow      TaskPriority = 1
	PriorityNormal   TaskPriority = 2
	PriorityHigh     TaskPriority = 3
	PriorityCritical TaskPriority = 4
)

// TaskFunc is the work a Task performs. It must honor ctx cancellation.
type TaskFunc func(ctx context.Context) (any, error)

// Task is one unit of schedulable work.
type Task struct {
	ID             string
	Name           string
	Fn             TaskFunc
	Priority       TaskPriority
	Timeout        time.Duration
	MaxRetries     int
	BaseRetryDelay time.Duration
}

// TaskResult is the outcome of running a Task, possibly after retries.
type TaskResult struct {
	TaskID     string
	TaskName   string
	Status     model.Status
	Result     any
	Error      string
	StartTime  time.Time
	EndTime    time.Time
	RetryCount int
}

// Duration returns the elapsed wall-clock time the task took, including
// retries.
func (r TaskResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}
