package scheduler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// reasonUpstreamFailure is the fixed Error text assigned to tasks
// skipped after an earlier sequential task failed with stop_on_failure.
const reasonUpstreamFailure = "upstream failure"

// Scheduler runs Tasks under a bounded concurrency cap, with retry,
// exponential backoff, per-task timeout, and cooperative cancellation.
type Scheduler struct {
	maxParallel       int
	backoffMultiplier float64
	maxRetryDelay     time.Duration
	sem               chan struct{}

	mu          sync.Mutex
	cancelFuncs map[int]context.CancelFunc
	nextHandle  int
}

// New builds a Scheduler capped at maxParallel concurrent tasks, using
// backoffMultiplier and maxRetryDelay for the retry policy.
func New(maxParallel int, backoffMultiplier float64, maxRetryDelay time.Duration) *Scheduler {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Scheduler{
		maxParallel:       maxParallel,
		backoffMultiplier: backoffMultiplier,
		maxRetryDelay:     maxRetryDelay,
		sem:               make(chan struct{}, maxParallel),
		cancelFuncs:       make(map[int]context.CancelFunc),
	}
}

// ScheduleParallel sorts tasks by descending priority and runs them
// concurrently, bounded by the scheduler's semaphore. When failFast is
// true, the first failure cancels every other still-running task;
// otherwise every task runs to completion or exhausts its retries.
func (s *Scheduler) ScheduleParallel(ctx context.Context, tasks []Task, failFast bool) []TaskResult {
	sorted := sortByPriorityDesc(tasks)
	log := logging.NewFields().Component("scheduler").Operation("schedule_parallel").
		With("task_count", len(sorted)).With("fail_fast", failFast).ToLogrus()
	logrus.WithFields(log).Info("starting parallel schedule")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]TaskResult, len(sorted))
	var wg sync.WaitGroup
	for i, task := range sorted {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			result := s.executeSingleTask(runCtx, task)
			results[i] = result
			if failFast && result.Status == model.StatusFailed {
				logrus.WithFields(log).WithField("task_name", task.Name).
					Warn("task failed, cancelling remaining tasks")
				cancel()
			}
		}(i, task)
	}
	wg.Wait()
	return results
}

// ScheduleSequential sorts tasks by descending priority and runs them
// one at a time. When stopOnFailure is true and a task fails, every
// remaining task is recorded as SKIPPED without running.
func (s *Scheduler) ScheduleSequential(ctx context.Context, tasks []Task, stopOnFailure bool) []TaskResult {
	sorted := sortByPriorityDesc(tasks)
	log := logging.NewFields().Component("scheduler").Operation("schedule_sequential").
		With("task_count", len(sorted)).ToLogrus()
	logrus.WithFields(log).Info("starting sequential schedule")

	results := make([]TaskResult, 0, len(sorted))
	for i, task := range sorted {
		result := s.executeSingleTask(ctx, task)
		results = append(results, result)

		if stopOnFailure && result.Status == model.StatusFailed {
			logrus.WithFields(log).WithField("task_name", task.Name).
				Warn("task failed, skipping remaining tasks")
			for _, remaining := range sorted[i+1:] {
				results = append(results, TaskResult{
					TaskID:   remaining.ID,
					TaskName: remaining.Name,
					Status:   model.StatusSkipped,
					Error:    reasonUpstreamFailure,
				})
			}
			break
		}
	}
	return results
}

// CancelAll signals every task currently in flight across this
// scheduler. A cancelled task's result carries status CANCELLED.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for handle, cancel := range s.cancelFuncs {
		cancel()
		delete(s.cancelFuncs, handle)
	}
}

// executeSingleTask runs task to completion (success or exhausted
// retries), acquiring the scheduler's semaphore for each attempt and
// honoring task.Timeout per attempt.
func (s *Scheduler) executeSingleTask(ctx context.Context, task Task) TaskResult {
	start := time.Now()
	taskCtx, cancel := context.WithCancel(ctx)
	handle := s.registerCancel(cancel)
	defer s.unregisterCancel(handle)
	defer cancel()

	var lastErr error
	retry := 0
	for {
		select {
		case <-taskCtx.Done():
			return TaskResult{
				TaskID: task.ID, TaskName: task.Name, Status: model.StatusCancelled,
				Error: taskCtx.Err().Error(), StartTime: start, EndTime: time.Now(), RetryCount: retry,
			}
		case s.sem <- struct{}{}:
		}

		result, err := s.runAttempt(taskCtx, task)
		<-s.sem

		if err == nil {
			return TaskResult{
				TaskID: task.ID, TaskName: task.Name, Status: model.StatusSuccess,
				Result: result, StartTime: start, EndTime: time.Now(), RetryCount: retry,
			}
		}
		lastErr = err

		if taskCtx.Err() != nil {
			return TaskResult{
				TaskID: task.ID, TaskName: task.Name, Status: model.StatusCancelled,
				Error: taskCtx.Err().Error(), StartTime: start, EndTime: time.Now(), RetryCount: retry,
			}
		}

		if retry >= task.MaxRetries {
			return TaskResult{
				TaskID: task.ID, TaskName: task.Name, Status: model.StatusFailed,
				Error: lastErr.Error(), StartTime: start, EndTime: time.Now(), RetryCount: retry,
			}
		}
		retry++

		delay := s.backoffDelay(task.BaseRetryDelay, retry)
		select {
		case <-taskCtx.Done():
			return TaskResult{
				TaskID: task.ID, TaskName: task.Name, Status: model.StatusCancelled,
				Error: taskCtx.Err().Error(), StartTime: start, EndTime: time.Now(), RetryCount: retry,
			}
		case <-time.After(delay):
		}
	}
}

// runAttempt runs one attempt of task.Fn, applying task.Timeout as a
// per-attempt deadline if set.
func (s *Scheduler) runAttempt(ctx context.Context, task Task) (any, error) {
	attemptCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := task.Fn(attemptCtx)
		done <- outcome{result, err}
	}()

	select {
	case <-attemptCtx.Done():
		return nil, fmt.Errorf("task %s timed out: %w", task.Name, attemptCtx.Err())
	case o := <-done:
		return o.result, o.err
	}
}

// backoffDelay computes the exponential-backoff delay for the given
// retry attempt (1-based), capped at the scheduler's maxRetryDelay.
func (s *Scheduler) backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(float64(base) * math.Pow(s.backoffMultiplier, float64(attempt-1)))
	if s.maxRetryDelay > 0 && delay > s.maxRetryDelay {
		delay = s.maxRetryDelay
	}
	return delay
}

func (s *Scheduler) registerCancel(cancel context.CancelFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := s.nextHandle
	s.nextHandle++
	s.cancelFuncs[handle] = cancel
	return handle
}

func (s *Scheduler) unregisterCancel(handle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelFuncs, handle)
}

// sortByPriorityDesc returns a stable copy of tasks ordered by
// descending priority, leaving the input slice untouched.
func sortByPriorityDesc(tasks []Task) []Task {
	sorted := append([]Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return sorted
}
