package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/scheduler"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Scheduler", func() {
	var (
		ctx context.Context
		s   *scheduler.Scheduler
	)

	BeforeEach(func() {
		ctx = context.Background()
		s = scheduler.New(2, 2.0, time.Second)
	})

	Context("ScheduleSequential", func() {
		It("runs tasks in priority order and reports success", func() {
			var order []string
			mkTask := func(name string, p scheduler.TaskPriority) scheduler.Task {
				return scheduler.Task{
					ID: name, Name: name, Priority: p,
					Fn: func(ctx context.Context) (any, error) {
						order = append(order, name)
						return nil, nil
					},
				}
			}
			tasks := []scheduler.Task{
				mkTask("low", scheduler.PriorityLow),
				mkTask("critical", scheduler.PriorityCritical),
				mkTask("normal", scheduler.PriorityNormal),
			}

			results := s.ScheduleSequential(ctx, tasks, false)
			Expect(results).To(HaveLen(3))
			Expect(order).To(Equal([]string{"critical", "normal", "low"}))
			for _, r := range results {
				Expect(r.Status).To(Equal(model.StatusSuccess))
			}
		})

		It("skips remaining tasks when stop_on_failure is set", func() {
			tasks := []scheduler.Task{
				{ID: "a", Name: "a", Priority: scheduler.PriorityHigh, Fn: func(ctx context.Context) (any, error) {
					return nil, errors.New("boom")
				}},
				{ID: "b", Name: "b", Priority: scheduler.PriorityNormal, Fn: func(ctx context.Context) (any, error) {
					return nil, nil
				}},
			}

			results := s.ScheduleSequential(ctx, tasks, true)
			Expect(results).To(HaveLen(2))
			Expect(results[0].Status).To(Equal(model.StatusFailed))
			Expect(results[1].Status).To(Equal(model.StatusSkipped))
			Expect(results[1].Error).To(Equal("upstream failure"))
		})
	})

	Context("ScheduleParallel", func() {
		It("runs every task and tolerates individual failures without fail_fast", func() {
			tasks := []scheduler.Task{
				{ID: "ok", Name: "ok", Fn: func(ctx context.Context) (any, error) { return "done", nil }},
				{ID: "bad", Name: "bad", Fn: func(ctx context.Context) (any, error) { return nil, errors.New("boom") }},
			}

			results := s.ScheduleParallel(ctx, tasks, false)
			Expect(results).To(HaveLen(2))
			var successes, failures int
			for _, r := range results {
				switch r.Status {
				case model.StatusSuccess:
					successes++
				case model.StatusFailed:
					failures++
				}
			}
			Expect(successes).To(Equal(1))
			Expect(failures).To(Equal(1))
		})

		It("cancels remaining tasks on first failure when fail_fast is set", func() {
			var started int32
			blocker := make(chan struct{})

			tasks := []scheduler.Task{
				{ID: "fail", Name: "fail", Priority: scheduler.PriorityHigh, Fn: func(ctx context.Context) (any, error) {
					return nil, errors.New("boom")
				}},
				{ID: "slow", Name: "slow", Priority: scheduler.PriorityLow, Fn: func(ctx context.Context) (any, error) {
					atomic.AddInt32(&started, 1)
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-blocker:
						return "too late", nil
					}
				}},
			}

			results := s.ScheduleParallel(ctx, tasks, true)
			Expect(results).To(HaveLen(2))

			var sawFailed, sawCancelled bool
			for _, r := range results {
				if r.Status == model.StatusFailed {
					sawFailed = true
				}
				if r.Status == model.StatusCancelled {
					sawCancelled = true
				}
			}
			Expect(sawFailed).To(BeTrue())
			Expect(sawCancelled).To(BeTrue())
			close(blocker)
		})
	})

	Context("retry and backoff", func() {
		It("retries a failing task up to max_retries then succeeds", func() {
			var attempts int32
			task := scheduler.Task{
				ID: "flaky", Name: "flaky", MaxRetries: 2, BaseRetryDelay: time.Millisecond,
				Fn: func(ctx context.Context) (any, error) {
					n := atomic.AddInt32(&attempts, 1)
					if n < 3 {
						return nil, errors.New("not yet")
					}
					return "ok", nil
				},
			}

			results := s.ScheduleSequential(ctx, []scheduler.Task{task}, false)
			Expect(results).To(HaveLen(1))
			Expect(results[0].Status).To(Equal(model.StatusSuccess))
			Expect(results[0].RetryCount).To(Equal(2))
		})

		It("reports FAILED once retries are exhausted", func() {
			task := scheduler.Task{
				ID: "always-fails", Name: "always-fails", MaxRetries: 1, BaseRetryDelay: time.Millisecond,
				Fn: func(ctx context.Context) (any, error) {
					return nil, errors.New("nope")
				},
			}

			results := s.ScheduleSequential(ctx, []scheduler.Task{task}, false)
			Expect(results[0].Status).To(Equal(model.StatusFailed))
			Expect(results[0].RetryCount).To(Equal(1))
		})

		It("treats a timed-out attempt as a retryable failure", func() {
			task := scheduler.Task{
				ID: "timeout", Name: "timeout", Timeout: 10 * time.Millisecond,
				MaxRetries: 1, BaseRetryDelay: time.Millisecond,
				Fn: func(ctx context.Context) (any, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				},
			}

			results := s.ScheduleSequential(ctx, []scheduler.Task{task}, false)
			Expect(results[0].Status).To(Equal(model.StatusFailed))
			Expect(results[0].RetryCount).To(Equal(1))
		})
	})

	Context("CancelAll", func() {
		It("cancels an in-flight task", func() {
			started := make(chan struct{})
			task := scheduler.Task{
				ID: "blocked", Name: "blocked",
				Fn: func(ctx context.Context) (any, error) {
					close(started)
					<-ctx.Done()
					return nil, ctx.Err()
				},
			}

			resultCh := make(chan scheduler.TaskResult, 1)
			go func() {
				results := s.ScheduleSequential(ctx, []scheduler.Task{task}, false)
				resultCh <- results[0]
			}()

			Eventually(started).Should(BeClosed())
			s.CancelAll()

			var result scheduler.TaskResult
			Eventually(resultCh, time.Second).Should(Receive(&result))
			Expect(result.Status).To(Equal(model.StatusCancelled))
		})
	})
})
