package engine

import "time"

// Config holds the engine-wide defaults a workflow run falls back to
// when its template or request doesn't override them. Kept as
// configuration rather than hardcoded constants so the validation
// threshold and the scheduler's tuning can be set per deployment.
type Config struct {
	// ValidationThreshold is the minimum normalized confidence score
	// (0..1) a finding must have to survive the validate node.
	ValidationThreshold float64
	// MaxCheckpoints caps how many checkpoints the engine retains
	// in-memory per run; older ones are pruned first.
	MaxCheckpoints int
	// DefaultWorkflowTimeout is used when a template's default config
	// omits workflow_timeout.
	DefaultWorkflowTimeout time.Duration

	// MaxParallelTasks bounds a run's scheduler when the template's
	// default config omits max_parallel.
	MaxParallelTasks int
	// DefaultTaskTimeout is the per-task deadline handed to every scan
	// task the engine schedules.
	DefaultTaskTimeout time.Duration
	// DefaultMaxRetries is used when a run's config omits max_retries;
	// it becomes each scan task's Task.MaxRetries.
	DefaultMaxRetries int
	// BaseRetryDelay is the first retry delay a scan task's exponential
	// backoff grows from.
	BaseRetryDelay time.Duration
	// MaxRetryDelay caps a scan task's backoff delay.
	MaxRetryDelay time.Duration
	// BackoffMultiplier is the exponential-backoff growth factor
	// applied between a scan task's retries.
	BackoffMultiplier float64
}

// DefaultConfig returns the engine's baseline defaults: a 0.3 confidence
// threshold, 20 retained checkpoints, a one-hour workflow timeout, and a
// scheduler tuned to 4-way parallelism with a 5-minute per-task timeout,
// zero default task retries, and 5s/300s/2x backoff.
func DefaultConfig() Config {
	return Config{
		ValidationThreshold:    0.3,
		MaxCheckpoints:         20,
		DefaultWorkflowTimeout: time.Hour,

		MaxParallelTasks:   4,
		DefaultTaskTimeout: 5 * time.Minute,
		DefaultMaxRetries:  0,
		BaseRetryDelay:     5 * time.Second,
		MaxRetryDelay:      300 * time.Second,
		BackoffMultiplier:  2.0,
	}
}
