// Package resilience wraps tool adapter execution in a circuit breaker
// so a scanner that is failing fast trips open and the caller gets an
// immediate ExecutionError instead of waiting out a timeout on every
// retry. It evaluates failure rate over a minimum request window with
// Closed/Open/HalfOpen transitions, built on github.com/sony/gobreaker
// rather than a hand-rolled state machine.
package resilience

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors gobreaker's three states under names that read naturally
// next to the rest of this package's exported API.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// minRequestsToTrip is the smallest sample size the failure rate is
// evaluated over — a single failure out of one request must never trip
// the breaker.
const minRequestsToTrip = 5

// ErrOpen is returned by Call when the breaker rejected the call outright.
var ErrOpen = errors.New("circuit breaker is open")

// BreakerMetrics is a point-in-time snapshot of a breaker's counters,
// the shape surfaced to internal/platform/metrics and to callers
// inspecting why a tool stopped being dispatched.
type BreakerMetrics struct {
	Name        string
	State       State
	Trips       int64
	Successes   int64
	Failures    int64
	Requests    int64
	FailureRate float64
}

// Breaker guards one dependency (one tool adapter) behind gobreaker.
type Breaker struct {
	name             string
	failureThreshold float64
	resetTimeout     time.Duration
	cb               *gobreaker.CircuitBreaker[any]
	trips            int64
}

// NewBreaker builds a Breaker that trips once at least minRequestsToTrip
// calls have been observed and the failure rate reaches
// failureThreshold, staying open for resetTimeout before allowing a
// single half-open trial call through.
func NewBreaker(name string, failureThreshold float64, resetTimeout time.Duration) *Breaker {
	b := &Breaker{name: name, failureThreshold: failureThreshold, resetTimeout: resetTimeout}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequestsToTrip {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= failureThreshold
		},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				atomic.AddInt64(&b.trips, 1)
			}
		},
	})
	return b
}

// Call runs fn through the breaker. An open breaker returns ErrOpen
// without invoking fn at all.
func (b *Breaker) Call(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		return ErrOpen
	}
	return err
}

// Name returns the breaker's configured name.
func (b *Breaker) Name() string { return b.name }

// FailureThreshold returns the configured trip threshold (0..1).
func (b *Breaker) FailureThreshold() float64 { return b.failureThreshold }

// ResetTimeout returns the configured open-state duration.
func (b *Breaker) ResetTimeout() time.Duration { return b.resetTimeout }

// State reports the breaker's current Closed/Open/HalfOpen state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Metrics returns a snapshot of the breaker's counters.
func (b *Breaker) Metrics() BreakerMetrics {
	counts := b.cb.Counts()
	var rate float64
	if counts.Requests > 0 {
		rate = float64(counts.TotalFailures) / float64(counts.Requests)
	}
	return BreakerMetrics{
		Name:        b.name,
		State:       b.State(),
		Trips:       atomic.LoadInt64(&b.trips),
		Successes:   int64(counts.TotalSuccesses),
		Failures:    int64(counts.TotalFailures),
		Requests:    int64(counts.Requests),
		FailureRate: rate,
	}
}
