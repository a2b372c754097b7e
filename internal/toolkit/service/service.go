// Package service implements the thin orchestration layer over the
// tool registry: single-tool and multi-tool scans, result aggregation,
// and tool recommendation by language.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/adapter"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/registry"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/resilience"
	"github.com/jordigilh/orchestrator-core/internal/workflow/scheduler"
)

// defaultBreakerFailureThreshold and defaultBreakerResetTimeout tune the
// per-tool circuit breakers ScanOne builds on first use. A scanner that
// fails 50% of its last five-or-more calls trips for 30 seconds before
// a single half-open trial call is let through.
const (
	defaultBreakerFailureThreshold = 0.5
	defaultBreakerResetTimeout     = 30 * time.Second
)

// Response is the MCP-style standardized result of running one tool.
type Response struct {
	RunID       string
	ToolID      string
	Success     bool
	Findings    []model.Finding
	Error       string
	Meta        map[string]any
	CompletedAt time.Time
}

// Request is a multi-tool scan request: target plus the tool ids to
// run against it (empty means "every registered tool").
type Request struct {
	RunID   string
	Target  model.ScanTarget
	ToolIDs []string
	Options map[string]any
}

// SchedulerConfig tunes the scheduler ScanMany builds its task fan-out
// on: how many tools run at once, the per-tool timeout, and the
// retry/backoff a failed tool gets before ScanMany gives up on it.
type SchedulerConfig struct {
	MaxParallelTasks   int
	DefaultTaskTimeout time.Duration
	MaxRetries         int
	BaseRetryDelay     time.Duration
	MaxRetryDelay      time.Duration
	BackoffMultiplier  float64
}

// DefaultSchedulerConfig uses the same scheduler values as the engine's
// default Config: four-way parallelism, a five-minute per-tool timeout, no
// retries, and 5s/300s/2x backoff for callers that do opt into retries.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxParallelTasks:   4,
		DefaultTaskTimeout: 5 * time.Minute,
		MaxRetries:         0,
		BaseRetryDelay:     5 * time.Second,
		MaxRetryDelay:      300 * time.Second,
		BackoffMultiplier:  2.0,
	}
}

// Service orchestrates scans against a Registry.
type Service struct {
	registry *registry.Registry
	sched    *scheduler.Scheduler
	schedCfg SchedulerConfig

	breakerMu sync.Mutex
	breakers  map[string]*resilience.Breaker
}

// New builds a Service backed by reg, with ScanMany's fan-out tuned to
// DefaultSchedulerConfig.
func New(reg *registry.Registry) *Service {
	return NewWithSchedulerConfig(reg, DefaultSchedulerConfig())
}

// NewWithSchedulerConfig builds a Service backed by reg whose ScanMany
// schedules tools under schedCfg rather than the built-in defaults.
func NewWithSchedulerConfig(reg *registry.Registry, schedCfg SchedulerConfig) *Service {
	return &Service{
		registry: reg,
		sched:    scheduler.New(schedCfg.MaxParallelTasks, schedCfg.BackoffMultiplier, schedCfg.MaxRetryDelay),
		schedCfg: schedCfg,
		breakers: make(map[string]*resilience.Breaker),
	}
}

// breakerFor returns the tool's circuit breaker, creating it on first
// use. One breaker per tool id persists for the Service's lifetime so
// its trip state survives across calls.
func (s *Service) breakerFor(toolID string) *resilience.Breaker {
	s.breakerMu.Lock()
	defer s.breakerMu.Unlock()
	b, ok := s.breakers[toolID]
	if !ok {
		b = resilience.NewBreaker(toolID, defaultBreakerFailureThreshold, defaultBreakerResetTimeout)
		s.breakers[toolID] = b
	}
	return b
}

// BreakerMetrics returns the current circuit breaker snapshot for
// toolID, or the zero value if that tool has never been scanned.
func (s *Service) BreakerMetrics(toolID string) resilience.BreakerMetrics {
	s.breakerMu.Lock()
	b, ok := s.breakers[toolID]
	s.breakerMu.Unlock()
	if !ok {
		return resilience.BreakerMetrics{Name: toolID}
	}
	return b.Metrics()
}

// ScanOne runs a single registered tool and wraps its outcome in a
// Response. An unknown tool id produces a Response with Success=false
// and a NotRegistered error, never a Go error return — the caller
// always gets a uniform Response shape.
func (s *Service) ScanOne(ec adapter.ExecutionContext, toolID string, req Request) Response {
	log := logging.NewFields().Component("service").Operation("scan_one").
		Resource("tool", toolID).ToLogrus()
	logrus.WithFields(log).Info("starting scan")

	a, err := s.registry.Get(toolID)
	if err != nil {
		logrus.WithFields(log).WithError(err).Error("tool not registered")
		return Response{
			RunID: req.RunID, ToolID: toolID, Success: false,
			Error: err.Error(), CompletedAt: time.Now(),
		}
	}

	findings, err := adapter.Run(ec, a, adapter.ScanRequest{
		RunID: req.RunID, ToolID: toolID, Target: req.Target, Options: req.Options,
	}, adapter.WithBreaker(s.breakerFor(toolID)))
	if err != nil {
		logrus.WithFields(log).WithError(err).Error("scan failed")
		return Response{
			RunID: req.RunID, ToolID: toolID, Success: false,
			Error: apperrors.SafeErrorMessage(err), CompletedAt: time.Now(),
		}
	}

	cap := a.Capability()
	return Response{
		RunID: req.RunID, ToolID: toolID, Success: true, Findings: findings,
		Meta: map[string]any{
			"tool_name":     cap.DisplayName,
			"tool_kind":     string(cap.Kind),
			"finding_count": len(findings),
		},
		CompletedAt: time.Now(),
	}
}

// ScanMany schedules every tool in req.ToolIDs (or every registered
// tool if that list is empty) through the Service's own scheduler in
// parallel mode, returning one Response per tool. The scheduler — not
// a bespoke fan-out — owns the bounded concurrency, per-tool timeout,
// and retry/backoff: a tool whose ScanOne result is unsuccessful is
// retried up to schedCfg.MaxRetries before ScanMany gives up on it.
func (s *Service) ScanMany(ctx context.Context, ec adapter.ExecutionContext, req Request) []Response {
	toolIDs := req.ToolIDs
	if len(toolIDs) == 0 {
		toolIDs = s.registry.IDs()
	}

	log := logging.NewFields().Component("service").Operation("scan_many").
		With("tool_count", len(toolIDs)).ToLogrus()
	logrus.WithFields(log).Info("starting multi-tool scan")

	lastResp := make([]Response, len(toolIDs))
	tasks := make([]scheduler.Task, len(toolIDs))
	for i, toolID := range toolIDs {
		i, toolID := i, toolID
		tasks[i] = scheduler.Task{
			ID:             toolID,
			Name:           toolID,
			Timeout:        s.schedCfg.DefaultTaskTimeout,
			MaxRetries:     s.schedCfg.MaxRetries,
			BaseRetryDelay: s.schedCfg.BaseRetryDelay,
			Fn: func(taskCtx context.Context) (any, error) {
				resp := s.ScanOne(adapter.ExecutionContext{Ctx: taskCtx}, toolID, req)
				lastResp[i] = resp
				if !resp.Success {
					return resp, errors.New(resp.Error)
				}
				return resp, nil
			},
		}
	}

	results := s.sched.ScheduleParallel(ctx, tasks, false)
	byID := make(map[string]scheduler.TaskResult, len(results))
	for _, res := range results {
		byID[res.TaskID] = res
	}

	responses := make([]Response, len(toolIDs))
	var ok, failed int
	for i, toolID := range toolIDs {
		res := byID[toolID]
		if resp, isResp := res.Result.(Response); isResp && res.Status == model.StatusSuccess {
			responses[i] = resp
		} else {
			responses[i] = lastResp[i]
		}
		if responses[i].Success {
			ok++
		} else {
			failed++
		}
	}
	logrus.WithFields(log).WithField("ok", ok).WithField("failed", failed).Info("multi-tool scan complete")
	return responses
}

// AggregateSummary is the cross-tool statistical rollup the engine
// stores on the run.
type AggregateSummary struct {
	Total              int
	SeverityHistogram  map[model.SeverityLevel]int
	PerToolHistogram   map[string]int
	OKCount            int
	FailedCount        int
}

// Aggregate summarizes a batch of Responses.
func Aggregate(responses []Response) AggregateSummary {
	summary := AggregateSummary{
		SeverityHistogram: make(map[model.SeverityLevel]int),
		PerToolHistogram:  make(map[string]int),
	}
	for _, r := range responses {
		if r.Success {
			summary.OKCount++
		} else {
			summary.FailedCount++
		}
		summary.PerToolHistogram[r.ToolID] = len(r.Findings)
		summary.Total += len(r.Findings)
		for _, f := range r.Findings {
			summary.SeverityHistogram[f.Severity.Level]++
		}
	}
	return summary
}

// RecommendTools returns the registered tool ids suitable for lang, or
// every registered id if lang is empty.
func (s *Service) RecommendTools(lang string) []string {
	if lang == "" {
		return s.registry.IDs()
	}
	caps := s.registry.DiscoverByLanguage(lang)
	ids := make([]string, len(caps))
	for i, c := range caps {
		ids[i] = c.ToolID
	}
	return ids
}
