// Package engine implements the graph executor: it instantiates a
// workflow template against a run context, walks the template's node
// sequence against a single mutable WorkflowState, and checkpoints
// after every node. It holds the only in-memory map of live runs; the
// outer orchestrator (internal/workflow/orchestrator) layers
// persistence and request translation on top of it.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/registry"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/service"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/scheduler"
	"github.com/jordigilh/orchestrator-core/internal/workflow/templates"
)

const reasonWorkflowTimeout = "workflow timeout"

// runEntry is everything the engine keeps per live run: its mutable
// state, the template it was created against, and the per-run
// concurrency scope (scheduler + cancel func) that keeps one run's
// cancellation and parallelism from ever touching another's.
type runEntry struct {
	mu         sync.Mutex
	state      *model.WorkflowState
	template   model.WorkflowTemplate
	createdAt  time.Time
	cancel     context.CancelFunc
	sched      *scheduler.Scheduler
	checkpoint []model.CheckpointRecord
}

// Engine is the graph executor. It is safe for concurrent use: each
// run's state is guarded by that run's own mutex, and the top-level
// run map is guarded separately.
type Engine struct {
	cfg        Config
	registry   *registry.Registry
	svc        *service.Service
	tmplReg    *templates.Registry

	mu   sync.RWMutex
	runs map[string]*runEntry
}

// New builds an Engine backed by reg (tool registry), a Service
// derived from it, and tmplReg (template registry). Passing an
// explicit registry rather than reaching for registry.Default() keeps
// tests and multi-tenant callers free of hidden global state.
func New(reg *registry.Registry, tmplReg *templates.Registry, cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: reg,
		svc: service.NewWithSchedulerConfig(reg, service.SchedulerConfig{
			MaxParallelTasks:   cfg.MaxParallelTasks,
			DefaultTaskTimeout: cfg.DefaultTaskTimeout,
			MaxRetries:         cfg.DefaultMaxRetries,
			BaseRetryDelay:     cfg.BaseRetryDelay,
			MaxRetryDelay:      cfg.MaxRetryDelay,
			BackoffMultiplier:  cfg.BackoffMultiplier,
		}),
		tmplReg: tmplReg,
		runs:    make(map[string]*runEntry),
	}
}

// Create registers a new PENDING run against the named template and
// returns its run id. Empty toolIDs is accepted — the initialize node
// fills it from the registry's full tool list.
func (e *Engine) Create(kind model.WorkflowKind, target model.ScanTarget, toolIDs []string, config map[string]any, createdBy string) (string, error) {
	tmpl, err := e.tmplReg.Lookup(kind)
	if err != nil {
		return "", err
	}
	return e.createWithTemplate(tmpl, target, toolIDs, config, createdBy)
}

// CreateCustom registers a new PENDING run against a caller-supplied
// CUSTOM template, since CUSTOM templates are never looked up by kind.
func (e *Engine) CreateCustom(tmpl model.WorkflowTemplate, target model.ScanTarget, toolIDs []string, config map[string]any, createdBy string) (string, error) {
	return e.createWithTemplate(tmpl, target, toolIDs, config, createdBy)
}

func (e *Engine) createWithTemplate(tmpl model.WorkflowTemplate, target model.ScanTarget, toolIDs []string, config map[string]any, createdBy string) (string, error) {
	ctx := model.NewRunContext(tmpl.WorkflowKind, createdBy)
	ctx.Config = config
	state := model.NewWorkflowState(ctx, target, toolIDs)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs[ctx.RunID] = &runEntry{state: state, template: tmpl, createdAt: time.Now()}

	logrus.WithFields(logging.NewFields().Component("engine").Operation("create").
		Resource("run", ctx.RunID).With("workflow_kind", string(tmpl.WorkflowKind)).ToLogrus()).Info("run created")
	return ctx.RunID, nil
}

// Execute walks the run's template node sequence, checkpointing after
// each node, until the run reaches a terminal status, PAUSED, or the
// workflow timeout fires. It returns the final state and is safe to
// call again after a resume sets the run back to RUNNING.
//
// Execute only holds run.mu for the short setup/teardown bookkeeping
// (scheduler/cancel-func bookkeeping, checkpoint appends); the node
// walk itself runs unlocked so that Cancel and Pause, called from
// another goroutine, can take effect mid-walk instead of queuing
// behind the whole execution. The run's WorkflowState is effectively
// owned by whichever goroutine is walking it — Cancel only ever
// writes Status and fires the stored cancel func, never anything
// Execute itself is mutating concurrently.
func (e *Engine) Execute(ctx context.Context, runID string) (*model.WorkflowState, error) {
	run, err := e.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	if run.state.Status.IsTerminal() {
		state := run.state
		run.mu.Unlock()
		return state, nil
	}
	if run.sched == nil {
		run.sched = scheduler.New(maxParallelOf(run.template, e.cfg), e.cfg.BackoffMultiplier, e.cfg.MaxRetryDelay)
	}
	timeout := timeoutOf(run.template, e.cfg)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	run.cancel = cancel
	if run.state.StartTime == nil {
		now := time.Now()
		run.state.StartTime = &now
	}
	run.state.Status = model.StatusRunning
	startIdx := e.resumeIndex(run)
	run.mu.Unlock()
	defer cancel()

	log := logging.NewFields().Component("engine").Operation("execute").Resource("run", runID).ToLogrus()
	logrus.WithFields(log).Info("execution starting")

	for i := startIdx; i < len(run.template.Nodes); i++ {
		if runCtx.Err() != nil {
			e.finishOnTimeout(run)
			break
		}
		if run.currentStatus() == model.StatusCancelled {
			break
		}

		nodeName := run.template.Nodes[i]
		e.runNode(runCtx, run, nodeName)

		run.mu.Lock()
		e.checkpointAfterNode(run, nodeName)
		run.mu.Unlock()

		switch run.currentStatus() {
		case model.StatusPaused, model.StatusFailed, model.StatusCancelled:
			logrus.WithFields(log).WithField("status", string(run.currentStatus())).Info("execution halted")
			return run.state, nil
		}
	}

	if runCtx.Err() != nil && !run.currentStatus().IsTerminal() {
		e.finishOnTimeout(run)
	}

	logrus.WithFields(log).WithField("status", string(run.currentStatus())).Info("execution halted")
	return run.state, nil
}

// currentStatus reads run.state.Status under the run's mutex so Cancel
// (running on another goroutine) is always observed promptly.
func (r *runEntry) currentStatus() model.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Status
}

func (e *Engine) finishOnTimeout(run *runEntry) {
	run.state.AddError(reasonWorkflowTimeout)
	run.state.Status = model.StatusFailed
	now := time.Now()
	run.state.EndTime = &now
	if run.state.StartTime != nil {
		d := now.Sub(*run.state.StartTime)
		run.state.TotalDuration = &d
	}
}

// resumeIndex finds where Execute should restart: right after the
// last node already recorded, or 0 for a fresh run.
func (e *Engine) resumeIndex(run *runEntry) int {
	if len(run.state.NodeResults) == 0 {
		return 0
	}
	last := run.state.NodeResults[len(run.state.NodeResults)-1]
	for i, n := range run.template.Nodes {
		if n == last.NodeName {
			return i + 1
		}
	}
	return 0
}

// Pause atomically transitions a RUNNING run to PAUSED. It is a no-op
// on a terminal or already-paused run.
func (e *Engine) Pause(runID string) error {
	run, err := e.getRun(runID)
	if err != nil {
		return err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.state.Status.IsTerminal() || run.state.Status == model.StatusPaused {
		return nil
	}
	run.state.Status = model.StatusPaused
	return nil
}

// Resume transitions a PAUSED run back to RUNNING and re-enters
// Execute. If checkpointID is non-empty, the run's state is first
// reloaded from that checkpoint (discarding any node results recorded
// after it).
func (e *Engine) Resume(ctx context.Context, runID, checkpointID string) (*model.WorkflowState, error) {
	run, err := e.getRun(runID)
	if err != nil {
		return nil, err
	}

	run.mu.Lock()
	if checkpointID != "" {
		state, loadErr := e.loadLocked(run, checkpointID)
		if loadErr != nil {
			run.mu.Unlock()
			return nil, loadErr
		}
		run.state = state
	}
	if !run.state.Status.IsTerminal() {
		run.state.Status = model.StatusRunning
	}
	run.mu.Unlock()

	return e.Execute(ctx, runID)
}

// Cancel transitions any non-terminal run to CANCELLED and cancels its
// in-flight context, killing any running scheduler tasks. Calling
// Cancel twice is equivalent to calling it once.
func (e *Engine) Cancel(runID string) error {
	run, err := e.getRun(runID)
	if err != nil {
		return err
	}
	run.mu.Lock()
	defer run.mu.Unlock()

	if run.state.Status.IsTerminal() {
		return nil
	}
	run.state.Status = model.StatusCancelled
	now := time.Now()
	run.state.EndTime = &now
	run.state.AddError("run cancelled")

	if run.cancel != nil {
		run.cancel()
	}
	if run.sched != nil {
		run.sched.CancelAll()
	}
	return nil
}

// Status returns the condensed Summary for runID.
func (e *Engine) Status(runID string) (model.Summary, error) {
	run, err := e.getRun(runID)
	if err != nil {
		return model.Summary{}, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return summarize(run), nil
}

// State returns the full mutable state for runID (used by the outer
// executor when persisting or serving a detailed read).
func (e *Engine) State(runID string) (*model.WorkflowState, error) {
	run, err := e.getRun(runID)
	if err != nil {
		return nil, err
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.state, nil
}

// List returns a Summary for every in-memory run, optionally filtered
// by status.
func (e *Engine) List(status *model.Status) []model.Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]model.Summary, 0, len(e.runs))
	for _, run := range e.runs {
		run.mu.Lock()
		if status == nil || run.state.Status == *status {
			out = append(out, summarize(run))
		}
		run.mu.Unlock()
	}
	return out
}

// summarize builds a run's Summary, filling in the template-derived
// TotalNodes and the progress percentage
// (completed_nodes / total_nodes_in_template, clamped to 100 on
// terminal success) that a bare WorkflowState cannot compute itself.
func summarize(run *runEntry) model.Summary {
	s := run.state.Summarize()
	s.TotalNodes = len(run.template.Nodes)
	if s.TotalNodes > 0 {
		s.ProgressPercent = 100 * float64(s.CompletedNodes) / float64(s.TotalNodes)
	}
	if run.state.Status == model.StatusSuccess {
		s.ProgressPercent = 100
	}
	if s.ProgressPercent > 100 {
		s.ProgressPercent = 100
	}
	return s
}

// Delete removes a run from the in-memory map entirely. It does not
// touch any persisted rows — the outer executor is responsible for
// cascading the delete to storage.
func (e *Engine) Delete(runID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.runs[runID]; !ok {
		return apperrors.NewNotFoundError("run " + runID)
	}
	delete(e.runs, runID)
	return nil
}

func (e *Engine) getRun(runID string) (*runEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	run, ok := e.runs[runID]
	if !ok {
		return nil, apperrors.NewNotFoundError("run " + runID)
	}
	return run, nil
}

func maxParallelOf(tmpl model.WorkflowTemplate, cfg Config) int {
	if v, ok := tmpl.DefaultConfig["max_parallel"].(int); ok && v > 0 {
		return v
	}
	if cfg.MaxParallelTasks > 0 {
		return cfg.MaxParallelTasks
	}
	return 4
}

func timeoutOf(tmpl model.WorkflowTemplate, cfg Config) time.Duration {
	if v, ok := tmpl.DefaultConfig["workflow_timeout"].(time.Duration); ok && v > 0 {
		return v
	}
	return cfg.DefaultWorkflowTimeout
}

// maxRetriesOf reads max_retries from the run's config — the value
// fed into each scan task's Task.MaxRetries, so the scheduler is the
// one deciding whether a failed tool gets retried. A checkpoint
// round-trip through encoding/json turns a Go int into a float64, so
// both representations are accepted.
func maxRetriesOf(run *runEntry, cfg Config) int {
	switch v := run.state.Context.Config["max_retries"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return cfg.DefaultMaxRetries
	}
}

// validationThresholdOf returns the run's configured confidence
// threshold (0..1), falling back to the engine default. Accepts both
// float64 (native) and int (a caller passing e.g. 0) representations.
func validationThresholdOf(run *runEntry, cfg Config) float64 {
	switch v := run.state.Context.Config["validation_threshold"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return cfg.ValidationThreshold
	}
}
