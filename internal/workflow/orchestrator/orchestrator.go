// Package orchestrator is the outer control-plane facade: it wires the
// graph executor to the tool and template registries and, when
// configured, to Postgres persistence, so a caller never reaches into
// the engine directly. Every dependency is constructor-injected rather
// than resolved from a package-level singleton.
package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/platform/metrics"
	"github.com/jordigilh/orchestrator-core/internal/storage/postgres"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/registry"
	"github.com/jordigilh/orchestrator-core/internal/workflow/engine"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/templates"
)

// SchedulerSettings carries the root config's scheduler section
// through to the engine without this package importing internal/config
// directly.
type SchedulerSettings struct {
	MaxParallelTasks   int
	DefaultTaskTimeout time.Duration
	MaxRetries         int
	BaseRetryDelay     time.Duration
	MaxRetryDelay      time.Duration
	BackoffMultiplier  float64
}

// EngineConfigFrom adapts the root config's checkpoint/validation/
// scheduler sections onto the engine's own Config shape, leaving any
// field the root config omits at the engine's built-in default.
func EngineConfigFrom(checkpointMaxPerRun int, validationThreshold float64, sched SchedulerSettings) engine.Config {
	cfg := engine.DefaultConfig()
	if checkpointMaxPerRun > 0 {
		cfg.MaxCheckpoints = checkpointMaxPerRun
	}
	if validationThreshold > 0 {
		cfg.ValidationThreshold = validationThreshold
	}
	if sched.MaxParallelTasks > 0 {
		cfg.MaxParallelTasks = sched.MaxParallelTasks
	}
	if sched.DefaultTaskTimeout > 0 {
		cfg.DefaultTaskTimeout = sched.DefaultTaskTimeout
	}
	if sched.MaxRetries > 0 {
		cfg.DefaultMaxRetries = sched.MaxRetries
	}
	if sched.BaseRetryDelay > 0 {
		cfg.BaseRetryDelay = sched.BaseRetryDelay
	}
	if sched.MaxRetryDelay > 0 {
		cfg.MaxRetryDelay = sched.MaxRetryDelay
	}
	if sched.BackoffMultiplier > 0 {
		cfg.BackoffMultiplier = sched.BackoffMultiplier
	}
	return cfg
}

// CreateRunRequest is the inbound shape for starting a new run.
type CreateRunRequest struct {
	WorkflowKind model.WorkflowKind
	Target       model.ScanTarget
	ToolIDs      []string
	Config       map[string]any
	CreatedBy    string
}

// Orchestrator composes the engine with optional Postgres persistence
// and metrics. store and m may both be nil: the orchestrator degrades
// to an in-memory-only, unmetered engine wrapper rather than failing to
// construct, per §4.8's "correct with persistence disabled" guarantee.
type Orchestrator struct {
	eng     *engine.Engine
	tmplReg *templates.Registry
	store   *postgres.Store
	metrics *metrics.Metrics
}

// New builds an Orchestrator backed by reg and tmplReg.
func New(reg *registry.Registry, tmplReg *templates.Registry, cfg engine.Config, store *postgres.Store, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		eng:     engine.New(reg, tmplReg, cfg),
		tmplReg: tmplReg,
		store:   store,
		metrics: m,
	}
}

// CreateRun instantiates a new run from a fixed or custom template and
// records the started metric. It never touches Postgres — a run that
// is never executed has nothing worth persisting.
func (o *Orchestrator) CreateRun(req CreateRunRequest) (string, error) {
	var (
		runID string
		err   error
	)
	if req.WorkflowKind == model.WorkflowCustom {
		return "", apperrors.NewValidationError("custom workflows must be created via CreateCustomRun")
	}
	runID, err = o.eng.Create(req.WorkflowKind, req.Target, req.ToolIDs, req.Config, req.CreatedBy)
	if err != nil {
		return "", err
	}
	o.metrics.RecordRunStarted(string(req.WorkflowKind))
	return runID, nil
}

// CreateCustomRun instantiates a run from a caller-supplied template.
func (o *Orchestrator) CreateCustomRun(tmpl model.WorkflowTemplate, req CreateRunRequest) (string, error) {
	runID, err := o.eng.CreateCustom(tmpl, req.Target, req.ToolIDs, req.Config, req.CreatedBy)
	if err != nil {
		return "", err
	}
	o.metrics.RecordRunStarted(string(model.WorkflowCustom))
	return runID, nil
}

// ExecuteRun runs runID to completion, pause, cancellation, or ctx
// expiry, mirrors the resulting state (and any new checkpoints and
// task executions) to Postgres when persistence is configured, and
// records the run/node/task metrics for whatever progress was made.
func (o *Orchestrator) ExecuteRun(ctx context.Context, runID string) (*model.WorkflowState, error) {
	log := logging.NewFields().Component("orchestrator").Operation("execute_run").
		Resource("run", runID).ToLogrus()

	started := time.Now()
	state, err := o.eng.Execute(ctx, runID)
	if err != nil {
		logrus.WithFields(log).WithError(err).Error("execute failed")
		return nil, err
	}

	o.recordNodeAndTaskMetrics(state)
	o.persist(ctx, runID, state)

	if state.IsCompleted() {
		o.metrics.RecordRunCompleted(string(state.Context.WorkflowKind), string(state.Status), time.Since(started))
	}
	return state, nil
}

func (o *Orchestrator) recordNodeAndTaskMetrics(state *model.WorkflowState) {
	for _, nr := range state.NodeResults {
		o.metrics.RecordNodeExecution(nr.NodeName, string(nr.Status), nr.Duration())
		for _, tr := range nr.ToolResults {
			o.metrics.RecordTaskExecution(tr.ToolID, string(tr.Status), tr.Duration())
		}
	}
}

// persist mirrors state, its checkpoint log, and its task executions to
// Postgres. A nil store makes this a no-op; persistence failures are
// logged and swallowed — the in-memory engine remains the source of
// truth for the caller of ExecuteRun, so a storage hiccup must never
// fail the execution that triggered it.
func (o *Orchestrator) persist(ctx context.Context, runID string, state *model.WorkflowState) {
	if o.store == nil {
		return
	}
	log := logging.NewFields().Component("orchestrator").Operation("persist").
		Resource("run", runID).ToLogrus()

	if err := o.store.SaveRun(ctx, state); err != nil {
		logrus.WithFields(log).WithError(err).Error("failed to persist run snapshot")
		return
	}

	checkpoints, err := o.eng.ListCheckpoints(runID)
	if err != nil {
		logrus.WithFields(log).WithError(err).Warn("failed to list checkpoints for persistence")
	}
	for _, c := range checkpoints {
		if err := o.store.SaveCheckpoint(ctx, runID, c); err != nil {
			logrus.WithFields(log).WithError(err).WithField("checkpoint", c.CheckpointID).Warn("failed to persist checkpoint")
		}
	}

	for _, nr := range state.NodeResults {
		for _, tr := range nr.ToolResults {
			if err := o.store.SaveTaskExecution(ctx, runID, nr.NodeName, nr.NodeKind, tr); err != nil {
				logrus.WithFields(log).WithError(err).WithField("tool", tr.ToolID).Warn("failed to persist task execution")
			}
		}
	}
}

// Status returns runID's condensed Summary, falling back to Postgres
// when the in-memory engine no longer holds the run (e.g. after a
// restart).
func (o *Orchestrator) Status(runID string) (model.Summary, error) {
	summary, err := o.eng.Status(runID)
	if err == nil {
		return summary, nil
	}
	if o.store == nil {
		return model.Summary{}, err
	}
	state, storeErr := o.store.GetRun(context.Background(), runID)
	if storeErr != nil {
		return model.Summary{}, err
	}
	return state.Summarize(), nil
}

// State returns runID's full WorkflowState, falling back to Postgres
// the same way Status does.
func (o *Orchestrator) State(runID string) (*model.WorkflowState, error) {
	state, err := o.eng.State(runID)
	if err == nil {
		return state, nil
	}
	if o.store == nil {
		return nil, err
	}
	state, storeErr := o.store.GetRun(context.Background(), runID)
	if storeErr != nil {
		return nil, err
	}
	return state, nil
}

// Pause suspends runID after its current node finishes.
func (o *Orchestrator) Pause(runID string) error {
	return o.eng.Pause(runID)
}

// Resume restarts a paused run, optionally rewinding to checkpointID
// first (empty string resumes from the live in-memory state).
func (o *Orchestrator) Resume(ctx context.Context, runID, checkpointID string) (*model.WorkflowState, error) {
	state, err := o.eng.Resume(ctx, runID, checkpointID)
	if err != nil {
		return nil, err
	}
	o.recordNodeAndTaskMetrics(state)
	o.persist(ctx, runID, state)
	return state, nil
}

// Cancel stops runID as soon as its current node observes ctx
// cancellation.
func (o *Orchestrator) Cancel(runID string) error {
	return o.eng.Cancel(runID)
}

// List returns in-memory run summaries, optionally filtered by status.
func (o *Orchestrator) List(status *model.Status) []model.Summary {
	return o.eng.List(status)
}

// ListRuns returns persisted run summaries, optionally filtered by
// status and/or workflow kind. It requires Postgres persistence.
func (o *Orchestrator) ListRuns(ctx context.Context, status *model.Status, kind *model.WorkflowKind, limit, offset int) ([]model.Summary, error) {
	if o.store == nil {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, "run history requires persistence to be configured")
	}
	return o.store.ListRuns(ctx, status, kind, limit, offset)
}

// ListCheckpoints returns runID's retained checkpoint records.
func (o *Orchestrator) ListCheckpoints(runID string) ([]model.CheckpointRecord, error) {
	return o.eng.ListCheckpoints(runID)
}

// ListTemplates returns the fixed workflow templates available for
// CreateRun.
func (o *Orchestrator) ListTemplates() []model.WorkflowTemplate {
	return o.tmplReg.List()
}

// Delete removes runID from the in-memory engine and, if configured,
// from Postgres.
func (o *Orchestrator) Delete(runID string) error {
	if err := o.eng.Delete(runID); err != nil {
		return err
	}
	if o.store == nil {
		return nil
	}
	if err := o.store.DeleteRun(context.Background(), runID); err != nil && !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		return err
	}
	return nil
}

// Close releases the Postgres connection pool, if one was configured.
func (o *Orchestrator) Close() error {
	if o.store == nil {
		return nil
	}
	return o.store.Close()
}
