package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordigilh/orchestrator-core/internal/toolkit/adapter"
	"github.com/jordigilh/orchestrator-core/internal/toolkit/service"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/scheduler"
	"github.com/jordigilh/orchestrator-core/internal/workflow/templates"
)

// runNode dispatches nodeName to its node function, recovers from any
// panic so an adapter or scheduler bug cannot crash the engine, and
// appends exactly one NodeResult to the run's state either way. An
// uncaught panic/error here is the only case that halts the walk
// outright with no rollback of earlier findings.
func (e *Engine) runNode(ctx context.Context, run *runEntry, nodeName string) {
	fn, ok := nodeFuncs[nodeName]
	if !ok {
		run.state.AddNodeResult(model.NodeResult{
			NodeName: nodeName, Status: model.StatusFailed,
			StartTime: time.Now(), Error: fmt.Sprintf("unknown node kind %q", nodeName),
		})
		run.state.Status = model.StatusFailed
		return
	}

	result := e.safeRun(ctx, run, fn)
	run.state.AddNodeResult(result)
	if result.IsFailed() {
		run.mu.Lock()
		if run.state.Status != model.StatusCancelled {
			run.state.Status = model.StatusFailed
		}
		run.mu.Unlock()
	}
}

// safeRun executes fn, converting a panic into a failed NodeResult so
// the caller never has to special-case a crashed node function.
func (e *Engine) safeRun(ctx context.Context, run *runEntry, fn nodeFunc) (result model.NodeResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			end := time.Now()
			result = model.NodeResult{
				NodeName: result.NodeName, NodeKind: result.NodeKind,
				Status: model.StatusFailed, StartTime: start, EndTime: &end,
				Error: fmt.Sprintf("node panicked: %v", r),
			}
		}
	}()
	return fn(ctx, e, run)
}

type nodeFunc func(ctx context.Context, e *Engine, run *runEntry) model.NodeResult

var nodeFuncs = map[string]nodeFunc{
	string(model.NodeInitialize):   nodeInitialize,
	string(model.NodeScan):         nodeSingleScan,
	string(model.NodeParallelScan): nodeParallelScan,
	string(model.NodeCollect):      nodeCollect,
	string(model.NodeValidate):     nodeValidate,
	string(model.NodeHumanReview):  nodeHumanReview,
	string(model.NodeFinalize):     nodeFinalize,
}

func startResult(name string, kind model.NodeKind) model.NodeResult {
	return model.NodeResult{NodeName: name, NodeKind: kind, StartTime: time.Now()}
}

func endResult(r model.NodeResult, status model.Status) model.NodeResult {
	end := time.Now()
	r.EndTime = &end
	r.Status = status
	return r
}

// nodeInitialize fills tool_ids from the registry when the caller
// omitted them, validates the target path, and marks the run RUNNING.
func nodeInitialize(ctx context.Context, e *Engine, run *runEntry) model.NodeResult {
	r := startResult(string(model.NodeInitialize), model.NodeInitialize)

	if err := templates.ValidateInput(run.template, run.state); err != nil {
		r.Error = err.Error()
		return endResult(r, model.StatusFailed)
	}

	if len(run.state.ToolIDs) == 0 {
		run.state.ToolIDs = e.registry.IDs()
	}
	if len(run.state.ToolIDs) == 0 {
		r.Error = "no tools registered and none requested"
		return endResult(r, model.StatusFailed)
	}

	run.state.Status = model.StatusRunning
	r.Output = map[string]any{"tool_ids": run.state.ToolIDs}
	return endResult(r, model.StatusSuccess)
}

// nodeSingleScan runs every requested tool sequentially via the tool
// service, appending findings and per-tool results. The node only
// fails when every tool failed; individual tool failures are recorded
// but tolerated.
func nodeSingleScan(ctx context.Context, e *Engine, run *runEntry) model.NodeResult {
	return runScanNode(ctx, e, run, model.NodeScan, false)
}

// nodeParallelScan runs every requested tool concurrently through the
// run's own scheduler, bounded by the template's max_parallel.
func nodeParallelScan(ctx context.Context, e *Engine, run *runEntry) model.NodeResult {
	return runScanNode(ctx, e, run, model.NodeParallelScan, true)
}

// runScanNode schedules every requested tool through the run's own
// scheduler — sequentially (priority order, no fan-out) for a
// single-scan node, concurrently for a parallel-scan node — so both
// node kinds get the scheduler's per-task timeout and retry/backoff.
// The node only fails when every tool failed; individual tool
// failures, including ones that exhausted their retries, are recorded
// but tolerated.
func runScanNode(ctx context.Context, e *Engine, run *runEntry, kind model.NodeKind, parallel bool) model.NodeResult {
	r := startResult(string(kind), kind)
	req := service.Request{RunID: run.state.Context.RunID, Target: run.state.Target, ToolIDs: run.state.ToolIDs}

	tasks := buildScanTasks(e, run, req)
	var results []scheduler.TaskResult
	if parallel {
		results = run.sched.ScheduleParallel(ctx, tasks, false)
	} else {
		results = run.sched.ScheduleSequential(ctx, tasks, false)
	}

	toolResults := make([]model.ToolExecutionResult, 0, len(results))
	succeeded := 0
	retries := 0
	for _, res := range results {
		retries += res.RetryCount
		resp, ok := res.Result.(service.Response)

		status, errMsg, findingCount := model.StatusFailed, res.Error, 0
		if ok && res.Status == model.StatusSuccess {
			status, errMsg = model.StatusSuccess, ""
			succeeded++
			findingCount = len(resp.Findings)
			run.state.Findings = append(run.state.Findings, resp.Findings...)
		} else if ok {
			errMsg = resp.Error
		}

		toolResults = append(toolResults, model.ToolExecutionResult{
			ToolID: res.TaskID, Status: status, StartTime: res.StartTime,
			EndTime: timePtr(res.EndTime), FindingCount: findingCount, Error: errMsg,
		})
	}
	r.ToolResults = toolResults
	r.RetryCount = retries
	run.state.RetryCount += retries

	if len(results) > 0 && succeeded == 0 {
		r.Error = "every tool failed"
		return endResult(r, model.StatusFailed)
	}
	return endResult(r, model.StatusSuccess)
}

// buildScanTasks turns each requested tool id into a scheduler Task
// that runs ScanOne as its Fn, carrying the engine's configured
// per-task timeout and retry/backoff so the scheduler — not the
// engine — owns every retry decision for a failed scan.
func buildScanTasks(e *Engine, run *runEntry, req service.Request) []scheduler.Task {
	maxRetries := maxRetriesOf(run, e.cfg)
	tasks := make([]scheduler.Task, len(req.ToolIDs))
	for i, id := range req.ToolIDs {
		id := id
		tasks[i] = scheduler.Task{
			ID:             id,
			Name:           id,
			Timeout:        e.cfg.DefaultTaskTimeout,
			MaxRetries:     maxRetries,
			BaseRetryDelay: e.cfg.BaseRetryDelay,
			Fn: func(taskCtx context.Context) (any, error) {
				resp := e.svc.ScanOne(adapter.ExecutionContext{Ctx: taskCtx}, id, service.Request{RunID: req.RunID, Target: req.Target})
				if !resp.Success {
					return resp, errors.New(resp.Error)
				}
				return resp, nil
			},
		}
	}
	return tasks
}

func timePtr(t time.Time) *time.Time { return &t }

// nodeCollect aggregates the run's accumulated findings into a
// severity histogram and a per-tool histogram, without filtering
// anything out of state.Findings.
func nodeCollect(ctx context.Context, e *Engine, run *runEntry) model.NodeResult {
	r := startResult(string(model.NodeCollect), model.NodeCollect)

	severityHist := make(map[string]int)
	toolHist := make(map[string]int)
	for _, f := range run.state.Findings {
		severityHist[string(f.Severity.Level)]++
		toolHist[f.Source.ToolID]++
	}

	r.Output = map[string]any{
		"severity_histogram": severityHist,
		"tool_histogram":     toolHist,
		"total_findings":     len(run.state.Findings),
	}
	return endResult(r, model.StatusSuccess)
}

// nodeValidate drops findings whose normalized confidence score
// (Confidence.Score, 0..100) falls below the run's configured
// threshold scaled to the same 0..100 range, recording kept/dropped
// counts.
func nodeValidate(ctx context.Context, e *Engine, run *runEntry) model.NodeResult {
	r := startResult(string(model.NodeValidate), model.NodeValidate)

	threshold := validationThresholdOf(run, e.cfg) * 100
	kept := make([]model.Finding, 0, len(run.state.Findings))
	dropped := 0
	for _, f := range run.state.Findings {
		if float64(f.Confidence.Score) < threshold {
			dropped++
			continue
		}
		kept = append(kept, f)
	}
	run.state.Findings = kept

	r.Output = map[string]any{"kept": len(kept), "dropped": dropped}
	return endResult(r, model.StatusSuccess)
}

// nodeHumanReview pauses the run for a manual sign-off: the engine's
// walk loop sees PAUSED and stops.
func nodeHumanReview(ctx context.Context, e *Engine, run *runEntry) model.NodeResult {
	r := startResult(string(model.NodeHumanReview), model.NodeHumanReview)

	severityHist := make(map[string]int)
	for _, f := range run.state.Findings {
		severityHist[string(f.Severity.Level)]++
	}
	run.state.RequiresHumanReview = true
	run.state.HumanReviewData = map[string]any{
		"total_findings":     len(run.state.Findings),
		"severity_histogram": severityHist,
	}
	run.state.Status = model.StatusPaused

	return endResult(r, model.StatusPaused)
}

// nodeFinalize stamps the run's end time and total duration, and
// promotes status to SUCCESS unless an earlier node already left it
// in a terminal failure/cancellation state or errors were recorded.
func nodeFinalize(ctx context.Context, e *Engine, run *runEntry) model.NodeResult {
	r := startResult(string(model.NodeFinalize), model.NodeFinalize)

	now := time.Now()
	run.state.EndTime = &now
	if run.state.StartTime != nil {
		d := now.Sub(*run.state.StartTime)
		run.state.TotalDuration = &d
	}

	if len(run.state.Errors) == 0 && run.state.Status != model.StatusCancelled {
		run.state.Status = model.StatusSuccess
	}
	return endResult(r, model.StatusSuccess)
}
