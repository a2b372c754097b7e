package model

import (
	"fmt"
	"time"
)

// WorkflowState is the single mutable object the engine advances
// node-by-node as it walks a template's node graph.
type WorkflowState struct {
	Context RunContext `json:"context"`
	Target  ScanTarget `json:"target"`

	Status      Status `json:"status"`
	CurrentNode string `json:"current_node,omitempty"`

	ToolIDs     []string       `json:"tool_ids,omitempty"`
	ToolOptions map[string]any `json:"tool_options,omitempty"`

	NodeResults []NodeResult `json:"node_results,omitempty"`
	Findings    []Finding    `json:"findings,omitempty"`

	Errors     []string `json:"errors,omitempty"`
	RetryCount int      `json:"retry_count"`

	CheckpointID        string     `json:"checkpoint_id,omitempty"`
	LastCheckpointTime  *time.Time `json:"last_checkpoint_time,omitempty"`

	RequiresHumanReview bool           `json:"requires_human_review"`
	HumanReviewData     map[string]any `json:"human_review_data,omitempty"`

	StartTime     *time.Time     `json:"start_time,omitempty"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	TotalDuration *time.Duration `json:"total_duration,omitempty"`
}

// NewWorkflowState builds a fresh, PENDING state for a run.
func NewWorkflowState(ctx RunContext, target ScanTarget, toolIDs []string) *WorkflowState {
	return &WorkflowState{
		Context: ctx,
		Target:  target,
		Status:  StatusPending,
		ToolIDs: toolIDs,
	}
}

// AddNodeResult appends result to the node-result log, advances
// CurrentNode, and records an error entry if the node failed.
func (s *WorkflowState) AddNodeResult(result NodeResult) {
	s.NodeResults = append(s.NodeResults, result)
	s.CurrentNode = result.NodeName
	if result.IsFailed() {
		s.AddError(fmt.Sprintf("node %s failed: %s", result.NodeName, result.Error))
	}
}

// AddError appends a message to the run's error list.
func (s *WorkflowState) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// IsCompleted reports whether the run has reached a terminal status.
func (s *WorkflowState) IsCompleted() bool {
	return s.Status.IsTerminal()
}

// IsPaused reports whether the run is suspended awaiting human review
// or a resume call.
func (s *WorkflowState) IsPaused() bool {
	return s.Status == StatusPaused
}

// TotalFindings returns the number of findings accumulated so far.
func (s *WorkflowState) TotalFindings() int {
	return len(s.Findings)
}

// Summary is the condensed view returned by status queries and included
// in ExecutionResponse.
type Summary struct {
	RunID           string     `json:"run_id"`
	WorkflowKind    string     `json:"workflow_kind"`
	Status          Status     `json:"status"`
	CurrentNode     string     `json:"current_node,omitempty"`
	CompletedNodes  int        `json:"completed_nodes"`
	TotalNodes      int        `json:"total_nodes"`
	ProgressPercent float64    `json:"progress_percent"`
	TotalFindings   int        `json:"total_findings"`
	TotalErrors     int        `json:"total_errors"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSec     *float64   `json:"duration_seconds,omitempty"`
}

// Summarize produces the Summary snapshot for this state. TotalNodes
// and ProgressPercent are left zero here — the engine fills them in,
// since a bare WorkflowState doesn't know its template's node count.
func (s *WorkflowState) Summarize() Summary {
	var dur *float64
	if s.TotalDuration != nil {
		seconds := s.TotalDuration.Seconds()
		dur = &seconds
	}
	return Summary{
		RunID:          s.Context.RunID,
		WorkflowKind:   string(s.Context.WorkflowKind),
		Status:         s.Status,
		CurrentNode:    s.CurrentNode,
		CompletedNodes: len(s.NodeResults),
		TotalFindings:  s.TotalFindings(),
		TotalErrors:    len(s.Errors),
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		DurationSec:    dur,
	}
}
