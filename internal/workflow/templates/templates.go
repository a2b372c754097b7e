// Package templates holds the five built-in workflow recipes
// (CODE_COMMIT, DEPENDENCY_UPDATE, EMERGENCY_VULN, RELEASE_REGRESSION,
// CUSTOM) plus a registry to look them up by kind. Templates are
// stateless, effectively-immutable singletons; the engine threads the
// mutable WorkflowState through the node sequence a template names.
package templates

import (
	"time"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

const (
	codeCommitBudget        = 30 * time.Minute
	dependencyUpdateBudget  = 60 * time.Minute
	emergencyVulnBudget     = 60 * time.Minute
	releaseRegressionBudget = 12 * time.Hour

	emergencyParallelism = 6
	defaultParallelism   = 4
)

// CodeCommit returns the CODE_COMMIT template: a fast SAST-only sanity
// check run on every commit.
func CodeCommit() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		TemplateID:   "code_commit",
		DisplayName:  "Code Commit Regression",
		WorkflowKind: model.WorkflowCodeCommit,
		Description:  "Static-analysis-only scan run against a single commit.",
		Nodes:        []string{"initialize", "scan", "collect", "finalize"},
		Edges: []model.Edge{
			{From: "initialize", To: "scan"},
			{From: "scan", To: "collect"},
			{From: "collect", To: "finalize"},
		},
		DefaultConfig: map[string]any{
			"workflow_timeout": codeCommitBudget,
			"max_parallel":     defaultParallelism,
		},
		RequiredTools: []string{},
		OptionalTools: []string{},
		Version:       "1.0",
		Active:        true,
	}
}

// DependencyUpdate returns the DEPENDENCY_UPDATE template: a
// software-composition scan run whenever a manifest changes.
func DependencyUpdate() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		TemplateID:   "dependency_update",
		DisplayName:  "Dependency Update Scan",
		WorkflowKind: model.WorkflowDependencyUpdate,
		Description:  "Software-composition scan triggered by a manifest change.",
		Nodes:        []string{"initialize", "scan", "validate", "finalize"},
		Edges: []model.Edge{
			{From: "initialize", To: "scan"},
			{From: "scan", To: "validate"},
			{From: "validate", To: "finalize"},
		},
		DefaultConfig: map[string]any{
			"workflow_timeout": dependencyUpdateBudget,
			"max_parallel":     defaultParallelism,
		},
		RequiredTools: []string{},
		OptionalTools: []string{},
		Version:       "1.0",
		Active:        true,
	}
}

// EmergencyVuln returns the EMERGENCY_VULN template: a fast fan-out
// scan across both SAST and SCA tooling, raising the parallelism cap.
func EmergencyVuln() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		TemplateID:   "emergency_vuln",
		DisplayName:  "Emergency Vulnerability Scan",
		WorkflowKind: model.WorkflowEmergencyVuln,
		Description:  "Fan-out SAST+SCA scan for an actively disclosed vulnerability.",
		Nodes:        []string{"initialize", "parallel_scan", "collect", "validate", "finalize"},
		Edges: []model.Edge{
			{From: "initialize", To: "parallel_scan"},
			{From: "parallel_scan", To: "collect"},
			{From: "collect", To: "validate"},
			{From: "validate", To: "finalize"},
		},
		DefaultConfig: map[string]any{
			"workflow_timeout": emergencyVulnBudget,
			"max_parallel":     emergencyParallelism,
		},
		RequiredTools: []string{},
		OptionalTools: []string{},
		Version:       "1.0",
		Active:        true,
	}
}

// ReleaseRegression returns the RELEASE_REGRESSION template: a full
// SAST+SCA sweep gated by a human-review pause before release sign-off.
func ReleaseRegression() model.WorkflowTemplate {
	return model.WorkflowTemplate{
		TemplateID:   "release_regression",
		DisplayName:  "Release Regression Sweep",
		WorkflowKind: model.WorkflowReleaseRegression,
		Description:  "Full SAST+SCA sweep with a human sign-off gate before release.",
		Nodes:        []string{"initialize", "parallel_scan", "collect", "validate", "human_review", "finalize"},
		Edges: []model.Edge{
			{From: "initialize", To: "parallel_scan"},
			{From: "parallel_scan", To: "collect"},
			{From: "collect", To: "validate"},
			{From: "validate", To: "human_review"},
			{From: "human_review", To: "finalize"},
		},
		DefaultConfig: map[string]any{
			"workflow_timeout": releaseRegressionBudget,
			"max_parallel":     defaultParallelism,
		},
		RequiredTools: []string{},
		OptionalTools: []string{},
		Version:       "1.0",
		Active:        true,
	}
}

// Custom builds a CUSTOM template from caller-supplied nodes, edges,
// tools, and budget. Unlike the four fixed templates, this one is
// assembled per-request rather than returned from a constant.
func Custom(nodes []string, edges []model.Edge, requiredTools, optionalTools []string, workflowTimeout time.Duration, maxParallel int) model.WorkflowTemplate {
	if maxParallel <= 0 {
		maxParallel = defaultParallelism
	}
	return model.WorkflowTemplate{
		TemplateID:    "custom",
		DisplayName:   "Custom Workflow",
		WorkflowKind:  model.WorkflowCustom,
		Description:   "Caller-supplied node sequence and tool set.",
		Nodes:         nodes,
		Edges:         edges,
		DefaultConfig: map[string]any{"workflow_timeout": workflowTimeout, "max_parallel": maxParallel},
		RequiredTools: requiredTools,
		OptionalTools: optionalTools,
		Version:       "1.0",
		Active:        true,
	}
}

// ValidateInput checks that state satisfies the template's
// prerequisites: the target path is non-empty and every required tool
// is present in state.ToolIDs.
func ValidateInput(t model.WorkflowTemplate, state *model.WorkflowState) error {
	if state.Target.Path == "" {
		return apperrors.NewValidationError("scan target path must not be empty")
	}
	have := make(map[string]bool, len(state.ToolIDs))
	for _, id := range state.ToolIDs {
		have[id] = true
	}
	for _, required := range t.RequiredTools {
		if !have[required] {
			return apperrors.Newf(apperrors.ErrorTypeValidation, "required tool %q missing for template %s", required, t.TemplateID)
		}
	}
	return nil
}
