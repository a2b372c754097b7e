// Package model holds the domain types that flow through every other
// orchestrator-core component: run/node/task statuses, the normalized
// finding record, tool capability metadata, workflow state, checkpoints,
// and workflow templates. Nothing here talks to a database, an adapter,
// or the network — it is pure data plus the severity-mapping helper.
package model

// Status is the lifecycle status shared by runs, nodes, and individual
// task executions.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSuccess   Status = "SUCCESS"
	StatusFailed    Status = "FAILED"
	StatusRetry     Status = "RETRY"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
	StatusSkipped   Status = "SKIPPED"
)

// IsTerminal reports whether a run in this status will not transition
// again without external intervention (resume/retry).
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowKind names one of the five fixed workflow templates.
type WorkflowKind string

const (
	WorkflowCodeCommit        WorkflowKind = "CODE_COMMIT"
	WorkflowDependencyUpdate  WorkflowKind = "DEPENDENCY_UPDATE"
	WorkflowEmergencyVuln     WorkflowKind = "EMERGENCY_VULN"
	WorkflowReleaseRegression WorkflowKind = "RELEASE_REGRESSION"
	WorkflowCustom            WorkflowKind = "CUSTOM"
)

// NodeKind names the fixed set of node functions the engine knows how
// to execute. Templates compose a sequence out of these.
type NodeKind string

const (
	NodeInitialize   NodeKind = "initialize"
	NodeScan         NodeKind = "scan"
	NodeParallelScan NodeKind = "parallel_scan"
	NodeCollect      NodeKind = "collect"
	NodeValidate     NodeKind = "validate"
	NodeHumanReview  NodeKind = "human_review"
	NodeRetry        NodeKind = "retry"
	NodeFinalize     NodeKind = "finalize"
)

// ToolKind classifies what sort of scanner a tool adapter wraps.
type ToolKind string

const (
	ToolStatic      ToolKind = "STATIC"
	ToolDynamic     ToolKind = "DYNAMIC"
	ToolInteractive ToolKind = "INTERACTIVE"
	ToolComposition ToolKind = "COMPOSITION"
	ToolFuzz        ToolKind = "FUZZ"
	ToolSecrets     ToolKind = "SECRETS"
	ToolContainer   ToolKind = "CONTAINER"
)

// SeverityLevel is the normalized severity bucket every finding carries,
// independent of which scanner produced it.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "CRITICAL"
	SeverityHigh     SeverityLevel = "HIGH"
	SeverityMedium   SeverityLevel = "MEDIUM"
	SeverityLow      SeverityLevel = "LOW"
	SeverityInfo     SeverityLevel = "INFO"
)

// Exploitability classifies how actionable a finding's weakness is
// known to be.
type Exploitability string

const (
	ExploitabilityKnown   Exploitability = "KNOWN"
	ExploitabilityLikely  Exploitability = "LIKELY"
	ExploitabilityUnknown Exploitability = "UNKNOWN"
)

// VerificationStatus tracks a finding's disposition after triage.
type VerificationStatus string

const (
	VerificationUnverified    VerificationStatus = "UNVERIFIED"
	VerificationConfirmed     VerificationStatus = "CONFIRMED"
	VerificationFalsePositive VerificationStatus = "FALSE_POSITIVE"
	VerificationSuppressed    VerificationStatus = "SUPPRESSED"
)
