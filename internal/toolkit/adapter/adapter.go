// Package adapter defines the uniform capability/validate/execute/parse
// contract every scanner plugin implements, plus the framework-provided
// Run function that sequences those four operations the way every
// adapter needs them sequenced — adapters never reimplement this.
package adapter

import (
	"context"
	"time"

	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// ScanRequest is what validate/execute/parse are called with: which
// tool, against which target, under which run, with which per-tool
// options.
type ScanRequest struct {
	RunID   string
	ToolID  string
	Target  model.ScanTarget
	Options map[string]any
}

// ExecutionContext carries the execution-time parameters Execute must
// honor: a deadline (derived from Timeout), and an optional working
// directory to cd into before invoking the external scanner.
type ExecutionContext struct {
	Ctx          context.Context
	Timeout      time.Duration
	WorkspaceDir string
}

// RawOutput is a scanner's unprocessed result: the raw bytes it printed
// plus the exit code it returned. ExitCode lets Parse (or Execute, when
// deciding whether a non-zero exit is itself an error) distinguish a
// genuine failure from a documented "findings present" exit code.
type RawOutput struct {
	Payload  []byte
	ExitCode int
}

// Adapter is the contract every scanner plugin implements.
type Adapter interface {
	// Capability returns the adapter's declarative metadata. Pure;
	// called once at registration and cached by the registry.
	Capability() model.ToolCapability

	// Validate checks that req.Target satisfies this tool's input
	// requirements (needs-source/needs-binary/...) and rejects target
	// paths containing shell metacharacters.
	Validate(req ScanRequest) error

	// Execute runs the external scanner under ec, honoring ec.Timeout
	// and ec.WorkspaceDir.
	Execute(ec ExecutionContext, req ScanRequest) (RawOutput, error)

	// Parse converts a scanner's raw output into normalized findings.
	// Implementations must skip individual malformed records (log and
	// continue) rather than aborting the whole parse.
	Parse(raw RawOutput, req ScanRequest) ([]model.Finding, error)
}
