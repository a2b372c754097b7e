package model

import (
	"time"

	"github.com/google/uuid"
)

// RunContext is the identity and provenance of a single workflow run:
// who started it, with what template, under what configuration.
type RunContext struct {
	RunID        string         `json:"run_id"`
	WorkflowKind WorkflowKind   `json:"workflow_kind"`
	CreatedBy    string         `json:"created_by,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	Config       map[string]any `json:"config,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
}

// NewRunContext builds a RunContext with a freshly generated run id and
// CreatedAt set to now.
func NewRunContext(kind WorkflowKind, createdBy string) RunContext {
	return RunContext{
		RunID:        uuid.NewString(),
		WorkflowKind: kind,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now(),
	}
}
