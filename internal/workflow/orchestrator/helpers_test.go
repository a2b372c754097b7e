package orchestrator_test

import (
	"github.com/jordigilh/orchestrator-core/internal/toolkit/adapter"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// stubAdapter is a minimal in-process Adapter for orchestrator tests.
type stubAdapter struct {
	id       string
	findings []model.Finding
}

func (s *stubAdapter) Capability() model.ToolCapability {
	return model.ToolCapability{ToolID: s.id, DisplayName: s.id, Kind: model.ToolStatic}
}

func (s *stubAdapter) Validate(adapter.ScanRequest) error { return nil }

func (s *stubAdapter) Execute(adapter.ExecutionContext, adapter.ScanRequest) (adapter.RawOutput, error) {
	return adapter.RawOutput{Payload: []byte("{}")}, nil
}

func (s *stubAdapter) Parse(adapter.RawOutput, adapter.ScanRequest) ([]model.Finding, error) {
	return s.findings, nil
}

func findingWith(severity model.SeverityLevel, confidence int) model.Finding {
	return model.Finding{
		Severity:   model.Severity{Level: severity, Score: model.LevelToScore(severity)},
		Confidence: model.Confidence{Score: confidence},
	}
}
