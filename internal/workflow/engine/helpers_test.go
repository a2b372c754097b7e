package engine_test

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/jordigilh/orchestrator-core/internal/toolkit/adapter"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
)

// stubAdapter is a minimal in-process Adapter for engine tests: it
// sleeps for Delay, returns Findings, and fails its first FailTimes
// executions before succeeding (used for the retry scenarios).
type stubAdapter struct {
	id        string
	findings  []model.Finding
	delay     time.Duration
	failTimes int32
	attempts  int32
}

func (s *stubAdapter) Capability() model.ToolCapability {
	return model.ToolCapability{ToolID: s.id, DisplayName: s.id, Kind: model.ToolStatic}
}

func (s *stubAdapter) Validate(adapter.ScanRequest) error { return nil }

func (s *stubAdapter) Execute(ec adapter.ExecutionContext, req adapter.ScanRequest) (adapter.RawOutput, error) {
	if s.delay > 0 {
		select {
		case <-ec.Ctx.Done():
			return adapter.RawOutput{}, ec.Ctx.Err()
		case <-time.After(s.delay):
		}
	}
	n := atomic.AddInt32(&s.attempts, 1)
	if n <= s.failTimes {
		return adapter.RawOutput{}, errors.New("stub scanner crashed")
	}
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
