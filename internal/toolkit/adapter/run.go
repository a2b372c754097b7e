package adapter

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/orchestrator-core/internal/platform/apperrors"
	"github.com/jordigilh/orchestrator-core/internal/platform/logging"
	"github.com/jordigilh/orchestrator-core/internal/workflow/model"
	"github.com/jordigilh/orchestrator-core/internal/workflow/resilience"
)

// defaultConfidenceScore is used when an adapter's Parse leaves a
// finding's confidence score unset.
const defaultConfidenceScore = 50

// RunOption tunes a single Run call without changing its signature for
// every caller that doesn't need the option.
type RunOption func(*runOptions)

type runOptions struct {
	breaker *resilience.Breaker
}

// WithBreaker routes the adapter's Execute step through b, so a tool
// that is failing fast trips the breaker instead of being retried into
// a string of timeouts.
func WithBreaker(b *resilience.Breaker) RunOption {
	return func(o *runOptions) { o.breaker = b }
}

// Run sequences capability → validate → execute → parse the way every
// adapter needs it sequenced, wraps each step's error in a typed
// *apperrors.AppError, and applies the framework-wide normalization
// defaults (finding id, severity, confidence) so no adapter has to
// repeat that logic.
func Run(ec ExecutionContext, a Adapter, req ScanRequest, opts ...RunOption) ([]model.Finding, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}

	cap := a.Capability()
	log := logging.NewFields().Component("adapter").Operation("run").
		Resource("tool", cap.ToolID).ToLogrus()
	logrus.WithFields(log).Info("starting scan")

	if err := a.Validate(req); err != nil {
		logrus.WithFields(log).WithError(err).Error("validation failed")
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, fmt.Sprintf("validation failed for tool %s", cap.ToolID))
	}

	raw, err := execute(ec, a, req, o.breaker)
	if err != nil {
		logrus.WithFields(log).WithError(err).Error("execution failed")
		if errors.Is(err, resilience.ErrOpen) {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeExecution, fmt.Sprintf("tool %s: circuit breaker open", cap.ToolID))
		}
		return nil, apperrors.NewExecutionError(cap.ToolID, err)
	}

	findings, err := a.Parse(raw, req)
	if err != nil {
		logrus.WithFields(log).WithError(err).Error("parse failed")
		return nil, apperrors.NewParseError(cap.ToolID, err)
	}

	normalizeFindings(findings, req)
	logrus.WithFields(log).WithField("finding_count", len(findings)).Info("scan complete")
	return findings, nil
}

// execute runs a.Execute directly, or through breaker when one is
// given, so Run stays the single place that decides whether a tool is
// circuit-protected.
func execute(ec ExecutionContext, a Adapter, req ScanRequest, breaker *resilience.Breaker) (RawOutput, error) {
	if breaker == nil {
		return a.Execute(ec, req)
	}
	var raw RawOutput
	err := breaker.Call(func() error {
		out, err := a.Execute(ec, req)
		raw = out
		return err
	})
	return raw, err
}

// normalizeFindings fills in the fields every Finding must carry but
// that an adapter's Parse is allowed to leave unset: run id, a stable
// finding id, and severity/confidence defaults.
func normalizeFindings(findings []model.Finding, req ScanRequest) {
	for i := range findings {
		f := &findings[i]
		f.RunID = req.RunID
		if f.FindingID == "" {
			f.FindingID = GenerateFindingID(req.RunID, req.ToolID, i)
		}
		if f.Source.ToolID == "" {
			f.Source.ToolID = req.ToolID
		}
		if f.Severity.Level == "" {
			f.Severity.Level = model.ScoreToLevel(f.Severity.Score)
		} else if f.Severity.Score == 0 && f.Severity.Level != model.SeverityInfo {
			f.Severity.Score = model.LevelToScore(f.Severity.Level)
		}
		if f.Confidence.Score == 0 {
			f.Confidence.Score = defaultConfidenceScore
		}
		if f.Verification.Status == "" {
			f.Verification.Status = model.VerificationUnverified
		}
	}
}

// GenerateFindingID derives a deterministic, unique-within-a-run finding
// id from the run id, tool id, and the finding's index within that
// tool's parse output.
func GenerateFindingID(runID, toolID string, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", runID, toolID, index)))
	return "fnd_" + hex.EncodeToString(h[:])[:16]
}
