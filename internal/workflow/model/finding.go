package model

import "time"

// FindingKind names the weakness or policy class a finding belongs to.
type FindingKind struct {
	Name           string `json:"name"`
	WeaknessID     string `json:"weakness_id,omitempty"`
	PolicyClassTag string `json:"policy_class_tag,omitempty"`
}

// Location pinpoints a finding within the scanned target. Line and
// column ranges are 1-based and inclusive.
type Location struct {
	FilePath       string `json:"file_path"`
	FunctionName   string `json:"function_name,omitempty"`
	LineStart      int    `json:"line_start"`
	LineEnd        int    `json:"line_end"`
	ColumnStart    int    `json:"column_start,omitempty"`
	ColumnEnd      int    `json:"column_end,omitempty"`
	SourceSnippet  string `json:"source_snippet,omitempty"`
}

// Severity is the normalized severity triple every finding carries.
type Severity struct {
	Level          SeverityLevel  `json:"level"`
	Score          float64        `json:"score"`
	Exploitability Exploitability `json:"exploitability"`
}

// Confidence scores how sure the producing tool is about a finding.
type Confidence struct {
	Score  int    `json:"score"`
	Reason string `json:"reason,omitempty"`
}

// Source records provenance: which tool and rule produced the finding,
// and the raw record it came from.
type Source struct {
	ToolID           string `json:"tool_id"`
	RuleID           string `json:"rule_id,omitempty"`
	OriginalSeverity string `json:"original_severity,omitempty"`
	RawPayload       any    `json:"raw_payload,omitempty"`
}

// Description holds the human-readable narrative for a finding.
type Description struct {
	Summary     string `json:"summary"`
	Detail      string `json:"detail,omitempty"`
	Impact      string `json:"impact,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

// Meta carries cross-cutting metadata that doesn't belong to any one
// of the other finding sections.
type Meta struct {
	DetectedAt    time.Time `json:"detected_at"`
	Language      string    `json:"language,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	ReferenceURLs []string  `json:"reference_urls,omitempty"`
}

// Verification tracks a finding's triage disposition.
type Verification struct {
	Status VerificationStatus `json:"status"`
}

// Finding is the single normalized record every tool adapter produces,
// regardless of which scanner generated it.
type Finding struct {
	FindingID    string       `json:"finding_id"`
	RunID        string       `json:"run_id"`
	Kind         FindingKind  `json:"kind"`
	Location     Location     `json:"location"`
	Severity     Severity     `json:"severity"`
	Confidence   Confidence   `json:"confidence"`
	Source       Source       `json:"source"`
	Description  Description  `json:"description"`
	Meta         Meta         `json:"meta"`
	Verification Verification `json:"verification"`
}

// NewUnverifiedFinding builds a Finding with the fields every adapter
// must fill itself already defaulted: detection timestamp set to now
// and verification status UNVERIFIED. Severity is left for the caller
// to fill.
func NewUnverifiedFinding(findingID, runID string) Finding {
	return Finding{
		FindingID: findingID,
		RunID:     runID,
		Meta:      Meta{DetectedAt: time.Now()},
		Verification: Verification{
			Status: VerificationUnverified,
		},
	}
}
