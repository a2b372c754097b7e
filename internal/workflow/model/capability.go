package model

import "time"

// InputRequirements declares what a tool needs from the scan target
// before it can run.
type InputRequirements struct {
	NeedsSource        bool `json:"needs_source"`
	NeedsBinary        bool `json:"needs_binary"`
	NeedsRunningTarget bool `json:"needs_running_target"`
	NeedsManifest      bool `json:"needs_manifest"`
}

// OutputFormat declares the shape of a tool's raw output, so the
// framework's run() template knows what it is handing to Parse.
type OutputFormat struct {
	NativeFormat string   `json:"native_format"`
	ResultFields []string `json:"result_fields,omitempty"`
}

// ExecutionConfig declares how a tool is invoked and the minimum
// resources its execute step needs to run reliably.
type ExecutionConfig struct {
	CommandTemplate   string `json:"command_template"`
	DefaultTimeoutSec int    `json:"default_timeout_sec"`
	MinMemoryMB       int    `json:"min_memory_mb"`
	MinCPUCores       int    `json:"min_cpu_cores"`
	// FindingsExitCode, when non-zero, is an exit code the scanner uses
	// to mean "ran successfully and found something" rather than
	// "failed" — e.g. the composition-scanner convention of exit 1
	// meaning findings-present. Zero means "only 0 is success".
	FindingsExitCode int `json:"findings_exit_code,omitempty"`
}

// ToolCapability is the declarative, immutable-once-registered metadata
// an adapter exposes about itself.
type ToolCapability struct {
	ToolID             string              `json:"tool_id"`
	DisplayName        string              `json:"display_name"`
	Version            string              `json:"version"`
	Kind               ToolKind            `json:"kind"`
	Vendor             string              `json:"vendor,omitempty"`
	Description        string              `json:"description,omitempty"`
	SupportedLanguages []string            `json:"supported_languages,omitempty"`
	DetectionClasses   []string            `json:"detection_classes,omitempty"`
	WeaknessCoverage   []string            `json:"weakness_coverage,omitempty"`
	InputRequirements  InputRequirements   `json:"input_requirements"`
	Output             OutputFormat        `json:"output"`
	Execution          ExecutionConfig     `json:"execution"`
	RegisteredAt       time.Time           `json:"registered_at"`
}

// SupportsLanguage reports whether the capability declares support for
// lang. An empty SupportedLanguages list is treated as "any language",
// matching the recommender's documented behavior in §4.4.
func (c ToolCapability) SupportsLanguage(lang string) bool {
	if lang == "" || len(c.SupportedLanguages) == 0 {
		return true
	}
	for _, l := range c.SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// HasDetectionClass reports whether the capability declares tag among
// its detection classes.
func (c ToolCapability) HasDetectionClass(tag string) bool {
	for _, t := range c.DetectionClasses {
		if t == tag {
			return true
		}
	}
	return false
}
