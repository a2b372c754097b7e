// Package validation implements the caller-input checks the adapter
// contract (§4.2) and the control-plane surface (§6) require: rejecting
// shell-metacharacter injection in scan paths, bounding string lengths, and
// sanitizing arbitrary text before it is written to a log line.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

const maxLogMessageLength = 200

// shellMetacharacters are the characters §4.2 requires every adapter to
// reject in a scan target path: "<>|&;$`".
const shellMetacharacters = "<>|&;$`"

var sqlInjectionPattern = regexp.MustCompile(`(?i)(union\s+select|;\s*drop\s+table|--|<script)`)

// ValidatePath rejects a scan-target path containing shell metacharacters.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if strings.ContainsAny(path, shellMetacharacters) {
		return fmt.Errorf("path contains disallowed shell metacharacters")
	}
	return nil
}

// ValidateStringInput checks field against a maximum length and rejects
// injection-style or control-character content.
func ValidateStringInput(field, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%s must be %d characters or less", field, maxLength)
	}
	if sqlInjectionPattern.MatchString(value) {
		return fmt.Errorf("%s contains potentially unsafe characters", field)
	}
	for _, r := range value {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return fmt.Errorf("%s contains invalid control characters", field)
		}
	}
	return nil
}

// ValidateToolID checks a tool identifier is a safe, bounded string.
func ValidateToolID(toolID string) error {
	if toolID == "" {
		return fmt.Errorf("tool id is required")
	}
	return ValidateStringInput("tool id", toolID, 128)
}

// SanitizeForLogging replaces control characters with '?' and truncates
// long strings, so untrusted text can be logged safely.
func SanitizeForLogging(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			b.WriteRune('?')
			continue
		}
		b.WriteRune(r)
	}
	result := b.String()
	if len(result) > maxLogMessageLength {
		result = result[:maxLogMessageLength-3] + "..."
	}
	return result
}
