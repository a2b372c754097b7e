package model

import "strings"

// ScoreToLevel maps a numeric severity score in [0.0, 10.0] to the fixed,
// tool-independent normalized level. The boundaries are closed/open as
// specified: CRITICAL [9,10], HIGH [7,9), MEDIUM [4,7), LOW [0.1,4),
// INFO = 0.
func ScoreToLevel(score float64) SeverityLevel {
	switch {
	case score >= 9.0:
		return SeverityCritical
	case score >= 7.0:
		return SeverityHigh
	case score >= 4.0:
		return SeverityMedium
	case score >= 0.1:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// LevelToScore returns a representative score for a normalized level,
// used when an adapter has only a native label and no numeric score to
// default through. The value returned always round-trips through
// ScoreToLevel back to the same level.
func LevelToScore(level SeverityLevel) float64 {
	switch level {
	case SeverityCritical:
		return 9.5
	case SeverityHigh:
		return 8.0
	case SeverityMedium:
		return 5.5
	case SeverityLow:
		return 2.0
	default:
		return 0.0
	}
}

// nativeSeverityMaps holds the per-tool-kind native-label to
// normalized-level lookup. Keys are uppercased before lookup so adapters
// don't need to normalize case themselves.
var nativeSeverityMaps = map[ToolKind]map[string]SeverityLevel{
	ToolStatic: {
		"ERROR":   SeverityHigh,
		"WARNING": SeverityMedium,
		"INFO":    SeverityInfo,
		"NOTE":    SeverityInfo,
	},
	ToolComposition: {
		"CRITICAL": SeverityCritical,
		"HIGH":     SeverityHigh,
		"MEDIUM":   SeverityMedium,
		"LOW":      SeverityLow,
		"UNKNOWN":  SeverityMedium,
	},
	ToolSecrets: {
		"CRITICAL": SeverityCritical,
		"HIGH":     SeverityHigh,
		"MEDIUM":   SeverityMedium,
		"LOW":      SeverityLow,
	},
	ToolDynamic: {
		"CRITICAL": SeverityCritical,
		"HIGH":     SeverityHigh,
		"MEDIUM":   SeverityMedium,
		"LOW":      SeverityLow,
		"INFO":     SeverityInfo,
	},
	ToolContainer: {
		"CRITICAL": SeverityCritical,
		"HIGH":     SeverityHigh,
		"MEDIUM":   SeverityMedium,
		"LOW":      SeverityLow,
		"NEGLIGIBLE": SeverityInfo,
	},
}

// NormalizeSeverityLabel maps a scanner's native severity label to the
// normalized level, parameterized by the tool kind that produced it.
// This is a total function: a tool kind with no registered map, or a
// label absent from its map, defaults to MEDIUM.
func NormalizeSeverityLabel(kind ToolKind, nativeLabel string) SeverityLevel {
	labels, ok := nativeSeverityMaps[kind]
	if !ok {
		return SeverityMedium
	}
	level, ok := labels[strings.ToUpper(nativeLabel)]
	if !ok {
		return SeverityMedium
	}
	return level
}
