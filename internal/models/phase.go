package models

import "strings"

// PhaseCategory groups raw phase strings into the four buckets the
// presentation layer colors by.
type PhaseCategory int

const (
	PhaseCategoryNeutral PhaseCategory = iota
	PhaseCategoryActive
	PhaseCategorySuccess
	PhaseCategoryFailure
)

func (c PhaseCategory) String() string {
	switch c {
	case PhaseCategoryActive:
		return "active"
	case PhaseCategorySuccess:
		return "success"
	case PhaseCategoryFailure:
		return "failure"
	default:
		return "neutral"
	}
}

func normalizePhase(phase string) string {
	return strings.ToLower(strings.TrimSpace(phase))
}

// ClassifyPhase maps a raw phase string, case-insensitively, to its
// display category. Anything unrecognized, including the empty
// string, is neutral.
func ClassifyPhase(phase string) PhaseCategory {
	switch normalizePhase(phase) {
	case "succeeded", "completed":
		return PhaseCategorySuccess
	case "failed", "error":
		return PhaseCategoryFailure
	case "running", "pending", "submitted":
		return PhaseCategoryActive
	default:
		return PhaseCategoryNeutral
	}
}

// PhaseLabel normalizes a raw phase for display: first character
// uppercased, the rest lowercased. An absent phase renders as
// "Unknown".
func PhaseLabel(phase string) string {
	p := strings.TrimSpace(phase)
	if p == "" {
		return PhaseUnknown
	}
	return strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
}
