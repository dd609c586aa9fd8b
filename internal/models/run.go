package models

import (
	"sort"
	"time"
)

type WorkflowKind string

const (
	WorkflowCTGAN  WorkflowKind = "ctgan"
	WorkflowLLM    WorkflowKind = "llm"
	WorkflowCustom WorkflowKind = "custom"
)

// Canonical phase values reported by the backend. Unrecognized raw
// strings are kept as-is and classified as neutral.
const (
	PhasePending   = "Pending"
	PhaseSubmitted = "Submitted"
	PhaseRunning   = "Running"
	PhaseSucceeded = "Succeeded"
	PhaseFailed    = "Failed"
	PhaseError     = "Error"
	PhaseSkipped   = "Skipped"
	PhaseUnknown   = "Unknown"
)

// RunStatus mirrors the status block the backend copies out of Argo.
type RunStatus struct {
	Phase      string `json:"phase"`
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
	Progress   string `json:"progress,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Run is one submitted workflow as the backend reports it. The client
// never mutates a Run; each poll replaces the whole record.
type Run struct {
	RunID            string         `json:"run_id"`
	Workflow         WorkflowKind   `json:"workflow"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	ArgoName         string         `json:"argo_name,omitempty"`
	Namespace        string         `json:"namespace,omitempty"`
	SubmittedAt      string         `json:"submitted_at,omitempty"`
	Status           RunStatus      `json:"status"`
	InputObject      string         `json:"input_object,omitempty"`
	ResultObject     string         `json:"result_object,omitempty"`
	InputFileName    string         `json:"input_file_name,omitempty"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	CreatedAt        string         `json:"created_at,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`
}

// CreatedTime parses created_at. Missing or unparsable timestamps
// return the zero time so those runs sort after everything else.
func (r Run) CreatedTime() time.Time {
	return parseTimestamp(r.CreatedAt)
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Terminal reports whether the run has reached a phase the backend
// will never advance past.
func (r Run) Terminal() bool {
	switch ClassifyPhase(r.Status.Phase) {
	case PhaseCategorySuccess, PhaseCategoryFailure:
		return true
	}
	return normalizePhase(r.Status.Phase) == "skipped"
}

// SortRuns returns a new slice ordered by created_at descending.
// Equal timestamps keep their input order.
func SortRuns(runs []Run) []Run {
	out := make([]Run, len(runs))
	copy(out, runs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedTime().After(out[j].CreatedTime())
	})
	return out
}
