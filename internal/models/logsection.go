package models

// LogSection is one worker's slice of a run's aggregated log output.
// Sections are rebuilt from scratch on every log fetch.
type LogSection struct {
	PodName     string
	DisplayName string
	Phase       string
	Logs        string
}
