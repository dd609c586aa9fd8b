// Package logparse turns the backend's loosely structured log
// transport into ordered per-worker sections. Parsing is total: any
// input yields zero or more sections, never an error.
package logparse

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ameen-91/exray/internal/models"
)

// blockHeader matches the section markers the backend emits when it
// aggregates pod logs itself: === <display> [<pod>] (phase: <phase>) ===
var blockHeader = regexp.MustCompile(`(?m)^=== (.+?) \[(.+?)\] \(phase: (.+?)\) ===\r?$`)

// Parse reconstructs log sections from raw text. Three formats are
// attempted in fixed order and the first that yields at least one
// section wins:
//
//  1. structured JSON lines, one record per line
//  2. delimited blocks with "=== ... ===" headers
//  3. the whole input as a single catch-all section
//
// Blank input returns nil.
func Parse(raw string) []models.LogSection {
	if sections := parseStructuredLines(raw); len(sections) > 0 {
		return sections
	}
	if sections := parseDelimitedBlocks(raw); len(sections) > 0 {
		return sections
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return []models.LogSection{{
		DisplayName: "Workflow",
		PodName:     "main",
		Phase:       models.PhaseUnknown,
		Logs:        trimmed,
	}}
}

// structuredLine is the per-line record shape of the Argo log stream.
type structuredLine struct {
	Result struct {
		Content string `json:"content"`
		PodName string `json:"podName"`
	} `json:"result"`
}

// parseStructuredLines scans the input line by line, skipping
// anything that is not a valid record, and groups content fragments
// by pod in arrival order. Malformed lines mixed with valid ones are
// dropped silently; the caller falls back to other formats only when
// no line parses at all.
func parseStructuredLines(raw string) []models.LogSection {
	var order []string
	fragments := make(map[string][]string)

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec structuredLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		pod := rec.Result.PodName
		if pod == "" {
			continue
		}
		if _, seen := fragments[pod]; !seen {
			order = append(order, pod)
		}
		fragments[pod] = append(fragments[pod], rec.Result.Content)
	}

	sections := make([]models.LogSection, 0, len(order))
	for _, pod := range order {
		sections = append(sections, models.LogSection{
			PodName:     pod,
			DisplayName: displayNameFor(pod),
			Phase:       models.PhaseRunning,
			Logs:        strings.Join(fragments[pod], "\n"),
		})
	}
	return sections
}

// displayNameFor strips the trailing hyphen-delimited id from a pod
// name: "job-abc-worker-7f2" becomes "job-abc-worker".
func displayNameFor(pod string) string {
	if idx := strings.LastIndex(pod, "-"); idx > 0 {
		return pod[:idx]
	}
	return pod
}

func parseDelimitedBlocks(raw string) []models.LogSection {
	matches := blockHeader.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	sections := make([]models.LogSection, 0, len(matches))
	for i, m := range matches {
		display := raw[m[2]:m[3]]
		pod := raw[m[4]:m[5]]
		phase := raw[m[6]:m[7]]

		bodyStart := m[1]
		bodyEnd := len(raw)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}

		sections = append(sections, models.LogSection{
			PodName:     pod,
			DisplayName: display,
			Phase:       phase,
			Logs:        strings.TrimSpace(raw[bodyStart:bodyEnd]),
		})
	}
	return sections
}
