package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortRunsNewestFirst(t *testing.T) {
	runs := []Run{
		{RunID: "old", CreatedAt: "2025-01-01T10:00:00+00:00"},
		{RunID: "new", CreatedAt: "2025-06-01T10:00:00+00:00"},
		{RunID: "mid", CreatedAt: "2025-03-01T10:00:00+00:00"},
	}

	sorted := SortRuns(runs)

	require.Len(t, sorted, 3)
	assert.Equal(t, "new", sorted[0].RunID)
	assert.Equal(t, "mid", sorted[1].RunID)
	assert.Equal(t, "old", sorted[2].RunID)
}

func TestSortRunsMissingTimestampLast(t *testing.T) {
	runs := []Run{
		{RunID: "blank"},
		{RunID: "dated", CreatedAt: "2025-01-01T10:00:00Z"},
		{RunID: "garbage", CreatedAt: "not-a-time"},
	}

	sorted := SortRuns(runs)

	assert.Equal(t, "dated", sorted[0].RunID)
	// Both undated runs sort as epoch and keep arrival order.
	assert.Equal(t, "blank", sorted[1].RunID)
	assert.Equal(t, "garbage", sorted[2].RunID)
}

func TestSortRunsDoesNotMutateInput(t *testing.T) {
	runs := []Run{
		{RunID: "a", CreatedAt: "2025-01-01T10:00:00Z"},
		{RunID: "b", CreatedAt: "2025-02-01T10:00:00Z"},
	}

	_ = SortRuns(runs)

	assert.Equal(t, "a", runs[0].RunID)
}

func TestCreatedTimeParsesISOVariants(t *testing.T) {
	tests := []struct {
		name string
		in   string
		zero bool
	}{
		{"rfc3339", "2025-01-01T10:00:00Z", false},
		{"offset", "2025-01-01T10:00:00+02:00", false},
		{"fractional", "2025-01-01T10:00:00.123456+00:00", false},
		{"naive", "2025-01-01T10:00:00", false},
		{"empty", "", true},
		{"garbage", "yesterday", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Run{CreatedAt: tt.in}.CreatedTime()
			assert.Equal(t, tt.zero, got.IsZero())
		})
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		phase string
		want  bool
	}{
		{"Succeeded", true},
		{"Failed", true},
		{"Error", true},
		{"Skipped", true},
		{"Running", false},
		{"Pending", false},
		{"Submitted", false},
		{"", false},
		{"Twirling", false},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			r := Run{Status: RunStatus{Phase: tt.phase}}
			assert.Equal(t, tt.want, r.Terminal())
		})
	}
}
