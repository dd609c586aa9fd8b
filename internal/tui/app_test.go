package tui

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameen-91/exray/internal/api"
	"github.com/ameen-91/exray/internal/models"
	"github.com/ameen-91/exray/internal/monitor"
)

type staticLister struct {
	runs []models.Run
}

func (l *staticLister) ListRuns(ctx context.Context, force bool) ([]models.Run, error) {
	return l.runs, nil
}

func testRun(id, phase, file string, age time.Duration) models.Run {
	return models.Run{
		RunID:            id,
		Workflow:         models.WorkflowCTGAN,
		Status:           models.RunStatus{Phase: phase},
		OriginalFilename: file,
		CreatedAt:        time.Now().Add(-age).UTC().Format(time.RFC3339),
	}
}

func newListApp(t *testing.T, runs []models.Run) *App {
	t.Helper()
	registry := monitor.NewRegistry(&staticLister{runs: runs}, time.Hour, nil)
	registry.Refresh(context.Background(), false)
	t.Cleanup(registry.Close)
	app := NewApp(context.Background(), nil, registry, 0, time.Hour)
	app.SetSend(func(tea.Msg) {})
	return app
}

func key(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestListNavigationClamps(t *testing.T) {
	app := newListApp(t, []models.Run{
		testRun("run-1", models.PhaseRunning, "a.csv", time.Minute),
		testRun("run-2", models.PhaseSucceeded, "b.csv", time.Hour),
	})

	app.handleKey(key("k"))
	assert.Equal(t, 0, app.selectedIdx)

	app.handleKey(key("j"))
	assert.Equal(t, 1, app.selectedIdx)

	app.handleKey(key("j"))
	assert.Equal(t, 1, app.selectedIdx)
}

func TestSelectionClampsWhenListShrinks(t *testing.T) {
	lister := &staticLister{runs: []models.Run{
		testRun("run-1", models.PhaseRunning, "a.csv", time.Minute),
		testRun("run-2", models.PhaseRunning, "b.csv", time.Hour),
		testRun("run-3", models.PhaseRunning, "c.csv", 2*time.Hour),
	}}
	registry := monitor.NewRegistry(lister, time.Hour, nil)
	registry.Refresh(context.Background(), false)
	t.Cleanup(registry.Close)

	app := NewApp(context.Background(), nil, registry, 0, time.Hour)
	app.selectedIdx = 2

	lister.runs = lister.runs[:1]
	registry.Refresh(context.Background(), false)
	app.Update(registryUpdatedMsg{})
	assert.Equal(t, 0, app.selectedIdx)
}

func TestViewRunListShowsRuns(t *testing.T) {
	app := newListApp(t, []models.Run{
		testRun("abcdef0123456789", models.PhaseRunning, "orders.csv", time.Minute),
	})

	out := app.View()
	assert.Contains(t, out, "abcdef01")
	assert.Contains(t, out, "orders.csv")
	assert.Contains(t, out, "Running")
	assert.Contains(t, out, "[enter] logs")
}

func TestViewRunListEmpty(t *testing.T) {
	app := newListApp(t, nil)
	assert.Contains(t, app.View(), "No runs yet")
}

func TestDetailOpensAndClosesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"result":{"content":"hello","podName":"job-main-1"}}`)
	}))
	t.Cleanup(srv.Close)

	run := testRun("run-1", models.PhaseRunning, "a.csv", time.Minute)
	registry := monitor.NewRegistry(&staticLister{runs: []models.Run{run}}, time.Hour, nil)
	registry.Refresh(context.Background(), false)
	t.Cleanup(registry.Close)

	client := api.NewClient(api.Config{BaseURL: srv.URL})
	app := NewApp(context.Background(), client, registry, 0, time.Hour)

	updates := make(chan tea.Msg, 16)
	app.SetSend(func(msg tea.Msg) { updates <- msg })

	app.handleKey(key("enter"))
	require.NotNil(t, app.session)
	assert.Equal(t, ViewRunDetail, app.view)

	select {
	case msg := <-updates:
		app.Update(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no session update arrived")
	}
	require.Len(t, app.sections(), 1)

	app.handleKey(key("esc"))
	assert.Nil(t, app.session)
	assert.Equal(t, ViewRunList, app.view)
}

func TestRefreshLogContentFoldMarkers(t *testing.T) {
	run := testRun("run-1", models.PhaseRunning, "a.csv", time.Minute)
	registry := monitor.NewRegistry(&staticLister{runs: []models.Run{run}}, time.Hour, nil)
	t.Cleanup(registry.Close)

	app := NewApp(context.Background(), nil, registry, 0, time.Hour)
	app.logView.Width = 80
	app.logView.Height = 20
	app.session = monitor.NewSession(fetcherFunc(func(ctx context.Context, runID string, tail int) (string, error) {
		return `{"result":{"content":"line one","podName":"job-main-1"}}`, nil
	}), "run-1", 0, time.Hour, nil)
	t.Cleanup(app.session.Close)

	// Populate sections through a direct fetch.
	app.session.Start(context.Background())
	require.Eventually(t, func() bool { return len(app.session.Sections()) == 1 }, 2*time.Second, 10*time.Millisecond)

	app.refreshLogContent()
	out := app.logView.View()
	assert.Contains(t, out, "▾")
	assert.Contains(t, out, "line one")

	app.session.Toggle("job-main-1")
	app.refreshLogContent()
	out = app.logView.View()
	assert.Contains(t, out, "▸")
	assert.NotContains(t, out, "line one")
}

type fetcherFunc func(ctx context.Context, runID string, tail int) (string, error)

func (f fetcherFunc) FetchLogs(ctx context.Context, runID string, tail int) (string, error) {
	return f(ctx, runID, tail)
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"zero time", time.Time{}, "?"},
		{"seconds", time.Now().Add(-30 * time.Second), "now"},
		{"minutes", time.Now().Add(-5 * time.Minute), "5m"},
		{"hours", time.Now().Add(-3 * time.Hour), "3h"},
		{"days", time.Now().Add(-49 * time.Hour), "2d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatAge(tt.t))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "very-lo...", truncate("very-long-filename.csv", 10))
	assert.Equal(t, "abc", truncate("abc", 3))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcdef01", shortID("abcdef0123456789"))
	assert.Equal(t, "tiny", shortID("tiny"))
}
